package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionTokenExpiry is the duration for which session tokens are valid.
const SessionTokenExpiry = 30 * 24 * time.Hour

// Claims represents JWT claims. Only the user id is carried; role is resolved per request.
type Claims struct {
	UserID string `json:"id"`
	jwt.RegisteredClaims
}

// ParsedUserID returns the user id as a UUID.
func (c *Claims) ParsedUserID() (uuid.UUID, error) {
	return uuid.Parse(c.UserID)
}

// JWTService handles session token generation and validation.
type JWTService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// JWTOption configures a JWTService.
type JWTOption func(*JWTService)

// WithJWTClock overrides the clock used for issuing and validating tokens.
func WithJWTClock(now func() time.Time) JWTOption {
	return func(s *JWTService) {
		s.now = now
	}
}

// WithJWTExpiry overrides the session token lifetime.
func WithJWTExpiry(ttl time.Duration) JWTOption {
	return func(s *JWTService) {
		s.ttl = ttl
	}
}

// NewJWTService creates a new JWT service with the given secret.
func NewJWTService(secret string, opts ...JWTOption) *JWTService {
	s := &JWTService{
		secret: []byte(secret),
		ttl:    SessionTokenExpiry,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue generates a signed session token for the user.
func (s *JWTService) Issue(userID uuid.UUID) (string, error) {
	now := s.now()
	claims := &Claims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate validates a session token and returns the claims.
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if _, err := claims.ParsedUserID(); err != nil {
		return nil, fmt.Errorf("invalid subject: %w", err)
	}

	return claims, nil
}
