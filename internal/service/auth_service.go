package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"requestportal/internal/auth"
	apperrors "requestportal/internal/errors"
	"requestportal/internal/model"
	"requestportal/internal/notify"
	"requestportal/internal/repository"
)

// EmailOTPExpiry is how long a code reissued to a persisted user stays valid.
const EmailOTPExpiry = 10 * time.Minute

// RegisterInput carries a self-registration submission.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     string
	School   string
	Phone    string
}

// ResendOTPInput identifies who should receive a fresh code, by email or user id.
type ResendOTPInput struct {
	Email  string
	UserID string
}

// AuthResult is returned by flows that sign the user in.
type AuthResult struct {
	Token string
	User  model.UserSummary
}

// AuthService handles registration, verification and credential operations.
type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*auth.PendingRegistration, error)
	VerifyEmail(ctx context.Context, email, code string) (*AuthResult, error)
	ResendOTP(ctx context.Context, in ResendOTPInput) error
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) (*AuthResult, error)
	Me(ctx context.Context, userID uuid.UUID) (*model.User, error)
}

// AuthSettings holds the institution-specific rules applied at registration.
type AuthSettings struct {
	InstitutionDomain string
	PhoneRegion       string
	// ResetURLBase is the client origin the reset link points at.
	ResetURLBase string
}

type authService struct {
	userRepo   repository.UserRepository
	pending    auth.PendingStore
	hasher     *auth.PasswordHasher
	jwtService *auth.JWTService
	notifier   notify.Notifier
	settings   AuthSettings
	log        *zap.Logger
	now        func() time.Time
}

// AuthOption configures the auth service.
type AuthOption func(*authService)

// WithAuthClock overrides the clock used for code and token expiry.
func WithAuthClock(now func() time.Time) AuthOption {
	return func(s *authService) {
		s.now = now
	}
}

// NewAuthService creates a new authentication service.
func NewAuthService(
	userRepo repository.UserRepository,
	pending auth.PendingStore,
	hasher *auth.PasswordHasher,
	jwtService *auth.JWTService,
	notifier notify.Notifier,
	settings AuthSettings,
	log *zap.Logger,
	opts ...AuthOption,
) AuthService {
	s := &authService{
		userRepo:   userRepo,
		pending:    pending,
		hasher:     hasher,
		jwtService: jwtService,
		notifier:   notifier,
		settings:   settings,
		log:        log,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register validates a submission, parks it as a pending registration and mails the code.
func (s *authService) Register(ctx context.Context, in RegisterInput) (*auth.PendingRegistration, error) {
	name := strings.TrimSpace(in.Name)
	email := auth.NormalizeEmail(in.Email)
	if name == "" || email == "" || in.Password == "" || in.School == "" || in.Phone == "" {
		return nil, apperrors.ErrMissingFields
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		return nil, err
	}
	if !strings.HasSuffix(email, "@"+s.settings.InstitutionDomain) {
		return nil, apperrors.ErrInstitutionEmail
	}

	role := model.Role(strings.ToLower(strings.TrimSpace(in.Role)))
	if role == "" {
		role = model.RoleStudent
	}
	if !role.Valid() || !role.SelfAssignable() {
		return nil, apperrors.ErrInvalidRole
	}
	if !model.ValidSchool(in.School) {
		return nil, apperrors.ErrInvalidSchool
	}
	phone, err := normalizePhone(in.Phone, s.settings.PhoneRegion)
	if err != nil {
		return nil, err
	}

	if err := s.ensureEmailFree(ctx, email); err != nil {
		return nil, err
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	code, err := auth.GenerateCode()
	if err != nil {
		return nil, err
	}

	entry, err := s.pending.Put(ctx, email, auth.PendingRegistration{
		Name:         name,
		PasswordHash: passwordHash,
		Role:         role,
		School:       in.School,
		Phone:        phone,
	}, code)
	if err != nil {
		return nil, fmt.Errorf("store pending registration: %w", err)
	}

	if err := s.notifier.SendVerificationCode(ctx, email, name, code, auth.PendingRegistrationExpiry); err != nil {
		s.log.Error("verification email failed", zap.String("email", email), zap.Error(err))
		_ = s.pending.Delete(ctx, email)
		return nil, apperrors.ErrEmailDelivery
	}

	s.log.Info("registration pending verification", zap.String("email", email))
	return entry, nil
}

// VerifyEmail consumes a code and signs the user in. Pending registrations are
// promoted to users; persisted unverified users are marked verified.
func (s *authService) VerifyEmail(ctx context.Context, email, code string) (*AuthResult, error) {
	email = auth.NormalizeEmail(email)
	code = auth.NormalizeCode(code)
	if email == "" || code == "" {
		return nil, apperrors.NewValidationError("Please provide both email and OTP")
	}

	entry, err := s.pending.Consume(ctx, email, code)
	switch {
	case err == nil:
		return s.promote(ctx, entry)
	case errors.Is(err, apperrors.ErrPendingNotFound):
		return s.verifyPersisted(ctx, email, code)
	default:
		return nil, err
	}
}

// promote persists a consumed pending registration. The entry is already gone,
// so a failure here is reported distinctly from a replayed code.
func (s *authService) promote(ctx context.Context, entry *auth.PendingRegistration) (*AuthResult, error) {
	user := &model.User{
		Name:          entry.Name,
		Email:         entry.Email,
		PasswordHash:  entry.PasswordHash,
		Role:          entry.Role,
		School:        entry.School,
		Phone:         entry.Phone,
		EmailVerified: true,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if existing, findErr := s.userRepo.FindByEmail(ctx, entry.Email); findErr == nil && existing != nil {
			return nil, apperrors.ErrUserExists
		}
		s.log.Error("promote registration failed", zap.String("email", entry.Email), zap.Error(err))
		return nil, apperrors.ErrRegistrationCommitFailed
	}

	s.log.Info("user registered", zap.String("user_id", user.ID.String()), zap.String("role", string(user.Role)))
	return s.signIn(user)
}

func (s *authService) verifyPersisted(ctx context.Context, email, code string) (*AuthResult, error) {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrPendingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user.EmailVerified || user.EmailVerificationOTP == "" || user.EmailVerificationOTPExpire == nil {
		return nil, apperrors.ErrPendingNotFound
	}
	if s.now().After(*user.EmailVerificationOTPExpire) {
		return nil, apperrors.ErrCodeExpired
	}
	hash := auth.HashCode(code)
	if user.EmailVerificationOTP != hash {
		return nil, apperrors.ErrCodeMismatch
	}

	ok, err := s.userRepo.ConsumeEmailOTP(ctx, user.ID, hash)
	if err != nil {
		return nil, fmt.Errorf("consume email otp: %w", err)
	}
	if !ok {
		return nil, apperrors.ErrPendingNotFound
	}
	user.EmailVerified = true
	return s.signIn(user)
}

// ResendOTP reissues a code. A pending registration gets a fresh entry; a
// persisted unverified user gets a hashed code on their record.
func (s *authService) ResendOTP(ctx context.Context, in ResendOTPInput) error {
	if in.UserID == "" && in.Email != "" {
		if entry, err := s.pending.Get(ctx, in.Email); err == nil {
			return s.reissuePending(ctx, entry)
		} else if !errors.Is(err, apperrors.ErrPendingNotFound) {
			return err
		}
	}

	user, err := s.lookupForResend(ctx, in)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return apperrors.ErrEmailAlreadyVerified
	}

	code, err := auth.GenerateCode()
	if err != nil {
		return err
	}
	if err := s.userRepo.SetEmailOTP(ctx, user.ID, auth.HashCode(code), s.now().Add(EmailOTPExpiry)); err != nil {
		return fmt.Errorf("store email otp: %w", err)
	}
	if err := s.notifier.SendVerificationCode(ctx, user.Email, user.Name, code, EmailOTPExpiry); err != nil {
		s.log.Error("resend verification email failed", zap.String("user_id", user.ID.String()), zap.Error(err))
		return apperrors.ErrEmailDelivery
	}
	return nil
}

func (s *authService) reissuePending(ctx context.Context, entry *auth.PendingRegistration) error {
	code, err := auth.GenerateCode()
	if err != nil {
		return err
	}
	if _, err := s.pending.Put(ctx, entry.Email, *entry, code); err != nil {
		return fmt.Errorf("store pending registration: %w", err)
	}
	if err := s.notifier.SendVerificationCode(ctx, entry.Email, entry.Name, code, auth.PendingRegistrationExpiry); err != nil {
		s.log.Error("resend verification email failed", zap.String("email", entry.Email), zap.Error(err))
		return apperrors.ErrEmailDelivery
	}
	return nil
}

func (s *authService) lookupForResend(ctx context.Context, in ResendOTPInput) (*model.User, error) {
	var (
		user *model.User
		err  error
	)
	switch {
	case in.UserID != "":
		id, parseErr := uuid.Parse(in.UserID)
		if parseErr != nil {
			return nil, apperrors.ErrUserNotFound
		}
		user, err = s.userRepo.FindByID(ctx, id)
	case in.Email != "":
		user, err = s.userRepo.FindByEmail(ctx, auth.NormalizeEmail(in.Email))
	default:
		return nil, apperrors.ErrMissingFields
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

// Login authenticates a user and returns a session token.
func (s *authService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = auth.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperrors.NewValidationError("Please provide an email and password")
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	ok, err := s.hasher.Compare(user.PasswordHash, password)
	if err != nil {
		s.log.Error("credential check failed", zap.String("user_id", user.ID.String()), zap.Error(err))
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrInvalidCredentials
	}
	return s.signIn(user)
}

// ForgotPassword stores a hashed reset token and mails the opaque one. If the
// mail cannot be sent the token is cleared again.
func (s *authService) ForgotPassword(ctx context.Context, email string) error {
	email = auth.NormalizeEmail(email)
	if email == "" {
		return apperrors.NewValidationError("Please provide an email address")
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}

	token, hash, err := auth.NewResetToken()
	if err != nil {
		return err
	}
	if err := s.userRepo.SetResetToken(ctx, user.ID, hash, s.now().Add(auth.ResetTokenExpiry)); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	resetURL := strings.TrimRight(s.settings.ResetURLBase, "/") + "/reset-password/" + token
	if err := s.notifier.SendPasswordReset(ctx, user.Email, user.Name, resetURL, auth.ResetTokenExpiry); err != nil {
		s.log.Error("password reset email failed", zap.String("user_id", user.ID.String()), zap.Error(err))
		if clearErr := s.userRepo.ClearResetToken(ctx, user.ID); clearErr != nil {
			s.log.Error("clear reset token failed", zap.String("user_id", user.ID.String()), zap.Error(clearErr))
		}
		return apperrors.ErrEmailDelivery
	}
	return nil
}

// ResetPassword consumes a reset token, sets the new password and signs the user in.
func (s *authService) ResetPassword(ctx context.Context, token, password string) (*AuthResult, error) {
	if err := auth.ValidatePassword(password); err != nil {
		return nil, err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperrors.ErrInvalidOrExpiredToken
	}

	hash := auth.HashToken(token)
	user, err := s.userRepo.FindByResetToken(ctx, hash, s.now())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrInvalidOrExpiredToken
	}
	if err != nil {
		return nil, fmt.Errorf("find reset token: %w", err)
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	ok, err := s.userRepo.ResetPassword(ctx, user.ID, hash, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("reset password: %w", err)
	}
	if !ok {
		return nil, apperrors.ErrInvalidOrExpiredToken
	}

	s.log.Info("password reset", zap.String("user_id", user.ID.String()))
	return s.signIn(user)
}

// Me returns the current user's profile.
func (s *authService) Me(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

func (s *authService) ensureEmailFree(ctx context.Context, email string) error {
	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err == nil && existing != nil {
		return apperrors.ErrUserExists
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("check user existence: %w", err)
	}
	return nil
}

func (s *authService) signIn(user *model.User) (*AuthResult, error) {
	token, err := s.jwtService.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue session token: %w", err)
	}
	return &AuthResult{Token: token, User: user.Summary()}, nil
}

func normalizePhone(raw, region string) (string, error) {
	num, err := phonenumbers.Parse(strings.TrimSpace(raw), region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", apperrors.ErrInvalidPhone
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
