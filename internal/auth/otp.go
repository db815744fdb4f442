package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

const (
	codeMin  = 100000
	codeSpan = 900000
)

// GenerateCode returns a uniformly random six-digit verification code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return strconv.FormatInt(n.Int64()+codeMin, 10), nil
}

// NormalizeCode strips surrounding whitespace from a submitted code.
func NormalizeCode(code string) string {
	return strings.TrimSpace(code)
}

// HashCode returns the hex SHA-256 of a normalized code, for codes kept on persisted users.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(NormalizeCode(code)))
	return hex.EncodeToString(sum[:])
}

// NormalizeEmail lower-cases and trims an email address for use as a key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
