package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Schools open to self-registration.
var Schools = []string{
	"School of Technology",
	"School of Sciences",
	"School of Architecture and Planning",
	"School of Business",
	"School of Arts and Design",
	"School of Liberal Arts and Humanities",
	"School of Law",
}

// ValidSchool reports whether s is one of the institutional schools.
func ValidSchool(s string) bool {
	for _, school := range Schools {
		if school == s {
			return true
		}
	}
	return false
}

// User represents a verified account in the portal.
type User struct {
	ID            uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	Name          string    `json:"name" gorm:"size:255;not null"`
	Email         string    `json:"email" gorm:"uniqueIndex;size:255;not null"`
	PasswordHash  string    `json:"-" gorm:"size:255;not null"` // Never expose in JSON
	Role          Role      `json:"role" gorm:"size:20;not null;default:'student'"`
	School        string    `json:"school" gorm:"size:100"`
	Phone         string    `json:"phone" gorm:"size:32"`
	EmailVerified bool      `json:"emailVerified" gorm:"default:false"`

	EmailVerificationOTP       string     `json:"-" gorm:"column:email_verification_otp;size:64"`
	EmailVerificationOTPExpire *time.Time `json:"-" gorm:"column:email_verification_otp_expire"`
	ResetPasswordToken         string     `json:"-" gorm:"column:reset_password_token;size:64;index"`
	ResetPasswordExpire        *time.Time `json:"-" gorm:"column:reset_password_expire"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BeforeCreate sets UUID before creating the record.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// UserSummary is the public view of a user returned alongside session tokens.
type UserSummary struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Email  string    `json:"email"`
	Role   Role      `json:"role"`
	School string    `json:"school"`
	Phone  string    `json:"phone"`
}

// Summary returns the public view of u.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:     u.ID,
		Name:   u.Name,
		Email:  u.Email,
		Role:   u.Role,
		School: u.School,
		Phone:  u.Phone,
	}
}
