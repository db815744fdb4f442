package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"requestportal/internal/model"
)

// UserRepository defines user persistence operations.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// Email verification codes for persisted, unverified users.
	SetEmailOTP(ctx context.Context, id uuid.UUID, codeHash string, expiresAt time.Time) error
	ConsumeEmailOTP(ctx context.Context, id uuid.UUID, codeHash string) (bool, error)
	// Password reset tokens.
	SetResetToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error
	ClearResetToken(ctx context.Context, id uuid.UUID) error
	FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (*model.User, error)
	ResetPassword(ctx context.Context, id uuid.UUID, tokenHash, passwordHash string) (bool, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository builds a GORM-backed repository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.User{}).Error
}

func (r *userRepository) SetEmailOTP(ctx context.Context, id uuid.UUID, codeHash string, expiresAt time.Time) error {
	return r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"email_verification_otp":        codeHash,
			"email_verification_otp_expire": expiresAt,
		}).Error
}

// ConsumeEmailOTP marks the user verified only if codeHash is still the stored code.
// A concurrent duplicate affects zero rows and reports false.
func (r *userRepository) ConsumeEmailOTP(ctx context.Context, id uuid.UUID, codeHash string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ? AND email_verification_otp = ?", id, codeHash).
		Updates(map[string]interface{}{
			"email_verified":                true,
			"email_verification_otp":        "",
			"email_verification_otp_expire": nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *userRepository) SetResetToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error {
	return r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"reset_password_token":  tokenHash,
			"reset_password_expire": expiresAt,
		}).Error
}

func (r *userRepository) ClearResetToken(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"reset_password_token":  "",
			"reset_password_expire": nil,
		}).Error
}

func (r *userRepository) FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).
		Where("reset_password_token = ? AND reset_password_expire > ?", tokenHash, now).
		First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ResetPassword swaps the password hash and clears the reset token in one statement,
// conditional on the token still being the stored one.
func (r *userRepository) ResetPassword(ctx context.Context, id uuid.UUID, tokenHash, passwordHash string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ? AND reset_password_token = ?", id, tokenHash).
		Updates(map[string]interface{}{
			"password_hash":         passwordHash,
			"reset_password_token":  "",
			"reset_password_expire": nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
