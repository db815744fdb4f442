package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"requestportal/internal/auth"
	"requestportal/internal/config"
	"requestportal/internal/db"
	"requestportal/internal/logger"
	"requestportal/internal/model"
	"requestportal/internal/repository"
)

func main() {
	cfg := config.Load()

	name := flag.String("name", envOr("ADMIN_NAME", "Admin"), "admin display name")
	email := flag.String("email", os.Getenv("ADMIN_EMAIL"), "admin email address")
	password := flag.String("password", os.Getenv("ADMIN_PASSWORD"), "admin password")
	school := flag.String("school", envOr("ADMIN_SCHOOL", "Administration"), "admin school or department")
	phone := flag.String("phone", os.Getenv("ADMIN_PHONE"), "admin phone number")
	recreate := flag.Bool("recreate", false, "delete and recreate the admin if it already exists")
	flag.Parse()

	zlog, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer zlog.Sync() //nolint:errcheck

	gormDB, err := db.Open(cfg.DBDriver, cfg.DatabaseDSN())
	if err != nil {
		zlog.Fatal("database init", zap.Error(err))
	}
	if err := db.Migrate(gormDB, false, zlog); err != nil {
		zlog.Fatal("migrate", zap.Error(err))
	}

	users := repository.NewUserRepository(gormDB)
	hasher := auth.NewPasswordHasher(cfg.BcryptCost)

	created, err := createAdmin(context.Background(), users, hasher, adminInput{
		Name:     *name,
		Email:    *email,
		Password: *password,
		School:   *school,
		Phone:    *phone,
	}, *recreate)
	if err != nil {
		zlog.Fatal("create admin", zap.Error(err))
	}
	if created {
		zlog.Info("admin user created", zap.String("email", auth.NormalizeEmail(*email)))
	} else {
		zlog.Info("admin user already exists", zap.String("email", auth.NormalizeEmail(*email)))
	}
}

type adminInput struct {
	Name     string
	Email    string
	Password string
	School   string
	Phone    string
}

// createAdmin creates the admin if it is missing. With recreate set an existing
// account under the same email is deleted first. It reports whether a user was written.
func createAdmin(ctx context.Context, users repository.UserRepository, hasher *auth.PasswordHasher, in adminInput, recreate bool) (bool, error) {
	email := auth.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return false, errors.New("email and password are required")
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		return false, err
	}

	existing, err := users.FindByEmail(ctx, email)
	switch {
	case err == nil && !recreate:
		return false, nil
	case err == nil:
		if err := users.Delete(ctx, existing.ID); err != nil {
			return false, fmt.Errorf("delete existing admin: %w", err)
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return false, fmt.Errorf("find admin: %w", err)
	}

	hash, err := hasher.Hash(in.Password)
	if err != nil {
		return false, err
	}
	admin := &model.User{
		Name:          in.Name,
		Email:         email,
		PasswordHash:  hash,
		Role:          model.RoleAdmin,
		School:        in.School,
		Phone:         in.Phone,
		EmailVerified: true,
	}
	if err := users.Create(ctx, admin); err != nil {
		return false, fmt.Errorf("create admin: %w", err)
	}
	return true, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
