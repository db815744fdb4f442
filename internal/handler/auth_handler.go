package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"requestportal/internal/model"
	"requestportal/internal/service"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService service.AuthService
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(authService service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// RegisterRequest represents a self-registration request.
type RegisterRequest struct {
	Name     string `json:"name" validate:"max=100"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"max=128"`
	Role     string `json:"role" validate:"max=20"`
	School   string `json:"school" validate:"max=100"`
	Phone    string `json:"phone" validate:"max=32"`
}

// VerifyEmailRequest carries the code sent after registration.
type VerifyEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,max=16"`
}

// ResendOTPRequest identifies the account by email or user id.
type ResendOTPRequest struct {
	Email  string `json:"email" validate:"omitempty,email"`
	UserID string `json:"userId" validate:"omitempty,uuid"`
}

// LoginRequest represents a user login request.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ForgotPasswordRequest starts a password reset.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest carries the new password.
type ResetPasswordRequest struct {
	Password string `json:"password" validate:"required,max=128"`
}

// RegisterResponse is returned once the verification code is on its way.
type RegisterResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Email   string `json:"email"`
}

// AuthResponse represents an authentication response.
type AuthResponse struct {
	Success bool               `json:"success"`
	Message string             `json:"message,omitempty"`
	Token   string             `json:"token"`
	User    *model.UserSummary `json:"user,omitempty"`
}

// Register godoc
// @Summary Register a new user
// @Description Parks the registration and emails a six digit verification code. No account exists until the code is verified.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration data"
// @Success 200 {object} RegisterResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	entry, err := h.authService.Register(c.Request().Context(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
		School:   req.School,
		Phone:    req.Phone,
	})
	if err != nil {
		return domainError(err)
	}

	return c.JSON(http.StatusOK, RegisterResponse{
		Success: true,
		Message: "Please check your email for verification OTP.",
		Email:   entry.Email,
	})
}

// VerifyEmail godoc
// @Summary Verify email with OTP
// @Tags auth
// @Accept json
// @Produce json
// @Param request body VerifyEmailRequest true "Email and code"
// @Success 201 {object} AuthResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /auth/verify-email [post]
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	var req VerifyEmailRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	result, err := h.authService.VerifyEmail(c.Request().Context(), req.Email, req.OTP)
	if err != nil {
		return domainError(err)
	}

	return c.JSON(http.StatusCreated, AuthResponse{
		Success: true,
		Message: "Registration successful!",
		Token:   result.Token,
		User:    &result.User,
	})
}

// ResendOTP godoc
// @Summary Resend verification code
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ResendOTPRequest true "Email or user id"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /auth/resend-otp [post]
func (h *AuthHandler) ResendOTP(c echo.Context) error {
	var req ResendOTPRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.authService.ResendOTP(c.Request().Context(), service.ResendOTPInput{
		Email:  req.Email,
		UserID: req.UserID,
	}); err != nil {
		return domainError(err)
	}

	return c.JSON(http.StatusOK, MessageResponse{
		Success: true,
		Message: "New OTP sent to your email",
	})
}

// Login godoc
// @Summary Login user
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login credentials"
// @Success 200 {object} AuthResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	result, err := h.authService.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return domainError(err)
	}

	return c.JSON(http.StatusOK, AuthResponse{
		Success: true,
		Token:   result.Token,
		User:    &result.User,
	})
}

// ForgotPassword godoc
// @Summary Request a password reset link
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ForgotPasswordRequest true "Account email"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req ForgotPasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.authService.ForgotPassword(c.Request().Context(), req.Email); err != nil {
		return domainError(err)
	}

	return c.JSON(http.StatusOK, MessageResponse{
		Success: true,
		Message: "Password reset link sent to email",
	})
}

// ResetPassword godoc
// @Summary Reset password with a reset token
// @Tags auth
// @Accept json
// @Produce json
// @Param resettoken path string true "Reset token from the emailed link"
// @Param request body ResetPasswordRequest true "New password"
// @Success 200 {object} AuthResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /auth/reset-password/{resettoken} [put]
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	result, err := h.authService.ResetPassword(c.Request().Context(), c.Param("resettoken"), req.Password)
	if err != nil {
		return domainError(err)
	}

	return c.JSON(http.StatusOK, AuthResponse{
		Success: true,
		Message: "Password reset successful",
		Token:   result.Token,
	})
}

// Me godoc
// @Summary Current user profile
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} DataResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /auth/me [get]
func (h *AuthHandler) Me(c echo.Context) error {
	actor, err := currentActor(c)
	if err != nil {
		return domainError(err)
	}

	user, err := h.authService.Me(c.Request().Context(), actor.ID)
	if err != nil {
		return domainError(err)
	}

	return c.JSON(http.StatusOK, DataResponse{Success: true, Data: user})
}
