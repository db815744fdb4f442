package errors

import (
	"errors"
	"net/http"
)

// Kind classifies a domain error for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindDuplicate
	KindAuth
	KindAuthorization
	KindNotFound
	KindExpired
	KindExternalService
)

// DomainError is a recoverable business failure with a stable machine code.
type DomainError struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

// ToResponse renders e in the error envelope.
func (e *DomainError) ToResponse() ErrorResponse {
	return ErrorResponse{Message: e.Message, Code: e.Code}
}

func newDomainError(kind Kind, code, message string) *DomainError {
	return &DomainError{Kind: kind, Code: code, Message: message}
}

var (
	// ErrMissingFields is returned when a required input is empty.
	ErrMissingFields = newDomainError(KindValidation, "MISSING_FIELDS", "Please provide all required fields")
	// ErrWeakPassword is returned when a password is shorter than the policy allows.
	ErrWeakPassword = newDomainError(KindValidation, "WEAK_PASSWORD", "Password must be at least 8 characters long")
	// ErrInstitutionEmail is returned when the email is outside the institutional domain.
	ErrInstitutionEmail = newDomainError(KindValidation, "INSTITUTION_EMAIL_REQUIRED", "Please use your institutional email address")
	ErrInvalidRole      = newDomainError(KindValidation, "INVALID_ROLE", "Invalid role")
	ErrInvalidSchool    = newDomainError(KindValidation, "INVALID_SCHOOL", "Invalid school")
	ErrInvalidPhone     = newDomainError(KindValidation, "INVALID_PHONE", "Invalid phone number")
	ErrInvalidSubject   = newDomainError(KindValidation, "INVALID_SUBJECT", "Invalid subject")
	ErrInvalidStatus    = newDomainError(KindValidation, "INVALID_STATUS", "Invalid status")
	// ErrNothingToUpdate is returned when a transition carries neither a status nor a remark.
	ErrNothingToUpdate = newDomainError(KindValidation, "NOTHING_TO_UPDATE", "Provide a status or a remark")
	// ErrBlankRemark is returned when a remark is supplied but holds only whitespace.
	ErrBlankRemark = newDomainError(KindValidation, "BLANK_REMARK", "Remark cannot be blank")

	ErrUserExists = newDomainError(KindDuplicate, "USER_EXISTS", "User already exists")
	// ErrEmailAlreadyVerified is returned when a code is requested for a verified account.
	ErrEmailAlreadyVerified = newDomainError(KindDuplicate, "EMAIL_ALREADY_VERIFIED", "Email already verified")

	ErrInvalidCredentials = newDomainError(KindAuth, "INVALID_CREDENTIALS", "Invalid credentials")
	ErrUnauthorized       = newDomainError(KindAuth, "UNAUTHORIZED", "Not authorized to access this route")
	ErrForbidden          = newDomainError(KindAuthorization, "FORBIDDEN", "Not authorized to perform this action")

	// ErrPendingNotFound is returned when no pending registration or verification code exists.
	ErrPendingNotFound = newDomainError(KindNotFound, "PENDING_NOT_FOUND", "No pending verification for this email")
	ErrUserNotFound    = newDomainError(KindNotFound, "USER_NOT_FOUND", "User not found")
	ErrRequestNotFound = newDomainError(KindNotFound, "REQUEST_NOT_FOUND", "Request not found")

	ErrCodeExpired           = newDomainError(KindExpired, "OTP_EXPIRED", "Verification code has expired")
	ErrCodeMismatch          = newDomainError(KindValidation, "OTP_INVALID", "Invalid verification code")
	ErrInvalidOrExpiredToken = newDomainError(KindExpired, "INVALID_TOKEN", "Invalid or expired token")

	ErrFileRequired       = newDomainError(KindValidation, "FILE_REQUIRED", "Please upload a file")
	ErrFileTooLarge       = newDomainError(KindValidation, "FILE_TOO_LARGE", "File exceeds the maximum allowed size")
	ErrFileTypeNotAllowed = newDomainError(KindValidation, "FILE_TYPE_NOT_ALLOWED", "File type not allowed")

	// ErrEmailDelivery is returned when a synchronous email could not be sent.
	ErrEmailDelivery = newDomainError(KindExternalService, "EMAIL_NOT_SENT", "Email could not be sent")
	// ErrCredentialCheckFailed is returned when the password hasher itself fails.
	ErrCredentialCheckFailed = newDomainError(KindInternal, "CREDENTIAL_CHECK_FAILED", "Could not verify credentials")
	// ErrRegistrationCommitFailed is returned when a verified registration could not be persisted.
	ErrRegistrationCommitFailed = newDomainError(KindInternal, "REGISTRATION_FAILED", "Registration could not be completed, please register again")
)

// NewValidationError builds a validation failure carrying a caller-specific message.
func NewValidationError(message string) *DomainError {
	return newDomainError(KindValidation, "VALIDATION_FAILED", message)
}

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, message, code string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Code:       code,
	}
}

// ToErrorResponse converts an HTTPError to ErrorResponse.
func (e *HTTPError) ToErrorResponse() ErrorResponse {
	return ErrorResponse{
		Success: false,
		Message: e.Message,
		Code:    e.Code,
	}
}

// StatusFor returns the HTTP status for a domain error kind.
func StatusFor(kind Kind) int {
	switch kind {
	case KindValidation, KindDuplicate, KindExpired:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// MapErrorToHTTP maps domain errors to HTTP errors. Unknown errors never leak detail.
func MapErrorToHTTP(err error) *HTTPError {
	var de *DomainError
	if errors.As(err, &de) {
		return NewHTTPError(StatusFor(de.Kind), de.Message, de.Code)
	}
	return NewHTTPError(http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
}
