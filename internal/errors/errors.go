package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeAuth indicates an OAuth failure (missing code, token exchange or
	// service-token failure). Fatal to the session; forces a full logout.
	ErrCodeAuth ErrorCode = "auth"
	// ErrCodeAccessCheck indicates the report-access lookup itself failed
	// (who-am-I or profile detail). Distinct from "not authorized".
	ErrCodeAccessCheck ErrorCode = "access_check"
	// ErrCodeAPICall indicates a non-200 from the resource API after retries
	// were exhausted.
	ErrCodeAPICall ErrorCode = "api_call"
	// ErrCodeNotFound indicates a resource (e.g., a report job) was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeInternal indicates an internal error.
	ErrCodeInternal ErrorCode = "internal"
)

// AppError represents a structured application error with a code, message, and
// optional cause. It supports error wrapping for use with errors.Is/As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// StatusCode is the upstream HTTP status for auth/api errors (optional)
	StatusCode int
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Auth creates a new Auth error.
func Auth(message string) *AppError {
	return &AppError{Code: ErrCodeAuth, Message: message}
}

// Authf creates a new Auth error with formatted message.
func Authf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeAuth, Message: fmt.Sprintf(format, args...)}
}

// ServiceTokenFailed creates an Auth error carrying the token endpoint status.
func ServiceTokenFailed(statusCode int) *AppError {
	return &AppError{
		Code:       ErrCodeAuth,
		Message:    fmt.Sprintf("service token request failed with status %d", statusCode),
		StatusCode: statusCode,
	}
}

// AccessCheck creates a new AccessCheck error.
func AccessCheck(message string) *AppError {
	return &AppError{Code: ErrCodeAccessCheck, Message: message}
}

// AccessCheckf creates a new AccessCheck error with formatted message.
func AccessCheckf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeAccessCheck, Message: fmt.Sprintf(format, args...)}
}

// APICallFailed creates an APICall error carrying the upstream status and the
// response body verbatim. This is an internal admin tool; upstream detail is
// surfaced to the user rather than sanitized.
func APICallFailed(statusCode int, body string) *AppError {
	return &AppError{
		Code:       ErrCodeAPICall,
		Message:    fmt.Sprintf("API call failed with %d %s", statusCode, body),
		StatusCode: statusCode,
	}
}

// AuthRetryExhausted creates an Auth error for a 401 that persisted through a
// service-token refresh.
func AuthRetryExhausted() *AppError {
	return &AppError{
		Code:       ErrCodeAuth,
		Message:    "API call failed with 401 after service token refresh",
		StatusCode: 401,
	}
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: message}
}

// NotFoundf creates a new NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message}
}

// Validationf creates a new Validation error with formatted message.
func Validationf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: fmt.Sprintf(format, args...)}
}

// Internal creates a new Internal error.
func Internal(message string) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: message}
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsAuth checks if an error is an Auth error.
func IsAuth(err error) bool {
	return isCode(err, ErrCodeAuth)
}

// IsAccessCheck checks if an error is an AccessCheck error.
func IsAccessCheck(err error) bool {
	return isCode(err, ErrCodeAccessCheck)
}

// IsAPICall checks if an error is an APICall error.
func IsAPICall(err error) bool {
	return isCode(err, ErrCodeAPICall)
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool {
	return isCode(err, ErrCodeNotFound)
}

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool {
	return isCode(err, ErrCodeValidation)
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetStatusCode returns the upstream status code from an error, or zero.
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return 0
}
