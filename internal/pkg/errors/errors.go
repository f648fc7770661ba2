// Package errors provides standardized API error types.
package errors

import (
	"fmt"
	"net/http"
)

// APIError represents a standardized API error response.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// WithMessage returns a copy of the error with a custom message.
func (e *APIError) WithMessage(message string) *APIError {
	return &APIError{
		Code:       e.Code,
		Message:    message,
		StatusCode: e.StatusCode,
	}
}

// Standard error definitions
var (
	// ErrValidation is returned when the request payload is malformed or incomplete.
	ErrValidation = &APIError{
		Code:       "validation_error",
		Message:    "One or more fields failed validation",
		StatusCode: http.StatusBadRequest,
	}

	// ErrConflict is returned when a user with the same email or username already exists.
	// The status is 400 rather than 409 to match the public API contract.
	ErrConflict = &APIError{
		Code:       "conflict",
		Message:    "User already exists",
		StatusCode: http.StatusBadRequest,
	}

	// ErrAuthentication is returned for bad credentials. The message is the same
	// for unknown accounts and wrong passwords to resist user enumeration.
	ErrAuthentication = &APIError{
		Code:       "authentication_error",
		Message:    "Invalid email or password",
		StatusCode: http.StatusUnauthorized,
	}

	// ErrUnauthorized is returned when an endpoint requires an active session.
	ErrUnauthorized = &APIError{
		Code:       "unauthorized",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	// ErrSession is returned when the session store itself fails.
	ErrSession = &APIError{
		Code:       "session_error",
		Message:    "Session operation failed",
		StatusCode: http.StatusInternalServerError,
	}

	// ErrUpstreamUnavailable is returned when the auth service cannot be reached.
	ErrUpstreamUnavailable = &APIError{
		Code:       "upstream_unavailable",
		Message:    "Authentication service is unavailable. Please try again later.",
		StatusCode: http.StatusBadGateway,
	}

	// ErrInternal is returned for unexpected server errors.
	ErrInternal = &APIError{
		Code:       "internal_error",
		Message:    "An internal error occurred",
		StatusCode: http.StatusInternalServerError,
	}
)

// NewValidationError creates a validation error with a specific message.
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:       "validation_error",
		Message:    fmt.Sprintf("Validation failed: %s", message),
		StatusCode: http.StatusBadRequest,
	}
}

// NewConflictError creates a conflict error with a custom message.
func NewConflictError(message string) *APIError {
	return &APIError{
		Code:       "conflict",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// IsAPIError checks if an error is an APIError.
func IsAPIError(err error) bool {
	_, ok := err.(*APIError)
	return ok
}

// AsAPIError converts an error to an APIError if possible.
// Returns ErrInternal if the error is not an APIError.
func AsAPIError(err error) *APIError {
	if apiErr, ok := err.(*APIError); ok {
		return apiErr
	}
	return ErrInternal
}
