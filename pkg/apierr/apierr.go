package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// APIError represents a failure reported by the remote platform, carrying the
// HTTP status code and a machine-readable category code
type APIError struct {
	StatusCode int           `json:"-"`
	Code       string        `json:"code"`
	Message    string        `json:"message"`
	RetryAfter time.Duration `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("[HTTP %d] [%s] %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Category codes
const (
	CodeRateLimited = "RATE_LIMITED"
	CodeNotFound    = "NOT_FOUND"
	CodeAuthFailure = "AUTH_FAILURE"
	CodeNetwork     = "NETWORK_FAILURE"
	CodeValidation  = "VALIDATION_FAILURE"
	CodeAPIFailure  = "API_FAILURE"
)

// NewError creates a new APIError
func NewError(statusCode int, code string, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
	}
}

// NewRateLimitedError creates a recoverable rate-limit error. retryAfter is
// the backoff the platform asked for; zero means it did not say.
func NewRateLimitedError(retryAfter time.Duration) *APIError {
	return &APIError{
		StatusCode: http.StatusTooManyRequests,
		Code:       CodeRateLimited,
		Message:    "You are being rate limited.",
		RetryAfter: retryAfter,
	}
}

// NewNotFoundError creates an error for a message that is already gone
func NewNotFoundError(message string) *APIError {
	return NewError(http.StatusNotFound, CodeNotFound, message)
}

// NewAuthFailureError creates a fatal authentication/authorization error
func NewAuthFailureError(statusCode int, message string) *APIError {
	return NewError(statusCode, CodeAuthFailure, message)
}

// NewNetworkError wraps a transport-level failure; there is no HTTP status
func NewNetworkError(err error) *APIError {
	return NewError(0, CodeNetwork, err.Error())
}

// NewValidationError creates an error for bad operator input, surfaced before
// any remote call is made
func NewValidationError(message string) *APIError {
	return NewError(0, CodeValidation, message)
}

// code extracts the category code from err, or "" when err is not an APIError
func code(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// IsRateLimited reports whether err is a recoverable rate-limit signal
func IsRateLimited(err error) bool {
	return code(err) == CodeRateLimited
}

// IsNotFound reports whether err means the resource is already gone
func IsNotFound(err error) bool {
	return code(err) == CodeNotFound
}

// IsAuthFailure reports whether err means the credential is invalid
func IsAuthFailure(err error) bool {
	return code(err) == CodeAuthFailure
}

// IsNetwork reports whether err is a transport-level failure
func IsNetwork(err error) bool {
	return code(err) == CodeNetwork
}

// IsValidation reports whether err is an operator-input error
func IsValidation(err error) bool {
	return code(err) == CodeValidation
}

// IsFatal reports whether err must abort the whole run. Auth, network and
// validation failures cannot be recovered from mid-walk; rate limits and
// not-found are handled per item.
func IsFatal(err error) bool {
	switch code(err) {
	case CodeAuthFailure, CodeNetwork, CodeValidation:
		return true
	}
	return false
}

// RetryAfter returns the platform-indicated backoff carried by err, or zero
func RetryAfter(err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}
