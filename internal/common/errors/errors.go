// Package errors provides standardized error handling for the query and cleaning pipeline.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Upstream collaborators timed out or reported overload. Retried
	// automatically, surfaced only once retries exhaust.
	ErrCodeTransientUpstream ErrorCode = "TRANSIENT_UPSTREAM"

	// The inference service returned malformed, truncated or empty output.
	// Absorbed by repair and model fallback; never constructed as a
	// client-facing error.
	ErrCodeInvalidOutput ErrorCode = "INVALID_OUTPUT"

	// A generated query contained a mutating verb. Never retried.
	ErrCodeUnsafeQuery ErrorCode = "UNSAFE_QUERY"

	// A generated query had no read verb at all.
	ErrCodeNotAQuery ErrorCode = "NOT_A_QUERY"

	// Every retrieval path executed cleanly but produced zero rows. Served
	// as an empty success, never as an error response.
	ErrCodeNoData ErrorCode = "NO_DATA"

	// Required external-service credentials or settings are missing.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION"

	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeEmailSendFailed  ErrorCode = "EMAIL_SEND_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewTransientUpstreamError creates a retryable upstream error.
func NewTransientUpstreamError(service string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTransientUpstream,
		Message:   fmt.Sprintf("Upstream service '%s' is temporarily unavailable", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnsafeQueryError creates a non-retryable blocked-query error.
func NewUnsafeQueryError(verb string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnsafeQuery,
		Message:   "Generated query contains a mutating statement and was blocked",
		Details:   fmt.Sprintf("blocked verb: %s", verb),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotAQueryError creates a non-retryable missing-read-verb error.
func NewNotAQueryError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotAQuery,
		Message:   "Generated text is not a readable query",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewConfigurationError creates a fatal missing-configuration error.
func NewConfigurationError(setting string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConfiguration,
		Message:   "Required configuration is missing",
		Details:   fmt.Sprintf("setting: %s", setting),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationError creates a non-retryable request validation error.
func NewValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Request validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewEmailSendFailedError creates a retryable email relay error.
func NewEmailSendFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeEmailSendFailed,
		Message:   "Contact message delivery failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. HTTP Mapping
// ==========================

// HTTPStatus maps an error code to the response status served to clients.
// NO_DATA is intentionally absent: empty results are served as 200 with an
// empty payload, not as an error response.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeTransientUpstream:
		return http.StatusServiceUnavailable
	case ErrCodeInvalidOutput:
		return http.StatusBadGateway
	case ErrCodeUnsafeQuery, ErrCodeNotAQuery, ErrCodeValidationFailed:
		return http.StatusBadRequest
	case ErrCodeConfiguration:
		return http.StatusServiceUnavailable
	case ErrCodeEmailSendFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RetryAdvice returns user-facing retry guidance for retryable codes,
// empty string otherwise.
func RetryAdvice(code ErrorCode) string {
	switch code {
	case ErrCodeTransientUpstream:
		return "The upstream AI service is busy. Retry in a few seconds."
	case ErrCodeEmailSendFailed:
		return "Message delivery failed temporarily. Retry in a minute."
	default:
		return ""
	}
}

// FromError extracts a StandardError from any error chain, wrapping unknown
// errors as non-retryable internal failures so raw upstream stack traces
// never reach clients.
func FromError(err error) *StandardError {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}
	return &StandardError{
		Code:      "INTERNAL_ERROR",
		Message:   "Internal processing error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 4. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	switch code {
	case ErrCodeTransientUpstream, ErrCodeEmailSendFailed:
		return true
	default:
		return false
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "QUERY"):
		return "SAFETY"
	case strings.Contains(codeStr, "UPSTREAM") || strings.Contains(codeStr, "OUTPUT"):
		return "AI"
	case strings.Contains(codeStr, "CONFIGURATION"):
		return "CONFIG"
	case strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	case strings.Contains(codeStr, "EMAIL"):
		return "NOTIFICATION"
	default:
		return "OTHER"
	}
}
