package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		code ErrorCode
		want int
	}{
		{"transient upstream maps to 503", ErrCodeTransientUpstream, http.StatusServiceUnavailable},
		{"invalid output maps to 502", ErrCodeInvalidOutput, http.StatusBadGateway},
		{"unsafe query maps to 400", ErrCodeUnsafeQuery, http.StatusBadRequest},
		{"not a query maps to 400", ErrCodeNotAQuery, http.StatusBadRequest},
		{"configuration maps to 503", ErrCodeConfiguration, http.StatusServiceUnavailable},
		{"unknown maps to 500", ErrorCode("SOMETHING_ELSE"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.code))
		})
	}
}

func TestRetryability(t *testing.T) {
	assert.True(t, IsRetryableErrorCode(ErrCodeTransientUpstream))
	assert.False(t, IsRetryableErrorCode(ErrCodeUnsafeQuery))
	assert.False(t, IsRetryableErrorCode(ErrCodeNoData))

	assert.NotEmpty(t, RetryAdvice(ErrCodeTransientUpstream))
	assert.Empty(t, RetryAdvice(ErrCodeUnsafeQuery))
}

func TestFromError(t *testing.T) {
	t.Run("unwraps StandardError from chain", func(t *testing.T) {
		orig := NewUnsafeQueryError("drop")
		wrapped := fmt.Errorf("executing strategy: %w", orig)

		got := FromError(wrapped)
		assert.Equal(t, ErrCodeUnsafeQuery, got.Code)
		assert.False(t, got.Retryable)
	})

	t.Run("wraps unknown errors without leaking details as message", func(t *testing.T) {
		got := FromError(fmt.Errorf("pq: connection refused"))
		assert.Equal(t, ErrorCode("INTERNAL_ERROR"), got.Code)
		assert.Equal(t, "Internal processing error", got.Message)
	})
}

func TestErrorCategories(t *testing.T) {
	assert.Equal(t, "SAFETY", GetErrorCategory(ErrCodeUnsafeQuery))
	assert.Equal(t, "AI", GetErrorCategory(ErrCodeTransientUpstream))
	assert.Equal(t, "AI", GetErrorCategory(ErrCodeInvalidOutput))
	assert.Equal(t, "CONFIG", GetErrorCategory(ErrCodeConfiguration))
}
