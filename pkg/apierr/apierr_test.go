package apierr

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassification(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		rateLimited bool
		notFound    bool
		auth        bool
		fatal       bool
	}{
		{
			name:        "rate limited",
			err:         NewRateLimitedError(time.Second),
			rateLimited: true,
		},
		{
			name:     "not found",
			err:      NewNotFoundError("gone"),
			notFound: true,
		},
		{
			name:  "auth failure",
			err:   NewAuthFailureError(401, "bad token"),
			auth:  true,
			fatal: true,
		},
		{
			name:  "network failure",
			err:   NewNetworkError(errors.New("connection refused")),
			fatal: true,
		},
		{
			name:  "validation failure",
			err:   NewValidationError("bad range"),
			fatal: true,
		},
		{
			name: "generic API failure",
			err:  NewError(502, CodeAPIFailure, "bad gateway"),
		},
		{
			name: "plain error",
			err:  errors.New("something else"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.rateLimited, IsRateLimited(tt.err))
			assert.Equal(t, tt.notFound, IsNotFound(tt.err))
			assert.Equal(t, tt.auth, IsAuthFailure(tt.err))
			assert.Equal(t, tt.fatal, IsFatal(tt.err))
		})
	}
}

func TestClassificationThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("delete failed: %w", NewRateLimitedError(time.Second))
	assert.True(t, IsRateLimited(wrapped))
	assert.Equal(t, time.Second, RetryAfter(wrapped))
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 2*time.Second, RetryAfter(NewRateLimitedError(2*time.Second)))
	assert.Zero(t, RetryAfter(NewRateLimitedError(0)))
	assert.Zero(t, RetryAfter(errors.New("not an API error")))
}

func TestErrorString(t *testing.T) {
	err := NewError(429, CodeRateLimited, "You are being rate limited.")
	assert.Equal(t, "[HTTP 429] [RATE_LIMITED] You are being rate limited.", err.Error())

	err = NewValidationError("bad range")
	assert.Equal(t, "[VALIDATION_FAILURE] bad range", err.Error())
}
