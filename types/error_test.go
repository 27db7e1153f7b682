package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	err := NewError(ErrAdmissionDenied, "rate window exhausted")
	assert.Equal(t, "[ADMISSION_DENIED] rate window exhausted", err.Error())

	cause := errors.New("connection refused")
	err = NewError(ErrUpstreamError, "anthropic call failed").WithCause(cause)
	assert.Contains(t, err.Error(), "UPSTREAM_ERROR")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := NewError(ErrRemoteCall, "wrapped").WithCause(cause)
	assert.ErrorIs(t, err, cause)
}

func TestIsAdmissionDenied(t *testing.T) {
	denied := NewError(ErrAdmissionDenied, "circuit open")
	assert.True(t, IsAdmissionDenied(denied))

	// Wrapped once more by fmt.
	wrapped := fmt.Errorf("processing request: %w", denied)
	assert.True(t, IsAdmissionDenied(wrapped))

	assert.False(t, IsAdmissionDenied(NewError(ErrRemoteCall, "boom")))
	assert.False(t, IsAdmissionDenied(errors.New("plain")))
	assert.False(t, IsAdmissionDenied(nil))
}
