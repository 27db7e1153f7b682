package types

import "fmt"

// ErrorCode classifies a BatchFlow error.
type ErrorCode string

const (
	// ErrAdmissionDenied marks requests rejected before any remote call:
	// open circuit breaker, exhausted rate window, or saturated gate.
	ErrAdmissionDenied ErrorCode = "ADMISSION_DENIED"

	// ErrRemoteCall marks failures reported or raised by the remote-call
	// collaborator. Counted toward the circuit breaker.
	ErrRemoteCall ErrorCode = "REMOTE_CALL"

	// ErrRateLimited marks an HTTP 429 from the remote service.
	ErrRateLimited ErrorCode = "RATE_LIMITED"

	// ErrUnauthorized marks an authentication failure from the remote service.
	ErrUnauthorized ErrorCode = "UNAUTHORIZED"

	// ErrInvalidRequest marks a request the remote service rejected as malformed.
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"

	// ErrUpstreamError marks a 5xx or transport-level remote failure.
	ErrUpstreamError ErrorCode = "UPSTREAM_ERROR"

	// ErrInternal marks an orchestration bookkeeping fault. Logged and
	// self-healed where possible, never allowed to crash a batch.
	ErrInternal ErrorCode = "INTERNAL_ERROR"
)

// Error is a structured error with a code, a human-readable message and an
// optional cause.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause attaches a cause and returns the error for chaining.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// IsAdmissionDenied reports whether err is an admission-control rejection.
func IsAdmissionDenied(err error) bool {
	return hasCode(err, ErrAdmissionDenied)
}

func hasCode(err error, code ErrorCode) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
