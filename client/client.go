package client

import (
	"context"
	"net/http"
	"strings"

	"github.com/BaSui01/batchflow/types"
)

// Invoker is the remote-call collaborator: a single opaque call with a
// result and a possible error. Implementations must normalize low-level
// faults into a failed Response or a structured error; they never panic
// outward. Failure may be signaled either way — the batch layer folds both
// into a failed outcome.
type Invoker interface {
	Invoke(ctx context.Context, req types.Request) (types.Response, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, req types.Request) (types.Response, error)

// Invoke implements Invoker.
func (f InvokerFunc) Invoke(ctx context.Context, req types.Request) (types.Response, error) {
	return f(ctx, req)
}

// mapHTTPError maps a remote HTTP status to a structured error with the
// right retryability flag.
func mapHTTPError(status int, msg string) *types.Error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &types.Error{Code: types.ErrUnauthorized, Message: msg}
	case http.StatusTooManyRequests:
		return &types.Error{Code: types.ErrRateLimited, Message: msg, Retryable: true}
	case http.StatusBadRequest:
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "quota") || strings.Contains(lower, "credit") {
			return &types.Error{Code: types.ErrRateLimited, Message: msg}
		}
		return &types.Error{Code: types.ErrInvalidRequest, Message: msg}
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return &types.Error{Code: types.ErrUpstreamError, Message: msg, Retryable: true}
	default:
		if status >= 500 {
			return &types.Error{Code: types.ErrUpstreamError, Message: msg, Retryable: true}
		}
		return &types.Error{Code: types.ErrRemoteCall, Message: msg}
	}
}
