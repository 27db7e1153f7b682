package types

import (
	"fmt"

	"github.com/google/uuid"
)

// Request is a single logical request submitted to a batch. It flows through
// the orchestration layer unchanged and is handed to the remote-call
// collaborator as-is.
type Request struct {
	// ID identifies the request across logs, metrics and saved responses.
	// Assigned automatically when empty.
	ID string `json:"id,omitempty"`

	// Content is the user prompt.
	Content string `json:"content"`

	// Temperature is the sampling temperature (0.0-1.0).
	Temperature float32 `json:"temperature,omitempty"`

	// MaxTokens caps the generated completion. Zero means the client default.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// EnsureID assigns a fresh UUID when the caller did not provide one.
func (r *Request) EnsureID() string {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return r.ID
}

// Response is the outcome of one Request. Exactly one Response is produced
// per submitted Request, in submission order.
type Response struct {
	Content   string         `json:"content"`
	RequestID string         `json:"request_id"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Failed builds a failed Response for a request, preserving the underlying
// error message.
func Failed(requestID string, err error) Response {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Response{RequestID: requestID, Success: false, Error: msg}
}

// RateLimits is the per-minute quota shared by all requests of one
// orchestrator. Immutable after construction.
type RateLimits struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"`
	TokensPerMinute   int `json:"tokens_per_minute" yaml:"tokens_per_minute"`
}

// NewRateLimits validates and builds a RateLimits value. Non-positive limits
// are a construction error, never silently clamped.
func NewRateLimits(requestsPerMinute, tokensPerMinute int) (RateLimits, error) {
	if requestsPerMinute <= 0 {
		return RateLimits{}, fmt.Errorf("requests_per_minute must be positive, got %d", requestsPerMinute)
	}
	if tokensPerMinute <= 0 {
		return RateLimits{}, fmt.Errorf("tokens_per_minute must be positive, got %d", tokensPerMinute)
	}
	return RateLimits{RequestsPerMinute: requestsPerMinute, TokensPerMinute: tokensPerMinute}, nil
}

// Stats is a snapshot of batch processing counters. Processed + Failed equals
// the number of submitted requests once a batch completes.
type Stats struct {
	Processed      int `json:"processed"`
	Failed         int `json:"failed"`
	TotalChunks    int `json:"total_chunks"`
	ActiveRequests int `json:"active_requests"`
}

// SuccessRate returns the percentage of processed requests, 0 when nothing
// has completed yet.
func (s Stats) SuccessRate() float64 {
	total := s.Processed + s.Failed
	if total == 0 {
		return 0
	}
	return float64(s.Processed) / float64(total) * 100
}
