package ratewindow

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/batchflow/types"
)

// windowLength is the accounting period for both request and token budgets.
const windowLength = 60 * time.Second

// Window accounts requests and tokens against a per-minute quota. All state
// is mutated under a single mutex; CheckAndReserve is one short critical
// section with no suspension inside.
type Window struct {
	limits types.RateLimits
	logger *zap.Logger
	now    func() time.Time

	mu           sync.Mutex
	requestsMade int
	tokensUsed   int
	windowStart  time.Time
}

// New creates a Window for the given quota. The quota is assumed validated
// at construction via types.NewRateLimits.
func New(limits types.RateLimits, logger *zap.Logger) *Window {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Window{
		limits: limits,
		logger: logger.With(zap.String("component", "ratewindow")),
		now:    time.Now,
	}
}

// CheckAndReserve admits or denies one request carrying the given token
// volume. When the window has aged past one minute both counters reset and
// the window start advances; the reset itself always grants admission.
// On admission the reservation is recorded immediately.
func (w *Window) CheckAndReserve(tokens int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if w.windowStart.IsZero() {
		w.windowStart = now
	}

	if now.Sub(w.windowStart) >= windowLength {
		w.requestsMade = 1
		w.tokensUsed = tokens
		w.windowStart = now
		w.logger.Debug("rate window reset", zap.Time("window_start", now))
		return true
	}

	if w.requestsMade >= w.limits.RequestsPerMinute ||
		w.tokensUsed+tokens >= w.limits.TokensPerMinute {
		w.logger.Debug("rate window exhausted",
			zap.Int("requests_made", w.requestsMade),
			zap.Int("tokens_used", w.tokensUsed),
			zap.Int("requested_tokens", tokens),
		)
		return false
	}

	w.requestsMade++
	w.tokensUsed += tokens
	return true
}

// Usage returns the counters of the current window.
func (w *Window) Usage() (requestsMade, tokensUsed int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.requestsMade, w.tokensUsed
}

// Limits returns the immutable quota this window enforces.
func (w *Window) Limits() types.RateLimits {
	return w.limits
}
