package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/batchflow/circuitbreaker"
	"github.com/BaSui01/batchflow/ratewindow"
	"github.com/BaSui01/batchflow/types"
)

// Config configures an Orchestrator.
type Config struct {
	// MaxConcurrent bounds simultaneously in-flight calls.
	MaxConcurrent int `yaml:"max_concurrent"`

	// ChunkSize is the batch chunk size used by ChunkRequests.
	ChunkSize int `yaml:"chunk_size"`

	// Breaker overrides the circuit breaker configuration.
	Breaker *circuitbreaker.Config `yaml:"-"`
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrent: 5,
		ChunkSize:     10,
	}
}

// Orchestrator gates execution of outbound calls: one successful
// AcquirePermit admits exactly one call, and exactly one ReleasePermit must
// eventually follow. It is typically scoped to a single batch run;
// constructing one per run gives each batch a fresh quota, while sharing one
// across runs shares the quota.
type Orchestrator struct {
	cfg     *Config
	logger  *zap.Logger
	window  *ratewindow.Window
	breaker *circuitbreaker.Breaker
	gate    *gate
}

// New creates an Orchestrator for the given validated quota.
func New(limits types.RateLimits, cfg *Config, logger *zap.Logger) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "orchestrator"))

	o := &Orchestrator{
		cfg:     cfg,
		logger:  logger,
		window:  ratewindow.New(limits, logger),
		breaker: circuitbreaker.New(cfg.Breaker, logger),
		gate:    newGate(cfg.MaxConcurrent, logger),
	}

	logger.Info("orchestrator initialized",
		zap.Int("max_concurrent", cfg.MaxConcurrent),
		zap.Int("chunk_size", cfg.ChunkSize),
		zap.Int("requests_per_minute", limits.RequestsPerMinute),
		zap.Int("tokens_per_minute", limits.TokensPerMinute),
	)
	return o
}

// Chunk splits requests in input order into groups of at most size. The last
// group may be smaller; an empty input yields no chunks. Pure and
// deterministic.
func Chunk(requests []types.Request, size int) [][]types.Request {
	if size <= 0 {
		size = 10
	}
	var chunks [][]types.Request
	for start := 0; start < len(requests); start += size {
		end := start + size
		if end > len(requests) {
			end = len(requests)
		}
		chunks = append(chunks, requests[start:end])
	}
	return chunks
}

// ChunkRequests splits requests using the configured chunk size.
func (o *Orchestrator) ChunkRequests(requests []types.Request) [][]types.Request {
	return Chunk(requests, o.cfg.ChunkSize)
}

// Denial tags the outcome of an admission attempt.
type Denial int

const (
	// DenialNone means the permit was granted.
	DenialNone Denial = iota
	// DenialBreakerOpen means the circuit breaker refused execution.
	DenialBreakerOpen
	// DenialGateWait means the concurrency gate wait was aborted.
	DenialGateWait
	// DenialRateWindow means the per-minute quota is exhausted.
	DenialRateWindow
)

func (d Denial) String() string {
	switch d {
	case DenialNone:
		return "none"
	case DenialBreakerOpen:
		return "breaker_open"
	case DenialGateWait:
		return "gate_wait"
	case DenialRateWindow:
		return "rate_window"
	default:
		return "unknown"
	}
}

// AcquirePermit is Admit with no token reservation, collapsed to a boolean.
func (o *Orchestrator) AcquirePermit(ctx context.Context) bool {
	return o.Admit(ctx, 0) == DenialNone
}

// AcquirePermitTokens is Admit collapsed to a boolean.
func (o *Orchestrator) AcquirePermitTokens(ctx context.Context, tokens int) bool {
	return o.Admit(ctx, tokens) == DenialNone
}

// Admit performs the composite admission check: circuit breaker first
// (denied without consuming a slot), then a concurrency slot, then the rate
// window with the estimated token cost. A failed rate check returns the
// just-acquired slot; acquisition never leaks a slot.
func (o *Orchestrator) Admit(ctx context.Context, tokens int) Denial {
	if !o.breaker.CanExecute() {
		o.logger.Warn("circuit breaker preventing request execution")
		return DenialBreakerOpen
	}

	if err := o.gate.acquire(ctx); err != nil {
		o.logger.Warn("concurrency slot acquisition aborted", zap.Error(err))
		return DenialGateWait
	}

	if !o.window.CheckAndReserve(tokens) {
		o.ReleasePermit()
		return DenialRateWindow
	}
	return DenialNone
}

// ReleasePermit returns one concurrency slot. Safe to call when no slot is
// held.
func (o *Orchestrator) ReleasePermit() {
	o.gate.release()
}

// RecordSuccess reports a successful remote call to the circuit breaker.
func (o *Orchestrator) RecordSuccess() {
	o.breaker.RecordSuccess()
}

// RecordFailure reports a failed remote call to the circuit breaker.
func (o *Orchestrator) RecordFailure() {
	o.breaker.RecordFailure()
}

// ActivePermits returns the number of permits currently held.
func (o *Orchestrator) ActivePermits() int64 {
	return o.gate.active.Load()
}

// BreakerState returns the circuit breaker state for diagnostics.
func (o *Orchestrator) BreakerState() circuitbreaker.State {
	return o.breaker.State()
}

// WindowUsage returns the current rate window counters for diagnostics.
func (o *Orchestrator) WindowUsage() (requestsMade, tokensUsed int) {
	return o.window.Usage()
}

// ChunkSize returns the configured chunk size.
func (o *Orchestrator) ChunkSize() int {
	return o.cfg.ChunkSize
}

// Close tears down the permit pool at the end of the orchestrator's scope,
// force-releasing every permit still counted as active. It runs on error
// paths too and is safe to call more than once.
func (o *Orchestrator) Close() {
	start := time.Now()
	if released := o.gate.drain(); released > 0 {
		o.logger.Error("force-released leaked permits",
			zap.Int("released", released),
			zap.Duration("took", time.Since(start)),
		)
	}
	o.logger.Info("orchestrator closed")
}
