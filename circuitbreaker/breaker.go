package circuitbreaker

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the circuit breaker state.
type State int

const (
	// StateClosed allows all traffic (normal operation).
	StateClosed State = iota
	// StateOpen rejects all traffic until the reset timeout elapses.
	StateOpen
	// StateHalfOpen probes recovery with limited traffic.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateOpen:
		return "Open"
	case StateHalfOpen:
		return "HalfOpen"
	default:
		return "Unknown"
	}
}

// Config configures a Breaker.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit.
	FailureThreshold int

	// ResetTimeout is how long the circuit stays open before a probe is
	// allowed (Open -> HalfOpen).
	ResetTimeout time.Duration

	// HalfOpenTimeout is the minimum gap since the last failure before a
	// half-open probe may proceed.
	HalfOpenTimeout time.Duration

	// OnStateChange is invoked after every state transition.
	OnStateChange func(from, to State)
}

// DefaultConfig returns the default breaker configuration.
func DefaultConfig() *Config {
	return &Config{
		FailureThreshold: 5,
		ResetTimeout:     60 * time.Second,
		HalfOpenTimeout:  5 * time.Second,
	}
}

// Breaker tracks consecutive failures and gates execution through the
// closed/open/half-open state machine. All methods are safe for concurrent
// use; each is a single short critical section.
type Breaker struct {
	config *Config
	logger *zap.Logger
	now    func() time.Time

	mu              sync.Mutex
	state           State
	failures        int
	lastFailureTime time.Time
}

// New creates a Breaker. Nil or non-positive config fields fall back to
// defaults.
func New(config *Config, logger *zap.Logger) *Breaker {
	if config == nil {
		config = DefaultConfig()
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 60 * time.Second
	}
	if config.HalfOpenTimeout <= 0 {
		config.HalfOpenTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Breaker{
		config: config,
		logger: logger.With(zap.String("component", "circuitbreaker")),
		now:    time.Now,
		state:  StateClosed,
	}
}

// CanExecute reports whether a call may proceed. In the open state it flips
// to half-open once ResetTimeout has elapsed since the last failure; in the
// half-open state a probe is admitted only after HalfOpenTimeout.
func (b *Breaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true

	case StateOpen:
		if b.now().Sub(b.lastFailureTime) > b.config.ResetTimeout {
			b.setState(StateHalfOpen)
			b.logger.Info("circuit entering half-open state")
			return true
		}
		return false

	case StateHalfOpen:
		return b.now().Sub(b.lastFailureTime) > b.config.HalfOpenTimeout

	default:
		return false
	}
}

// RecordFailure records a failed call. Reaching the failure threshold opens
// the circuit. A failure during a half-open probe reopens it immediately
// rather than re-accumulating toward the threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailureTime = b.now()

	switch b.state {
	case StateClosed:
		if b.failures >= b.config.FailureThreshold {
			b.logger.Warn("circuit opened",
				zap.Int("failures", b.failures),
				zap.Int("threshold", b.config.FailureThreshold),
			)
			b.setState(StateOpen)
		}

	case StateHalfOpen:
		b.logger.Warn("half-open probe failed, reopening circuit",
			zap.Int("failures", b.failures),
		)
		b.setState(StateOpen)
	}
}

// RecordSuccess records a successful call. A half-open success closes the
// circuit and clears the failure count; a closed success only clears the
// count, keeping "consecutive" semantics.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0

	case StateHalfOpen:
		b.logger.Info("circuit closed after successful probe")
		b.setState(StateClosed)
		b.failures = 0
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset forces the breaker back to closed (manual recovery).
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	from := b.state
	b.setState(StateClosed)
	b.failures = 0
	b.logger.Info("circuit reset", zap.String("from_state", from.String()))
}

// setState must be called with b.mu held.
func (b *Breaker) setState(next State) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next

	if b.config.OnStateChange != nil {
		go b.config.OnStateChange(prev, next)
	}
}
