// Package batchflow provides a top-level convenience entry point for running
// rate-limited request batches with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/batchflow"
//
//	p, err := batchflow.New(batchflow.WithAnthropic("claude-3-5-sonnet-20241022"))
//	p, err := batchflow.New(batchflow.WithInvoker(myInvoker), batchflow.WithRateLimits(100, 80000))
//
// Every knob here maps onto the underlying [batch.Processor] and
// [orchestrator.Orchestrator]; use those packages directly when you need
// finer control.
package batchflow

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/batchflow/batch"
	"github.com/BaSui01/batchflow/circuitbreaker"
	"github.com/BaSui01/batchflow/client"
	"github.com/BaSui01/batchflow/internal/metrics"
	"github.com/BaSui01/batchflow/orchestrator"
	"github.com/BaSui01/batchflow/sink"
	"github.com/BaSui01/batchflow/tokenizer"
	"github.com/BaSui01/batchflow/types"
)

// Option configures the processor created by [New].
type Option func(*builder)

type builder struct {
	invoker       client.Invoker
	anthropicCfg  *client.AnthropicConfig
	limits        types.RateLimits
	orchCfg       *orchestrator.Config
	logger        *zap.Logger
	sink          sink.Sink
	metrics       *metrics.Collector
	tokenizer     tokenizer.Tokenizer
	processorOpts []batch.Option
}

// WithInvoker sets a pre-built remote-call collaborator.
func WithInvoker(inv client.Invoker) Option {
	return func(b *builder) { b.invoker = inv }
}

// WithAnthropic creates an Anthropic collaborator for the given model.
// API key from ANTHROPIC_API_KEY env unless [WithAPIKey] is used.
func WithAnthropic(model string) Option {
	return func(b *builder) {
		if b.anthropicCfg == nil {
			b.anthropicCfg = &client.AnthropicConfig{}
		}
		b.anthropicCfg.Model = model
	}
}

// WithAPIKey overrides the API key for [WithAnthropic].
func WithAPIKey(key string) Option {
	return func(b *builder) {
		if b.anthropicCfg == nil {
			b.anthropicCfg = &client.AnthropicConfig{}
		}
		b.anthropicCfg.APIKey = key
	}
}

// WithRateLimits sets the per-minute request and token quota.
func WithRateLimits(requestsPerMinute, tokensPerMinute int) Option {
	return func(b *builder) {
		b.limits = types.RateLimits{
			RequestsPerMinute: requestsPerMinute,
			TokensPerMinute:   tokensPerMinute,
		}
	}
}

// WithMaxConcurrent bounds in-flight requests inside a chunk.
func WithMaxConcurrent(n int) Option {
	return func(b *builder) { b.ensureOrchCfg().MaxConcurrent = n }
}

// WithChunkSize sets how many requests go into one chunk.
func WithChunkSize(n int) Option {
	return func(b *builder) { b.ensureOrchCfg().ChunkSize = n }
}

// WithSink persists every outcome as it completes.
func WithSink(s sink.Sink) Option {
	return func(b *builder) { b.sink = s }
}

// WithMetrics sets a Prometheus collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(b *builder) { b.metrics = c }
}

// WithTokenizer sets the token estimator fed into rate-window reservations.
func WithTokenizer(tok tokenizer.Tokenizer) Option {
	return func(b *builder) { b.tokenizer = tok }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *builder) { b.logger = logger }
}

// WithChunkDelay overrides the pacing gap between chunks.
func WithChunkDelay(d time.Duration) Option {
	return func(b *builder) {
		b.processorOpts = append(b.processorOpts, batch.WithChunkDelay(d))
	}
}

func (b *builder) ensureOrchCfg() *orchestrator.Config {
	if b.orchCfg == nil {
		cfg := orchestrator.DefaultConfig()
		b.orchCfg = cfg
	}
	return b.orchCfg
}

// New creates a ready-to-use [batch.Processor]. At minimum a collaborator
// must be specified via [WithInvoker] or [WithAnthropic].
func New(opts ...Option) (*batch.Processor, error) {
	b := &builder{
		limits: types.RateLimits{RequestsPerMinute: 50, TokensPerMinute: 40000},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}

	invoker := b.invoker
	if invoker == nil {
		if b.anthropicCfg == nil {
			return nil, fmt.Errorf("batchflow: an invoker is required, use WithInvoker or WithAnthropic")
		}
		cfg := *b.anthropicCfg
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		var err error
		invoker, err = client.NewAnthropic(cfg, b.logger)
		if err != nil {
			return nil, fmt.Errorf("batchflow: build anthropic client: %w", err)
		}
	}

	limits, err := types.NewRateLimits(b.limits.RequestsPerMinute, b.limits.TokensPerMinute)
	if err != nil {
		return nil, fmt.Errorf("batchflow: %w", err)
	}

	orchCfg := b.ensureOrchCfg()
	if b.metrics != nil {
		if orchCfg.Breaker == nil {
			orchCfg.Breaker = circuitbreaker.DefaultConfig()
		}
		userHook := orchCfg.Breaker.OnStateChange
		collector := b.metrics
		orchCfg.Breaker.OnStateChange = func(from, to circuitbreaker.State) {
			if to == circuitbreaker.StateOpen {
				collector.RecordBreakerOpen()
			}
			if userHook != nil {
				userHook(from, to)
			}
		}
	}

	orch := orchestrator.New(limits, orchCfg, b.logger)

	procOpts := []batch.Option{batch.WithLogger(b.logger)}
	if b.sink != nil {
		procOpts = append(procOpts, batch.WithSink(b.sink))
	}
	if b.metrics != nil {
		procOpts = append(procOpts, batch.WithMetrics(b.metrics))
	}
	if b.tokenizer != nil {
		procOpts = append(procOpts, batch.WithTokenizer(b.tokenizer))
	}
	procOpts = append(procOpts, b.processorOpts...)

	return batch.NewProcessor(invoker, orch, procOpts...), nil
}
