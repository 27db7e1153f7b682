package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/batchflow/client"
	"github.com/BaSui01/batchflow/internal/metrics"
	"github.com/BaSui01/batchflow/orchestrator"
	"github.com/BaSui01/batchflow/sink"
	"github.com/BaSui01/batchflow/tokenizer"
	"github.com/BaSui01/batchflow/types"
)

const defaultChunkDelay = 100 * time.Millisecond

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithTokenizer enables per-request token estimation fed into the rate
// window reservation.
func WithTokenizer(tok tokenizer.Tokenizer) Option {
	return func(p *Processor) { p.tokenizer = tok }
}

// WithSink sets the persistence hook called once per completed outcome.
// Sink failures are logged, never propagated as batch failures.
func WithSink(s sink.Sink) Option {
	return func(p *Processor) { p.sink = s }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(p *Processor) { p.metrics = c }
}

// WithChunkDelay overrides the pacing gap between chunks.
func WithChunkDelay(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.chunkDelay = d
		}
	}
}

// Processor consumes a list of logical requests and returns one outcome per
// request, in order. Safe for sequential reuse; a Processor runs one batch
// at a time.
type Processor struct {
	invoker   client.Invoker
	orch      *orchestrator.Orchestrator
	tokenizer tokenizer.Tokenizer
	sink      sink.Sink
	metrics   *metrics.Collector
	logger    *zap.Logger
	tracer    trace.Tracer

	chunkDelay time.Duration

	// stats has its own lock, distinct from the orchestrator's rate-limit
	// lock: the two critical sections are unrelated.
	statsMu sync.Mutex
	stats   types.Stats
}

// NewProcessor creates a Processor around a remote-call collaborator and an
// admission orchestrator.
func NewProcessor(invoker client.Invoker, orch *orchestrator.Orchestrator, opts ...Option) *Processor {
	p := &Processor{
		invoker:    invoker,
		orch:       orch,
		logger:     zap.NewNop(),
		chunkDelay: defaultChunkDelay,
		tracer:     otel.Tracer("github.com/BaSui01/batchflow/batch"),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(zap.String("component", "batch"))
	return p
}

// Stats returns a snapshot of the processing counters.
func (p *Processor) Stats() types.Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

func (p *Processor) updateStats(fn func(s *types.Stats)) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	fn(&p.stats)
}

// ProcessBatch chunks the requests and processes each chunk in order with
// bounded concurrency inside the chunk. It always returns exactly one
// Response per submitted request, in submission order, and never returns an
// error for per-request failures. Statistics are reset at the start of every
// batch and satisfy processed+failed == len(requests) on return. The caller's
// slice is left untouched; generated IDs appear only on the outcomes.
func (p *Processor) ProcessBatch(ctx context.Context, requests []types.Request) []types.Response {
	ctx, span := p.tracer.Start(ctx, "batch.process",
		trace.WithAttributes(attribute.Int("batch.size", len(requests))))
	defer span.End()

	// Work on a copy so ID assignment never mutates the caller's slice.
	requests = append([]types.Request(nil), requests...)
	for i := range requests {
		requests[i].EnsureID()
	}

	chunks := p.orch.ChunkRequests(requests)
	p.updateStats(func(s *types.Stats) {
		*s = types.Stats{TotalChunks: len(chunks)}
	})
	span.SetAttributes(attribute.Int("batch.chunks", len(chunks)))

	p.logger.Info("starting batch",
		zap.Int("requests", len(requests)),
		zap.Int("chunks", len(chunks)),
	)

	// Scope-exit cleanup: any permit still counted as active is
	// force-released, including on panic paths.
	defer p.orch.Close()

	responses := make([]types.Response, 0, len(requests))

	for i, chunk := range chunks {
		p.logger.Info("processing chunk",
			zap.Int("chunk", i+1),
			zap.Int("total_chunks", len(chunks)),
			zap.Int("size", len(chunk)),
		)

		chunkResponses := p.processChunk(ctx, chunk)
		responses = append(responses, chunkResponses...)

		p.tally(chunkResponses)
		if p.metrics != nil {
			p.metrics.RecordChunk()
		}
		p.persist(ctx, chunkResponses)

		if i < len(chunks)-1 {
			if err := p.pause(ctx); err != nil {
				// The batch is aborted; unprocessed requests must
				// still be reflected in the outcome list.
				responses = p.failRemaining(responses, chunks[i+1:], err)
				break
			}
		}
	}

	final := p.Stats()
	if p.metrics != nil {
		p.metrics.RecordBatch()
	}
	p.logger.Info("batch completed",
		zap.Int("processed", final.Processed),
		zap.Int("failed", final.Failed),
		zap.Int("total_chunks", final.TotalChunks),
	)
	return responses
}

// pause waits one full chunk delay measured from the moment the previous
// chunk's outcomes were collected. Chunk processing time never shortens the
// gap: a chunk that ran longer than the delay still gets a full pause.
func (p *Processor) pause(ctx context.Context) error {
	pacer := rate.NewLimiter(rate.Every(p.chunkDelay), 1)
	pacer.Allow()
	return pacer.Wait(ctx)
}

// processChunk dispatches the chunk's admitted requests concurrently and
// collects outcomes in submission order. Parallelism is capped by the
// concurrency gate, not by chunk size; siblings are independent and one
// failing does not cancel the others.
func (p *Processor) processChunk(ctx context.Context, chunk []types.Request) []types.Response {
	results := make([]types.Response, len(chunk))
	var wg sync.WaitGroup

	for idx, req := range chunk {
		tokens := p.estimateTokens(req)

		if denial := p.orch.Admit(ctx, tokens); denial != orchestrator.DenialNone {
			p.logger.Warn("permit denied",
				zap.String("request_id", req.ID),
				zap.String("reason", denial.String()),
			)
			if p.metrics != nil {
				p.metrics.RecordAdmissionDenied(denial.String())
			}
			results[idx] = types.Failed(req.ID,
				types.NewError(types.ErrAdmissionDenied, "failed to acquire request permit"))
			continue
		}

		if p.metrics != nil {
			p.metrics.RequestStarted()
			p.metrics.RecordTokensReserved(tokens)
		}
		p.updateStats(func(s *types.Stats) { s.ActiveRequests++ })

		wg.Add(1)
		go func(idx int, req types.Request) {
			defer wg.Done()
			results[idx] = p.dispatch(ctx, req)
		}(idx, req)
	}

	wg.Wait()
	return results
}

// dispatch runs one admitted remote call. The permit release and in-flight
// bookkeeping sit in a deferred block so they run on every path, panics
// included; a panic becomes a failed outcome rather than crashing the batch.
func (p *Processor) dispatch(ctx context.Context, req types.Request) (resp types.Response) {
	ctx, span := p.tracer.Start(ctx, "batch.invoke",
		trace.WithAttributes(attribute.String("request.id", req.ID)))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("remote call panicked",
				zap.String("request_id", req.ID),
				zap.Any("panic", r),
			)
			p.orch.RecordFailure()
			resp = types.Failed(req.ID,
				types.NewError(types.ErrInternal, fmt.Sprintf("remote call panicked: %v", r)))
		}

		p.updateStats(func(s *types.Stats) { s.ActiveRequests-- })
		p.orch.ReleasePermit()

		status := "failure"
		if resp.Success {
			status = "success"
		}
		if p.metrics != nil {
			p.metrics.RequestFinished()
			p.metrics.RecordRequest(status, time.Since(start))
		}
		span.SetAttributes(attribute.String("request.status", status))
		span.End()
	}()

	result, err := p.invoker.Invoke(ctx, req)
	if err != nil {
		p.logger.Warn("remote call failed",
			zap.String("request_id", req.ID),
			zap.Error(err),
		)
		p.orch.RecordFailure()
		return types.Failed(req.ID, err)
	}

	if result.RequestID == "" {
		result.RequestID = req.ID
	}
	if !result.Success {
		p.orch.RecordFailure()
		return result
	}

	p.orch.RecordSuccess()
	return result
}

// tally folds a chunk's outcomes into the counters.
func (p *Processor) tally(responses []types.Response) {
	var ok, bad int
	for _, r := range responses {
		if r.Success {
			ok++
		} else {
			bad++
		}
	}
	p.updateStats(func(s *types.Stats) {
		s.Processed += ok
		s.Failed += bad
	})
}

// persist hands completed outcomes to the sink, if one is configured.
func (p *Processor) persist(ctx context.Context, responses []types.Response) {
	if p.sink == nil {
		return
	}
	for _, r := range responses {
		if err := p.sink.Save(ctx, r); err != nil {
			p.logger.Warn("sink save failed",
				zap.String("request_id", r.RequestID),
				zap.Error(err),
			)
		}
	}
}

// failRemaining converts every request of the unprocessed chunks into a
// failed outcome so the returned list always matches the input length.
func (p *Processor) failRemaining(responses []types.Response, remaining [][]types.Request, cause error) []types.Response {
	aborted := 0
	for _, chunk := range remaining {
		for _, req := range chunk {
			responses = append(responses, types.Failed(req.ID,
				types.NewError(types.ErrInternal, "batch aborted").WithCause(cause)))
			aborted++
		}
	}
	p.updateStats(func(s *types.Stats) { s.Failed += aborted })
	p.logger.Error("batch aborted before completion",
		zap.Int("unprocessed", aborted),
		zap.Error(cause),
	)
	return responses
}

func (p *Processor) estimateTokens(req types.Request) int {
	if p.tokenizer == nil {
		return 0
	}
	return p.tokenizer.CountTokens(req.Content)
}
