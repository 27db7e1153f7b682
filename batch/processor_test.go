package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/batchflow/client"
	"github.com/BaSui01/batchflow/orchestrator"
	"github.com/BaSui01/batchflow/sink"
	"github.com/BaSui01/batchflow/types"
)

// fakeInvoker simulates the remote-call collaborator. Requests whose ID is
// in failIDs return an error; IDs in refuseIDs return an explicit failed
// response instead.
type fakeInvoker struct {
	calls     atomic.Int64
	inFlight  atomic.Int64
	maxSeen   atomic.Int64
	failIDs   map[string]bool
	refuseIDs map[string]bool
	delay     time.Duration
	panicIDs  map[string]bool
}

func (f *fakeInvoker) Invoke(ctx context.Context, req types.Request) (types.Response, error) {
	f.calls.Add(1)
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		max := f.maxSeen.Load()
		if cur <= max || f.maxSeen.CompareAndSwap(max, cur) {
			break
		}
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return types.Response{}, ctx.Err()
		}
	}

	if f.panicIDs[req.ID] {
		panic("synthetic invoker panic")
	}
	if f.failIDs[req.ID] {
		return types.Response{}, errors.New("synthetic remote failure")
	}
	if f.refuseIDs[req.ID] {
		return types.Response{RequestID: req.ID, Success: false, Error: "refused"}, nil
	}
	return types.Response{
		RequestID: req.ID,
		Success:   true,
		Content:   "echo: " + req.Content,
	}, nil
}

func makeRequests(n int) []types.Request {
	reqs := make([]types.Request, n)
	for i := range reqs {
		reqs[i] = types.Request{ID: fmt.Sprintf("req-%d", i), Content: fmt.Sprintf("prompt %d", i)}
	}
	return reqs
}

func newTestOrchestrator(t *testing.T, maxConcurrent, chunkSize, rpm int) *orchestrator.Orchestrator {
	t.Helper()
	limits, err := types.NewRateLimits(rpm, 1_000_000)
	require.NoError(t, err)
	cfg := orchestrator.DefaultConfig()
	cfg.MaxConcurrent = maxConcurrent
	cfg.ChunkSize = chunkSize
	return orchestrator.New(limits, cfg, zap.NewNop())
}

func TestProcessBatch_AllSucceed(t *testing.T) {
	inv := &fakeInvoker{}
	orch := newTestOrchestrator(t, 5, 10, 1000)
	p := NewProcessor(inv, orch, WithChunkDelay(time.Millisecond))

	reqs := makeRequests(25)
	responses := p.ProcessBatch(context.Background(), reqs)

	require.Len(t, responses, 25)
	for i, r := range responses {
		assert.True(t, r.Success, "response %d", i)
		assert.Equal(t, fmt.Sprintf("req-%d", i), r.RequestID, "submission order preserved")
	}

	stats := p.Stats()
	assert.Equal(t, 25, stats.Processed)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 3, stats.TotalChunks)
	assert.Equal(t, 0, stats.ActiveRequests)
	assert.EqualValues(t, 0, orch.ActivePermits(), "all permits returned")
	assert.EqualValues(t, 25, inv.calls.Load())
}

func TestProcessBatch_ConcurrencyBoundedByGate(t *testing.T) {
	inv := &fakeInvoker{delay: 30 * time.Millisecond}
	orch := newTestOrchestrator(t, 3, 10, 1000)
	p := NewProcessor(inv, orch, WithChunkDelay(time.Millisecond))

	p.ProcessBatch(context.Background(), makeRequests(10))
	assert.LessOrEqual(t, inv.maxSeen.Load(), int64(3),
		"parallelism is capped by the gate, not by chunk size")
}

func TestProcessBatch_PartialFailures(t *testing.T) {
	inv := &fakeInvoker{failIDs: map[string]bool{
		"req-3": true, "req-7": true, "req-12": true,
	}}
	orch := newTestOrchestrator(t, 5, 10, 1000)
	p := NewProcessor(inv, orch, WithChunkDelay(time.Millisecond))

	responses := p.ProcessBatch(context.Background(), makeRequests(15))

	require.Len(t, responses, 15)
	for i, r := range responses {
		if i == 3 || i == 7 || i == 12 {
			assert.False(t, r.Success, "response %d", i)
			assert.Contains(t, r.Error, "synthetic remote failure")
		} else {
			assert.True(t, r.Success, "response %d", i)
		}
	}

	stats := p.Stats()
	assert.Equal(t, 12, stats.Processed)
	assert.Equal(t, 3, stats.Failed)
}

func TestProcessBatch_ExplicitFailureOutcome(t *testing.T) {
	inv := &fakeInvoker{refuseIDs: map[string]bool{"req-1": true}}
	orch := newTestOrchestrator(t, 5, 10, 1000)
	p := NewProcessor(inv, orch, WithChunkDelay(time.Millisecond))

	responses := p.ProcessBatch(context.Background(), makeRequests(3))

	require.Len(t, responses, 3)
	assert.False(t, responses[1].Success)
	assert.Equal(t, "refused", responses[1].Error)

	stats := p.Stats()
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 1, stats.Failed)
}

func TestProcessBatch_BreakerOpensAndDeniesLaterChunks(t *testing.T) {
	// Every call fails; the first chunk's five failures open the breaker
	// so later chunks are denied without reaching the collaborator.
	failAll := map[string]bool{}
	for i := 0; i < 15; i++ {
		failAll[fmt.Sprintf("req-%d", i)] = true
	}
	inv := &fakeInvoker{failIDs: failAll}
	orch := newTestOrchestrator(t, 5, 5, 1000)
	p := NewProcessor(inv, orch, WithChunkDelay(time.Millisecond))

	responses := p.ProcessBatch(context.Background(), makeRequests(15))

	require.Len(t, responses, 15)
	for i, r := range responses {
		assert.False(t, r.Success, "response %d", i)
	}
	for _, r := range responses[5:] {
		assert.Contains(t, r.Error, "failed to acquire request permit")
	}

	stats := p.Stats()
	assert.Equal(t, 0, stats.Processed)
	assert.Equal(t, 15, stats.Failed)
	assert.EqualValues(t, 5, inv.calls.Load(), "only the first chunk reached the collaborator")
}

func TestProcessBatch_RateWindowDenials(t *testing.T) {
	inv := &fakeInvoker{}
	orch := newTestOrchestrator(t, 5, 10, 4)
	p := NewProcessor(inv, orch, WithChunkDelay(time.Millisecond))

	responses := p.ProcessBatch(context.Background(), makeRequests(10))

	require.Len(t, responses, 10)
	stats := p.Stats()
	assert.Equal(t, 4, stats.Processed)
	assert.Equal(t, 6, stats.Failed)
	assert.EqualValues(t, 4, inv.calls.Load())
	assert.EqualValues(t, 0, orch.ActivePermits())
}

func TestProcessBatch_PanicBecomesFailedOutcome(t *testing.T) {
	inv := &fakeInvoker{panicIDs: map[string]bool{"req-2": true}}
	orch := newTestOrchestrator(t, 5, 10, 1000)
	p := NewProcessor(inv, orch, WithChunkDelay(time.Millisecond))

	responses := p.ProcessBatch(context.Background(), makeRequests(5))

	require.Len(t, responses, 5)
	assert.False(t, responses[2].Success)
	assert.Contains(t, responses[2].Error, "panicked")

	stats := p.Stats()
	assert.Equal(t, 4, stats.Processed)
	assert.Equal(t, 1, stats.Failed)
	assert.EqualValues(t, 0, orch.ActivePermits(), "permit released on the panic path")
}

func TestProcessBatch_Empty(t *testing.T) {
	inv := &fakeInvoker{}
	orch := newTestOrchestrator(t, 5, 10, 1000)
	p := NewProcessor(inv, orch)

	responses := p.ProcessBatch(context.Background(), nil)
	assert.Empty(t, responses)

	stats := p.Stats()
	assert.Equal(t, 0, stats.TotalChunks)
	assert.Equal(t, 0, stats.Processed+stats.Failed)
}

func TestProcessBatch_StatsResetBetweenRuns(t *testing.T) {
	inv := &fakeInvoker{}
	orch := newTestOrchestrator(t, 5, 10, 1000)
	p := NewProcessor(inv, orch, WithChunkDelay(time.Millisecond))

	p.ProcessBatch(context.Background(), makeRequests(5))
	p.ProcessBatch(context.Background(), makeRequests(3))

	stats := p.Stats()
	assert.Equal(t, 3, stats.Processed, "stats reflect only the latest batch")
	assert.Equal(t, 1, stats.TotalChunks)
}

func TestProcessBatch_SinkReceivesEveryOutcome(t *testing.T) {
	inv := &fakeInvoker{failIDs: map[string]bool{"req-1": true}}
	orch := newTestOrchestrator(t, 5, 10, 1000)

	var mu sync.Mutex
	var saved []string
	s := sink.SinkFunc(func(ctx context.Context, resp types.Response) error {
		mu.Lock()
		defer mu.Unlock()
		saved = append(saved, resp.RequestID)
		if resp.RequestID == "req-2" {
			return errors.New("disk full") // must not fail the batch
		}
		return nil
	})

	p := NewProcessor(inv, orch, WithSink(s), WithChunkDelay(time.Millisecond))
	responses := p.ProcessBatch(context.Background(), makeRequests(4))

	require.Len(t, responses, 4)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"req-0", "req-1", "req-2", "req-3"}, saved)
}

func TestProcessBatch_CancelledBetweenChunks(t *testing.T) {
	inv := &fakeInvoker{}
	orch := newTestOrchestrator(t, 5, 5, 1000)

	ctx, cancel := context.WithCancel(context.Background())
	p := NewProcessor(inv, orch, WithChunkDelay(time.Hour))

	// Cancel once the first chunk has been invoked; the inter-chunk pause
	// then aborts and the remaining chunks become failed outcomes.
	go func() {
		for inv.calls.Load() < 5 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	responses := p.ProcessBatch(ctx, makeRequests(15))

	require.Len(t, responses, 15, "aborted requests are not silently dropped")
	stats := p.Stats()
	assert.Equal(t, 15, stats.Processed+stats.Failed)
	assert.GreaterOrEqual(t, stats.Failed, 10, "unprocessed chunks counted as failed")
	for _, r := range responses[5:] {
		assert.False(t, r.Success)
	}
}

func TestProcessBatch_SlowChunkStillGetsFullPause(t *testing.T) {
	inv := &fakeInvoker{delay: 150 * time.Millisecond}
	orch := newTestOrchestrator(t, 2, 2, 1000)
	p := NewProcessor(inv, orch, WithChunkDelay(100*time.Millisecond))

	start := time.Now()
	responses := p.ProcessBatch(context.Background(), makeRequests(4))
	elapsed := time.Since(start)

	require.Len(t, responses, 4)
	// Two 150ms chunks plus a full 100ms pause between them. The pause is
	// measured from chunk completion, so a chunk running longer than the
	// delay must not swallow it.
	assert.GreaterOrEqual(t, elapsed, 390*time.Millisecond)
}

func TestProcessBatch_DoesNotMutateCallerRequests(t *testing.T) {
	inv := &fakeInvoker{}
	orch := newTestOrchestrator(t, 2, 10, 1000)
	p := NewProcessor(inv, orch, WithChunkDelay(time.Millisecond))

	reqs := []types.Request{{Content: "one"}, {Content: "two"}}
	responses := p.ProcessBatch(context.Background(), reqs)

	require.Len(t, responses, 2)
	for _, r := range reqs {
		assert.Empty(t, r.ID, "caller slice must keep its zero IDs")
	}
	for _, r := range responses {
		assert.NotEmpty(t, r.RequestID, "outcomes still carry generated IDs")
	}
}

// fixedInvoker lets tests control responses directly via client.InvokerFunc.
func TestProcessBatch_InvokerFunc(t *testing.T) {
	orch := newTestOrchestrator(t, 2, 10, 1000)
	inv := client.InvokerFunc(func(ctx context.Context, req types.Request) (types.Response, error) {
		return types.Response{RequestID: req.ID, Success: true, Content: "ok"}, nil
	})

	p := NewProcessor(inv, orch, WithChunkDelay(time.Millisecond))
	responses := p.ProcessBatch(context.Background(), makeRequests(2))
	require.Len(t, responses, 2)
	assert.True(t, responses[0].Success)
}
