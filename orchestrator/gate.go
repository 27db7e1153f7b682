package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// gate is a counting permit pool of fixed capacity. The semaphore is built
// lazily on first acquisition so the orchestrator itself stays cheap to
// construct; sync.Once keeps the construction race-free under concurrent
// first use.
type gate struct {
	capacity int64
	logger   *zap.Logger

	once sync.Once
	sem  *semaphore.Weighted

	// active tracks held permits for diagnostics and cleanup, independent
	// of the semaphore's own accounting.
	active atomic.Int64
}

func newGate(capacity int, logger *zap.Logger) *gate {
	if capacity <= 0 {
		capacity = 5
	}
	return &gate{capacity: int64(capacity), logger: logger}
}

func (g *gate) init() {
	g.once.Do(func() {
		g.sem = semaphore.NewWeighted(g.capacity)
	})
}

// acquire blocks until a slot frees or ctx ends.
func (g *gate) acquire(ctx context.Context) error {
	g.init()
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	g.active.Add(1)
	return nil
}

// release returns one slot. Releasing without a matching acquire is logged
// and ignored; the active counter never goes below zero. The once guarantees
// the semaphore exists even when release races a concurrent first acquire.
func (g *gate) release() {
	g.init()
	for {
		held := g.active.Load()
		if held <= 0 {
			g.logger.Warn("permit released without matching acquire")
			return
		}
		if g.active.CompareAndSwap(held, held-1) {
			g.sem.Release(1)
			return
		}
	}
}

// drain force-releases every permit still counted as active.
func (g *gate) drain() int {
	released := 0
	for g.active.Load() > 0 {
		g.release()
		released++
	}
	return released
}
