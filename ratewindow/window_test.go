package ratewindow

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/batchflow/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestWindow(t *testing.T, rpm, tpm int) (*Window, *fakeClock) {
	t.Helper()
	limits, err := types.NewRateLimits(rpm, tpm)
	require.NoError(t, err)

	w := New(limits, zap.NewNop())
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	w.now = clock.Now
	return w, clock
}

func TestWindow_RequestBudget(t *testing.T) {
	w, _ := newTestWindow(t, 2, 1000)

	assert.True(t, w.CheckAndReserve(0))
	assert.True(t, w.CheckAndReserve(0))
	assert.False(t, w.CheckAndReserve(0), "third request within the window must be denied")

	made, _ := w.Usage()
	assert.Equal(t, 2, made)
}

func TestWindow_ResetAfterWindowElapses(t *testing.T) {
	w, clock := newTestWindow(t, 2, 1000)

	require.True(t, w.CheckAndReserve(10))
	require.True(t, w.CheckAndReserve(10))
	require.False(t, w.CheckAndReserve(10))

	clock.Advance(61 * time.Second)

	assert.True(t, w.CheckAndReserve(10), "fresh window must admit")
	made, used := w.Usage()
	assert.Equal(t, 1, made, "counters reflect only the new call")
	assert.Equal(t, 10, used)
}

func TestWindow_TokenBudget(t *testing.T) {
	w, _ := newTestWindow(t, 100, 100)

	assert.True(t, w.CheckAndReserve(50))
	assert.True(t, w.CheckAndReserve(40))
	// 90 + 10 reaches the limit, which denies.
	assert.False(t, w.CheckAndReserve(10))
	assert.True(t, w.CheckAndReserve(5))

	made, used := w.Usage()
	assert.Equal(t, 3, made)
	assert.Equal(t, 95, used)
}

func TestWindow_ZeroTokenReservationCountsRequest(t *testing.T) {
	w, _ := newTestWindow(t, 3, 10)

	for i := 0; i < 3; i++ {
		assert.True(t, w.CheckAndReserve(0))
	}
	assert.False(t, w.CheckAndReserve(0))

	made, used := w.Usage()
	assert.Equal(t, 3, made)
	assert.Equal(t, 0, used)
}

func TestWindow_Limits(t *testing.T) {
	w, _ := newTestWindow(t, 7, 42)
	assert.Equal(t, 7, w.Limits().RequestsPerMinute)
	assert.Equal(t, 42, w.Limits().TokensPerMinute)
}

func TestWindow_ConcurrentReservations(t *testing.T) {
	w, _ := newTestWindow(t, 50, 1000000)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if w.CheckAndReserve(1) {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, admitted, "exactly the request budget is admitted")
}
