package ratelimit

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertWindow(t *testing.T, stamps []time.Time, capacity int, window, slack time.Duration) {
	t.Helper()
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })
	for i := 0; i+capacity < len(stamps); i++ {
		gap := stamps[i+capacity].Sub(stamps[i])
		require.GreaterOrEqual(t, gap, window-slack, "admissions %d and %d are %s apart", i, i+capacity, gap)
	}
}

func TestLimiterBurstThenWindow(t *testing.T) {
	l := New(5, 200*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Wait(ctx))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond, "first window is admitted at once")

	require.NoError(t, l.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 190*time.Millisecond)
}

func TestLimiterSlidingWindowUnderContention(t *testing.T) {
	const (
		capacity = 5
		window   = 200 * time.Millisecond
		total    = 17
	)
	l := New(capacity, window)

	var (
		mu     sync.Mutex
		stamps []time.Time
		wg     sync.WaitGroup
	)
	start := time.Now()
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Wait(context.Background()))
			mu.Lock()
			stamps = append(stamps, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, stamps, total)
	// ceil(17/5)-1 full windows must pass before the last admission.
	assert.GreaterOrEqual(t, time.Since(start), 3*window-10*time.Millisecond)
	assertWindow(t, stamps, capacity, window, 10*time.Millisecond)
}

func TestLimiterWaitHonoursContext(t *testing.T) {
	l := New(1, time.Second)
	require.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLimiterFakeClock(t *testing.T) {
	l := New(2, time.Second)
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }

	assert.Zero(t, l.reserve())
	assert.Zero(t, l.reserve())
	assert.Equal(t, time.Second, l.reserve())

	now = now.Add(400 * time.Millisecond)
	assert.Equal(t, 600*time.Millisecond, l.reserve())

	now = now.Add(600 * time.Millisecond)
	assert.Zero(t, l.reserve())
	// The second admission of the first burst is now the oldest.
	assert.Zero(t, l.reserve())
	assert.Equal(t, time.Second, l.reserve())
}

func TestNewDefaults(t *testing.T) {
	l := New(0, 0)
	assert.Equal(t, 30, l.Capacity())
	assert.Equal(t, time.Second, l.Window())
}
