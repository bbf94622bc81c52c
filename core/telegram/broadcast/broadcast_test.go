package broadcast

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/gradebot/core/telegram/outbound"
	"github.com/m3rciful/gradebot/core/telegram/ratelimit"
)

type recordingSender struct {
	mu    sync.Mutex
	sends []time.Time
	chats []int64
	fail  map[int64]outbound.Class
}

func (s *recordingSender) Send(_ context.Context, a outbound.Action) (outbound.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, time.Now())
	chat := outbound.ChatOf(a)
	s.chats = append(s.chats, chat)
	if class, ok := s.fail[chat]; ok {
		return outbound.Receipt{}, &outbound.Failure{Class: class, Op: a.Kind(), Err: errors.New("refused")}
	}
	return outbound.Receipt{ChatID: chat, MessageID: len(s.sends)}, nil
}

func messages(n int) []Message {
	out := make([]Message, n)
	for i := range out {
		out[i] = Message{ChatID: int64(i + 1), Text: "hello"}
	}
	return out
}

// assertWindow checks that no capacity+1 sends fall inside one window.
func assertWindow(t *testing.T, sends []time.Time, capacity int, window time.Duration) {
	t.Helper()
	sorted := append([]time.Time(nil), sends...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
	slack := 15 * time.Millisecond
	for i := capacity; i < len(sorted); i++ {
		gap := sorted[i].Sub(sorted[i-capacity])
		assert.GreaterOrEqual(t, gap, window-slack, "send %d came %s after send %d", i, gap, i-capacity)
	}
}

func TestBroadcastAllRespectsLimiter(t *testing.T) {
	const capacity = 30
	window := time.Second
	out := &recordingSender{}
	b, err := New(out, ratelimit.New(capacity, window), capacity)
	require.NoError(t, err)
	defer b.Close()

	start := time.Now()
	report := b.BroadcastAll(context.Background(), messages(100))
	elapsed := time.Since(start)

	assert.Equal(t, 100, report.Attempted)
	assert.Equal(t, 100, report.Delivered)
	assert.Zero(t, report.Skipped)
	assert.Len(t, out.sends, 100)
	// The first 30 go out at once; the remaining 70 need three more windows.
	assert.GreaterOrEqual(t, elapsed, 3*window-20*time.Millisecond)
	assertWindow(t, out.sends, capacity, window)
}

func TestBroadcastIsolatesFailures(t *testing.T) {
	out := &recordingSender{fail: map[int64]outbound.Class{
		2: outbound.ClassPermissionRevoked,
		5: outbound.ClassInvalidRequest,
		7: outbound.ClassTransientNetwork,
	}}
	b, err := New(out, ratelimit.New(5, 50*time.Millisecond), 4)
	require.NoError(t, err)
	defer b.Close()

	report := b.BroadcastAll(context.Background(), messages(12))

	assert.Equal(t, 12, report.Attempted)
	assert.Equal(t, 9, report.Delivered)
	assert.Equal(t, 3, report.FailedTotal())
	assert.Equal(t, 1, report.Failed[outbound.ClassPermissionRevoked])
	assert.Equal(t, 1, report.Failed[outbound.ClassInvalidRequest])
	assert.Equal(t, 1, report.Failed[outbound.ClassTransientNetwork])

	got := append([]int64(nil), out.chats...)
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, got)
	assertWindow(t, out.sends, 5, 50*time.Millisecond)
}

func TestBroadcastCancelledContextSkipsUnadmitted(t *testing.T) {
	out := &recordingSender{}
	b, err := New(out, ratelimit.New(3, time.Hour), 8)
	require.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	report := b.BroadcastAll(ctx, messages(10))

	assert.Equal(t, 3, report.Attempted, "admitted sends complete")
	assert.Equal(t, 7, report.Skipped)
	assert.Len(t, out.sends, 3)
}

func TestBroadcastEmpty(t *testing.T) {
	b, err := New(&recordingSender{}, ratelimit.New(1, time.Second), 0)
	require.NoError(t, err)
	defer b.Close()
	report := b.BroadcastAll(context.Background(), nil)
	assert.Zero(t, report.Attempted)
	assert.Zero(t, report.FailedTotal())
}
