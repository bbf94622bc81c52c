package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/gradebot/core/telegram/event"
)

func msg(sender int64, text string) event.Message {
	return event.Message{Info: event.Meta{SenderID: sender, ChatID: sender}, Text: text}
}

func TestChainOrderAndShortCircuit(t *testing.T) {
	var trace []string
	gate := func(name string, pass bool) MiddlewareFunc {
		return func(next HandlerFunc) HandlerFunc {
			return func(u *Update) error {
				trace = append(trace, name)
				if !pass {
					return nil
				}
				return next(u)
			}
		}
	}
	handler := func(*Update) error {
		trace = append(trace, "handler")
		return nil
	}

	h := Chain(handler, gate("a", true), nil, gate("b", true))
	require.NoError(t, h(NewUpdate(context.Background(), msg(1, "x"))))
	assert.Equal(t, []string{"a", "b", "handler"}, trace)

	trace = nil
	h = Chain(handler, gate("a", false), gate("b", true))
	require.NoError(t, h(NewUpdate(context.Background(), msg(1, "x"))))
	assert.Equal(t, []string{"a"}, trace)
}

func TestUpdateValues(t *testing.T) {
	u := NewUpdate(context.Background(), msg(4, "hi"))
	require.NotNil(t, u.Context())
	assert.Nil(t, u.Get("missing"))
	u.Set("k", 1)
	assert.Equal(t, 1, u.Get("k"))
	assert.Equal(t, int64(4), u.Sender())
	assert.Equal(t, int64(4), u.Chat())

	type key struct{}
	u.WithContext(context.WithValue(context.Background(), key{}, "v"))
	assert.Equal(t, "v", u.Context().Value(key{}))
}

func TestDispatcherSerializesPerSender(t *testing.T) {
	var (
		mu      sync.Mutex
		seen    = map[int64][]string{}
		running = map[int64]int{}
		overlap atomic.Bool
	)
	d := New(func(u *Update) error {
		id := u.Sender()
		mu.Lock()
		running[id]++
		if running[id] > 1 {
			overlap.Store(true)
		}
		mu.Unlock()

		time.Sleep(2 * time.Millisecond)

		mu.Lock()
		running[id]--
		seen[id] = append(seen[id], event.Text(u.Event))
		mu.Unlock()
		return nil
	}, nil)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		for _, sender := range []int64{1, 2, 3} {
			require.NoError(t, d.Submit(ctx, msg(sender, string(rune('a'+i)))))
		}
	}
	require.NoError(t, d.Close(ctx))

	assert.False(t, overlap.Load(), "two events of one sender ran concurrently")
	for _, sender := range []int64{1, 2, 3} {
		assert.Equal(t, []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}, seen[sender])
	}
	assert.Zero(t, d.Pending())
}

func TestDispatcherRunsSendersConcurrently(t *testing.T) {
	release := make(chan struct{})
	started := make(chan int64, 2)
	d := New(func(u *Update) error {
		started <- u.Sender()
		<-release
		return nil
	}, nil)

	ctx := context.Background()
	require.NoError(t, d.Submit(ctx, msg(1, "a")))
	require.NoError(t, d.Submit(ctx, msg(2, "b")))

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatal("second sender was blocked by the first")
		}
	}
	close(release)
	require.NoError(t, d.Close(ctx))
}

func TestDispatcherFaultIsolation(t *testing.T) {
	var (
		mu     sync.Mutex
		faults []error
		ok     []int64
	)
	boom := errors.New("boom")
	d := New(func(u *Update) error {
		switch event.Text(u.Event) {
		case "panic":
			panic("handler exploded")
		case "fail":
			return boom
		}
		mu.Lock()
		ok = append(ok, u.Sender())
		mu.Unlock()
		return nil
	}, FaultFunc(func(_ context.Context, _ event.Inbound, err error) {
		mu.Lock()
		faults = append(faults, err)
		mu.Unlock()
	}))

	ctx := context.Background()
	require.NoError(t, d.Submit(ctx, msg(1, "panic")))
	require.NoError(t, d.Submit(ctx, msg(1, "after")))
	require.NoError(t, d.Submit(ctx, msg(2, "fail")))
	require.NoError(t, d.Submit(ctx, msg(3, "fine")))
	require.NoError(t, d.Close(ctx))

	require.Len(t, faults, 2)
	var pe *PanicError
	var sawPanic, sawErr bool
	for _, err := range faults {
		if errors.As(err, &pe) {
			sawPanic = true
			assert.Equal(t, "handler exploded", pe.Value)
			assert.NotEmpty(t, pe.Stack)
		}
		if errors.Is(err, boom) {
			sawErr = true
		}
	}
	assert.True(t, sawPanic)
	assert.True(t, sawErr)
	assert.ElementsMatch(t, []int64{1, 3}, ok)
}

func TestDispatcherClose(t *testing.T) {
	release := make(chan struct{})
	d := New(func(*Update) error {
		<-release
		return nil
	}, nil)
	ctx := context.Background()
	require.NoError(t, d.Submit(ctx, msg(1, "a")))

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(short), context.DeadlineExceeded)
	assert.ErrorIs(t, d.Submit(ctx, msg(1, "late")), ErrClosed)

	close(release)
	require.NoError(t, d.Close(ctx))
}

func TestPanicErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	pe := NewPanicError(inner)
	assert.ErrorIs(t, pe, inner)
	assert.Contains(t, pe.Error(), "inner")
	assert.Nil(t, NewPanicError("text").Unwrap())
}
