// Package broadcast fans personalized messages out to many chats under a shared rate limit.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/m3rciful/gradebot/core/logger"
	"github.com/m3rciful/gradebot/core/telegram/outbound"
)

const component = "tg.broadcast"

// Message is one personalized send.
type Message struct {
	ChatID   int64
	Text     string
	Keyboard outbound.Keyboard
}

// Sender performs a classified outbound call.
type Sender interface {
	Send(ctx context.Context, a outbound.Action) (outbound.Receipt, error)
}

// Admitter hands out send slots. *ratelimit.Limiter implements it.
type Admitter interface {
	Wait(ctx context.Context) error
}

// Report summarizes one BroadcastAll call.
type Report struct {
	// Attempted counts sends admitted by the limiter.
	Attempted int
	Delivered int
	Failed    map[outbound.Class]int
	// Skipped counts sends never started because ctx ended first.
	Skipped  int
	Duration time.Duration
}

// FailedTotal sums failures across classes.
func (r Report) FailedTotal() int {
	n := 0
	for _, c := range r.Failed {
		n += c
	}
	return n
}

// Broadcaster runs sends on a shared worker pool. Each send is independent:
// a failed recipient never cancels or delays the others.
type Broadcaster struct {
	out     Sender
	limiter Admitter
	pool    *ants.Pool
}

// New returns a broadcaster with at most workers sends in flight.
func New(out Sender, limiter Admitter, workers int) (*Broadcaster, error) {
	if workers <= 0 {
		workers = 30
	}
	pool, err := ants.NewPool(workers, ants.WithPreAlloc(true))
	if err != nil {
		return nil, fmt.Errorf("broadcast: create pool: %w", err)
	}
	return &Broadcaster{out: out, limiter: limiter, pool: pool}, nil
}

// BroadcastAll sends every message and returns once each one was attempted or skipped.
// Cancelling ctx only prevents sends that were not admitted yet; admitted sends finish.
func (b *Broadcaster) BroadcastAll(ctx context.Context, msgs []Message) Report {
	start := time.Now()
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		report = Report{Failed: map[outbound.Class]int{}}
	)

	task := func(m Message) func() {
		return func() {
			defer wg.Done()
			if err := b.limiter.Wait(ctx); err != nil {
				mu.Lock()
				report.Skipped++
				mu.Unlock()
				return
			}
			_, err := b.out.Send(context.WithoutCancel(ctx), outbound.TextMessage{
				Envelope: outbound.Envelope{ChatID: m.ChatID, Tag: outbound.TagBroadcast},
				Text:     m.Text,
				Keyboard: m.Keyboard,
			})
			mu.Lock()
			report.Attempted++
			if err != nil {
				report.Failed[outbound.ClassOf(err)]++
			} else {
				report.Delivered++
			}
			mu.Unlock()
		}
	}

	for _, m := range msgs {
		wg.Add(1)
		run := task(m)
		if err := b.pool.Submit(run); err != nil {
			if !errors.Is(err, ants.ErrPoolClosed) {
				logger.Warn(ctx, component, "broadcast.submit",
					slog.String("status", "fail"),
					slog.Any("err", err),
				)
			}
			run()
		}
	}
	wg.Wait()

	report.Duration = logger.Took(start)
	logger.Info(ctx, component, "broadcast.done",
		slog.String("status", "ok"),
		slog.Int("attempted", report.Attempted),
		slog.Int("delivered", report.Delivered),
		slog.Int("failed", report.FailedTotal()),
		slog.Int("skipped", report.Skipped),
		slog.Duration("duration", report.Duration),
	)
	return report
}

// Close releases the worker pool.
func (b *Broadcaster) Close() {
	b.pool.Release()
}
