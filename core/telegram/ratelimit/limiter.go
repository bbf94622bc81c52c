// Package ratelimit bounds outbound throughput with a sliding window.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter admits at most capacity acquisitions in any window of the given length.
//
// It keeps the timestamps of the last capacity admissions in a ring. A new
// acquisition is admitted once the oldest of them left the window. Waiters are
// served first come, first served: they queue on a single-slot turn channel,
// and blocked channel senders are woken in FIFO order.
type Limiter struct {
	capacity int
	window   time.Duration
	now      func() time.Time

	turn chan struct{}

	mu    sync.Mutex
	ring  []time.Time
	head  int
	count int
}

// New returns a limiter. Non-positive arguments fall back to 30 per second.
func New(capacity int, window time.Duration) *Limiter {
	if capacity <= 0 {
		capacity = 30
	}
	if window <= 0 {
		window = time.Second
	}
	return &Limiter{
		capacity: capacity,
		window:   window,
		now:      time.Now,
		turn:     make(chan struct{}, 1),
		ring:     make([]time.Time, capacity),
	}
}

// Capacity returns the number of admissions per window.
func (l *Limiter) Capacity() int { return l.capacity }

// Window returns the window length.
func (l *Limiter) Window() time.Duration { return l.window }

// Wait blocks until an admission is available or ctx is done.
// A cancelled waiter consumes nothing.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case l.turn <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.turn }()

	for {
		delay := l.reserve()
		if delay <= 0 {
			return nil
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TryAcquire admits immediately or reports false. It does not queue.
func (l *Limiter) TryAcquire() bool {
	select {
	case l.turn <- struct{}{}:
	default:
		return false
	}
	defer func() { <-l.turn }()
	return l.reserve() <= 0
}

// reserve records an admission and returns 0, or returns how long until one frees up.
func (l *Limiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.count < l.capacity {
		l.ring[(l.head+l.count)%l.capacity] = now
		l.count++
		return 0
	}
	oldest := l.ring[l.head]
	if free := oldest.Add(l.window); now.Before(free) {
		return free.Sub(now)
	}
	l.ring[l.head] = now
	l.head = (l.head + 1) % l.capacity
	return 0
}
