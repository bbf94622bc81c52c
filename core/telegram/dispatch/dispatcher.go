package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/m3rciful/gradebot/core/logger"
	"github.com/m3rciful/gradebot/core/telegram/event"
)

const component = "tg.dispatch"

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("dispatch: dispatcher closed")

// FaultHandler receives errors returned or panicked by the chain.
type FaultHandler interface {
	DispatchFault(ctx context.Context, ev event.Inbound, err error)
}

// FaultFunc adapts a function to FaultHandler.
type FaultFunc func(ctx context.Context, ev event.Inbound, err error)

// DispatchFault calls f.
func (f FaultFunc) DispatchFault(ctx context.Context, ev event.Inbound, err error) { f(ctx, ev, err) }

type job struct {
	ctx context.Context
	ev  event.Inbound
}

type queue struct {
	pending []job
}

// Dispatcher serializes events per sender and runs distinct senders concurrently.
// Each active sender owns one goroutine that drains its FIFO and exits when it is empty.
type Dispatcher struct {
	handler HandlerFunc
	faults  FaultHandler

	mu     sync.Mutex
	queues map[int64]*queue
	closed bool
	wg     sync.WaitGroup
}

// New returns a dispatcher running h. Errors from h go to faults when it is not nil.
func New(h HandlerFunc, faults FaultHandler) *Dispatcher {
	return &Dispatcher{handler: h, faults: faults, queues: make(map[int64]*queue)}
}

// Submit enqueues ev behind earlier events of the same sender. It never blocks on handlers.
func (d *Dispatcher) Submit(ctx context.Context, ev event.Inbound) error {
	if ev == nil {
		return nil
	}
	key := queueKey(ev)
	j := job{ctx: ctx, ev: ev}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	if q, ok := d.queues[key]; ok {
		q.pending = append(q.pending, j)
		d.mu.Unlock()
		return nil
	}
	q := &queue{pending: []job{j}}
	d.queues[key] = q
	d.wg.Add(1)
	d.mu.Unlock()

	go d.drain(key, q)
	return nil
}

func (d *Dispatcher) drain(key int64, q *queue) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		if len(q.pending) == 0 {
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
		j := q.pending[0]
		q.pending[0] = job{}
		q.pending = q.pending[1:]
		d.mu.Unlock()

		d.Handle(j.ctx, j.ev)
	}
}

// Handle runs ev through the chain on the calling goroutine.
// Errors and panics are handed to the fault handler; Handle never fails.
func (d *Dispatcher) Handle(ctx context.Context, ev event.Inbound) {
	u := NewUpdate(ctx, ev)
	defer func() {
		if r := recover(); r != nil {
			d.fault(u, NewPanicError(r))
		}
	}()
	if err := d.handler(u); err != nil {
		d.fault(u, err)
	}
}

func (d *Dispatcher) fault(u *Update, err error) {
	if d.faults == nil {
		logger.Error(u.Context(), component, "dispatch.fault",
			slog.String("status", "fail"),
			slog.Any("err", err),
		)
		return
	}
	d.faults.DispatchFault(u.Context(), u.Event, err)
}

// Pending returns the number of senders with queued or running events.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues)
}

// Close stops accepting events and waits for queued ones to finish or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info(ctx, component, "dispatch.drained", slog.String("status", "ok"))
		return nil
	case <-ctx.Done():
		logger.Warn(ctx, component, "dispatch.drained",
			slog.String("status", "cancelled"),
			slog.Int("pending", d.Pending()),
		)
		return ctx.Err()
	}
}

func queueKey(ev event.Inbound) int64 {
	m := ev.Meta()
	if m.SenderID != 0 {
		return m.SenderID
	}
	return m.ChatID
}
