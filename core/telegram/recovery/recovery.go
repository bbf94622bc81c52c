// Package recovery is the process-wide catch for dispatch and background faults.
//
// A dispatch fault clears the sender's session, sends one generic notice and
// escalates detail to operators. A background fault is escalated only, then the
// default handling runs. Neither halts the process.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/m3rciful/gradebot/core/logger"
	"github.com/m3rciful/gradebot/core/telegram/dispatch"
	"github.com/m3rciful/gradebot/core/telegram/event"
	"github.com/m3rciful/gradebot/core/telegram/outbound"
	"github.com/m3rciful/gradebot/core/telegram/state"
)

const component = "tg.recovery"

// Sender delivers the user notice.
type Sender interface {
	Send(ctx context.Context, a outbound.Action) (outbound.Receipt, error)
}

// Escalator forwards fault detail to operators.
type Escalator interface {
	Escalate(ctx context.Context, incident string, err error)
}

// Options tune the handler.
type Options struct {
	// SupportHandle is appended to the user notice as "@handle".
	SupportHandle string
	// Default runs after a background fault was escalated. Defaults to defaultFault.
	Default func(ctx context.Context, err error)
}

// Handler implements dispatch.FaultHandler.
type Handler struct {
	store state.Store
	out   Sender
	ops   Escalator
	opts  Options
	tasks sync.WaitGroup
}

// New returns a recovery handler. ops may be nil.
func New(store state.Store, out Sender, ops Escalator, opts Options) *Handler {
	if opts.Default == nil {
		opts.Default = defaultFault
	}
	return &Handler{store: store, out: out, ops: ops, opts: opts}
}

// defaultFault writes the fault to the process log without incident context.
func defaultFault(ctx context.Context, err error) {
	logger.Error(ctx, component, "fault.default",
		slog.String("status", "fail"),
		slog.Any("err", err),
	)
}

// Notice returns the generic text a user sees after a dispatch fault.
func (h *Handler) Notice() string {
	text := "Oops, something went wrong.\nWe logged the error."
	if handle := strings.TrimPrefix(h.opts.SupportHandle, "@"); handle != "" {
		text += "\n\nIf it persists, contact @" + handle
	}
	return text
}

// DispatchFault handles an error raised while a handler ran. The event counts as handled.
func (h *Handler) DispatchFault(ctx context.Context, ev event.Inbound, err error) {
	incident := uuid.NewString()
	attrs := []slog.Attr{
		slog.String("status", "fail"),
		slog.String("incident", incident),
		slog.Any("err", err),
	}
	if ev != nil {
		meta := ev.Meta()
		attrs = append(attrs,
			slog.String("kind", string(ev.Kind())),
			slog.Int("update_id", meta.UpdateID),
			slog.Int64("user_id", meta.SenderID),
			slog.Int64("chat_id", meta.ChatID),
		)
	}
	var pe *dispatch.PanicError
	if errors.As(err, &pe) && logger.StacksEnabled() {
		attrs = append(attrs, slog.String("stack", string(pe.Stack)))
	}
	logger.Error(ctx, component, "fault.dispatch", attrs...)

	if ev != nil {
		meta := ev.Meta()
		if meta.SenderID != 0 && h.store != nil {
			if cerr := h.store.Clear(ctx, meta.SenderID); cerr != nil {
				logger.Error(ctx, component, "fault.clear",
					slog.String("status", "fail"),
					slog.String("incident", incident),
					slog.Any("err", cerr),
				)
			}
		}
		if meta.ChatID != 0 && h.out != nil {
			_, _ = h.out.Send(ctx, outbound.Text(meta.ChatID, h.Notice(), outbound.TagFault))
		}
	}
	h.escalate(ctx, incident, err)
}

// BackgroundFault handles an error outside the per-event path.
func (h *Handler) BackgroundFault(ctx context.Context, err error) {
	if err == nil {
		return
	}
	incident := uuid.NewString()
	logger.Error(ctx, component, "fault.background",
		slog.String("status", "fail"),
		slog.String("incident", incident),
		slog.Any("err", err),
	)
	h.escalate(ctx, incident, err)
	h.opts.Default(ctx, err)
}

// Go runs fn as a background task. Its error or panic becomes a BackgroundFault.
func (h *Handler) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	h.tasks.Add(1)
	go func() {
		defer h.tasks.Done()
		defer func() {
			if r := recover(); r != nil {
				h.BackgroundFault(ctx, fmt.Errorf("task %s: %w", name, dispatch.NewPanicError(r)))
			}
		}()
		if err := fn(ctx); err != nil {
			h.BackgroundFault(ctx, fmt.Errorf("task %s: %w", name, err))
		}
	}()
}

// Wait blocks until background tasks started with Go return or ctx ends.
func (h *Handler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) escalate(ctx context.Context, incident string, err error) {
	if h.ops == nil {
		return
	}
	h.ops.Escalate(context.WithoutCancel(ctx), incident, err)
}
