// Package dispatch runs inbound events through the middleware chain, one at a time per user.
package dispatch

import (
	"context"

	"github.com/m3rciful/gradebot/core/telegram/event"
	"github.com/m3rciful/gradebot/core/telegram/state"
)

// Update is the mutable context an event carries through the chain.
// The event itself is immutable; gates enrich the context and values.
type Update struct {
	Event event.Inbound
	// Session is loaded by the router before the handler runs.
	Session *state.Session

	ctx    context.Context
	values map[string]any
}

// NewUpdate wraps ev for one pass through the chain.
func NewUpdate(ctx context.Context, ev event.Inbound) *Update {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Update{Event: ev, ctx: ctx}
}

// Context returns the request context.
func (u *Update) Context() context.Context { return u.ctx }

// WithContext replaces the request context.
func (u *Update) WithContext(ctx context.Context) {
	if ctx != nil {
		u.ctx = ctx
	}
}

// Sender returns the sender id of the event.
func (u *Update) Sender() int64 { return event.Sender(u.Event) }

// Chat returns the chat id of the event.
func (u *Update) Chat() int64 {
	if u.Event == nil {
		return 0
	}
	return u.Event.Meta().ChatID
}

// Set stores a value for downstream gates and handlers.
func (u *Update) Set(key string, v any) {
	if u.values == nil {
		u.values = make(map[string]any)
	}
	u.values[key] = v
}

// Get returns a value stored with Set.
func (u *Update) Get(key string) any { return u.values[key] }
