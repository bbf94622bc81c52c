package logger

import (
	"context"
	"log/slog"
	"sync"
)

// Record is a flattened log record kept by Capture.
type Record struct {
	Level slog.Level
	Event string
	Attrs map[string]any
}

// Capture is an slog.Handler that keeps records in memory. Tests pass it
// through WithLogger to assert on what a component logged.
type Capture struct {
	store *captureStore
	attrs []slog.Attr
}

type captureStore struct {
	mu      sync.Mutex
	records []Record
}

// NewCapture returns a logger backed by a fresh Capture.
func NewCapture() (*slog.Logger, *Capture) {
	c := &Capture{store: &captureStore{}}
	return slog.New(c), c
}

// Enabled accepts every level.
func (c *Capture) Enabled(context.Context, slog.Level) bool { return true }

// Handle stores the record with handler attrs applied first.
func (c *Capture) Handle(_ context.Context, r slog.Record) error {
	rec := Record{Level: r.Level, Event: r.Message, Attrs: map[string]any{}}
	put := func(a slog.Attr) bool {
		rec.Attrs[a.Key] = a.Value.Resolve().Any()
		return true
	}
	for _, a := range c.attrs {
		put(a)
	}
	r.Attrs(put)
	if ev, ok := rec.Attrs["event"].(string); ok && ev != "" {
		rec.Event = ev
	}
	c.store.mu.Lock()
	c.store.records = append(c.store.records, rec)
	c.store.mu.Unlock()
	return nil
}

// WithAttrs shares the record slice with the parent.
func (c *Capture) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Capture{store: c.store, attrs: append(append([]slog.Attr(nil), c.attrs...), attrs...)}
}

// WithGroup is a no-op; captured keys stay flat.
func (c *Capture) WithGroup(string) slog.Handler { return c }

// Records returns a snapshot of everything captured so far.
func (c *Capture) Records() []Record {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	return append([]Record(nil), c.store.records...)
}

// Events returns records whose event equals name.
func (c *Capture) Events(name string) []Record {
	var out []Record
	for _, r := range c.Records() {
		if r.Event == name {
			out = append(out, r)
		}
	}
	return out
}

// Count returns how many records are at or above level.
func (c *Capture) Count(level slog.Level) int {
	n := 0
	for _, r := range c.Records() {
		if r.Level >= level {
			n++
		}
	}
	return n
}
