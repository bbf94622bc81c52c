// Package admission holds the process-wide switch deciding whether new flows may start.
package admission

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/gradebot/core/logger"
)

const component = "tg.admission"

// Flag is the admission cell shared by the middleware chain and the admin commands.
// Reads and writes are atomic; sessions are never touched.
type Flag struct {
	active atomic.Bool
}

// NewFlag returns a flag in the given initial state.
func NewFlag(active bool) *Flag {
	f := &Flag{}
	f.active.Store(active)
	return f
}

// Active reports whether new flows are admitted.
func (f *Flag) Active() bool { return f.active.Load() }

// Activate opens admission. It reports whether the state changed.
func (f *Flag) Activate(ctx context.Context) bool {
	return f.set(ctx, true)
}

// Deactivate closes admission. It reports whether the state changed.
func (f *Flag) Deactivate(ctx context.Context) bool {
	return f.set(ctx, false)
}

func (f *Flag) set(ctx context.Context, active bool) bool {
	changed := f.active.CompareAndSwap(!active, active)
	status := "ok"
	if !changed {
		status = "skip"
	}
	logger.Info(ctx, component, "admission.toggle",
		slog.String("status", status),
		slog.Bool("active", active),
	)
	return changed
}
