package dispatch

import (
	"fmt"
	"runtime/debug"
)

// HandlerFunc handles one update.
type HandlerFunc func(u *Update) error

// MiddlewareFunc wraps a handler. Returning without calling next drops the event.
type MiddlewareFunc func(next HandlerFunc) HandlerFunc

// Chain composes gates around h. The first gate runs first.
func Chain(h HandlerFunc, gates ...MiddlewareFunc) HandlerFunc {
	for i := len(gates) - 1; i >= 0; i-- {
		if gates[i] != nil {
			h = gates[i](h)
		}
	}
	return h
}

// PanicError is a recovered handler panic.
type PanicError struct {
	Value any
	Stack []byte
}

// NewPanicError captures the current stack for v.
func NewPanicError(v any) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Unwrap exposes a panicked error value.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
