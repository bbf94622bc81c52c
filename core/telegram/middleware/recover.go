package middleware

import (
	"log/slog"

	"github.com/m3rciful/gradebot/core/logger"
	"github.com/m3rciful/gradebot/core/telegram/dispatch"
)

// Recover turns a handler panic into a *dispatch.PanicError so it reaches the fault handler.
func Recover() dispatch.MiddlewareFunc {
	return func(next dispatch.HandlerFunc) dispatch.HandlerFunc {
		return func(u *dispatch.Update) (err error) {
			defer func() {
				if r := recover(); r != nil {
					pe := dispatch.NewPanicError(r)
					attrs := []slog.Attr{
						slog.String("status", "fail"),
						slog.Any("err", pe),
					}
					if logger.StacksEnabled() {
						attrs = append(attrs, slog.String("stack", string(pe.Stack)))
					}
					logger.Error(u.Context(), component, "handler.panic", attrs...)
					err = pe
				}
			}()
			return next(u)
		}
	}
}
