package middleware

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/m3rciful/gradebot/core/logger"
	"github.com/m3rciful/gradebot/core/telegram/dispatch"
	"github.com/m3rciful/gradebot/core/telegram/event"
	"github.com/m3rciful/gradebot/core/telegram/outbound"
)

// BlockChecker reads the blocked registry.
type BlockChecker interface {
	IsBlocked(ctx context.Context, id int64) (bool, error)
}

// Blocked drops every event from a blocked sender before anything else sees it.
// A blocked callback still gets an empty answer so the client stops its spinner.
func Blocked(reg BlockChecker, out Sender) dispatch.MiddlewareFunc {
	return func(next dispatch.HandlerFunc) dispatch.HandlerFunc {
		return func(u *dispatch.Update) error {
			ctx := u.Context()
			blocked, err := reg.IsBlocked(ctx, u.Sender())
			if err != nil {
				return fmt.Errorf("blocked check: %w", err)
			}
			if !blocked {
				return next(u)
			}
			logger.Info(ctx, component, "update.blocked",
				slog.String("status", "dropped"),
				slog.String("direction", logger.DirectionIn),
				slog.String("kind", string(u.Event.Kind())),
				slog.String("reason", "sender_blocked"),
			)
			if cb, ok := u.Event.(event.Callback); ok && out != nil && cb.ID != "" {
				_, _ = out.Send(ctx, outbound.AnswerCallback{
					Envelope:   outbound.Envelope{ChatID: u.Chat(), Tag: outbound.TagCallback},
					CallbackID: cb.ID,
				})
			}
			return nil
		}
	}
}
