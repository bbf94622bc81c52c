package middleware

import (
	"log/slog"
	"strings"

	"github.com/m3rciful/gradebot/core/logger"
	"github.com/m3rciful/gradebot/core/telegram/dispatch"
	"github.com/m3rciful/gradebot/core/telegram/event"
	"github.com/m3rciful/gradebot/core/telegram/outbound"
)

// InactiveNotice is the reply to a flow trigger while admission is closed.
const InactiveNotice = "Bot is not active."

// AdmissionReader reports whether new flows may start.
type AdmissionReader interface {
	Active() bool
}

// IsFlowTrigger reports whether ev starts a new client flow: the /start command
// or a callback whose tag begins with "client".
func IsFlowTrigger(ev event.Inbound) bool {
	switch e := ev.(type) {
	case event.Message:
		name, _, ok := e.Command()
		return ok && name == "/start"
	case event.Callback:
		return strings.HasPrefix(e.Unique, "client")
	}
	return false
}

// Admission short-circuits flow triggers with one notice while the flag is off.
// Everything else, including events of flows already in progress, passes.
func Admission(flag AdmissionReader, out Sender) dispatch.MiddlewareFunc {
	return func(next dispatch.HandlerFunc) dispatch.HandlerFunc {
		return func(u *dispatch.Update) error {
			if flag.Active() || !IsFlowTrigger(u.Event) {
				return next(u)
			}
			ctx := u.Context()
			logger.Info(ctx, component, "update.inactive",
				slog.String("status", "dropped"),
				slog.String("kind", string(u.Event.Kind())),
				slog.String("reason", "admission_closed"),
			)
			if out == nil {
				return nil
			}
			_, _ = out.Send(ctx, outbound.Text(u.Chat(), InactiveNotice, outbound.TagNone))
			if cb, ok := u.Event.(event.Callback); ok && cb.ID != "" {
				_, _ = out.Send(ctx, outbound.AnswerCallback{
					Envelope:   outbound.Envelope{ChatID: u.Chat(), Tag: outbound.TagCallback},
					CallbackID: cb.ID,
				})
			}
			return nil
		}
	}
}
