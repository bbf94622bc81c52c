package middleware

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/maypok86/otter"

	"github.com/m3rciful/gradebot/core/logger"
	"github.com/m3rciful/gradebot/core/telegram/dispatch"
	"github.com/m3rciful/gradebot/core/telegram/event"
)

const defaultThrottleCapacity = 50_000

// ThrottleOptions configures the per-user inbound throttle.
type ThrottleOptions struct {
	Interval time.Duration
	// Capacity bounds how many senders are tracked at once. Defaults to 50000.
	Capacity  int
	Exclude   map[event.Kind]struct{}
	OnLimited dispatch.HandlerFunc
}

// Throttle enforces a minimum interval between events from the same user.
// Senders expire from the tracked set after one interval, so it stays bounded.
// A zero interval disables it.
func Throttle(opts ThrottleOptions) (dispatch.MiddlewareFunc, error) {
	if opts.Interval <= 0 {
		return func(next dispatch.HandlerFunc) dispatch.HandlerFunc { return next }, nil
	}
	if opts.Capacity <= 0 {
		opts.Capacity = defaultThrottleCapacity
	}
	recent, err := otter.MustBuilder[int64, time.Time](opts.Capacity).WithTTL(opts.Interval).Build()
	if err != nil {
		return nil, fmt.Errorf("middleware: build throttle cache: %w", err)
	}
	return func(next dispatch.HandlerFunc) dispatch.HandlerFunc {
		return func(u *dispatch.Update) error {
			id := u.Sender()
			if id == 0 {
				return next(u)
			}
			if _, skip := opts.Exclude[u.Event.Kind()]; skip {
				return next(u)
			}
			now := time.Now()
			if last, seen := recent.Get(id); !seen || now.Sub(last) >= opts.Interval {
				recent.Set(id, now)
				return next(u)
			}
			logger.Warn(u.Context(), component, "update.throttled",
				slog.String("status", "rate_limited"),
				slog.String("kind", string(u.Event.Kind())),
			)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(u)
			}
			return nil
		}
	}, nil
}
