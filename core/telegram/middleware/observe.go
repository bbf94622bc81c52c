package middleware

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maypok86/otter"

	"github.com/m3rciful/gradebot/core/logger"
	"github.com/m3rciful/gradebot/core/telegram/dispatch"
	"github.com/m3rciful/gradebot/core/telegram/event"
	"github.com/m3rciful/gradebot/core/users"
)

// UsernameSink receives the username an inbound event carried.
type UsernameSink interface {
	Observe(ctx context.Context, chatID int64, username string)
}

// Observer is the observability gate: request correlation, receipt logging
// and lazy user provisioning. The replayer runs events through it alone.
type Observer struct {
	records   users.Records
	usernames UsernameSink
	// seen remembers senders already provisioned by this process.
	seen otter.Cache[int64, struct{}]
}

// NewObserver returns the gate. usernames may be nil.
func NewObserver(records users.Records, usernames UsernameSink) (*Observer, error) {
	seen, err := otter.MustBuilder[int64, struct{}](50_000).Build()
	if err != nil {
		return nil, fmt.Errorf("middleware: build first-sight cache: %w", err)
	}
	return &Observer{records: records, usernames: usernames, seen: seen}, nil
}

// Close releases the first-sight cache.
func (o *Observer) Close() { o.seen.Close() }

// Gate returns the middleware.
func (o *Observer) Gate() dispatch.MiddlewareFunc {
	return func(next dispatch.HandlerFunc) dispatch.HandlerFunc {
		return func(u *dispatch.Update) error {
			meta := u.Event.Meta()
			rid := logger.BuildRID(meta.UpdateID, meta.ChatID, meta.SenderID)
			ctx := logger.WithRID(u.Context(), rid)
			ctx = logger.WithUpdateMeta(ctx, meta.UpdateID, meta.SenderID, meta.ChatID)
			ctx = logger.WithLogger(ctx, logger.FromContext(ctx))
			u.WithContext(ctx)

			logger.Info(ctx, component, "update.received", receiptAttrs(u.Event)...)

			if err := o.provision(ctx, meta.SenderID); err != nil {
				return err
			}
			if o.usernames != nil && meta.Username != "" {
				o.usernames.Observe(ctx, meta.SenderID, meta.Username)
			}
			return next(u)
		}
	}
}

func (o *Observer) provision(ctx context.Context, id int64) error {
	if id == 0 || o.records == nil {
		return nil
	}
	if _, ok := o.seen.Get(id); ok {
		return nil
	}
	created, err := users.Ensure(ctx, o.records, id)
	if err != nil {
		return fmt.Errorf("provision user %d: %w", id, err)
	}
	if created {
		logger.Info(ctx, component, "user.created", slog.String("status", "ok"))
	}
	o.seen.Set(id, struct{}{})
	return nil
}

func receiptAttrs(ev event.Inbound) []slog.Attr {
	meta := ev.Meta()
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("direction", logger.DirectionIn),
		slog.String("kind", string(ev.Kind())),
	}
	if meta.Username != "" {
		attrs = append(attrs, slog.String("username", logger.SanitizeLimit(meta.Username, 64)))
	}
	switch e := ev.(type) {
	case event.Message:
		switch {
		case e.Document != nil:
			attrs = append(attrs, slog.String("payload", "document "+logger.SanitizeLimit(e.Document.FileName, 128)))
		case e.Contact != nil:
			attrs = append(attrs, slog.String("payload", "contact "+logger.Redact(e.Contact.Phone)))
		default:
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(e.Text, 256)))
		}
	case event.Callback:
		attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(e.Unique, 128)))
		if e.Payload != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(e.Payload, 256)))
		}
	}
	return attrs
}
