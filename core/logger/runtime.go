package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

type scopeKey struct{}

// scope is the per-event correlation carried in a context.
type scope struct {
	logger   *slog.Logger
	rid      string
	updateID int
	userID   int64
	chatID   int64
	handler  string
}

func scopeFrom(ctx context.Context) scope {
	if ctx == nil {
		return scope{}
	}
	s, _ := ctx.Value(scopeKey{}).(scope)
	return s
}

func withScope(ctx context.Context, edit func(*scope)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	s := scopeFrom(ctx)
	edit(&s)
	return context.WithValue(ctx, scopeKey{}, s)
}

// WithLogger makes log the logger of every record written with ctx.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if log == nil {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return withScope(ctx, func(s *scope) { s.logger = log })
}

// FromContext returns the logger set by WithLogger, or the global one.
func FromContext(ctx context.Context) *slog.Logger {
	if l := scopeFrom(ctx).logger; l != nil {
		return l
	}
	return L
}

// WithRID sets the correlation id of the event being handled.
func WithRID(ctx context.Context, rid string) context.Context {
	return withScope(ctx, func(s *scope) { s.rid = rid })
}

// RIDFrom returns the correlation id, or "".
func RIDFrom(ctx context.Context) string { return scopeFrom(ctx).rid }

// WithUpdateMeta sets the update, sender and chat of the event being handled.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	return withScope(ctx, func(s *scope) {
		s.updateID, s.userID, s.chatID = updateID, userID, chatID
	})
}

// MetaFrom returns the identifiers set by WithUpdateMeta. Zero means unset.
func MetaFrom(ctx context.Context) (updateID int, userID, chatID int64) {
	s := scopeFrom(ctx)
	return s.updateID, s.userID, s.chatID
}

// WithHandler names the route handling the event.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return withScope(ctx, func(s *scope) { s.handler = handler })
}

// HandlerFrom returns the route name, or "".
func HandlerFrom(ctx context.Context) string { return scopeFrom(ctx).handler }

// BuildRID returns "update:chat:user".
func BuildRID(updateID int, chatID, userID int64) string {
	return fmt.Sprintf("%d:%d:%d", updateID, chatID, userID)
}

// CompactRID renders a BuildRID value as dot-separated base36 numbers.
// Anything else is returned unchanged.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	parts := strings.Split(rid, ":")
	if len(parts) != 3 {
		return rid
	}
	for i, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return rid
		}
		parts[i] = strconv.FormatInt(n, 36)
	}
	return strings.Join(parts, ".")
}
