package router

import (
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/m3rciful/gradebot/core/logger"
	"github.com/m3rciful/gradebot/core/telegram/dispatch"
	"github.com/m3rciful/gradebot/core/telegram/event"
)

func logHandled(u *dispatch.Update, name string, start time.Time, err error) {
	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.String("route", name),
		slog.String("kind", string(u.Event.Kind())),
		slog.String("state", string(u.Session.State())),
		slog.Duration("duration", logger.Took(start)),
	}
	if cb, ok := u.Event.(event.Callback); ok {
		attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(cb.Unique, 128)))
	}
	if err != nil {
		attrs = append(attrs,
			slog.Any("err", err),
			slog.String("err_code", errorCode(err)),
		)
	}
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelWarn
	}
	logger.Event(u.Context(), component, level, "handler.handled", attrs...)
}

func errorCode(err error) string {
	if err == nil {
		return ""
	}
	type coder interface{ Code() string }
	if c, ok := err.(coder); ok {
		if code := strings.TrimSpace(c.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil && t.Name() != "" {
		return strings.ToUpper(t.Name())
	}
	return "UNKNOWN_ERROR"
}
