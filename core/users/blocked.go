package users

import (
	"context"
	"log/slog"

	"github.com/m3rciful/gradebot/core/logger"
)

// Registry is the blocked-user view over Records.
type Registry struct {
	records Records
}

// NewRegistry wraps records.
func NewRegistry(records Records) *Registry {
	return &Registry{records: records}
}

// IsBlocked reports whether id is blocked. Unknown users are not blocked.
func (r *Registry) IsBlocked(ctx context.Context, id int64) (bool, error) {
	return Bool(ctx, r.records, id, FieldBlocked)
}

// Block marks id as blocked, creating the record when needed.
func (r *Registry) Block(ctx context.Context, id int64) error {
	return r.set(ctx, id, true)
}

// Unblock clears the blocked mark.
func (r *Registry) Unblock(ctx context.Context, id int64) error {
	return r.set(ctx, id, false)
}

func (r *Registry) set(ctx context.Context, id int64, blocked bool) error {
	if _, err := Ensure(ctx, r.records, id); err != nil {
		return err
	}
	err := SetBool(ctx, r.records, id, FieldBlocked, blocked)
	logger.Info(ctx, "users", "user.blocked",
		slog.String("status", logger.Status(err)),
		slog.Int64("chat_id", id),
		slog.Bool("blocked", blocked),
		slog.Any("err", err),
	)
	return err
}
