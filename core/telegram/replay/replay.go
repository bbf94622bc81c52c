// Package replay drains updates that arrived while the bot was offline.
package replay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/gradebot/core/logger"
	"github.com/m3rciful/gradebot/core/telegram/dispatch"
	"github.com/m3rciful/gradebot/core/telegram/event"
	"github.com/m3rciful/gradebot/core/telegram/outbound"
)

const component = "tg.replay"

// OfflineNotice is sent once per sender and pass.
const OfflineNotice = "The bot was offline.\nPlease try again!"

// Batch is one fetch from the transport buffer.
type Batch struct {
	Events []event.Inbound
	// LastUpdateID is the highest update id fetched, including updates
	// that did not convert to events. Zero means the buffer is empty.
	LastUpdateID int
}

// Source is the transport's buffered feed.
type Source interface {
	// Pending fetches up to limit updates with id >= offset without waiting.
	Pending(ctx context.Context, offset, limit int) (Batch, error)
	// Acknowledge confirms every update below next so it is never redelivered.
	Acknowledge(ctx context.Context, next int) error
}

// Sender delivers the offline notice.
type Sender interface {
	Send(ctx context.Context, a outbound.Action) (outbound.Receipt, error)
}

// Stats summarizes one pass.
type Stats struct {
	Batches int
	Events  int
	Notices int
	// Offset is the next update id the live poller should ask for.
	Offset int
}

// Replayer runs one pass before live dispatch starts.
type Replayer struct {
	source  Source
	out     Sender
	observe dispatch.HandlerFunc
	limit   int
}

// New returns a replayer. Each pending event runs through observe only,
// typically the observability gate around a no-op.
func New(source Source, out Sender, observe dispatch.MiddlewareFunc, limit int) *Replayer {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return &Replayer{
		source:  source,
		out:     out,
		observe: dispatch.Chain(func(*dispatch.Update) error { return nil }, observe),
		limit:   limit,
	}
}

// Run fetches and acknowledges batches until the buffer is empty.
func (r *Replayer) Run(ctx context.Context) (Stats, error) {
	start := time.Now()
	var stats Stats
	notified := make(map[int64]struct{})

	for {
		batch, err := r.source.Pending(ctx, stats.Offset, r.limit)
		if err != nil {
			r.log(ctx, stats, start, err)
			return stats, fmt.Errorf("replay: fetch pending: %w", err)
		}
		if batch.LastUpdateID == 0 && len(batch.Events) == 0 {
			break
		}
		stats.Batches++

		for _, ev := range batch.Events {
			stats.Events++
			u := dispatch.NewUpdate(ctx, ev)
			if err := r.observe(u); err != nil {
				logger.Warn(ctx, component, "replay.observe",
					slog.String("status", "fail"),
					slog.Int("update_id", ev.Meta().UpdateID),
					slog.Any("err", err),
				)
			}
			meta := ev.Meta()
			key := meta.SenderID
			if key == 0 {
				key = meta.ChatID
			}
			if _, done := notified[key]; done || meta.ChatID == 0 {
				continue
			}
			notified[key] = struct{}{}
			stats.Notices++
			_, _ = r.out.Send(u.Context(), outbound.Text(meta.ChatID, OfflineNotice, outbound.TagPendingReplay))
		}

		next := batch.LastUpdateID + 1
		if err := r.source.Acknowledge(ctx, next); err != nil {
			r.log(ctx, stats, start, err)
			return stats, fmt.Errorf("replay: acknowledge %d: %w", next, err)
		}
		stats.Offset = next
	}

	r.log(ctx, stats, start, nil)
	return stats, nil
}

func (r *Replayer) log(ctx context.Context, stats Stats, start time.Time, err error) {
	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.Int("batches", stats.Batches),
		slog.Int("events", stats.Events),
		slog.Int("notices", stats.Notices),
		slog.Int("offset", stats.Offset),
		slog.Duration("duration", logger.Took(start)),
	}
	if err != nil {
		attrs = append(attrs, slog.Any("err", err))
		logger.Error(ctx, component, "replay.done", attrs...)
		return
	}
	logger.Info(ctx, component, "replay.done", attrs...)
}
