// Package operator is the privileged channel that receives lifecycle notices and escalations.
package operator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/m3rciful/gradebot/core/logger"
	"github.com/m3rciful/gradebot/core/telegram/outbound"
)

const component = "tg.operator"

const (
	StartupNotice  = "# Bot started."
	ShutdownNotice = "# Bot stopped."
)

// Sender delivers operator messages.
type Sender interface {
	Send(ctx context.Context, a outbound.Action) (outbound.Receipt, error)
}

// Options tune the channel.
type Options struct {
	// LogPath returns the log artifact to attach. Defaults to logger.FilePath.
	LogPath func() string
	// Flush is called before the artifact is read. Defaults to logger.Flush.
	Flush func() error
}

// Channel is the fixed set of privileged identities.
type Channel struct {
	ids  []int64
	set  map[int64]struct{}
	out  Sender
	opts Options
}

// New returns a channel addressing ids.
func New(ids []int64, out Sender, opts Options) *Channel {
	if opts.LogPath == nil {
		opts.LogPath = logger.FilePath
	}
	if opts.Flush == nil {
		opts.Flush = logger.Flush
	}
	c := &Channel{ids: slices.Clone(ids), set: make(map[int64]struct{}, len(ids)), out: out, opts: opts}
	for _, id := range ids {
		c.set[id] = struct{}{}
	}
	return c
}

// IDs returns the operator ids.
func (c *Channel) IDs() []int64 { return slices.Clone(c.ids) }

// IsPrivileged reports whether id is an operator.
func (c *Channel) IsPrivileged(id int64) bool {
	_, ok := c.set[id]
	return ok
}

// Startup tells every operator the bot is up.
func (c *Channel) Startup(ctx context.Context) {
	for _, id := range c.ids {
		_, _ = c.out.Send(ctx, outbound.Text(id, StartupNotice, outbound.TagOperator))
	}
}

// Shutdown sends every operator the log artifact with the stop notice.
func (c *Channel) Shutdown(ctx context.Context) {
	for _, id := range c.ids {
		c.SendLog(ctx, id, ShutdownNotice)
	}
}

// Escalate sends diagnostic detail of a fault to every operator.
func (c *Channel) Escalate(ctx context.Context, incident string, err error) {
	caption := fmt.Sprintf("🚨 Error: %s. Incident %s. Check logs for details.",
		logger.SanitizeLimit(fmt.Sprint(err), 700), incident)
	sent := 0
	for _, id := range c.ids {
		if c.SendLog(ctx, id, caption) {
			sent++
		}
	}
	logger.Info(ctx, component, "operator.escalate",
		slog.String("status", "ok"),
		slog.String("incident", incident),
		slog.Int("delivered", sent),
	)
}

// SendLog sends the log artifact to chatID. Without a log file the caption goes as text.
func (c *Channel) SendLog(ctx context.Context, chatID int64, caption string) bool {
	path := c.opts.LogPath()
	if path != "" {
		if err := c.opts.Flush(); err != nil {
			logger.Warn(ctx, component, "operator.flush", slog.String("status", "fail"), slog.Any("err", err))
		}
		if _, err := os.Stat(path); err == nil {
			_, err := c.out.Send(ctx, outbound.Document{
				Envelope: outbound.Envelope{ChatID: chatID, Tag: outbound.TagOperator},
				Path:     path,
				FileName: filepath.Base(path),
				Caption:  caption,
			})
			return err == nil
		}
	}
	if caption == "" {
		caption = "No log file is configured."
	}
	_, err := c.out.Send(ctx, outbound.Text(chatID, caption, outbound.TagOperator))
	return err == nil
}
