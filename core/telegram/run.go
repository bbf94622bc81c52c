package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/gradebot/core/config"
	"github.com/m3rciful/gradebot/core/logger"
	"github.com/m3rciful/gradebot/core/telegram/dispatch"
	"github.com/m3rciful/gradebot/core/telegram/event"
	"github.com/m3rciful/gradebot/core/telegram/replay"
)

const defaultDrainTimeout = 10 * time.Second

// Submitter accepts converted events for dispatch.
type Submitter interface {
	Submit(ctx context.Context, ev event.Inbound) error
	Close(ctx context.Context) error
}

// Replayer drains the offline buffer before live dispatch.
type Replayer interface {
	Run(ctx context.Context) (replay.Stats, error)
}

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Config     *coreconfig.Config
	Bot        *tele.Bot
	Registry   *Registry
	Dispatcher Submitter
	// Replayer is optional; it only runs in long-poll mode.
	Replayer Replayer
	// OnMembership reports that a user blocked (reachable=false) or unblocked the bot.
	OnMembership func(ctx context.Context, chatID int64, reachable bool)

	DisableWebhookCleanup bool
	// DrainTimeout bounds the wait for in-flight handlers on shutdown.
	DrainTimeout time.Duration

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Bot      *tele.Bot
	Registry *Registry
	Replay   replay.Stats
}

// NewBot builds the telebot instance with the tuned HTTP client.
// The real poller is installed by RunTelegram once the replay offset is known.
func NewBot(cfg *coreconfig.Config, onError func(error, tele.Context)) (*tele.Bot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("telegram: nil config provided")
	}
	popts := PollerOptionsFrom(cfg)
	settings := tele.Settings{
		Token:   cfg.Telegram.Token,
		Poller:  BuildPoller(popts),
		Client:  BuildHTTPClient(popts.LongPollTimeout()),
		OnError: onError,
	}
	bot, err := tele.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	return bot, nil
}

// RunTelegram drains pending updates, then feeds live updates into the
// dispatcher until ctx is done. On shutdown intake stops first, in-flight
// handlers drain, then OnStop runs.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return fmt.Errorf("telegram: nil config provided")
	}
	if opts.Bot == nil || opts.Dispatcher == nil {
		return fmt.Errorf("telegram: bot and dispatcher are required")
	}

	cfg := opts.Config
	bot := opts.Bot
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}
	popts := PollerOptionsFrom(cfg)
	rt := Runtime{Bot: bot, Registry: reg}

	if popts.IsWebhook() {
		logger.TG.LogAttrs(ctx, slog.LevelInfo, "webhook mode",
			slog.String("event", "mode"),
			slog.String("mode", "webhook"),
			slog.String("listen", fmt.Sprintf("%s:%d", popts.Webhook.Listen, popts.Webhook.Port)),
			slog.String("public_url", popts.Webhook.URL),
		)
	} else {
		logger.TG.LogAttrs(ctx, slog.LevelInfo, "polling mode",
			slog.String("event", "mode"),
			slog.String("mode", "polling"),
			slog.Duration("timeout", popts.LongPollTimeout()),
		)
		if !opts.DisableWebhookCleanup {
			deleteWebhook(ctx, bot)
		}
		if opts.Replayer != nil && !cfg.Replay.Disabled {
			stats, err := opts.Replayer.Run(ctx)
			if err != nil {
				logger.TG.LogAttrs(ctx, slog.LevelWarn, "replay failed",
					slog.String("event", "replay"),
					slog.String("status", "fail"),
					slog.Int("offset", stats.Offset),
					slog.String("err", err.Error()),
				)
			}
			rt.Replay = stats
			popts.Offset = stats.Offset
		}
	}

	SetupCommands(bot, reg)
	bot.Poller = tele.NewMiddlewarePoller(BuildPoller(popts), intake(ctx, opts))

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			_ = opts.Dispatcher.Close(context.Background())
			return err
		}
	}

	runDone := make(chan struct{})
	go func() {
		bot.Start()
		close(runDone)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		bot.Stop()
		<-runDone
		runErr = ctx.Err()
	case <-runDone:
	}

	stopCtx := context.WithoutCancel(ctx)
	drain := opts.DrainTimeout
	if drain <= 0 {
		drain = defaultDrainTimeout
	}
	drainCtx, cancel := context.WithTimeout(stopCtx, drain)
	closeErr := opts.Dispatcher.Close(drainCtx)
	cancel()
	if closeErr != nil {
		logger.TG.LogAttrs(stopCtx, slog.LevelWarn, "drain incomplete",
			slog.String("event", "drain"),
			slog.String("status", "fail"),
			slog.String("err", closeErr.Error()),
		)
	}

	var stopErr error
	if opts.OnStop != nil {
		stopErr = opts.OnStop(stopCtx, rt)
	}

	if stopErr != nil {
		return stopErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// intake converts raw updates and submits them. It always returns false so
// telebot's own handler table is bypassed.
// Handlers get a context that survives shutdown so drained work can still reply.
func intake(ctx context.Context, opts RunOptions) func(*tele.Update) bool {
	ctx = context.WithoutCancel(ctx)
	return func(upd *tele.Update) bool {
		if upd.MyChatMember != nil {
			membership(ctx, upd.MyChatMember, opts.OnMembership)
			return false
		}
		ev, ok := FromUpdate(upd)
		if !ok {
			logger.TG.LogAttrs(ctx, slog.LevelDebug, "update skipped",
				slog.String("event", "update.skip"),
				slog.Int("update_id", upd.ID),
			)
			return false
		}
		if err := opts.Dispatcher.Submit(ctx, ev); err != nil {
			logger.TG.LogAttrs(ctx, slog.LevelWarn, "update not submitted",
				slog.String("event", "update.submit"),
				slog.String("status", "dropped"),
				slog.Int("update_id", upd.ID),
				slog.String("err", err.Error()),
			)
		}
		return false
	}
}

func membership(ctx context.Context, m *tele.ChatMemberUpdate, hook func(context.Context, int64, bool)) {
	if m.Chat == nil || m.NewChatMember == nil || hook == nil {
		return
	}
	switch {
	case m.NewChatMember.Role == tele.Kicked:
		hook(ctx, m.Chat.ID, false)
	case m.OldChatMember != nil && m.OldChatMember.Role == tele.Kicked:
		hook(ctx, m.Chat.ID, true)
	}
}

func deleteWebhook(ctx context.Context, bot *tele.Bot) {
	_, err := bot.Raw("deleteWebhook", map[string]any{"drop_pending_updates": false})
	if err != nil {
		logger.TG.LogAttrs(ctx, slog.LevelWarn, "failed to delete webhook",
			slog.String("event", "delete_webhook"),
			slog.String("mode", "polling"),
			slog.String("err", err.Error()),
		)
		return
	}
	logger.TG.LogAttrs(ctx, slog.LevelInfo, "webhook deleted",
		slog.String("event", "delete_webhook"),
		slog.String("mode", "polling"),
	)
}

var _ Submitter = (*dispatch.Dispatcher)(nil)
