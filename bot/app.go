// Package bot assembles gradebot from the reusable core: configuration,
// storage, the dispatch pipeline and the conversation handlers.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/gradebot/core/bootstrap"
	"github.com/m3rciful/gradebot/core/cmd"
	coredatabase "github.com/m3rciful/gradebot/core/database"
	"github.com/m3rciful/gradebot/core/logger"
	coretelegram "github.com/m3rciful/gradebot/core/telegram"
	"github.com/m3rciful/gradebot/core/telegram/admission"
	"github.com/m3rciful/gradebot/core/telegram/broadcast"
	"github.com/m3rciful/gradebot/core/telegram/dispatch"
	"github.com/m3rciful/gradebot/core/telegram/middleware"
	"github.com/m3rciful/gradebot/core/telegram/operator"
	"github.com/m3rciful/gradebot/core/telegram/outbound"
	"github.com/m3rciful/gradebot/core/telegram/ratelimit"
	"github.com/m3rciful/gradebot/core/telegram/recovery"
	"github.com/m3rciful/gradebot/core/telegram/replay"
	"github.com/m3rciful/gradebot/core/telegram/router"
	"github.com/m3rciful/gradebot/core/telegram/state"
	"github.com/m3rciful/gradebot/core/users"
	"github.com/m3rciful/gradebot/migrations"

	"github.com/m3rciful/gradebot/bot/grading"
	"github.com/m3rciful/gradebot/bot/handlers"
	"github.com/m3rciful/gradebot/bot/storage"
)

const component = "app"

// backgroundWait bounds how long shutdown waits for grading runs.
const backgroundWait = 30 * time.Second

// App is the assembled gradebot. It implements cmd.TelegramApp and io.Closer.
type App struct {
	cfg *Config
	db  *sqlx.DB

	bot         *tele.Bot
	registry    *coretelegram.Registry
	records     *storage.Users
	resolver    *users.Resolver
	operators   *operator.Channel
	recovery    *recovery.Handler
	observer    *middleware.Observer
	dispatcher  *dispatch.Dispatcher
	broadcaster *broadcast.Broadcaster
	replayer    *replay.Replayer
}

// CLI returns the command-line wiring of gradebot.
func CLI() cmd.Options {
	return cmd.Options{
		Name:              "gradebot",
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (cmd.ConfigCarrier, error) {
			cfg, err := LoadConfig(path)
			if err != nil {
				return nil, err
			}
			return cfg, nil
		},
		Bootstrap: func(ctx context.Context, carrier cmd.ConfigCarrier) (cmd.TelegramApp, error) {
			cfg, ok := carrier.(*Config)
			if !ok {
				return nil, fmt.Errorf("bot: unexpected config type %T", carrier)
			}
			app, err := New(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return app, nil
		},
		Migrate: func(carrier cmd.ConfigCarrier) error {
			cfg, ok := carrier.(*Config)
			if !ok {
				return fmt.Errorf("bot: unexpected config type %T", carrier)
			}
			return Migrate(cfg)
		},
	}
}

// Migrate applies the schema of the configured driver.
func Migrate(cfg *Config) error {
	if err := logger.InitLogger(&cfg.Config); err != nil {
		return err
	}
	defer func() { _ = logger.Shutdown() }()
	return coredatabase.RunMigrations(cfg.Database, migrations.FS)
}

// New bootstraps infrastructure and wires the dispatch pipeline.
func New(ctx context.Context, cfg *Config) (*App, error) {
	res, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:     &cfg.Config,
		Database:   cfg.Database,
		Migrations: migrations.FS,
		Modules: bootstrap.Modules{Seeders: []bootstrap.Seeder{
			bootstrap.SeederFunc(func(ctx context.Context, db *sqlx.DB) error {
				return storage.NewUsers(db).EnsureOperators(ctx, cfg.Telegram.Operators)
			}),
		}},
	})
	if err != nil {
		return nil, err
	}
	app := &App{cfg: cfg, db: res.DB}
	if err := app.wire(); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) wire() error {
	cfg := a.cfg
	bot, err := coretelegram.NewBot(&cfg.Config, a.onError)
	if err != nil {
		return err
	}
	a.bot = bot
	client := coretelegram.NewClient(bot)

	a.records = storage.NewUsers(a.db)
	a.resolver, err = users.NewResolver(a.records, client, cfg.Bot.UsernameCache, cfg.Bot.UsernameTTL)
	if err != nil {
		return err
	}
	gateway := outbound.NewGateway(client, outbound.Options{
		OnUnreachable: a.unreachable,
		Identity:      outbound.IdentityFunc(a.resolver.Cached),
	})

	a.operators = operator.New(cfg.Telegram.Operators, gateway, operator.Options{})
	store := a.sessions()
	a.recovery = recovery.New(store, gateway, a.operators, recovery.Options{SupportHandle: cfg.Bot.SupportHandle})

	limiter := ratelimit.New(cfg.Broadcast.Capacity, cfg.Broadcast.Window())
	a.broadcaster, err = broadcast.New(gateway, limiter, cfg.Broadcast.Workers)
	if err != nil {
		return err
	}

	var grader grading.Grader
	if cfg.Grading.Enabled() {
		g, err := grading.NewCommandGrader(cfg.Grading.Command, cfg.Grading.Timeout)
		if err != nil {
			return err
		}
		grader = g
	}

	a.registry = coretelegram.NewRegistry()
	if err := handlers.RegisterCommands(a.registry); err != nil {
		return err
	}
	flag := admission.NewFlag(cfg.Bot.StartActive)
	blocked := users.NewRegistry(a.records)

	r := router.New(store)
	handlers.New(handlers.Deps{
		Out:       gateway,
		Records:   a.records,
		Blocked:   blocked,
		Broadcast: a.broadcaster,
		Files:     client,
		Operators: a.operators,
		Admission: flag,
		Tasks:     a.recovery,
		Usernames: a.resolver,
		Commands:  a.registry,
		Grader:    grader,
		Workspace: grading.Workspace{Root: cfg.Bot.NotebooksDir},
	}).Register(r)

	a.observer, err = middleware.NewObserver(a.records, a.resolver)
	if err != nil {
		return err
	}
	gates, err := coretelegram.DefaultGates(&cfg.Config, coretelegram.GateDeps{
		Blocked:   blocked,
		Observer:  a.observer,
		Admission: flag,
		Out:       gateway,
	})
	if err != nil {
		return err
	}
	a.dispatcher = dispatch.New(dispatch.Chain(r.Handle, gates...), a.recovery)
	a.replayer = replay.New(client, gateway, a.observer.Gate(), cfg.Replay.BatchLimit)

	logger.Info(logger.Background(), component, "app.wired",
		slog.String("status", "ok"),
		slog.Int("routes", len(r.Routes())),
		slog.Bool("grading", grader != nil),
		slog.String("sessions", cfg.Bot.SessionStore),
	)
	return nil
}

func (a *App) sessions() state.Store {
	if a.cfg.Bot.SessionStore == "memory" {
		return state.NewMemoryStore()
	}
	return state.NewSQLStore(a.db)
}

// TelegramRunOptions implements cmd.TelegramApp.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	if a.bot == nil || a.dispatcher == nil {
		return coretelegram.RunOptions{}, errors.New("bot: app is not wired")
	}
	return coretelegram.RunOptions{
		Config:       &a.cfg.Config,
		Bot:          a.bot,
		Registry:     a.registry,
		Dispatcher:   a.dispatcher,
		Replayer:     a.replayer,
		OnMembership: a.membership,
		OnStart: func(ctx context.Context, _ coretelegram.Runtime) error {
			a.operators.Startup(ctx)
			return nil
		},
		OnStop: func(ctx context.Context, _ coretelegram.Runtime) error {
			a.broadcaster.Close()
			waitCtx, cancel := context.WithTimeout(ctx, backgroundWait)
			defer cancel()
			if err := a.recovery.Wait(waitCtx); err != nil {
				logger.Warn(ctx, component, "tasks.wait", slog.String("status", "fail"), slog.Any("err", err))
			}
			a.operators.Shutdown(ctx)
			return nil
		},
	}, nil
}

// Close releases caches and the database.
func (a *App) Close() error {
	if a.observer != nil {
		a.observer.Close()
	}
	if a.resolver != nil {
		a.resolver.Close()
	}
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// onError receives telebot errors. Poll errors arrive without a context and are
// only logged; anything else is a background fault.
func (a *App) onError(err error, c tele.Context) {
	ctx := logger.Background()
	if c == nil || a.recovery == nil {
		logger.Warn(ctx, "tg.poller", "poll.error", slog.String("status", "fail"), slog.Any("err", err))
		return
	}
	a.recovery.BackgroundFault(ctx, fmt.Errorf("telebot: %w", err))
}

func (a *App) unreachable(ctx context.Context, chatID int64) {
	a.membership(ctx, chatID, false)
}

// membership records whether the bot can reach chatID.
func (a *App) membership(ctx context.Context, chatID int64, reachable bool) {
	err := users.SetBool(ctx, a.records, chatID, users.FieldReachable, reachable)
	logger.Info(ctx, component, "user.reachable",
		slog.String("status", logger.Status(err)),
		slog.Int64("chat_id", chatID),
		slog.Bool("reachable", reachable),
		slog.Any("err", err),
	)
}
