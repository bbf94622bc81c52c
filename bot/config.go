package bot

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	coreconfig "github.com/m3rciful/gradebot/core/config"
	coredatabase "github.com/m3rciful/gradebot/core/database"
)

// Settings is the application section of the config file.
type Settings struct {
	// StartActive admits client flows right after startup.
	StartActive bool `yaml:"start_active" envconfig:"BOT_START_ACTIVE"`
	// SupportHandle is appended to fault notices as "@handle".
	SupportHandle string `yaml:"support_handle" envconfig:"BOT_SUPPORT_HANDLE"`
	NotebooksDir  string `yaml:"notebooks_dir" envconfig:"BOT_NOTEBOOKS_DIR"`
	// UsernameTTL bounds how long a resolved handle is trusted.
	UsernameTTL   time.Duration `yaml:"username_ttl" envconfig:"BOT_USERNAME_TTL"`
	UsernameCache int           `yaml:"username_cache" envconfig:"BOT_USERNAME_CACHE"`
	// SessionStore is "sql" (default) or "memory".
	SessionStore string `yaml:"session_store" envconfig:"BOT_SESSION_STORE"`
}

// GradingConfig configures the external grader process.
type GradingConfig struct {
	// Command is argv; the reference and student notebook paths are appended.
	Command []string      `yaml:"command" envconfig:"GRADING_COMMAND"`
	Timeout time.Duration `yaml:"timeout" envconfig:"GRADING_TIMEOUT"`
}

// Enabled reports whether a grader command is configured.
func (g GradingConfig) Enabled() bool { return len(g.Command) > 0 }

// Config is the full gradebot configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
	Bot      Settings            `yaml:"bot"`
	Grading  GradingConfig       `yaml:"grading"`
}

// CoreConfig exposes the embedded core section.
func (c *Config) CoreConfig() *coreconfig.Config { return &c.Config }

// LoadConfig reads path, overlays the environment, applies defaults and validates.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.LoadInto(path, &cfg); err != nil {
		return nil, err
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Bot.NotebooksDir == "" {
		c.Bot.NotebooksDir = "notebooks"
	}
	if c.Bot.UsernameTTL <= 0 {
		c.Bot.UsernameTTL = 6 * time.Hour
	}
	if c.Bot.UsernameCache <= 0 {
		c.Bot.UsernameCache = 10_000
	}
	c.Bot.SupportHandle = strings.TrimPrefix(strings.TrimSpace(c.Bot.SupportHandle), "@")
	c.Bot.SessionStore = strings.ToLower(strings.TrimSpace(c.Bot.SessionStore))
	if c.Bot.SessionStore == "" {
		c.Bot.SessionStore = "sql"
	}
	if c.Grading.Timeout <= 0 {
		c.Grading.Timeout = 2 * time.Minute
	}
	if c.Database.Driver == "" {
		c.Database.Driver = coredatabase.DriverPostgres
	}
}

// Validate checks the application sections. The core section is checked by Normalize.
func (c *Config) Validate() error {
	sqlite := c.Database.DriverName() == coredatabase.DriverSQLite
	if err := validation.ValidateStruct(&c.Database,
		validation.Field(&c.Database.Driver, validation.In(coredatabase.DriverPostgres, coredatabase.DriverSQLite, "pq", "postgresql", "sqlite3")),
		validation.Field(&c.Database.Path, validation.Required.When(sqlite)),
		validation.Field(&c.Database.Host, validation.Required.When(!sqlite)),
		validation.Field(&c.Database.Name, validation.Required.When(!sqlite)),
		validation.Field(&c.Database.User, validation.Required.When(!sqlite)),
	); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := validation.ValidateStruct(&c.Bot,
		validation.Field(&c.Bot.NotebooksDir, validation.Required),
		validation.Field(&c.Bot.UsernameTTL, validation.Min(time.Second)),
		validation.Field(&c.Bot.SessionStore, validation.In("sql", "memory")),
	); err != nil {
		return fmt.Errorf("bot: %w", err)
	}
	if err := validation.ValidateStruct(&c.Grading,
		validation.Field(&c.Grading.Timeout, validation.Min(time.Second)),
	); err != nil {
		return fmt.Errorf("grading: %w", err)
	}
	if err := validation.ValidateStruct(&c.Telegram,
		validation.Field(&c.Telegram.Operators, validation.Required),
	); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return validation.ValidateStruct(&c.Broadcast,
		validation.Field(&c.Broadcast.Capacity, validation.Min(1)),
		validation.Field(&c.Broadcast.WindowMS, validation.Min(1)),
	)
}
