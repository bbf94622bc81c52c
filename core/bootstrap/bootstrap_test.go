package bootstrap

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/gradebot/core/config"
	coredatabase "github.com/m3rciful/gradebot/core/database"
	"github.com/m3rciful/gradebot/migrations"
)

func sqliteOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		Config:     &coreconfig.Config{},
		Database:   coredatabase.Config{Driver: coredatabase.DriverSQLite, Path: filepath.Join(t.TempDir(), "bot.db")},
		Migrations: migrations.FS,
		LoggerInit: func(*coreconfig.Config) error { return nil },
	}
}

func TestRunMigratesConnectsAndSeeds(t *testing.T) {
	opts := sqliteOptions(t)
	var seeded int
	opts.Modules.Seeders = []Seeder{SeederFunc(func(ctx context.Context, db *sqlx.DB) error {
		seeded++
		_, err := db.ExecContext(ctx, db.Rebind(`INSERT INTO users (chat_id, username) VALUES (?, ?)`), 1, "admin")
		return err
	})}

	res, err := Run(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.DB.Close() })
	assert.Equal(t, 1, seeded)

	var name string
	require.NoError(t, res.DB.Get(&name, `SELECT username FROM users WHERE chat_id = 1`))
	assert.Equal(t, "admin", name)
}

func TestRunStopsOnSeederError(t *testing.T) {
	opts := sqliteOptions(t)
	boom := errors.New("boom")
	opts.Modules.Seeders = []Seeder{SeederFunc(func(context.Context, *sqlx.DB) error { return boom })}

	_, err := Run(context.Background(), opts)
	require.ErrorIs(t, err, boom)
}

func TestRunRequiresConfig(t *testing.T) {
	_, err := Run(context.Background(), Options{})
	require.Error(t, err)
}
