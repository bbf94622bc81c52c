package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coredatabase "github.com/m3rciful/gradebot/core/database"
	"github.com/m3rciful/gradebot/core/users"
	"github.com/m3rciful/gradebot/migrations"
)

func newUsers(t *testing.T) *Users {
	t.Helper()
	cfg := coredatabase.Config{Driver: coredatabase.DriverSQLite, Path: filepath.Join(t.TempDir(), "users.db")}
	require.NoError(t, coredatabase.RunMigrations(cfg, migrations.FS))
	db, err := coredatabase.Connect(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewUsers(db)
}

func TestUsersDefaults(t *testing.T) {
	ctx := context.Background()
	repo := newUsers(t)

	ok, err := repo.UserExists(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)

	_, found, err := repo.GetField(ctx, 7, users.FieldVerified)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, repo.CreateUser(ctx, 7))
	require.NoError(t, repo.CreateUser(ctx, 7))

	v, found, err := repo.GetField(ctx, 7, users.FieldVerified)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "false", v)

	v, _, err = repo.GetField(ctx, 7, users.FieldReachable)
	require.NoError(t, err)
	assert.Equal(t, "true", v)
}

func TestUsersSetFieldUpserts(t *testing.T) {
	ctx := context.Background()
	repo := newUsers(t)

	require.NoError(t, repo.SetField(ctx, 9, users.FieldUsername, "Alice"))
	require.NoError(t, repo.SetField(ctx, 9, users.FieldVerified, "true"))
	require.NoError(t, repo.SetField(ctx, 9, users.FieldPhone, "+100"))

	v, _, err := repo.GetField(ctx, 9, users.FieldUsername)
	require.NoError(t, err)
	assert.Equal(t, "Alice", v)
	verified, err := users.Bool(ctx, repo, 9, users.FieldVerified)
	require.NoError(t, err)
	assert.True(t, verified)

	id, ok, err := repo.FindIDByHandle(ctx, "@alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(9), id)

	_, ok, err = repo.FindIDByHandle(ctx, "@bob")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUsersRejectsUnknownField(t *testing.T) {
	ctx := context.Background()
	repo := newUsers(t)

	err := repo.SetField(ctx, 1, users.Field("chat_id; DROP TABLE users"), "x")
	require.ErrorIs(t, err, users.ErrUnknownField)
	_, _, err = repo.GetField(ctx, 1, users.Field("created_at"))
	require.ErrorIs(t, err, users.ErrUnknownField)
	assert.Error(t, repo.SetField(ctx, 1, users.FieldBlocked, "maybe"))
}

func TestUsersListVerified(t *testing.T) {
	ctx := context.Background()
	repo := newUsers(t)

	for _, id := range []int64{3, 1, 2} {
		require.NoError(t, repo.SetField(ctx, id, users.FieldVerified, "true"))
	}
	require.NoError(t, repo.CreateUser(ctx, 4))

	ids, err := repo.ListVerifiedUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)
}

func TestUsersWithBlockedRegistry(t *testing.T) {
	ctx := context.Background()
	repo := newUsers(t)
	reg := users.NewRegistry(repo)

	require.NoError(t, reg.Block(ctx, 5))
	blocked, err := reg.IsBlocked(ctx, 5)
	require.NoError(t, err)
	assert.True(t, blocked)

	require.NoError(t, reg.Unblock(ctx, 5))
	blocked, err = reg.IsBlocked(ctx, 5)
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestEnsureOperators(t *testing.T) {
	ctx := context.Background()
	repo := newUsers(t)
	require.NoError(t, repo.EnsureOperators(ctx, []int64{10, 11}))
	for _, id := range []int64{10, 11} {
		ok, err := repo.UserExists(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}
