// Package storage is the sqlx-backed user-record repository.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/gradebot/core/users"
)

// columns whitelists the fields that map onto users table columns.
var columns = map[users.Field]bool{
	users.FieldUsername:     false,
	users.FieldPhone:        false,
	users.FieldVerified:     true,
	users.FieldBlocked:      true,
	users.FieldHasReference: true,
	users.FieldReachable:    true,
}

// Users implements users.Records over the users table.
type Users struct {
	db *sqlx.DB
}

// NewUsers wraps an open database with the users table.
func NewUsers(db *sqlx.DB) *Users {
	return &Users{db: db}
}

var _ users.Records = (*Users)(nil)

func (u *Users) UserExists(ctx context.Context, id int64) (bool, error) {
	var n int
	if err := u.db.GetContext(ctx, &n, u.db.Rebind(`SELECT COUNT(1) FROM users WHERE chat_id = ?`), id); err != nil {
		return false, fmt.Errorf("user exists %d: %w", id, err)
	}
	return n > 0, nil
}

// CreateUser inserts a record with default values. An existing record is kept.
func (u *Users) CreateUser(ctx context.Context, id int64) error {
	_, err := u.db.ExecContext(ctx, u.db.Rebind(`INSERT INTO users (chat_id) VALUES (?) ON CONFLICT (chat_id) DO NOTHING`), id)
	if err != nil {
		return fmt.Errorf("create user %d: %w", id, err)
	}
	return nil
}

func (u *Users) GetField(ctx context.Context, id int64, field users.Field) (string, bool, error) {
	boolean, known := columns[field]
	if !known {
		return "", false, fmt.Errorf("%w: %s", users.ErrUnknownField, field)
	}
	query := u.db.Rebind(`SELECT ` + string(field) + ` FROM users WHERE chat_id = ?`)

	var (
		err   error
		value string
	)
	if boolean {
		var b bool
		err = u.db.GetContext(ctx, &b, query, id)
		value = strconv.FormatBool(b)
	} else {
		err = u.db.GetContext(ctx, &value, query, id)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s of %d: %w", field, id, err)
	}
	return value, true, nil
}

// SetField upserts one column, creating the record when missing.
func (u *Users) SetField(ctx context.Context, id int64, field users.Field, value string) error {
	boolean, known := columns[field]
	if !known {
		return fmt.Errorf("%w: %s", users.ErrUnknownField, field)
	}
	var arg any = value
	if boolean {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("set %s of %d: %w", field, id, err)
		}
		arg = b
	}
	col := string(field)
	_, err := u.db.ExecContext(ctx, u.db.Rebind(`
		INSERT INTO users (chat_id, `+col+`) VALUES (?, ?)
		ON CONFLICT (chat_id) DO UPDATE SET `+col+` = excluded.`+col+`, updated_at = CURRENT_TIMESTAMP`),
		id, arg)
	if err != nil {
		return fmt.Errorf("set %s of %d: %w", field, id, err)
	}
	return nil
}

func (u *Users) ListVerifiedUserIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := u.db.SelectContext(ctx, &ids, u.db.Rebind(`SELECT chat_id FROM users WHERE verified = ? ORDER BY chat_id`), true); err != nil {
		return nil, fmt.Errorf("list verified: %w", err)
	}
	return ids, nil
}

func (u *Users) FindIDByHandle(ctx context.Context, handle string) (int64, bool, error) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if handle == "" {
		return 0, false, nil
	}
	var id int64
	err := u.db.GetContext(ctx, &id, u.db.Rebind(`SELECT chat_id FROM users WHERE LOWER(username) = LOWER(?) ORDER BY chat_id LIMIT 1`), handle)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("find %q: %w", handle, err)
	}
	return id, true, nil
}

// EnsureOperators creates records for the privileged ids so they can be addressed by handle.
func (u *Users) EnsureOperators(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if err := u.CreateUser(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
