package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SQLStore keeps sessions in the conversation_sessions table so flows survive restarts.
// It works with Postgres and SQLite; queries are rebound per driver.
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore wraps an open database that has the conversation_sessions table.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

type sessionRow struct {
	State string `db:"state"`
	Data  string `db:"data"`
}

// GetState reads the session row of userID.
func (s *SQLStore) GetState(ctx context.Context, userID int64) (State, Data, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT state, data FROM conversation_sessions WHERE user_id = ?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return None, nil, nil
	}
	if err != nil {
		return None, nil, fmt.Errorf("get session: %w", err)
	}
	data, err := decodeData(row.Data)
	if err != nil {
		return None, nil, fmt.Errorf("get session %d: %w", userID, err)
	}
	return State(row.State), data, nil
}

// SetState upserts the step and keeps the stored bag.
func (s *SQLStore) SetState(ctx context.Context, userID int64, st State) error {
	if st == None {
		return s.Clear(ctx, userID)
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO conversation_sessions (user_id, state, data, updated_at)
		VALUES (?, ?, '{}', CURRENT_TIMESTAMP)
		ON CONFLICT (user_id) DO UPDATE SET state = excluded.state, updated_at = CURRENT_TIMESTAMP`),
		userID, string(st))
	if err != nil {
		return fmt.Errorf("set state: %w", err)
	}
	return nil
}

// SetData upserts the bag and keeps the stored step.
func (s *SQLStore) SetData(ctx context.Context, userID int64, data Data) error {
	raw, err := encodeData(data)
	if err != nil {
		return fmt.Errorf("set data %d: %w", userID, err)
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO conversation_sessions (user_id, state, data, updated_at)
		VALUES (?, '', ?, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`),
		userID, raw)
	if err != nil {
		return fmt.Errorf("set data: %w", err)
	}
	return nil
}

// Clear deletes the session row. Deleting a missing row is not an error.
func (s *SQLStore) Clear(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM conversation_sessions WHERE user_id = ?`), userID); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func encodeData(d Data) (string, error) {
	if len(d) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(d)
	return string(raw), err
}

func decodeData(raw string) (Data, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	var d Data
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, err
	}
	return d, nil
}
