package users

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// MemoryRecords is a process-local Records for tests and development.
type MemoryRecords struct {
	mu    sync.RWMutex
	users map[int64]map[Field]string
}

// NewMemoryRecords returns an empty store.
func NewMemoryRecords() *MemoryRecords {
	return &MemoryRecords{users: make(map[int64]map[Field]string)}
}

var defaults = map[Field]string{
	FieldUsername:     "",
	FieldPhone:        "",
	FieldVerified:     "false",
	FieldBlocked:      "false",
	FieldHasReference: "false",
	FieldReachable:    "true",
}

func (m *MemoryRecords) UserExists(_ context.Context, id int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.users[id]
	return ok, nil
}

func (m *MemoryRecords) CreateUser(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; ok {
		return nil
	}
	rec := make(map[Field]string, len(defaults))
	for k, v := range defaults {
		rec[k] = v
	}
	m.users[id] = rec
	return nil
}

func (m *MemoryRecords) GetField(_ context.Context, id int64, field Field) (string, bool, error) {
	if _, known := defaults[field]; !known {
		return "", false, ErrUnknownField
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.users[id]
	if !ok {
		return "", false, nil
	}
	return rec[field], true, nil
}

// SetField creates the user when missing.
func (m *MemoryRecords) SetField(ctx context.Context, id int64, field Field, value string) error {
	if _, known := defaults[field]; !known {
		return ErrUnknownField
	}
	if err := m.CreateUser(ctx, id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id][field] = value
	return nil
}

func (m *MemoryRecords) ListVerifiedUserIDs(context.Context) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []int64
	for id, rec := range m.users {
		if rec[FieldVerified] == "true" {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (m *MemoryRecords) FindIDByHandle(_ context.Context, handle string) (int64, bool, error) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if handle == "" {
		return 0, false, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, rec := range m.users {
		if strings.EqualFold(rec[FieldUsername], handle) {
			return id, true, nil
		}
	}
	return 0, false, nil
}
