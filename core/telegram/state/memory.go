package state

import (
	"context"
	"sync"
)

type memoryRecord struct {
	state State
	data  Data
}

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]memoryRecord
}

// NewMemoryStore returns a process-local Store for tests and development.
func NewMemoryStore() Store {
	return &memoryStore{sessions: make(map[int64]memoryRecord)}
}

// GetState returns the stored step and a copy of the bag.
func (m *memoryStore) GetState(_ context.Context, userID int64) (State, Data, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[userID]
	if !ok {
		return None, nil, nil
	}
	return rec.state, rec.data.Clone(), nil
}

// SetState updates the step, creating the session if needed.
func (m *memoryStore) SetState(ctx context.Context, userID int64, st State) error {
	if st == None {
		return m.Clear(ctx, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.sessions[userID]
	rec.state = st
	m.sessions[userID] = rec
	return nil
}

// SetData replaces the bag, creating the session if needed.
func (m *memoryStore) SetData(_ context.Context, userID int64, data Data) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.sessions[userID]
	rec.data = data.Clone()
	m.sessions[userID] = rec
	return nil
}

// Clear drops the session.
func (m *memoryStore) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}
