package state

import (
	"context"
	"fmt"
)

// Session is the handle a handler gets for the sender of the current event.
// It caches what was loaded and writes through to the Store.
type Session struct {
	store  Store
	userID int64
	state  State
	data   Data
}

// Load reads the session of userID.
func Load(ctx context.Context, store Store, userID int64) (*Session, error) {
	st, data, err := store.GetState(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("state: load %d: %w", userID, err)
	}
	return &Session{store: store, userID: userID, state: st, data: data}, nil
}

// UserID returns the owner of the session.
func (s *Session) UserID() int64 { return s.userID }

// State returns the current step.
func (s *Session) State() State { return s.state }

// Active reports whether a flow is in progress.
func (s *Session) Active() bool { return s.state != None }

// Get returns a value from the data bag.
func (s *Session) Get(key string) string { return s.data[key] }

// Data returns a copy of the data bag.
func (s *Session) Data() Data { return s.data.Clone() }

// Enter moves to st and replaces the data bag in one go.
func (s *Session) Enter(ctx context.Context, st State, data Data) error {
	if st == None {
		return s.Clear(ctx)
	}
	if err := s.store.SetState(ctx, s.userID, st); err != nil {
		return err
	}
	s.state = st
	if data == nil && s.data == nil {
		return nil
	}
	if err := s.store.SetData(ctx, s.userID, data); err != nil {
		return err
	}
	s.data = data.Clone()
	return nil
}

// Set moves to st and keeps the data bag.
func (s *Session) Set(ctx context.Context, st State) error {
	if st == None {
		return s.Clear(ctx)
	}
	if err := s.store.SetState(ctx, s.userID, st); err != nil {
		return err
	}
	s.state = st
	return nil
}

// Put stores one key in the data bag.
func (s *Session) Put(ctx context.Context, key, value string) error {
	next := s.data.Clone()
	if next == nil {
		next = Data{}
	}
	next[key] = value
	if err := s.store.SetData(ctx, s.userID, next); err != nil {
		return err
	}
	s.data = next
	return nil
}

// Clear ends the flow.
func (s *Session) Clear(ctx context.Context) error {
	if err := s.store.Clear(ctx, s.userID); err != nil {
		return err
	}
	s.state, s.data = None, nil
	return nil
}
