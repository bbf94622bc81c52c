package state

import (
	"context"
	"maps"
	"strconv"
	"strings"
)

// State identifies a flow step, formatted "<flow>.<step>".
type State string

// None means no active flow.
const None State = ""

// Flow returns the flow name part of s.
func (s State) Flow() string {
	name, _, _ := strings.Cut(string(s), ".")
	return name
}

// Data is the flow-scoped key/value bag. It is cleared when the flow exits.
type Data map[string]string

// Clone returns an independent copy; nil stays nil.
func (d Data) Clone() Data {
	if d == nil {
		return nil
	}
	return maps.Clone(d)
}

// Int64 parses the value at key.
func (d Data) Int64(key string) (int64, bool) {
	v, ok := d[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	return n, err == nil
}

// Flow is a named set of mutually exclusive steps.
type Flow struct {
	name  string
	steps map[State]struct{}
}

// NewFlow declares a flow and its steps.
func NewFlow(name string, steps ...string) Flow {
	f := Flow{name: name, steps: make(map[State]struct{}, len(steps))}
	for _, s := range steps {
		f.steps[State(name+"."+s)] = struct{}{}
	}
	return f
}

// Name returns the flow name.
func (f Flow) Name() string { return f.name }

// Step returns the state for step. It panics on undeclared steps, which are programming errors.
func (f Flow) Step(step string) State {
	st := State(f.name + "." + step)
	if _, ok := f.steps[st]; !ok {
		panic("state: flow " + f.name + " has no step " + step)
	}
	return st
}

// Has reports whether st belongs to the flow.
func (f Flow) Has(st State) bool {
	_, ok := f.steps[st]
	return ok
}

// Store persists sessions keyed by user id.
type Store interface {
	// GetState returns None and a nil bag for unknown users.
	GetState(ctx context.Context, userID int64) (State, Data, error)
	// SetState moves the user to st. Setting None is the same as Clear.
	SetState(ctx context.Context, userID int64, st State) error
	// SetData replaces the data bag.
	SetData(ctx context.Context, userID int64, data Data) error
	// Clear resets to None with an empty bag. It is idempotent.
	Clear(ctx context.Context, userID int64) error
}
