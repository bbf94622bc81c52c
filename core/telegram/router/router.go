// Package router selects exactly one handler per inbound event.
//
// Candidates are tried in priority order: routes bound to the sender's current
// state, then state-agnostic routes, then the fallback. The first match wins.
package router

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/gradebot/core/logger"
	"github.com/m3rciful/gradebot/core/telegram/dispatch"
	"github.com/m3rciful/gradebot/core/telegram/event"
	"github.com/m3rciful/gradebot/core/telegram/state"
)

const component = "tg.router"

type route struct {
	name    string
	state   state.State
	match   Predicate
	handler dispatch.HandlerFunc
}

// Router binds (state, predicate) pairs to handlers.
// Registration happens before dispatch starts; Handle is safe for concurrent use afterwards.
type Router struct {
	store    state.Store
	stateful []route
	always   []route
	fallback *route
}

// New returns a router loading sessions from store.
func New(store state.Store) *Router {
	return &Router{store: store}
}

// On binds h to events matching p while the sender is in st.
// state.None binds to senders with no active flow.
func (r *Router) On(st state.State, name string, p Predicate, h dispatch.HandlerFunc) {
	r.stateful = append(r.stateful, route{name: name, state: st, match: p, handler: h})
}

// Always binds h to events matching p in every state.
func (r *Router) Always(name string, p Predicate, h dispatch.HandlerFunc) {
	r.always = append(r.always, route{name: name, match: p, handler: h})
}

// Fallback sets the catch-all handler.
func (r *Router) Fallback(name string, h dispatch.HandlerFunc) {
	r.fallback = &route{name: name, handler: h}
}

// Routes lists registered route names in priority order.
func (r *Router) Routes() []string {
	out := make([]string, 0, len(r.stateful)+len(r.always)+1)
	for _, rt := range r.stateful {
		out = append(out, rt.name)
	}
	for _, rt := range r.always {
		out = append(out, rt.name)
	}
	if r.fallback != nil {
		out = append(out, r.fallback.name)
	}
	return out
}

// Handle is the innermost handler of the chain.
func (r *Router) Handle(u *dispatch.Update) error {
	if u.Session == nil {
		sess, err := state.Load(u.Context(), r.store, u.Sender())
		if err != nil {
			return fmt.Errorf("router: %w", err)
		}
		u.Session = sess
	}

	rt, ok := r.match(u.Session.State(), u.Event)
	if !ok {
		logger.Warn(u.Context(), component, "route.unmatched",
			slog.String("status", "dropped"),
			slog.String("kind", string(u.Event.Kind())),
			slog.String("state", string(u.Session.State())),
			slog.String("reason", "no_route"),
		)
		return nil
	}

	start := time.Now()
	u.WithContext(logger.WithHandler(u.Context(), rt.name))
	err := rt.handler(u)
	logHandled(u, rt.name, start, err)
	return err
}

func (r *Router) match(st state.State, ev event.Inbound) (route, bool) {
	for _, rt := range r.stateful {
		if rt.state == st && rt.match(ev) {
			return rt, true
		}
	}
	for _, rt := range r.always {
		if rt.match(ev) {
			return rt, true
		}
	}
	if r.fallback != nil {
		return *r.fallback, true
	}
	return route{}, false
}
