// Package state keeps the per-user conversation state: the active flow step
// and a small string data bag scoped to that flow.
//
// Stores do no locking across users beyond what their backend needs; callers
// must not process two events of the same user concurrently.
package state
