// Package middleware holds the gates every inbound event passes before the router.
//
// Dispatch order is Recover, Blocked, Observe, Admission and the optional Throttle.
// A gate that returns without calling next drops the event; gates never touch sessions.
package middleware

import (
	"context"

	"github.com/m3rciful/gradebot/core/telegram/outbound"
)

const component = "tg.middleware"

// Sender is the outbound side a gate may use for its single reply.
type Sender interface {
	Send(ctx context.Context, a outbound.Action) (outbound.Receipt, error)
}
