package telegram

import (
	"fmt"
	"time"

	coreconfig "github.com/m3rciful/gradebot/core/config"
	"github.com/m3rciful/gradebot/core/telegram/dispatch"
	"github.com/m3rciful/gradebot/core/telegram/event"
	"github.com/m3rciful/gradebot/core/telegram/middleware"
)

// GateDeps are the collaborators of the default gate chain.
type GateDeps struct {
	Blocked   middleware.BlockChecker
	Observer  *middleware.Observer
	Admission middleware.AdmissionReader
	Out       middleware.Sender
	// OnLimited answers throttled updates. Optional.
	OnLimited dispatch.HandlerFunc
}

// DefaultGates builds the gate chain in its fixed order:
// recover, blocked, observe, admission, throttle.
func DefaultGates(cfg *coreconfig.Config, deps GateDeps) ([]dispatch.MiddlewareFunc, error) {
	gates := []dispatch.MiddlewareFunc{middleware.Recover()}
	if deps.Blocked != nil {
		gates = append(gates, middleware.Blocked(deps.Blocked, deps.Out))
	}
	if deps.Observer != nil {
		gates = append(gates, deps.Observer.Gate())
	}
	if deps.Admission != nil {
		gates = append(gates, middleware.Admission(deps.Admission, deps.Out))
	}
	if cfg != nil {
		if interval := time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond; interval > 0 {
			throttle, err := middleware.Throttle(middleware.ThrottleOptions{
				Interval:  interval,
				Exclude:   excludedKinds(cfg.RateLimit.ExcludeUpdates),
				OnLimited: deps.OnLimited,
			})
			if err != nil {
				return nil, fmt.Errorf("telegram: %w", err)
			}
			gates = append(gates, throttle)
		}
	}
	return gates, nil
}

func excludedKinds(names []string) map[event.Kind]struct{} {
	ex := make(map[event.Kind]struct{}, len(names))
	for _, name := range names {
		switch name {
		case coreconfig.UpdateCallback:
			ex[event.KindCallback] = struct{}{}
		case coreconfig.UpdateMessage:
			ex[event.KindMessage] = struct{}{}
		}
	}
	return ex
}
