package outbound

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/gradebot/core/logger"
)

const component = "tg.gateway"

// Transport performs one platform call. Implementations return raw SDK errors.
type Transport interface {
	Do(ctx context.Context, a Action) (Receipt, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, a Action) (Receipt, error)

// Do calls f.
func (f TransportFunc) Do(ctx context.Context, a Action) (Receipt, error) { return f(ctx, a) }

// Identity resolves a chat id to a display username for log correlation.
// It must not block on the network for long; cached lookups are expected.
type Identity interface {
	Username(ctx context.Context, chatID int64) string
}

// IdentityFunc adapts a function to Identity.
type IdentityFunc func(ctx context.Context, chatID int64) string

// Username calls f.
func (f IdentityFunc) Username(ctx context.Context, chatID int64) string { return f(ctx, chatID) }

// Options tune the gateway.
type Options struct {
	// OnUnreachable runs after a call failed with ClassPermissionRevoked.
	OnUnreachable func(ctx context.Context, chatID int64)
	Identity      Identity
	// PayloadLimit caps the logged payload summary in runes. Defaults to 256.
	PayloadLimit int
}

// Gateway wraps every outbound call with classification and logging.
type Gateway struct {
	transport Transport
	opts      Options
}

// NewGateway returns a gateway over t.
func NewGateway(t Transport, opts Options) *Gateway {
	if opts.PayloadLimit <= 0 {
		opts.PayloadLimit = 256
	}
	return &Gateway{transport: t, opts: opts}
}

// Send performs a and returns its receipt. Any error is a *Failure.
// Exactly one log record is written per call.
func (g *Gateway) Send(ctx context.Context, a Action) (Receipt, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	if a == nil {
		err := &Failure{Class: ClassInvalidRequest, Op: "nil", Err: ErrInvalidAction}
		g.log(ctx, nil, Receipt{}, err, start)
		return Receipt{}, err
	}

	receipt, rawErr := g.transport.Do(ctx, a)
	var err error
	if rawErr != nil {
		err = &Failure{Class: Classify(rawErr), Op: a.Kind(), Err: rawErr}
	}
	g.log(ctx, a, receipt, err, start)

	if ClassOf(err) == ClassPermissionRevoked && g.opts.OnUnreachable != nil {
		g.opts.OnUnreachable(ctx, ChatOf(a))
	}
	if err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

// Deliver is Send for callers that only care whether the call went through.
func (g *Gateway) Deliver(ctx context.Context, a Action) bool {
	_, err := g.Send(ctx, a)
	return err == nil
}

func (g *Gateway) log(ctx context.Context, a Action, receipt Receipt, err error, start time.Time) {
	class := ClassOf(err)
	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.String("direction", logger.DirectionOut),
		slog.String("class", string(class)),
		slog.Duration("duration", logger.Took(start)),
	}
	if a != nil {
		chatID := ChatOf(a)
		attrs = append(attrs,
			slog.String("action", a.Kind()),
			slog.String("tag", string(TagOf(a))),
			slog.Int64("chat_id", chatID),
		)
		if g.opts.Identity != nil && chatID != 0 {
			attrs = append(attrs, slog.String("username", g.opts.Identity.Username(ctx, chatID)))
		}
		if s := Summary(a); s != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(s, g.opts.PayloadLimit)))
		}
	}
	if receipt.MessageID != 0 {
		attrs = append(attrs, slog.Int("message_id", receipt.MessageID))
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", logger.SanitizeLimit(fmt.Sprint(errorCause(err)), 512)))
	}

	level := slog.LevelInfo
	switch class {
	case ClassPermissionRevoked, ClassTransientNetwork:
		level = slog.LevelWarn
	case ClassInvalidRequest:
		level = slog.LevelError
	}
	logger.Event(ctx, component, level, "send", attrs...)
}

func errorCause(err error) error {
	if f, ok := err.(*Failure); ok && f.Err != nil {
		return f.Err
	}
	return err
}
