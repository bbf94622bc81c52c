package outbound

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/m3rciful/gradebot/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

// Class is the outcome taxonomy of an outbound call.
type Class string

const (
	ClassSuccess Class = "ok"
	// ClassPermissionRevoked means the recipient is unreachable, e.g. blocked the bot.
	ClassPermissionRevoked Class = "permission_revoked"
	// ClassInvalidRequest means the platform rejected the payload. Retrying will not help.
	ClassInvalidRequest Class = "invalid_request"
	// ClassTransientNetwork covers timeouts, connection errors, flood waits and 5xx.
	ClassTransientNetwork Class = "transient_network"
)

// ErrInvalidAction is returned by transports for actions they cannot encode.
var ErrInvalidAction = errors.New("outbound: invalid action")

// Failure is the only error type the Gateway returns.
type Failure struct {
	Class Class
	Op    string
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("outbound %s: %s: %v", f.Op, f.Class, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// ClassOf returns the class carried by err, classifying raw errors on the fly.
func ClassOf(err error) Class {
	if err == nil {
		return ClassSuccess
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Class
	}
	return Classify(err)
}

// IsPermissionRevoked reports whether err means the recipient cannot be reached.
func IsPermissionRevoked(err error) bool {
	return ClassOf(err) == ClassPermissionRevoked
}

// Classify maps a transport error onto a Class. Unknown errors count as transient.
func Classify(err error) Class {
	if err == nil {
		return ClassSuccess
	}
	if errors.Is(err, ErrInvalidAction) || errors.Is(err, fs.ErrNotExist) {
		return ClassInvalidRequest
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || netutil.ShouldRetry(err) {
		return ClassTransientNetwork
	}
	var dnsErr *net.DNSError
	var opErr *net.OpError
	var alertErr tls.AlertError
	if errors.As(err, &dnsErr) || errors.As(err, &opErr) || errors.As(err, &alertErr) {
		return ClassTransientNetwork
	}

	switch status := httpStatusFromError(err); {
	case status == http.StatusForbidden:
		return ClassPermissionRevoked
	case status == http.StatusTooManyRequests || status >= 500:
		return ClassTransientNetwork
	case status >= 400:
		return ClassInvalidRequest
	}
	return ClassTransientNetwork
}

func httpStatusFromError(err error) int {
	var floodErr tele.FloodError
	if errors.As(err, &floodErr) {
		return http.StatusTooManyRequests
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var groupErr tele.GroupError
	if errors.As(err, &groupErr) {
		return http.StatusBadRequest
	}

	// telebot formats unknown API errors as "telegram: <description> (<code>)".
	msg := err.Error()
	lastOpen := strings.LastIndex(msg, "(")
	lastClose := strings.LastIndex(msg, ")")
	if lastOpen >= 0 && lastClose > lastOpen+1 {
		if code, convErr := strconv.Atoi(strings.TrimSpace(msg[lastOpen+1 : lastClose])); convErr == nil {
			return code
		}
	}
	return 0
}
