// Package netutil holds the retry policy for Bot API traffic.
package netutil

import (
	"errors"
	"net"
	"net/url"
	"path"
	"strings"
)

// readOnlyMethods are Bot API calls that can be repeated without side effects.
// Sends, edits and answers are never repeated: a retry after a lost response
// would deliver twice.
var readOnlyMethods = map[string]struct{}{
	"getme":          {},
	"getupdates":     {},
	"getchat":        {},
	"getfile":        {},
	"getwebhookinfo": {},
	"getmycommands":  {},
}

// Method extracts the Bot API method from a request URL ("/bot<token>/<method>").
func Method(u *url.URL) string {
	if u == nil {
		return ""
	}
	return strings.ToLower(path.Base(u.Path))
}

// IsReadOnly reports whether the request targets an idempotent Bot API method.
// File downloads ("/file/bot<token>/...") are read-only as well.
func IsReadOnly(u *url.URL) bool {
	if u == nil {
		return false
	}
	if strings.HasPrefix(u.Path, "/file/") {
		return true
	}
	_, ok := readOnlyMethods[Method(u)]
	return ok
}

// ShouldRetry reports whether a network error is transient: a timeout or a
// failed dial while contacting the Bot API.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() || opErr.Op == "dial" {
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil && urlErr.Err != err {
		return ShouldRetry(urlErr.Err)
	}
	return false
}
