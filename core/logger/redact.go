package logger

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	tokenRe = regexp.MustCompile(`(bot)?[0-9]{6,}:[A-Za-z0-9_-]{30,}`)
	phoneRe = regexp.MustCompile(`\+[0-9][0-9 ()-]{8,}[0-9]|\b[0-9]{11,15}\b`)
)

// Redact masks bot tokens and phone numbers so payload summaries are safe to ship.
// Phone numbers keep their last two digits for support lookups.
func Redact(s string) string {
	if s == "" {
		return s
	}
	s = tokenRe.ReplaceAllString(s, "bot<redacted>")
	return phoneRe.ReplaceAllStringFunc(s, func(m string) string {
		if len(m) <= 2 {
			return m
		}
		return "<phone:" + m[len(m)-2:] + ">"
	})
}

// Sanitize drops control and format runes except tab and newline.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			return -1
		}
		return r
	}, s)
}

// SanitizeLimit sanitizes and redacts s, then cuts it to max runes.
func SanitizeLimit(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(Redact(Sanitize(s)))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max]) + "…"
}
