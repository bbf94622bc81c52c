package router

import (
	"path/filepath"
	"strings"

	"github.com/m3rciful/gradebot/core/telegram/event"
)

// Predicate matches the shape of an event. Matching is exact; there is no fuzzy matching.
type Predicate func(ev event.Inbound) bool

// Any matches every event.
func Any() Predicate {
	return func(event.Inbound) bool { return true }
}

// All matches when every predicate matches.
func All(ps ...Predicate) Predicate {
	return func(ev event.Inbound) bool {
		for _, p := range ps {
			if p != nil && !p(ev) {
				return false
			}
		}
		return true
	}
}

// Not inverts p.
func Not(p Predicate) Predicate {
	return func(ev event.Inbound) bool { return !p(ev) }
}

// Command matches a slash command by exact name ("/start"). The "@bot" suffix is ignored.
func Command(names ...string) Predicate {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return func(ev event.Inbound) bool {
		m, ok := ev.(event.Message)
		if !ok {
			return false
		}
		name, _, ok := m.Command()
		if !ok {
			return false
		}
		_, hit := set[name]
		return hit
	}
}

// Text matches a non-command message whose text equals one of labels.
func Text(labels ...string) Predicate {
	return func(ev event.Inbound) bool {
		m, ok := ev.(event.Message)
		if !ok || m.IsCommand() {
			return false
		}
		for _, l := range labels {
			if m.Text == l {
				return true
			}
		}
		return false
	}
}

// Input matches any message that is not a slash command: text, document or contact.
func Input() Predicate {
	return func(ev event.Inbound) bool {
		m, ok := ev.(event.Message)
		return ok && !m.IsCommand()
	}
}

// PlainText matches a non-empty non-command text message.
func PlainText() Predicate {
	return func(ev event.Inbound) bool {
		m, ok := ev.(event.Message)
		return ok && !m.IsCommand() && m.Document == nil && m.Contact == nil && strings.TrimSpace(m.Text) != ""
	}
}

// DocumentExt matches a message carrying a document with the extension ext (".ipynb").
func DocumentExt(ext string) Predicate {
	ext = strings.ToLower(ext)
	return func(ev event.Inbound) bool {
		m, ok := ev.(event.Message)
		if !ok || m.Document == nil {
			return false
		}
		return strings.ToLower(filepath.Ext(m.Document.FileName)) == ext
	}
}

// Contact matches a message carrying a shared contact.
func Contact() Predicate {
	return func(ev event.Inbound) bool {
		m, ok := ev.(event.Message)
		return ok && m.Contact != nil
	}
}

// Callback matches button presses whose tag equals unique.
func Callback(unique string) Predicate {
	return func(ev event.Inbound) bool {
		cb, ok := ev.(event.Callback)
		return ok && cb.Unique == unique
	}
}

// AnyCallback matches every button press.
func AnyCallback() Predicate {
	return func(ev event.Inbound) bool {
		_, ok := ev.(event.Callback)
		return ok
	}
}

// SenderIn matches events whose sender satisfies allowed.
func SenderIn(allowed func(id int64) bool) Predicate {
	return func(ev event.Inbound) bool {
		return allowed != nil && allowed(event.Sender(ev))
	}
}
