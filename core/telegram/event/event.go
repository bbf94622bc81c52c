// Package event defines the inbound events the dispatch core understands.
//
// Inbound is a closed sum: only Message and Callback implement it, and code
// that needs to branch on the kind uses a type switch over those two.
package event

import (
	"strings"
	"time"
	"unicode"
)

// Kind names an inbound variant for logs and predicates.
type Kind string

const (
	KindMessage  Kind = "message"
	KindCallback Kind = "callback"
)

// Meta carries the identity attributes shared by every inbound event.
type Meta struct {
	UpdateID int
	SenderID int64
	ChatID   int64
	// Username is the sender handle as reported with the update, without "@".
	Username string
	At       time.Time
}

// Inbound is an immutable event received from the chat platform.
type Inbound interface {
	Meta() Meta
	Kind() Kind
	inbound()
}

// Document references a file attached to a message. The bytes stay on the platform.
type Document struct {
	FileID   string
	FileName string
	MIME     string
	Size     int64
}

// Contact is a shared phone contact. UserID is 0 when the contact is not a platform user.
type Contact struct {
	UserID int64
	Phone  string
}

// Message is a user-sent message: text, a document, or a contact.
type Message struct {
	Info      Meta
	MessageID int
	Text      string
	Document  *Document
	Contact   *Contact
}

// Callback is a press of an inline keyboard button.
type Callback struct {
	Info Meta
	// ID is the platform callback query id, needed to answer it.
	ID        string
	MessageID int
	// Unique is the button tag; Payload is the data after the tag.
	Unique  string
	Payload string
}

func (m Message) Meta() Meta  { return m.Info }
func (Message) Kind() Kind    { return KindMessage }
func (Message) inbound()      {}
func (c Callback) Meta() Meta { return c.Info }
func (Callback) Kind() Kind   { return KindCallback }
func (Callback) inbound()     {}

// Command splits "/name@bot args" into "/name" and "args" at the first
// whitespace rune. The name keeps its case.
// ok is false for anything that is not a slash command.
func (m Message) Command() (name, args string, ok bool) {
	text := strings.TrimSpace(m.Text)
	if !strings.HasPrefix(text, "/") || len(text) == 1 {
		return "", "", false
	}
	name = text
	if i := strings.IndexFunc(text, unicode.IsSpace); i > 0 {
		name, args = text[:i], text[i:]
	}
	if at := strings.IndexByte(name, '@'); at > 0 {
		name = name[:at]
	}
	return name, strings.TrimSpace(args), true
}

// IsCommand reports whether the message is a slash command.
func (m Message) IsCommand() bool {
	_, _, ok := m.Command()
	return ok
}

// Sender returns the sender id of any inbound event.
func Sender(ev Inbound) int64 {
	if ev == nil {
		return 0
	}
	return ev.Meta().SenderID
}

// Text returns the message text, or "" for callbacks.
func Text(ev Inbound) string {
	if m, ok := ev.(Message); ok {
		return m.Text
	}
	return ""
}
