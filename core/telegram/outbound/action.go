// Package outbound is the single exit for calls to the chat platform.
//
// Actions are a closed sum. The Gateway classifies every failure and writes
// one log line per call, so handlers only see a Receipt or a *Failure.
package outbound

// Tag is a free-form label used only for logging ("callback", "user-error", ...).
type Tag string

const (
	TagNone          Tag = ""
	TagCallback      Tag = "callback"
	TagDocument      Tag = "document"
	TagUserError     Tag = "user-error"
	TagPendingReplay Tag = "pending-replay"
	TagZeroMessage   Tag = "zero-message"
	TagBroadcast     Tag = "broadcast"
	TagOperator      Tag = "operator"
	TagFault         Tag = "fault"
)

// Envelope holds the fields shared by every action.
type Envelope struct {
	ChatID int64
	Tag    Tag
}

// Action is one outbound platform call.
type Action interface {
	envelope() Envelope
	// Kind names the variant in logs.
	Kind() string
}

// TextMessage sends text to a chat.
type TextMessage struct {
	Envelope
	Text     string
	Keyboard Keyboard
}

// Document uploads a local file to a chat.
type Document struct {
	Envelope
	Path     string
	FileName string
	Caption  string
	Keyboard Keyboard
}

// EditMessage replaces the text (and markup) of a sent message.
type EditMessage struct {
	Envelope
	MessageID int
	Text      string
	Keyboard  Keyboard
}

// EditMarkup replaces only the inline keyboard. A nil Keyboard strips it.
type EditMarkup struct {
	Envelope
	MessageID int
	Keyboard  Keyboard
}

// DeleteMessage deletes a sent message.
type DeleteMessage struct {
	Envelope
	MessageID int
}

// AnswerCallback acknowledges a button press, optionally with a toast text.
type AnswerCallback struct {
	Envelope
	CallbackID string
	Text       string
}

func (a TextMessage) envelope() Envelope    { return a.Envelope }
func (a Document) envelope() Envelope       { return a.Envelope }
func (a EditMessage) envelope() Envelope    { return a.Envelope }
func (a EditMarkup) envelope() Envelope     { return a.Envelope }
func (a DeleteMessage) envelope() Envelope  { return a.Envelope }
func (a AnswerCallback) envelope() Envelope { return a.Envelope }

func (TextMessage) Kind() string    { return "send_text" }
func (Document) Kind() string       { return "send_document" }
func (EditMessage) Kind() string    { return "edit_text" }
func (EditMarkup) Kind() string     { return "edit_markup" }
func (DeleteMessage) Kind() string  { return "delete" }
func (AnswerCallback) Kind() string { return "answer_callback" }

// Text is a shorthand for a plain TextMessage.
func Text(chatID int64, text string, tag Tag) TextMessage {
	return TextMessage{Envelope: Envelope{ChatID: chatID, Tag: tag}, Text: text}
}

// ChatOf returns the destination chat of a.
func ChatOf(a Action) int64 {
	if a == nil {
		return 0
	}
	return a.envelope().ChatID
}

// TagOf returns the observability tag of a.
func TagOf(a Action) Tag {
	if a == nil {
		return TagNone
	}
	return a.envelope().Tag
}

// Summary renders the payload part of a for logs. The gateway redacts and cuts it.
func Summary(a Action) string {
	switch v := a.(type) {
	case TextMessage:
		return v.Text
	case Document:
		if v.Caption != "" {
			return v.FileName + ": " + v.Caption
		}
		return v.FileName
	case EditMessage:
		return v.Text
	case EditMarkup:
		if v.Keyboard == nil {
			return "<strip markup>"
		}
		return "<markup>"
	case DeleteMessage:
		return ""
	case AnswerCallback:
		return v.Text
	}
	return ""
}

// Receipt reports what the platform returned for a successful call.
type Receipt struct {
	ChatID    int64
	MessageID int
}
