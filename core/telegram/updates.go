package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/gradebot/core/telegram/event"
)

// FromUpdate converts a raw update into an inbound event.
// ok is false for update kinds the dispatch core does not handle.
func FromUpdate(upd *tele.Update) (event.Inbound, bool) {
	if upd == nil {
		return nil, false
	}
	switch {
	case upd.Message != nil:
		return fromMessage(upd.ID, upd.Message)
	case upd.Callback != nil:
		return fromCallback(upd.ID, upd.Callback)
	}
	return nil, false
}

func fromMessage(updateID int, m *tele.Message) (event.Inbound, bool) {
	if m.Sender == nil || m.Chat == nil {
		return nil, false
	}
	ev := event.Message{
		Info:      meta(updateID, m.Sender, m.Chat.ID, m.Time()),
		MessageID: m.ID,
		Text:      m.Text,
	}
	if m.Document != nil {
		ev.Document = &event.Document{
			FileID:   m.Document.FileID,
			FileName: m.Document.FileName,
			MIME:     m.Document.MIME,
			Size:     int64(m.Document.FileSize),
		}
		ev.Text = m.Caption
	}
	if m.Contact != nil {
		ev.Contact = &event.Contact{UserID: m.Contact.UserID, Phone: m.Contact.PhoneNumber}
	}
	return ev, true
}

func fromCallback(updateID int, cb *tele.Callback) (event.Inbound, bool) {
	if cb.Sender == nil {
		return nil, false
	}
	chatID := cb.Sender.ID
	messageID := 0
	at := time.Now()
	if cb.Message != nil {
		messageID = cb.Message.ID
		if cb.Message.Chat != nil {
			chatID = cb.Message.Chat.ID
		}
	}
	unique, payload := ParseCallbackData(cb.Data)
	if cb.Unique != "" {
		unique = cb.Unique
	}
	return event.Callback{
		Info:      meta(updateID, cb.Sender, chatID, at),
		ID:        cb.ID,
		MessageID: messageID,
		Unique:    unique,
		Payload:   payload,
	}, true
}

func meta(updateID int, sender *tele.User, chatID int64, at time.Time) event.Meta {
	return event.Meta{
		UpdateID: updateID,
		SenderID: sender.ID,
		ChatID:   chatID,
		Username: sender.Username,
		At:       at,
	}
}

// ParseCallbackData splits telebot's "\f<unique>|<payload>" button data.
// Data without the "\f" marker is returned as payload with an empty unique.
func ParseCallbackData(raw string) (unique, payload string) {
	if !strings.HasPrefix(raw, "\f") {
		return "", raw
	}
	unique, payload, _ = strings.Cut(raw[1:], "|")
	return strings.TrimSpace(unique), payload
}

// ActionPayload splits an "<action>|<id>" callback payload.
func ActionPayload(payload string) (action string, id int64, err error) {
	action, raw, ok := strings.Cut(payload, "|")
	if !ok {
		return "", 0, fmt.Errorf("telegram: payload %q is not action|id", payload)
	}
	id, err = strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("telegram: payload %q: %w", payload, err)
	}
	return action, id, nil
}
