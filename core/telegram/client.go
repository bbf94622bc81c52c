package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/gradebot/core/telegram/event"
	"github.com/m3rciful/gradebot/core/telegram/outbound"
	"github.com/m3rciful/gradebot/core/telegram/replay"
)

// Client adapts a telebot bot to the transport interfaces of the core:
// outbound.Transport, replay.Source and the username lookup.
type Client struct {
	bot *tele.Bot
}

// NewClient wraps bot.
func NewClient(bot *tele.Bot) *Client {
	return &Client{bot: bot}
}

// Bot exposes the underlying telebot instance.
func (c *Client) Bot() *tele.Bot { return c.bot }

type recipient int64

func (r recipient) Recipient() string { return strconv.FormatInt(int64(r), 10) }

func editable(chatID int64, messageID int) tele.Editable {
	return &tele.Message{ID: messageID, Chat: &tele.Chat{ID: chatID}}
}

// Do performs a single platform call for a.
func (c *Client) Do(ctx context.Context, a outbound.Action) (outbound.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return outbound.Receipt{}, err
	}
	to := recipient(outbound.ChatOf(a))

	switch v := a.(type) {
	case outbound.TextMessage:
		return receipt(c.bot.Send(to, v.Text, markupOptions(v.Keyboard)...))
	case outbound.Document:
		doc := &tele.Document{File: tele.FromDisk(v.Path), FileName: v.FileName, Caption: v.Caption}
		return receipt(c.bot.Send(to, doc, markupOptions(v.Keyboard)...))
	case outbound.EditMessage:
		return receipt(c.bot.Edit(editable(v.ChatID, v.MessageID), v.Text, markupOptions(v.Keyboard)...))
	case outbound.EditMarkup:
		return receipt(c.bot.EditReplyMarkup(editable(v.ChatID, v.MessageID), Markup(v.Keyboard)))
	case outbound.DeleteMessage:
		return outbound.Receipt{ChatID: v.ChatID, MessageID: v.MessageID}, c.bot.Delete(editable(v.ChatID, v.MessageID))
	case outbound.AnswerCallback:
		var resp []*tele.CallbackResponse
		if v.Text != "" {
			resp = append(resp, &tele.CallbackResponse{Text: v.Text})
		}
		return outbound.Receipt{ChatID: v.ChatID}, c.bot.Respond(&tele.Callback{ID: v.CallbackID}, resp...)
	}
	return outbound.Receipt{}, fmt.Errorf("%w: %T", outbound.ErrInvalidAction, a)
}

func receipt(msg *tele.Message, err error) (outbound.Receipt, error) {
	if err != nil {
		return outbound.Receipt{}, err
	}
	if msg == nil {
		return outbound.Receipt{}, nil
	}
	r := outbound.Receipt{MessageID: msg.ID}
	if msg.Chat != nil {
		r.ChatID = msg.Chat.ID
	}
	return r, nil
}

func markupOptions(kb outbound.Keyboard) []any {
	if m := Markup(kb); m != nil {
		return []any{m}
	}
	return nil
}

// Markup converts an outbound keyboard to telebot markup. nil stays nil.
func Markup(kb outbound.Keyboard) *tele.ReplyMarkup {
	switch v := kb.(type) {
	case outbound.ReplyKeyboard:
		m := &tele.ReplyMarkup{ResizeKeyboard: true, OneTimeKeyboard: v.OneTime}
		for _, row := range v.Rows {
			r := make([]tele.ReplyButton, 0, len(row))
			for _, b := range row {
				r = append(r, tele.ReplyButton{Text: b.Text, Contact: b.RequestContact})
			}
			m.ReplyKeyboard = append(m.ReplyKeyboard, r)
		}
		return m
	case outbound.InlineKeyboard:
		m := &tele.ReplyMarkup{}
		for _, row := range v.Rows {
			r := make([]tele.InlineButton, 0, len(row))
			for _, b := range row {
				r = append(r, tele.InlineButton{Text: b.Text, Unique: b.Unique, Data: b.Data})
			}
			m.InlineKeyboard = append(m.InlineKeyboard, r)
		}
		return m
	case outbound.RemoveKeyboard:
		return &tele.ReplyMarkup{RemoveKeyboard: true}
	}
	return nil
}

type updatesResponse struct {
	Result []tele.Update `json:"result"`
}

func (c *Client) getUpdates(offset, limit int) ([]tele.Update, error) {
	data, err := c.bot.Raw("getUpdates", map[string]any{
		"offset":  offset,
		"limit":   limit,
		"timeout": 0,
	})
	if err != nil {
		return nil, err
	}
	var resp updatesResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("telegram: decode getUpdates: %w", err)
	}
	return resp.Result, nil
}

// Pending implements replay.Source. It never waits for new updates.
func (c *Client) Pending(ctx context.Context, offset, limit int) (replay.Batch, error) {
	if err := ctx.Err(); err != nil {
		return replay.Batch{}, err
	}
	updates, err := c.getUpdates(offset, limit)
	if err != nil {
		return replay.Batch{}, err
	}
	var batch replay.Batch
	for i := range updates {
		upd := &updates[i]
		if upd.ID > batch.LastUpdateID {
			batch.LastUpdateID = upd.ID
		}
		if ev, ok := FromUpdate(upd); ok {
			batch.Events = append(batch.Events, ev)
		}
	}
	return batch, nil
}

// Acknowledge implements replay.Source: fetching from next confirms everything below it.
func (c *Client) Acknowledge(ctx context.Context, next int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.getUpdates(next, 1)
	return err
}

// ChatUsername returns the current handle of a private chat.
func (c *Client) ChatUsername(ctx context.Context, chatID int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	chat, err := c.bot.ChatByID(chatID)
	if err != nil {
		return "", err
	}
	return chat.Username, nil
}

// Download stores the referenced document at dst.
func (c *Client) Download(ctx context.Context, doc event.Document, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.bot.Download(&tele.File{FileID: doc.FileID}, dst)
}
