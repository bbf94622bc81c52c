package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/m3rciful/gradebot/core/logger"
	coretelegram "github.com/m3rciful/gradebot/core/telegram"
	"github.com/m3rciful/gradebot/core/telegram/broadcast"
	"github.com/m3rciful/gradebot/core/telegram/dispatch"
	"github.com/m3rciful/gradebot/core/telegram/event"
	"github.com/m3rciful/gradebot/core/telegram/outbound"
	"github.com/m3rciful/gradebot/core/telegram/router"
	"github.com/m3rciful/gradebot/core/telegram/state"
)

const blockingTag = "blocking"

const (
	adminHeader      = "Admin commands:\n\n"
	logsCaption      = "Logs"
	activatedText    = "Bot activated for clients."
	deactivatedText  = "Bot deactivated for clients."
	alreadyActive    = "Bot is already active."
	alreadyInactive  = "Bot is already inactive."
	sendUsage        = "Specify a Telegram username:\n/send @username"
	blockingUsage    = "Specify a Telegram username:\n/blocking @username"
	noSuchUserText   = "No such user exists.\nCancelled"
	userNotFoundText = "User not found."
	askTextText      = "Enter the message text"
	sentText         = "Sent"
	notDeliveredText = "Not delivered"
	operatorText     = "Operators cannot be blocked."

	blockedStatus    = "🔴 User is blocked.\n\nUnblock?"
	notBlockedStatus = "🟢 User is not blocked.\n\nBlock?"
	nowBlockedText   = "🔴 User is now blocked."
	nowUnblockedText = "🟢 User is now unblocked."

	blockButton   = "Block"
	unblockButton = "Unblock"
	leaveButton   = "Leave as is"

	targetKey = "chat_id"
)

func (h *Handlers) registerAdmin(r *router.Router) {
	admin := h.admin()
	on := func(cmd string) router.Predicate { return router.All(admin, router.Command(cmd)) }

	r.Always("admin.logs", on("/logs"), h.logs)
	r.Always("admin.activate", on("/activate"), h.activate)
	r.Always("admin.deactivate", on("/deactivate"), h.deactivate)
	r.Always("admin.blocking.choice", router.All(admin, router.Callback(blockingTag)), h.blockingChoice)

	r.On(state.None, "admin.help", on("/admin"), h.help)
	r.On(state.None, "admin.send", on("/send"), h.send)
	r.On(awaitingDirect, "admin.send.text", router.All(admin, router.PlainText()), h.sendText)
	r.On(state.None, "admin.senda", on("/senda"), h.senda)
	r.On(awaitingMass, "admin.senda.text", router.All(admin, router.PlainText()), h.sendaText)
	r.On(state.None, "admin.blocking", on("/blocking"), h.blocking)
}

func (h *Handlers) help(u *dispatch.Update) error {
	text := adminHeader + coretelegram.HelpText(h.deps.Commands.Entries(true))
	return h.reply(u.Context(), u.Chat(), text, nil, outbound.TagOperator)
}

func (h *Handlers) logs(u *dispatch.Update) error {
	if !h.deps.Operators.SendLog(u.Context(), u.Chat(), logsCaption) {
		return fmt.Errorf("send log artifact to %d", u.Chat())
	}
	return nil
}

func (h *Handlers) activate(u *dispatch.Update) error {
	text := alreadyActive
	if h.deps.Admission.Activate(u.Context()) {
		text = activatedText
	}
	return h.reply(u.Context(), u.Chat(), text, nil, outbound.TagOperator)
}

func (h *Handlers) deactivate(u *dispatch.Update) error {
	text := alreadyInactive
	if h.deps.Admission.Deactivate(u.Context()) {
		text = deactivatedText
	}
	return h.reply(u.Context(), u.Chat(), text, nil, outbound.TagOperator)
}

// handleArg returns the "@handle" argument of a command, or "" when it is missing.
func handleArg(ev event.Inbound) string {
	m, ok := ev.(event.Message)
	if !ok {
		return ""
	}
	_, args, _ := m.Command()
	fields := strings.Fields(args)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "@") || len(fields[0]) < 2 {
		return ""
	}
	return fields[0]
}

func (h *Handlers) target(ctx context.Context, handle string) (int64, bool, error) {
	return h.deps.Records.FindIDByHandle(ctx, strings.TrimPrefix(handle, "@"))
}

func (h *Handlers) send(u *dispatch.Update) error {
	ctx := u.Context()
	handle := handleArg(u.Event)
	if handle == "" {
		return h.reply(ctx, u.Chat(), sendUsage, nil, outbound.TagUserError)
	}
	id, ok, err := h.target(ctx, handle)
	if err != nil {
		return err
	}
	if !ok {
		if err := u.Session.Clear(ctx); err != nil {
			return err
		}
		return h.reply(ctx, u.Chat(), noSuchUserText, nil, outbound.TagUserError)
	}
	if err := u.Session.Enter(ctx, awaitingDirect, state.Data{targetKey: strconv.FormatInt(id, 10)}); err != nil {
		return err
	}
	return h.reply(ctx, u.Chat(), askTextText, nil, outbound.TagNone)
}

func (h *Handlers) sendText(u *dispatch.Update) error {
	ctx := u.Context()
	target, ok := u.Session.Data().Int64(targetKey)
	if !ok {
		return fmt.Errorf("send flow of %d has no target", u.Sender())
	}
	text := event.Text(u.Event)
	delivered, err := h.deliver(ctx, outbound.Text(target, text, outbound.TagNone))
	if err != nil {
		return err
	}
	if err := u.Session.Clear(ctx); err != nil {
		return err
	}
	logger.Info(ctx, component, "admin.send",
		slog.Bool("delivered", delivered),
		slog.String("target", logger.ChatLabel(target, h.username(ctx, target))),
	)
	result := sentText
	if !delivered {
		result = notDeliveredText
	}
	return h.reply(ctx, u.Chat(), result, nil, outbound.TagOperator)
}

func (h *Handlers) senda(u *dispatch.Update) error {
	ctx := u.Context()
	if err := u.Session.Enter(ctx, awaitingMass, nil); err != nil {
		return err
	}
	return h.reply(ctx, u.Chat(), askTextText, nil, outbound.TagNone)
}

func (h *Handlers) sendaText(u *dispatch.Update) error {
	ctx := u.Context()
	ids, err := h.deps.Records.ListVerifiedUserIDs(ctx)
	if err != nil {
		return err
	}
	text := event.Text(u.Event)
	msgs := make([]broadcast.Message, 0, len(ids))
	for _, id := range ids {
		msgs = append(msgs, broadcast.Message{ChatID: id, Text: text})
	}
	report := h.deps.Broadcast.BroadcastAll(ctx, msgs)
	if err := u.Session.Clear(ctx); err != nil {
		return err
	}
	summary := fmt.Sprintf("Done: delivered %d/%d", report.Delivered, report.Attempted)
	if report.Skipped > 0 {
		summary += fmt.Sprintf(", skipped %d", report.Skipped)
	}
	return h.reply(ctx, u.Chat(), summary, nil, outbound.TagOperator)
}

func blockingKeyboard(id int64, blocked bool) outbound.InlineKeyboard {
	data := strconv.FormatInt(id, 10)
	toggle := outbound.InlineButton{Text: blockButton, Unique: blockingTag, Data: "block|" + data}
	if blocked {
		toggle = outbound.InlineButton{Text: unblockButton, Unique: blockingTag, Data: "unblock|" + data}
	}
	return outbound.InlineRow(toggle, outbound.InlineButton{Text: leaveButton, Unique: blockingTag, Data: "leave|" + data})
}

func (h *Handlers) blocking(u *dispatch.Update) error {
	ctx := u.Context()
	handle := handleArg(u.Event)
	if handle == "" {
		return h.reply(ctx, u.Chat(), blockingUsage, nil, outbound.TagUserError)
	}
	id, ok, err := h.target(ctx, handle)
	if err != nil {
		return err
	}
	if !ok {
		return h.reply(ctx, u.Chat(), userNotFoundText, nil, outbound.TagUserError)
	}
	if h.deps.Operators.IsPrivileged(id) {
		return h.reply(ctx, u.Chat(), operatorText, nil, outbound.TagUserError)
	}
	blocked, err := h.deps.Blocked.IsBlocked(ctx, id)
	if err != nil {
		return err
	}
	status := notBlockedStatus
	if blocked {
		status = blockedStatus
	}
	text := logger.ChatLabel(id, h.username(ctx, id)) + "\n\n" + status
	return h.reply(ctx, u.Chat(), text, blockingKeyboard(id, blocked), outbound.TagOperator)
}

// blockingChoice applies a press on the blocking keyboard ("block|id", "unblock|id", "leave|id").
func (h *Handlers) blockingChoice(u *dispatch.Update) error {
	ctx := u.Context()
	cb := u.Event.(event.Callback)
	action, id, err := coretelegram.ActionPayload(cb.Payload)
	if err != nil {
		return h.answer(ctx, cb, unsupportedText)
	}

	var result string
	switch action {
	case "block":
		if err := h.deps.Blocked.Block(ctx, id); err != nil {
			return err
		}
		result = nowBlockedText
	case "unblock":
		if err := h.deps.Blocked.Unblock(ctx, id); err != nil {
			return err
		}
		result = nowUnblockedText
	case "leave":
		if err := h.emit(ctx, outbound.EditMarkup{
			Envelope:  outbound.Envelope{ChatID: u.Chat(), Tag: outbound.TagCallback},
			MessageID: cb.MessageID,
		}); err != nil {
			return err
		}
		return h.answer(ctx, cb, cancelledText)
	default:
		return h.answer(ctx, cb, unsupportedText)
	}

	logger.Info(ctx, component, "admin.blocking",
		slog.String("status", "ok"),
		slog.String("action", action),
		slog.String("target", logger.ChatLabel(id, h.username(ctx, id))),
	)
	if err := h.emit(ctx, outbound.EditMessage{
		Envelope:  outbound.Envelope{ChatID: u.Chat(), Tag: outbound.TagCallback},
		MessageID: cb.MessageID,
		Text:      result,
	}); err != nil {
		return err
	}
	return h.answer(ctx, cb, "")
}
