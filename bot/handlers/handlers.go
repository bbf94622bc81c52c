// Package handlers binds the gradebot conversations to the router:
// privileged admin commands, universal commands and the client flows.
package handlers

import (
	"context"
	"errors"
	"fmt"

	coretelegram "github.com/m3rciful/gradebot/core/telegram"
	"github.com/m3rciful/gradebot/core/telegram/broadcast"
	"github.com/m3rciful/gradebot/core/telegram/commands"
	"github.com/m3rciful/gradebot/core/telegram/event"
	"github.com/m3rciful/gradebot/core/telegram/outbound"
	"github.com/m3rciful/gradebot/core/telegram/router"
	"github.com/m3rciful/gradebot/core/telegram/state"
	"github.com/m3rciful/gradebot/core/users"

	"github.com/m3rciful/gradebot/bot/grading"
)

const component = "bot.handlers"

// Flows of the gradebot conversations.
var (
	Registration = state.NewFlow("registration", "awaiting_phone")
	Notebook     = state.NewFlow("notebook", "awaiting_reference", "awaiting_student")
	Direct       = state.NewFlow("send", "awaiting_text")
	Mass         = state.NewFlow("broadcast", "awaiting_text")
)

var (
	awaitingPhone     = Registration.Step("awaiting_phone")
	awaitingReference = Notebook.Step("awaiting_reference")
	awaitingStudent   = Notebook.Step("awaiting_student")
	awaitingDirect    = Direct.Step("awaiting_text")
	awaitingMass      = Mass.Step("awaiting_text")
)

// Sender performs a classified outbound call.
type Sender interface {
	Send(ctx context.Context, a outbound.Action) (outbound.Receipt, error)
}

// Broadcaster fans one text out to many chats.
type Broadcaster interface {
	BroadcastAll(ctx context.Context, msgs []broadcast.Message) broadcast.Report
}

// Downloader stores an inbound document on disk.
type Downloader interface {
	Download(ctx context.Context, doc event.Document, dst string) error
}

// Operators is the privileged channel.
type Operators interface {
	IsPrivileged(id int64) bool
	SendLog(ctx context.Context, chatID int64, caption string) bool
}

// Admission toggles whether new client flows may start.
type Admission interface {
	Active() bool
	Activate(ctx context.Context) bool
	Deactivate(ctx context.Context) bool
}

// Blocker maintains the blocked flag of user records.
type Blocker interface {
	IsBlocked(ctx context.Context, id int64) (bool, error)
	Block(ctx context.Context, id int64) error
	Unblock(ctx context.Context, id int64) error
}

// Tasks runs work outside the per-user queue.
type Tasks interface {
	Go(ctx context.Context, name string, fn func(ctx context.Context) error)
}

// Usernames renders chat identities for admin replies and logs.
type Usernames interface {
	Username(ctx context.Context, chatID int64) string
}

// Deps are the collaborators of the handlers.
type Deps struct {
	Out       Sender
	Records   users.Records
	Blocked   Blocker
	Broadcast Broadcaster
	Files     Downloader
	Operators Operators
	Admission Admission
	Tasks     Tasks
	Usernames Usernames
	Commands  *coretelegram.Registry
	// Grader is optional; without it uploads are stored only.
	Grader    grading.Grader
	Workspace grading.Workspace
}

// Handlers holds the route implementations.
type Handlers struct {
	deps Deps
}

// New returns handlers over deps.
func New(deps Deps) *Handlers {
	if deps.Commands == nil {
		deps.Commands = coretelegram.NewRegistry()
	}
	return &Handlers{deps: deps}
}

// Catalogue lists the slash commands in menu order.
var Catalogue = []commands.Entry{
	{Name: "/start", Command: commands.Command{Description: "Start or open the upload menu"}},
	{Name: "/cancel", Command: commands.Command{Description: "Cancel the current action"}},
	{Name: "/admin", Command: commands.Command{Description: "List admin commands", AdminOnly: true}},
	{Name: "/logs", Command: commands.Command{Description: "Send the log file", AdminOnly: true}},
	{Name: "/activate", Command: commands.Command{Description: "Admit client flows", AdminOnly: true}},
	{Name: "/deactivate", Command: commands.Command{Description: "Stop admitting client flows", AdminOnly: true}},
	{Name: "/send", Command: commands.Command{Description: "Message one user: /send @handle", AdminOnly: true}},
	{Name: "/senda", Command: commands.Command{Description: "Message every verified user", AdminOnly: true}},
	{Name: "/blocking", Command: commands.Command{Description: "Block or unblock a user: /blocking @handle", AdminOnly: true}},
}

// RegisterCommands adds the catalogue to reg.
func RegisterCommands(reg *coretelegram.Registry) error {
	for _, e := range Catalogue {
		if err := reg.RegisterCommand(e.Name, e.Command); err != nil {
			return fmt.Errorf("handlers: %w", err)
		}
	}
	return nil
}

// Register binds every route. Admin routes come first so operators never hit
// the client routes with the same shape.
func (h *Handlers) Register(r *router.Router) {
	h.registerAdmin(r)
	h.registerClient(r)
	h.registerCommon(r)
}

func (h *Handlers) admin() router.Predicate {
	return router.SenderIn(h.deps.Operators.IsPrivileged)
}

// deliver performs a best-effort outbound call. The gateway has already
// classified and logged a *outbound.Failure, so it is reported as false and
// never becomes a handler error.
func (h *Handlers) deliver(ctx context.Context, a outbound.Action) (bool, error) {
	_, err := h.deps.Out.Send(ctx, a)
	var failure *outbound.Failure
	if errors.As(err, &failure) {
		return false, nil
	}
	return err == nil, err
}

func (h *Handlers) emit(ctx context.Context, a outbound.Action) error {
	_, err := h.deliver(ctx, a)
	return err
}

func (h *Handlers) reply(ctx context.Context, chatID int64, text string, kb outbound.Keyboard, tag outbound.Tag) error {
	return h.emit(ctx, outbound.TextMessage{
		Envelope: outbound.Envelope{ChatID: chatID, Tag: tag},
		Text:     text,
		Keyboard: kb,
	})
}

func (h *Handlers) answer(ctx context.Context, cb event.Callback, text string) error {
	return h.emit(ctx, outbound.AnswerCallback{
		Envelope:   outbound.Envelope{ChatID: cb.Info.ChatID, Tag: outbound.TagCallback},
		CallbackID: cb.ID,
		Text:       text,
	})
}

func (h *Handlers) username(ctx context.Context, id int64) string {
	if h.deps.Usernames == nil {
		return ""
	}
	name := h.deps.Usernames.Username(ctx, id)
	if name == users.Unknown {
		return ""
	}
	return name
}
