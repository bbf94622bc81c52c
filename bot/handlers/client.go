package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/m3rciful/gradebot/core/logger"
	"github.com/m3rciful/gradebot/core/telegram/dispatch"
	"github.com/m3rciful/gradebot/core/telegram/event"
	"github.com/m3rciful/gradebot/core/telegram/outbound"
	"github.com/m3rciful/gradebot/core/telegram/router"
	"github.com/m3rciful/gradebot/core/telegram/state"
	"github.com/m3rciful/gradebot/core/users"

	"github.com/m3rciful/gradebot/bot/grading"
)

const (
	ReferenceButton = "📥 Reference"
	StudentButton   = "🔍 Student"
	shareButton     = "📱 Share contact"

	menuText      = "Choose whose .ipynb solution you'd like to upload: the reference solution for context or the student's solution for grading."
	hiddenMenu    = "If the button menu is hidden, tap the 🎛 icon in the bottom right corner"
	shareText     = "Please share your contact with us.\n\n" + hiddenMenu
	noContactText = "❌ Please send your phone number using the button below.\n\n" + hiddenMenu
	notUserText   = "❌ Could not get your phone number because you are not a Telegram user.\nPlease try again from your own profile"
	foreignText   = "❌ You sent someone else's phone number.\nPlease send your own number.\n\n" + hiddenMenu
	thanksText    = "✅ Thanks!"

	askReferenceText = "Please send the reference solution in .ipynb format."
	askStudentText   = "Please send the student's solution in .ipynb format."
	notNotebookText  = "❌ An .ipynb file is required. Please try again."
	referenceSaved   = "✅ Reference solution uploaded."
	studentSaved     = "✅ Student solution uploaded."

	noReferenceText    = "Upload a reference solution to get the student's work graded."
	gradingStartedText = "⏳ Grading started. The report will follow."
	gradingFailedText  = "❌ Grading failed. We logged the error."
	emptyReportText    = "The grader returned an empty report."
	reportCaption      = "📝 Grading report"
	reportFile         = "report.txt"

	// maxMessageRunes is the platform limit of one text message.
	maxMessageRunes = 4096
)

var (
	menuKeyboard    = outbound.ReplyButtons([]string{ReferenceButton, StudentButton})
	contactKeyboard = outbound.ContactRequest(shareButton)
	isNotebook      = router.DocumentExt(".ipynb")
)

func (h *Handlers) registerClient(r *router.Router) {
	r.Always("client.start", router.Command("/start"), h.start)
	r.On(awaitingPhone, "client.phone", router.Input(), h.phone)
	r.On(state.None, "client.menu.reference", router.Text(ReferenceButton), h.askNotebook(grading.RoleReference))
	r.On(state.None, "client.menu.student", router.Text(StudentButton), h.askNotebook(grading.RoleStudent))
	r.On(awaitingReference, "client.upload.reference", router.Input(), h.upload(grading.RoleReference))
	r.On(awaitingStudent, "client.upload.student", router.Input(), h.upload(grading.RoleStudent))
}

func (h *Handlers) verified(ctx context.Context, id int64) (bool, error) {
	return users.Bool(ctx, h.deps.Records, id, users.FieldVerified)
}

// start restarts the conversation: the menu for verified users, registration otherwise.
func (h *Handlers) start(u *dispatch.Update) error {
	ctx := u.Context()
	if err := u.Session.Clear(ctx); err != nil {
		return err
	}
	ok, err := h.verified(ctx, u.Sender())
	if err != nil {
		return err
	}
	if ok {
		return h.reply(ctx, u.Chat(), menuText, menuKeyboard, outbound.TagNone)
	}
	return h.register(u)
}

func (h *Handlers) register(u *dispatch.Update) error {
	ctx := u.Context()
	if err := u.Session.Enter(ctx, awaitingPhone, nil); err != nil {
		return err
	}
	return h.reply(ctx, u.Chat(), shareText, contactKeyboard, outbound.TagNone)
}

// phone accepts the sender's own contact only.
func (h *Handlers) phone(u *dispatch.Update) error {
	ctx := u.Context()
	chat, id := u.Chat(), u.Sender()
	m, _ := u.Event.(event.Message)

	var problem string
	switch {
	case m.Contact == nil:
		problem = noContactText
	case m.Contact.UserID == 0:
		problem = notUserText
	case m.Contact.UserID != id:
		problem = foreignText
	}
	if problem != "" {
		return h.reply(ctx, chat, problem, contactKeyboard, outbound.TagUserError)
	}

	if err := h.deps.Records.SetField(ctx, id, users.FieldPhone, m.Contact.Phone); err != nil {
		return err
	}
	if err := users.SetBool(ctx, h.deps.Records, id, users.FieldVerified, true); err != nil {
		return err
	}
	if err := h.deps.Workspace.Prepare(id); err != nil {
		return err
	}
	if err := u.Session.Clear(ctx); err != nil {
		return err
	}
	logger.Info(ctx, component, "user.verified", slog.String("status", "ok"), slog.Int64("user_id", id))

	if err := h.reply(ctx, chat, thanksText, outbound.RemoveKeyboard{}, outbound.TagNone); err != nil {
		return err
	}
	return h.reply(ctx, chat, menuText, menuKeyboard, outbound.TagNone)
}

func (h *Handlers) askNotebook(role grading.Role) dispatch.HandlerFunc {
	next, prompt := awaitingReference, askReferenceText
	if role == grading.RoleStudent {
		next, prompt = awaitingStudent, askStudentText
	}
	return func(u *dispatch.Update) error {
		ctx := u.Context()
		ok, err := h.verified(ctx, u.Sender())
		if err != nil {
			return err
		}
		if !ok {
			return h.register(u)
		}
		if err := u.Session.Enter(ctx, next, nil); err != nil {
			return err
		}
		return h.reply(ctx, u.Chat(), prompt, outbound.RemoveKeyboard{}, outbound.TagNone)
	}
}

func (h *Handlers) upload(role grading.Role) dispatch.HandlerFunc {
	saved := referenceSaved
	if role == grading.RoleStudent {
		saved = studentSaved
	}
	return func(u *dispatch.Update) error {
		ctx := u.Context()
		chat, id := u.Chat(), u.Sender()
		if !isNotebook(u.Event) {
			return h.reply(ctx, chat, notNotebookText, nil, outbound.TagUserError)
		}
		doc := *u.Event.(event.Message).Document

		if err := h.deps.Workspace.Prepare(id); err != nil {
			return err
		}
		if err := h.deps.Files.Download(ctx, doc, h.deps.Workspace.Path(id, role)); err != nil {
			return fmt.Errorf("download %s notebook: %w", role, err)
		}
		if role == grading.RoleReference {
			if err := users.SetBool(ctx, h.deps.Records, id, users.FieldHasReference, true); err != nil {
				return err
			}
		}
		if err := u.Session.Clear(ctx); err != nil {
			return err
		}
		logger.Info(ctx, component, "notebook.saved",
			slog.String("status", "ok"),
			slog.String("role", string(role)),
			slog.Int64("user_id", id),
			slog.Int64("size", doc.Size),
		)

		if err := h.reply(ctx, chat, saved, menuKeyboard, outbound.TagDocument); err != nil {
			return err
		}
		if role == grading.RoleStudent {
			return h.grade(ctx, chat, id)
		}
		return nil
	}
}

// grade starts a background grading run when a reference exists.
func (h *Handlers) grade(ctx context.Context, chatID, userID int64) error {
	if h.deps.Grader == nil || h.deps.Tasks == nil {
		return nil
	}
	hasReference, err := users.Bool(ctx, h.deps.Records, userID, users.FieldHasReference)
	if err != nil {
		return err
	}
	if !hasReference {
		return h.reply(ctx, chatID, noReferenceText, nil, outbound.TagNone)
	}
	if err := h.reply(ctx, chatID, gradingStartedText, nil, outbound.TagNone); err != nil {
		return err
	}
	req := h.deps.Workspace.Request(userID)
	h.deps.Tasks.Go(context.WithoutCancel(ctx), "grading", func(ctx context.Context) error {
		return h.runGrading(ctx, chatID, req)
	})
	return nil
}

func (h *Handlers) runGrading(ctx context.Context, chatID int64, req grading.Request) error {
	report, err := h.deps.Grader.Grade(ctx, req)
	if err != nil {
		_ = h.reply(ctx, chatID, gradingFailedText, nil, outbound.TagFault)
		return fmt.Errorf("grade user %d: %w", req.UserID, err)
	}
	logger.Info(ctx, component, "grading.done",
		slog.String("status", "ok"),
		slog.Int64("user_id", req.UserID),
		slog.Duration("took", logger.RoundMS(report.Took)),
	)
	return h.sendReport(ctx, chatID, req.UserID, report)
}

// sendReport sends the report as text, or as a .txt document when it does not fit one message.
func (h *Handlers) sendReport(ctx context.Context, chatID, userID int64, report grading.Report) error {
	text := strings.TrimSpace(report.Text)
	if text == "" {
		text = emptyReportText
	}
	if utf8.RuneCountInString(text) <= maxMessageRunes {
		return h.reply(ctx, chatID, text, nil, outbound.TagNone)
	}
	path := filepath.Join(h.deps.Workspace.Dir(userID, grading.RoleStudent), reportFile)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return h.emit(ctx, outbound.Document{
		Envelope: outbound.Envelope{ChatID: chatID, Tag: outbound.TagDocument},
		Path:     path,
		FileName: reportFile,
		Caption:  reportCaption,
	})
}
