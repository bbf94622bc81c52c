package handlers

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coretelegram "github.com/m3rciful/gradebot/core/telegram"
	"github.com/m3rciful/gradebot/core/telegram/admission"
	"github.com/m3rciful/gradebot/core/telegram/broadcast"
	"github.com/m3rciful/gradebot/core/telegram/dispatch"
	"github.com/m3rciful/gradebot/core/telegram/event"
	"github.com/m3rciful/gradebot/core/telegram/outbound"
	"github.com/m3rciful/gradebot/core/telegram/recovery"
	"github.com/m3rciful/gradebot/core/telegram/router"
	"github.com/m3rciful/gradebot/core/telegram/state"
	"github.com/m3rciful/gradebot/core/users"

	"github.com/m3rciful/gradebot/bot/grading"
)

const (
	operatorID int64 = 1
	clientID   int64 = 7
	aliceID    int64 = 50
)

type outbox struct {
	mu      sync.Mutex
	actions []outbound.Action
	failing map[int64]outbound.Class
}

func (o *outbox) Send(_ context.Context, a outbound.Action) (outbound.Receipt, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.actions = append(o.actions, a)
	if class, ok := o.failing[outbound.ChatOf(a)]; ok {
		return outbound.Receipt{}, &outbound.Failure{Class: class, Op: a.Kind(), Err: errors.New(string(class))}
	}
	return outbound.Receipt{ChatID: outbound.ChatOf(a)}, nil
}

func (o *outbox) to(chatID int64) []outbound.Action {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []outbound.Action
	for _, a := range o.actions {
		if outbound.ChatOf(a) == chatID {
			out = append(out, a)
		}
	}
	return out
}

func (o *outbox) last(t *testing.T, chatID int64) outbound.Action {
	t.Helper()
	acts := o.to(chatID)
	require.NotEmpty(t, acts)
	return acts[len(acts)-1]
}

func (o *outbox) lastText(t *testing.T, chatID int64) outbound.TextMessage {
	t.Helper()
	msg, ok := o.last(t, chatID).(outbound.TextMessage)
	require.True(t, ok, "last action to %d is not a text message", chatID)
	return msg
}

type operators struct {
	logs []int64
}

func (o *operators) IsPrivileged(id int64) bool { return id == operatorID }

func (o *operators) SendLog(_ context.Context, chatID int64, _ string) bool {
	o.logs = append(o.logs, chatID)
	return true
}

type files struct{}

func (files) Download(_ context.Context, _ event.Document, dst string) error {
	return os.WriteFile(dst, []byte(`{"cells":[]}`), 0o644)
}

type grader struct {
	report grading.Report
	err    error
	calls  []grading.Request
}

func (g *grader) Grade(_ context.Context, req grading.Request) (grading.Report, error) {
	g.calls = append(g.calls, req)
	return g.report, g.err
}

// inline runs background tasks synchronously and keeps their errors.
type inline struct {
	errs []error
}

func (i *inline) Go(ctx context.Context, _ string, fn func(ctx context.Context) error) {
	if err := fn(ctx); err != nil {
		i.errs = append(i.errs, err)
	}
}

type broadcaster struct {
	sent []broadcast.Message
}

func (b *broadcaster) BroadcastAll(_ context.Context, msgs []broadcast.Message) broadcast.Report {
	b.sent = append(b.sent, msgs...)
	return broadcast.Report{Attempted: len(msgs), Delivered: len(msgs)}
}

type names map[int64]string

func (n names) Username(_ context.Context, id int64) string {
	if name, ok := n[id]; ok {
		return name
	}
	return users.Unknown
}

type harness struct {
	t         *testing.T
	ctx       context.Context
	store     state.Store
	records   *users.MemoryRecords
	out       *outbox
	ops       *operators
	grader    *grader
	tasks     *inline
	broadcast *broadcaster
	flag      *admission.Flag
	workspace grading.Workspace
	router    *router.Router
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	reg := coretelegram.NewRegistry()
	require.NoError(t, RegisterCommands(reg))

	hs := &harness{
		t:         t,
		ctx:       context.Background(),
		store:     state.NewMemoryStore(),
		records:   users.NewMemoryRecords(),
		out:       &outbox{failing: map[int64]outbound.Class{}},
		ops:       &operators{},
		grader:    &grader{report: grading.Report{Text: "score: 9/10"}},
		tasks:     &inline{},
		broadcast: &broadcaster{},
		flag:      admission.NewFlag(true),
		workspace: grading.Workspace{Root: t.TempDir()},
	}
	h := New(Deps{
		Out:       hs.out,
		Records:   hs.records,
		Blocked:   users.NewRegistry(hs.records),
		Broadcast: hs.broadcast,
		Files:     files{},
		Operators: hs.ops,
		Admission: hs.flag,
		Tasks:     hs.tasks,
		Usernames: names{aliceID: "alice"},
		Commands:  reg,
		Grader:    hs.grader,
		Workspace: hs.workspace,
	})
	hs.router = router.New(hs.store)
	h.Register(hs.router)

	require.NoError(t, hs.records.SetField(hs.ctx, aliceID, users.FieldUsername, "alice"))
	return hs
}

func (hs *harness) handle(ev event.Inbound) {
	hs.t.Helper()
	require.NoError(hs.t, hs.router.Handle(dispatch.NewUpdate(hs.ctx, ev)))
}

func (hs *harness) text(sender int64, text string) {
	hs.t.Helper()
	hs.handle(event.Message{Info: event.Meta{SenderID: sender, ChatID: sender}, Text: text})
}

func (hs *harness) document(sender int64, name string) {
	hs.t.Helper()
	hs.handle(event.Message{
		Info:     event.Meta{SenderID: sender, ChatID: sender},
		Document: &event.Document{FileID: "file-" + name, FileName: name, Size: 12},
	})
}

func (hs *harness) callback(sender int64, unique, payload string) {
	hs.t.Helper()
	hs.handle(event.Callback{
		Info:      event.Meta{SenderID: sender, ChatID: sender},
		ID:        "cb-1",
		MessageID: 99,
		Unique:    unique,
		Payload:   payload,
	})
}

func (hs *harness) state(id int64) state.State {
	hs.t.Helper()
	st, _, err := hs.store.GetState(hs.ctx, id)
	require.NoError(hs.t, err)
	return st
}

func (hs *harness) verify(id int64) {
	hs.t.Helper()
	require.NoError(hs.t, users.SetBool(hs.ctx, hs.records, id, users.FieldVerified, true))
}

func (hs *harness) field(id int64, field users.Field) bool {
	hs.t.Helper()
	v, err := users.Bool(hs.ctx, hs.records, id, field)
	require.NoError(hs.t, err)
	return v
}

func TestStartRegistersUnverifiedUser(t *testing.T) {
	hs := newHarness(t)
	hs.text(clientID, "/start")

	assert.Equal(t, awaitingPhone, hs.state(clientID))
	msg := hs.out.lastText(t, clientID)
	assert.Equal(t, shareText, msg.Text)
	kb, ok := msg.Keyboard.(outbound.ReplyKeyboard)
	require.True(t, ok)
	assert.True(t, kb.Rows[0][0].RequestContact)
}

func TestPhoneValidation(t *testing.T) {
	hs := newHarness(t)
	hs.text(clientID, "/start")

	contact := func(c *event.Contact) {
		hs.handle(event.Message{Info: event.Meta{SenderID: clientID, ChatID: clientID}, Contact: c})
	}

	hs.text(clientID, "+10000000000")
	assert.Equal(t, noContactText, hs.out.lastText(t, clientID).Text)
	assert.Equal(t, outbound.TagUserError, outbound.TagOf(hs.out.last(t, clientID)))

	contact(&event.Contact{Phone: "+10000000000"})
	assert.Equal(t, notUserText, hs.out.lastText(t, clientID).Text)

	contact(&event.Contact{UserID: 8, Phone: "+10000000000"})
	assert.Equal(t, foreignText, hs.out.lastText(t, clientID).Text)
	assert.Equal(t, awaitingPhone, hs.state(clientID))
	assert.False(t, hs.field(clientID, users.FieldVerified))

	contact(&event.Contact{UserID: clientID, Phone: "+10000000000"})
	assert.Equal(t, state.None, hs.state(clientID))
	assert.True(t, hs.field(clientID, users.FieldVerified))
	phone, _, err := hs.records.GetField(hs.ctx, clientID, users.FieldPhone)
	require.NoError(t, err)
	assert.Equal(t, "+10000000000", phone)
	assert.DirExists(t, hs.workspace.Dir(clientID, grading.RoleStudent))

	acts := hs.out.to(clientID)
	thanks := acts[len(acts)-2].(outbound.TextMessage)
	assert.Equal(t, thanksText, thanks.Text)
	assert.Equal(t, outbound.RemoveKeyboard{}, thanks.Keyboard)
	assert.Equal(t, menuText, hs.out.lastText(t, clientID).Text)
}

func TestStartShowsMenuToVerifiedUser(t *testing.T) {
	hs := newHarness(t)
	hs.verify(clientID)
	hs.text(clientID, "/start")

	assert.Equal(t, state.None, hs.state(clientID))
	msg := hs.out.lastText(t, clientID)
	assert.Equal(t, menuText, msg.Text)
	assert.Equal(t, menuKeyboard, msg.Keyboard)
}

func TestMenuButtonRequiresVerification(t *testing.T) {
	hs := newHarness(t)
	hs.text(clientID, ReferenceButton)

	assert.Equal(t, awaitingPhone, hs.state(clientID))
	assert.Equal(t, shareText, hs.out.lastText(t, clientID).Text)
}

func TestUploadAndGrade(t *testing.T) {
	hs := newHarness(t)
	hs.verify(clientID)

	hs.text(clientID, ReferenceButton)
	assert.Equal(t, awaitingReference, hs.state(clientID))
	assert.Equal(t, askReferenceText, hs.out.lastText(t, clientID).Text)

	hs.document(clientID, "hw.txt")
	assert.Equal(t, notNotebookText, hs.out.lastText(t, clientID).Text)
	assert.Equal(t, awaitingReference, hs.state(clientID))

	hs.document(clientID, "HW.ipynb")
	assert.Equal(t, state.None, hs.state(clientID))
	assert.Equal(t, referenceSaved, hs.out.lastText(t, clientID).Text)
	assert.FileExists(t, hs.workspace.Path(clientID, grading.RoleReference))
	assert.True(t, hs.field(clientID, users.FieldHasReference))
	assert.Empty(t, hs.grader.calls)

	hs.text(clientID, StudentButton)
	assert.Equal(t, awaitingStudent, hs.state(clientID))
	hs.document(clientID, "solution.ipynb")

	assert.FileExists(t, hs.workspace.Path(clientID, grading.RoleStudent))
	require.Len(t, hs.grader.calls, 1)
	assert.Equal(t, hs.workspace.Request(clientID), hs.grader.calls[0])
	assert.Equal(t, "score: 9/10", hs.out.lastText(t, clientID).Text)
	assert.Empty(t, hs.tasks.errs)
}

func TestStudentUploadWithoutReference(t *testing.T) {
	hs := newHarness(t)
	hs.verify(clientID)

	hs.text(clientID, StudentButton)
	hs.document(clientID, "solution.ipynb")

	assert.Empty(t, hs.grader.calls)
	assert.Equal(t, noReferenceText, hs.out.lastText(t, clientID).Text)
}

func TestLongReportIsSentAsDocument(t *testing.T) {
	hs := newHarness(t)
	hs.verify(clientID)
	hs.grader.report = grading.Report{Text: strings.Repeat("a", maxMessageRunes+1)}

	hs.text(clientID, ReferenceButton)
	hs.document(clientID, "ref.ipynb")
	hs.text(clientID, StudentButton)
	hs.document(clientID, "solution.ipynb")

	doc, ok := hs.out.last(t, clientID).(outbound.Document)
	require.True(t, ok)
	assert.Equal(t, reportFile, doc.FileName)
	assert.FileExists(t, doc.Path)
}

func TestGradingFailureIsReported(t *testing.T) {
	hs := newHarness(t)
	hs.verify(clientID)
	hs.grader.err = grading.ErrTimeout

	hs.text(clientID, ReferenceButton)
	hs.document(clientID, "ref.ipynb")
	hs.text(clientID, StudentButton)
	hs.document(clientID, "solution.ipynb")

	assert.Equal(t, gradingFailedText, hs.out.lastText(t, clientID).Text)
	require.Len(t, hs.tasks.errs, 1)
	assert.ErrorIs(t, hs.tasks.errs[0], grading.ErrTimeout)
}

func TestCancelClearsAnyFlow(t *testing.T) {
	hs := newHarness(t)
	hs.verify(clientID)
	hs.text(clientID, ReferenceButton)
	require.Equal(t, awaitingReference, hs.state(clientID))

	hs.text(clientID, "/cancel")
	assert.Equal(t, state.None, hs.state(clientID))
	msg := hs.out.lastText(t, clientID)
	assert.Equal(t, cancelledText, msg.Text)
	assert.Equal(t, outbound.RemoveKeyboard{}, msg.Keyboard)
}

func TestFallbacks(t *testing.T) {
	hs := newHarness(t)

	hs.text(clientID, "hello")
	msg := hs.out.lastText(t, clientID)
	assert.Equal(t, zeroMessageText, msg.Text)
	assert.Equal(t, outbound.TagZeroMessage, msg.Tag)

	hs.callback(clientID, "other", "x")
	ans, ok := hs.out.last(t, clientID).(outbound.AnswerCallback)
	require.True(t, ok)
	assert.Equal(t, unsupportedText, ans.Text)
}

func TestAdminCommandsIgnoreClients(t *testing.T) {
	hs := newHarness(t)
	for _, cmd := range []string{"/admin", "/send @alice", "/senda", "/blocking @alice", "/logs", "/deactivate"} {
		hs.text(clientID, cmd)
		assert.Equal(t, zeroMessageText, hs.out.lastText(t, clientID).Text, cmd)
	}
	assert.True(t, hs.flag.Active())
	assert.Empty(t, hs.ops.logs)
}

func TestAdminHelpListsPrivilegedCommands(t *testing.T) {
	hs := newHarness(t)
	hs.text(operatorID, "/admin")

	text := hs.out.lastText(t, operatorID).Text
	assert.Contains(t, text, "/senda - Message every verified user")
	assert.NotContains(t, text, "/start")
}

func TestLogsAndAdmission(t *testing.T) {
	hs := newHarness(t)

	hs.text(operatorID, "/logs")
	assert.Equal(t, []int64{operatorID}, hs.ops.logs)

	hs.text(operatorID, "/deactivate")
	assert.False(t, hs.flag.Active())
	assert.Equal(t, deactivatedText, hs.out.lastText(t, operatorID).Text)
	hs.text(operatorID, "/deactivate")
	assert.Equal(t, alreadyInactive, hs.out.lastText(t, operatorID).Text)
	hs.text(operatorID, "/activate")
	assert.True(t, hs.flag.Active())
	assert.Equal(t, activatedText, hs.out.lastText(t, operatorID).Text)
}

func TestSendFlow(t *testing.T) {
	hs := newHarness(t)

	hs.text(operatorID, "/send")
	assert.Equal(t, sendUsage, hs.out.lastText(t, operatorID).Text)
	hs.text(operatorID, "/send alice")
	assert.Equal(t, sendUsage, hs.out.lastText(t, operatorID).Text)

	hs.text(operatorID, "/send @bob")
	assert.Equal(t, noSuchUserText, hs.out.lastText(t, operatorID).Text)
	assert.Equal(t, state.None, hs.state(operatorID))

	hs.text(operatorID, "/send @Alice")
	assert.Equal(t, awaitingDirect, hs.state(operatorID))
	assert.Equal(t, askTextText, hs.out.lastText(t, operatorID).Text)

	hs.text(operatorID, "hello there")
	assert.Equal(t, "hello there", hs.out.lastText(t, aliceID).Text)
	assert.Equal(t, sentText, hs.out.lastText(t, operatorID).Text)
	assert.Equal(t, state.None, hs.state(operatorID))
}

func TestSendReportsUndelivered(t *testing.T) {
	hs := newHarness(t)
	hs.out.failing[aliceID] = outbound.ClassPermissionRevoked

	hs.text(operatorID, "/send @alice")
	hs.text(operatorID, "hello")
	assert.Equal(t, notDeliveredText, hs.out.lastText(t, operatorID).Text)
	assert.Equal(t, state.None, hs.state(operatorID))
}

func TestBroadcastToVerifiedUsers(t *testing.T) {
	hs := newHarness(t)
	hs.verify(clientID)
	hs.verify(aliceID)

	hs.text(operatorID, "/senda")
	assert.Equal(t, awaitingMass, hs.state(operatorID))
	hs.text(operatorID, "maintenance tonight")

	require.Len(t, hs.broadcast.sent, 2)
	assert.Equal(t, clientID, hs.broadcast.sent[0].ChatID)
	assert.Equal(t, aliceID, hs.broadcast.sent[1].ChatID)
	assert.Equal(t, "maintenance tonight", hs.broadcast.sent[1].Text)
	assert.Equal(t, "Done: delivered 2/2", hs.out.lastText(t, operatorID).Text)
	assert.Equal(t, state.None, hs.state(operatorID))
}

func TestBlockingFlow(t *testing.T) {
	hs := newHarness(t)

	hs.text(operatorID, "/blocking")
	assert.Equal(t, blockingUsage, hs.out.lastText(t, operatorID).Text)
	hs.text(operatorID, "/blocking @nobody")
	assert.Equal(t, userNotFoundText, hs.out.lastText(t, operatorID).Text)

	hs.text(operatorID, "/blocking @alice")
	msg := hs.out.lastText(t, operatorID)
	assert.Equal(t, "50 (@alice)\n\n"+notBlockedStatus, msg.Text)
	assert.Equal(t, blockingKeyboard(aliceID, false), msg.Keyboard)

	hs.callback(operatorID, blockingTag, "block|50")
	assert.True(t, hs.field(aliceID, users.FieldBlocked))
	acts := hs.out.to(operatorID)
	edit, ok := acts[len(acts)-2].(outbound.EditMessage)
	require.True(t, ok)
	assert.Equal(t, nowBlockedText, edit.Text)
	assert.Equal(t, 99, edit.MessageID)
	assert.Nil(t, edit.Keyboard)
	assert.IsType(t, outbound.AnswerCallback{}, acts[len(acts)-1])

	hs.text(operatorID, "/blocking @alice")
	assert.Equal(t, blockingKeyboard(aliceID, true), hs.out.lastText(t, operatorID).Keyboard)
	hs.callback(operatorID, blockingTag, "unblock|50")
	assert.False(t, hs.field(aliceID, users.FieldBlocked))

	hs.callback(operatorID, blockingTag, "leave|50")
	acts = hs.out.to(operatorID)
	strip, ok := acts[len(acts)-2].(outbound.EditMarkup)
	require.True(t, ok)
	assert.Nil(t, strip.Keyboard)
	assert.Equal(t, cancelledText, acts[len(acts)-1].(outbound.AnswerCallback).Text)

	hs.callback(operatorID, blockingTag, "explode|50")
	assert.Equal(t, unsupportedText, hs.out.last(t, operatorID).(outbound.AnswerCallback).Text)
}

func TestOperatorsCannotBeBlocked(t *testing.T) {
	hs := newHarness(t)
	require.NoError(t, hs.records.SetField(hs.ctx, operatorID, users.FieldUsername, "root"))

	hs.text(operatorID, "/blocking @root")
	assert.Equal(t, operatorText, hs.out.lastText(t, operatorID).Text)
}

func TestRegisterCommandsPublishesPublicMenu(t *testing.T) {
	reg := coretelegram.NewRegistry()
	require.NoError(t, RegisterCommands(reg))

	var names []string
	for _, c := range reg.ListCommands() {
		names = append(names, c.Text)
	}
	assert.ElementsMatch(t, []string{"start", "cancel"}, names)
	assert.Error(t, RegisterCommands(reg), "duplicates are rejected")
}

type escalations struct {
	mu   sync.Mutex
	errs []error
}

func (e *escalations) Escalate(_ context.Context, _ string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs = append(e.errs, err)
}

func (e *escalations) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.errs)
}

var failureClasses = []outbound.Class{
	outbound.ClassPermissionRevoked,
	outbound.ClassInvalidRequest,
	outbound.ClassTransientNetwork,
}

func TestFailedReplyKeepsFlowAndIsNotEscalated(t *testing.T) {
	for _, class := range failureClasses {
		t.Run(string(class), func(t *testing.T) {
			hs := newHarness(t)
			esc := &escalations{}
			d := dispatch.New(hs.router.Handle, recovery.New(hs.store, hs.out, esc, recovery.Options{}))

			hs.text(clientID, "/start")
			require.Equal(t, awaitingPhone, hs.state(clientID))
			before := len(hs.out.to(clientID))

			hs.out.failing[clientID] = class
			d.Handle(hs.ctx, event.Message{Info: event.Meta{SenderID: clientID, ChatID: clientID}, Text: "hello"})

			assert.Zero(t, esc.count())
			assert.Equal(t, awaitingPhone, hs.state(clientID))
			assert.Len(t, hs.out.to(clientID), before+1, "only the validation reply is attempted")
		})
	}
}

func TestFailedEditOnBlockingIsNotEscalated(t *testing.T) {
	hs := newHarness(t)
	esc := &escalations{}
	d := dispatch.New(hs.router.Handle, recovery.New(hs.store, hs.out, esc, recovery.Options{}))

	hs.out.failing[operatorID] = outbound.ClassInvalidRequest
	d.Handle(hs.ctx, event.Callback{
		Info:      event.Meta{SenderID: operatorID, ChatID: operatorID},
		ID:        "cb-1",
		MessageID: 99,
		Unique:    blockingTag,
		Payload:   "block|50",
	})

	assert.Zero(t, esc.count())
	assert.True(t, hs.field(aliceID, users.FieldBlocked))
}

func TestFailedReportDeliveryIsNotABackgroundFault(t *testing.T) {
	hs := newHarness(t)
	hs.verify(clientID)
	hs.text(clientID, ReferenceButton)
	hs.document(clientID, "ref.ipynb")
	hs.text(clientID, StudentButton)

	hs.out.failing[clientID] = outbound.ClassTransientNetwork
	hs.document(clientID, "work.ipynb")

	require.Len(t, hs.grader.calls, 1)
	assert.Empty(t, hs.tasks.errs)
	assert.Equal(t, state.None, hs.state(clientID))
}
