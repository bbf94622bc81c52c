package operator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/gradebot/core/telegram/outbound"
)

type outbox struct {
	mu      sync.Mutex
	actions []outbound.Action
}

func (o *outbox) Send(_ context.Context, a outbound.Action) (outbound.Receipt, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.actions = append(o.actions, a)
	return outbound.Receipt{}, nil
}

func noFlush() error { return nil }

func TestChannelPrivileged(t *testing.T) {
	c := New([]int64{1, 2}, &outbox{}, Options{LogPath: func() string { return "" }, Flush: noFlush})
	assert.True(t, c.IsPrivileged(1))
	assert.False(t, c.IsPrivileged(3))

	ids := c.IDs()
	ids[0] = 99
	assert.True(t, c.IsPrivileged(1), "IDs returns a copy")
}

func TestStartupAndShutdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	require.NoError(t, os.WriteFile(path, []byte("line\n"), 0o600))
	out := &outbox{}
	c := New([]int64{10, 20}, out, Options{LogPath: func() string { return path }, Flush: noFlush})

	c.Startup(context.Background())
	c.Shutdown(context.Background())

	require.Len(t, out.actions, 4)
	for _, a := range out.actions[:2] {
		msg, ok := a.(outbound.TextMessage)
		require.True(t, ok)
		assert.Equal(t, StartupNotice, msg.Text)
	}
	for _, a := range out.actions[2:] {
		doc, ok := a.(outbound.Document)
		require.True(t, ok)
		assert.Equal(t, ShutdownNotice, doc.Caption)
		assert.Equal(t, path, doc.Path)
		assert.Equal(t, "bot.log", doc.FileName)
	}
}

func TestEscalateRedactsAndFallsBackToText(t *testing.T) {
	out := &outbox{}
	c := New([]int64{10}, out, Options{LogPath: func() string { return "" }, Flush: noFlush})

	c.Escalate(context.Background(), "inc-1", errors.New("token 123456789:ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefgh leaked"))

	require.Len(t, out.actions, 1)
	msg, ok := out.actions[0].(outbound.TextMessage)
	require.True(t, ok)
	assert.Contains(t, msg.Text, "🚨 Error:")
	assert.Contains(t, msg.Text, "Incident inc-1")
	assert.Contains(t, msg.Text, "bot<redacted>")
	assert.NotContains(t, msg.Text, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
}
