package grading

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspaceLayout(t *testing.T) {
	root := t.TempDir()
	w := Workspace{Root: root}

	require.NoError(t, w.Prepare(42))
	for _, role := range []Role{RoleReference, RoleStudent} {
		info, err := os.Stat(w.Dir(42, role))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	assert.Equal(t, filepath.Join(root, "notebook_42", "student", "hw.ipynb"), w.Path(42, RoleStudent))

	req := w.Request(42)
	assert.Equal(t, w.Path(42, RoleReference), req.Reference)
	assert.Equal(t, int64(42), req.UserID)
}

func TestCommandGraderReport(t *testing.T) {
	g, err := NewCommandGrader([]string{"sh", "-c", `echo "ref=$0 student=$1"`}, 5*time.Second)
	require.NoError(t, err)

	rep, err := g.Grade(context.Background(), Request{Reference: "a.ipynb", Student: "b.ipynb"})
	require.NoError(t, err)
	assert.Equal(t, "ref=a.ipynb student=b.ipynb", rep.Text)
}

func TestCommandGraderFailureCarriesStderr(t *testing.T) {
	g, err := NewCommandGrader([]string{"sh", "-c", `echo "bad notebook" >&2; exit 3`}, 5*time.Second)
	require.NoError(t, err)

	_, err = g.Grade(context.Background(), Request{Reference: "a", Student: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad notebook")
}

func TestCommandGraderTimeout(t *testing.T) {
	g, err := NewCommandGrader([]string{"sh", "-c", "exec sleep 5"}, 100*time.Millisecond)
	require.NoError(t, err)

	start := time.Now()
	_, err = g.Grade(context.Background(), Request{})
	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestNewCommandGraderRejectsEmpty(t *testing.T) {
	_, err := NewCommandGrader(nil, time.Second)
	assert.Error(t, err)
}
