// Package grading runs the external notebook grader and lays out uploaded notebooks.
package grading

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrTimeout is returned when the grader exceeds its deadline.
var ErrTimeout = errors.New("grading: timed out")

// Role selects which notebook of a user is meant.
type Role string

const (
	RoleReference Role = "reference"
	RoleStudent   Role = "student"
)

// Request names the two notebooks to compare.
type Request struct {
	UserID    int64
	Reference string
	Student   string
}

// Report is the grader's text output.
type Report struct {
	Text string
	Took time.Duration
}

// Grader evaluates a student notebook against the reference.
type Grader interface {
	Grade(ctx context.Context, req Request) (Report, error)
}

// CommandGrader runs argv with the reference and student paths appended.
// Stdout is the report; a non-zero exit is an error carrying the stderr tail.
type CommandGrader struct {
	argv    []string
	timeout time.Duration
}

// NewCommandGrader returns a grader for argv. timeout <= 0 means no deadline.
func NewCommandGrader(argv []string, timeout time.Duration) (*CommandGrader, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, errors.New("grading: empty command")
	}
	return &CommandGrader{argv: append([]string(nil), argv...), timeout: timeout}, nil
}

func (g *CommandGrader) Grade(ctx context.Context, req Request) (Report, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	start := time.Now()
	args := append(append([]string(nil), g.argv[1:]...), req.Reference, req.Student)
	cmd := exec.CommandContext(ctx, g.argv[0], args...)
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	took := time.Since(start)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Report{Took: took}, fmt.Errorf("%w after %s", ErrTimeout, took.Round(time.Millisecond))
	}
	if err != nil {
		return Report{Took: took}, fmt.Errorf("grading: %w: %s", err, tail(stderr.String(), 300))
	}
	return Report{Text: strings.TrimSpace(stdout.String()), Took: took}, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > n {
		return "..." + string(r[len(r)-n:])
	}
	return s
}

// Workspace is the on-disk layout <root>/notebook_<id>/<role>/hw.ipynb.
type Workspace struct {
	Root string
}

// Dir returns the directory of one role of a user.
func (w Workspace) Dir(userID int64, role Role) string {
	return filepath.Join(w.Root, "notebook_"+strconv.FormatInt(userID, 10), string(role))
}

// Path returns the notebook file of one role of a user.
func (w Workspace) Path(userID int64, role Role) string {
	return filepath.Join(w.Dir(userID, role), "hw.ipynb")
}

// Prepare creates both role directories of a user.
func (w Workspace) Prepare(userID int64) error {
	for _, role := range []Role{RoleReference, RoleStudent} {
		if err := os.MkdirAll(w.Dir(userID, role), 0o755); err != nil {
			return fmt.Errorf("grading: prepare %d: %w", userID, err)
		}
	}
	return nil
}

// Request builds the grading request for a user's current uploads.
func (w Workspace) Request(userID int64) Request {
	return Request{
		UserID:    userID,
		Reference: w.Path(userID, RoleReference),
		Student:   w.Path(userID, RoleStudent),
	}
}
