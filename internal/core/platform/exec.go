package platform

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/colonyops/auditagent/pkg/executil"
)

// lookPath is swapped in tests.
var lookPath = exec.LookPath

type command struct {
	exec executil.Executor
	name string
	args []string
}

func newCommand(e executil.Executor, argv []string) (command, error) {
	name, args, err := executil.Split(argv)
	if err != nil {
		return command{}, err
	}
	if _, err := lookPath(name); err != nil {
		return command{}, fmt.Errorf("command %q not found: %w", name, err)
	}
	return command{exec: e, name: name, args: args}, nil
}

func (c command) output(ctx context.Context) ([]byte, error) {
	return c.exec.Output(ctx, c.name, c.args...)
}

// ExecCapturer runs a command that writes the encoded image to stdout.
type ExecCapturer struct {
	cmd command
}

// NewExecCapturer fails when the capture command cannot be resolved.
func NewExecCapturer(e executil.Executor, argv []string) (*ExecCapturer, error) {
	cmd, err := newCommand(e, argv)
	if err != nil {
		return nil, fmt.Errorf("capture provider: %w", err)
	}
	return &ExecCapturer{cmd: cmd}, nil
}

func (c *ExecCapturer) Capture(ctx context.Context) ([]byte, error) {
	out, err := c.cmd.output(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCaptureUnavailable, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty output from %s", ErrCaptureUnavailable, c.cmd.name)
	}
	return out, nil
}

// ExecIdleSource runs a command that prints idle milliseconds, as xprintidle
// does.
type ExecIdleSource struct {
	cmd command
}

func NewExecIdleSource(e executil.Executor, argv []string) (*ExecIdleSource, error) {
	cmd, err := newCommand(e, argv)
	if err != nil {
		return nil, fmt.Errorf("idle provider: %w", err)
	}
	return &ExecIdleSource{cmd: cmd}, nil
}

func (s *ExecIdleSource) IdleTime(ctx context.Context) (time.Duration, error) {
	out, err := s.cmd.output(ctx)
	if err != nil {
		return 0, err
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64)
	if err != nil || ms < 0 {
		return 0, fmt.Errorf("parse idle time %q", strings.TrimSpace(string(out)))
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// ExecLockStateSource runs a command that prints a boolean lock state such as
// the LockedHint property of loginctl.
type ExecLockStateSource struct {
	cmd command
}

func NewExecLockStateSource(e executil.Executor, argv []string) (*ExecLockStateSource, error) {
	cmd, err := newCommand(e, argv)
	if err != nil {
		return nil, fmt.Errorf("session provider: %w", err)
	}
	return &ExecLockStateSource{cmd: cmd}, nil
}

func (s *ExecLockStateSource) Locked(ctx context.Context) (bool, error) {
	out, err := s.cmd.output(ctx)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(string(out))) {
	case "yes", "true", "1", "locked":
		return true, nil
	case "no", "false", "0", "unlocked":
		return false, nil
	default:
		return false, fmt.Errorf("parse lock state %q", strings.TrimSpace(string(out)))
	}
}

// ExecSessionLocker runs a command that locks the session.
type ExecSessionLocker struct {
	cmd command
}

func NewExecSessionLocker(e executil.Executor, argv []string) (*ExecSessionLocker, error) {
	cmd, err := newCommand(e, argv)
	if err != nil {
		return nil, fmt.Errorf("lock provider: %w", err)
	}
	return &ExecSessionLocker{cmd: cmd}, nil
}

func (l *ExecSessionLocker) LockSession(ctx context.Context) error {
	return l.cmd.exec.Run(ctx, l.cmd.name, l.cmd.args...)
}
