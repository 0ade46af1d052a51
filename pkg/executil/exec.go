// Package executil provides command execution utilities used by the
// exec-backed platform providers.
package executil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

const maxStderrLen = 500

// limitedWriter caps writes to a bytes.Buffer at a maximum byte count.
// Bytes beyond the limit are silently discarded.
type limitedWriter struct {
	buf *bytes.Buffer
	n   int64
	max int64
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if w.n >= w.max {
		return len(p), nil
	}
	remaining := w.max - w.n
	origLen := len(p)
	if int64(origLen) > remaining {
		p = p[:remaining]
	}
	n, err := w.buf.Write(p)
	w.n += int64(n)
	if err != nil {
		return n, err
	}
	return origLen, nil
}

// Executor runs external commands.
type Executor interface {
	// Output executes a command and returns its stdout. Stderr is only
	// surfaced as part of the error message.
	Output(ctx context.Context, cmd string, args ...string) ([]byte, error)
	// Run executes a command and discards its output.
	Run(ctx context.Context, cmd string, args ...string) error
}

// RealExecutor calls actual commands.
type RealExecutor struct{}

// Output executes a command and returns stdout. On failure, stderr is returned
// as the error message, capped at 500 bytes so binary or ANSI-polluted output
// does not end up in logs. The original *exec.ExitError is preserved via
// wrapping so callers can inspect exit codes with errors.As.
func (e *RealExecutor) Output(ctx context.Context, cmd string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	c := exec.CommandContext(ctx, cmd, args...)
	c.Stdout = &stdout
	c.Stderr = &limitedWriter{buf: &stderr, max: maxStderrLen}
	if err := c.Run(); err != nil {
		return nil, wrapErr(cmd, stderr.String(), err)
	}
	return stdout.Bytes(), nil
}

// Run executes a command and discards stdout.
func (e *RealExecutor) Run(ctx context.Context, cmd string, args ...string) error {
	var stderr bytes.Buffer
	c := exec.CommandContext(ctx, cmd, args...)
	c.Stdout = io.Discard
	c.Stderr = &limitedWriter{buf: &stderr, max: maxStderrLen}
	if err := c.Run(); err != nil {
		return wrapErr(cmd, stderr.String(), err)
	}
	return nil
}

func wrapErr(cmd, stderr string, err error) error {
	msg := strings.TrimSpace(stderr)
	if msg != "" {
		return fmt.Errorf("exec %s: %s: %w", cmd, msg, err)
	}
	return fmt.Errorf("exec %s: %w", cmd, err)
}

// Split separates an argv slice into command and arguments.
// It returns an error when argv is empty.
func Split(argv []string) (string, []string, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return "", nil, fmt.Errorf("empty command")
	}
	return argv[0], argv[1:], nil
}
