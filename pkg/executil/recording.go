package executil

import (
	"context"
	"sync"
)

// RecordedCommand captures a command that was executed.
type RecordedCommand struct {
	Cmd  string
	Args []string
}

// RecordingExecutor captures commands for testing.
// Configure Outputs and Errors maps to control return values.
type RecordingExecutor struct {
	mu       sync.Mutex
	Commands []RecordedCommand

	// Outputs maps command names to their stdout.
	// Key is the command name (e.g., "xprintidle").
	Outputs map[string][]byte

	// Errors maps command names to their error.
	Errors map[string]error
}

// Output records the command and returns configured output/error.
func (e *RecordingExecutor) Output(_ context.Context, cmd string, args ...string) ([]byte, error) {
	return e.record(cmd, args...)
}

// Run records the command and returns the configured error.
func (e *RecordingExecutor) Run(_ context.Context, cmd string, args ...string) error {
	_, err := e.record(cmd, args...)
	return err
}

// SetOutput replaces the configured stdout for cmd. Safe to call while
// another goroutine is executing commands.
func (e *RecordingExecutor) SetOutput(cmd string, out []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Outputs == nil {
		e.Outputs = make(map[string][]byte)
	}
	e.Outputs[cmd] = out
}

// Recorded returns a copy of the recorded commands.
func (e *RecordingExecutor) Recorded() []RecordedCommand {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]RecordedCommand, len(e.Commands))
	copy(out, e.Commands)
	return out
}

func (e *RecordingExecutor) record(cmd string, args ...string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.Commands = append(e.Commands, RecordedCommand{
		Cmd:  cmd,
		Args: args,
	})

	var out []byte
	var err error

	if e.Outputs != nil {
		out = e.Outputs[cmd]
	}
	if e.Errors != nil {
		err = e.Errors[cmd]
	}

	return out, err
}
