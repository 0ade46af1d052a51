// Package platform defines the operating-system capabilities the agent
// depends on and exec-backed implementations of them.
package platform

import (
	"context"
	"errors"
	"time"
)

// ErrCaptureUnavailable is returned when the capture provider produced no
// artifact.
var ErrCaptureUnavailable = errors.New("capture unavailable")

// Capturer produces one encoded screenshot.
type Capturer interface {
	Capture(ctx context.Context) ([]byte, error)
}

// IdleSource reports time since the last user input.
type IdleSource interface {
	IdleTime(ctx context.Context) (time.Duration, error)
}

// LockStateSource reports whether the interactive session is locked.
type LockStateSource interface {
	Locked(ctx context.Context) (bool, error)
}

// SessionLocker locks the interactive session.
type SessionLocker interface {
	LockSession(ctx context.Context) error
}
