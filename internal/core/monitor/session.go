package monitor

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/colonyops/auditagent/internal/core/platform"
)

// SessionMonitor mirrors session lock transitions onto its signal.
type SessionMonitor struct {
	notifier platform.LockNotifier
	signal   Signal
	logger   zerolog.Logger
}

func NewSessionMonitor(notifier platform.LockNotifier, signal Signal, logger zerolog.Logger) *SessionMonitor {
	return &SessionMonitor{notifier: notifier, signal: signal, logger: logger}
}

// Run consumes lock events until ctx is cancelled or the notifier closes
// its stream.
func (m *SessionMonitor) Run(ctx context.Context) {
	for ev := range m.notifier.Watch(ctx) {
		m.logger.Info().Stringer("state", ev).Msg("session lock state")
		m.signal.Set(ev == platform.SessionLocked)
	}
}
