// Package monitor contains the signal sources that feed the capture
// controller and the periodic health report.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/colonyops/auditagent/internal/core/platform"
	"github.com/colonyops/auditagent/internal/core/policy"
	"github.com/colonyops/auditagent/internal/core/schedule"
)

// Signal is the subset of capture.Signal a monitor needs.
type Signal interface {
	Set(on bool)
	Asserted() bool
}

// PolicySource supplies the current policy snapshot.
type PolicySource interface {
	Current() policy.Policy
}

// IdleMonitor asserts its signal while the user has been idle for at least
// the policy idle timeout.
type IdleMonitor struct {
	source platform.IdleSource
	policy PolicySource
	signal Signal
	logger zerolog.Logger
}

func NewIdleMonitor(source platform.IdleSource, pol PolicySource, signal Signal, logger zerolog.Logger) *IdleMonitor {
	return &IdleMonitor{source: source, policy: pol, signal: signal, logger: logger}
}

// Check samples idle time once. On a provider error the signal is left as
// it was.
func (m *IdleMonitor) Check(ctx context.Context) error {
	idle, err := m.source.IdleTime(ctx)
	if err != nil {
		return fmt.Errorf("query idle time: %w", err)
	}

	threshold := m.policy.Current().IdleTimeout
	isIdle := idle >= threshold

	if isIdle != m.signal.Asserted() {
		m.logger.Info().
			Dur("idle", idle.Truncate(time.Second)).
			Dur("threshold", threshold).
			Bool("idle_now", isIdle).
			Msg("user idle state changed")
	}
	m.signal.Set(isIdle)
	return nil
}

// Run samples every interval until ctx is cancelled.
func (m *IdleMonitor) Run(ctx context.Context, interval time.Duration) {
	schedule.Every(ctx, "idle-monitor", m.logger, schedule.Fixed(interval), false, m.Check)
}
