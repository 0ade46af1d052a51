package platform

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LockEvent is a session lock transition.
type LockEvent int

const (
	SessionLocked LockEvent = iota + 1
	SessionUnlocked
)

func (e LockEvent) String() string {
	switch e {
	case SessionLocked:
		return "locked"
	case SessionUnlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

// LockNotifier streams session lock transitions.
type LockNotifier interface {
	// Watch emits transitions until ctx is cancelled, then closes the
	// channel.
	Watch(ctx context.Context) <-chan LockEvent
}

// PollingLockNotifier turns a LockStateSource into a LockNotifier by
// sampling it and emitting on change. The first successful sample is always
// emitted.
type PollingLockNotifier struct {
	source   LockStateSource
	interval time.Duration
	logger   zerolog.Logger
}

func NewPollingLockNotifier(source LockStateSource, interval time.Duration, logger zerolog.Logger) *PollingLockNotifier {
	return &PollingLockNotifier{source: source, interval: interval, logger: logger}
}

func (n *PollingLockNotifier) Watch(ctx context.Context) <-chan LockEvent {
	ch := make(chan LockEvent, 1)

	go func() {
		defer close(ch)

		var (
			last  bool
			known bool
		)

		ticker := time.NewTicker(n.interval)
		defer ticker.Stop()

		for {
			locked, err := n.source.Locked(ctx)
			switch {
			case err != nil:
				if ctx.Err() == nil {
					n.logger.Warn().Err(err).Msg("lock state query failed")
				}
			case !known || locked != last:
				known, last = true, locked
				ev := SessionUnlocked
				if locked {
					ev = SessionLocked
				}
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return ch
}
