// Package schedule runs independently cancellable periodic tasks. Each task
// runs on its own goroutine so a slow tick in one never stalls another.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// IntervalFunc returns the delay before the next run. It is re-evaluated
// after every run so live policy changes take effect on the next tick.
type IntervalFunc func() time.Duration

// Fixed returns an IntervalFunc that always yields d.
func Fixed(d time.Duration) IntervalFunc {
	return func() time.Duration { return d }
}

// Task is a unit of periodic work. Errors are logged, never propagated.
type Task func(ctx context.Context) error

// Every runs task every interval until ctx is cancelled. When immediate is
// true the first run happens before the first wait. It blocks until ctx is
// cancelled.
//
// A panic or error in task is logged and the schedule continues.
func Every(ctx context.Context, name string, logger zerolog.Logger, interval IntervalFunc, immediate bool, task Task) {
	if immediate {
		runOnce(ctx, name, logger, task)
	}

	for {
		d := interval()
		if d <= 0 {
			d = time.Second
		}

		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			runOnce(ctx, name, logger, task)
		}
	}
}

func runOnce(ctx context.Context, name string, logger zerolog.Logger, task Task) {
	if ctx.Err() != nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Str("task", name).Str("panic", fmt.Sprint(r)).Msg("scheduled task panicked")
		}
	}()

	if err := task(ctx); err != nil {
		logger.Warn().Err(err).Str("task", name).Msg("scheduled task failed")
	}
}

// Sleep waits for d or until ctx is cancelled. It reports whether the full
// duration elapsed.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
