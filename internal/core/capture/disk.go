package capture

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/colonyops/auditagent/internal/core/platform"
	"github.com/colonyops/auditagent/internal/core/schedule"
)

const lockTimeout = 10 * time.Second

// DiskMonitor asserts DiskPressure when the scratch folder crosses the
// policy high-water mark and clears it only below the low-water mark.
type DiskMonitor struct {
	dir    string
	policy PolicySource
	signal *Signal
	locker platform.SessionLocker
	logger zerolog.Logger

	mu    sync.Mutex
	usage atomic.Int64
}

// NewDiskMonitor creates a monitor for dir. When locker is non-nil the
// session is locked each time pressure is first asserted.
func NewDiskMonitor(dir string, pol PolicySource, signal *Signal, locker platform.SessionLocker, logger zerolog.Logger) *DiskMonitor {
	return &DiskMonitor{
		dir:    dir,
		policy: pol,
		signal: signal,
		locker: locker,
		logger: logger,
	}
}

// UsageBytes returns the folder size seen by the last check.
func (d *DiskMonitor) UsageBytes() int64 {
	return d.usage.Load()
}

// Check measures the folder and updates the DiskPressure reason. It returns
// the used fraction of the policy cap.
func (d *DiskMonitor) Check(ctx context.Context) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	used, err := FolderSize(d.dir)
	if err != nil {
		return 0, err
	}
	d.usage.Store(used)

	p := d.policy.Current()
	capBytes := p.MaxQueueFolderBytes()
	if capBytes <= 0 {
		return 0, nil
	}
	frac := float64(used) / float64(capBytes)

	if d.signal.Asserted() {
		if frac <= p.DiskUnlockFraction {
			d.logger.Info().Float64("used_pct", frac*100).Msg("scratch folder below low-water mark")
			d.signal.Clear()
		} else {
			d.logger.Debug().Float64("used_pct", frac*100).Msg("waiting for scratch folder to drain")
		}
		return frac, nil
	}

	if frac >= p.DiskLockFraction {
		d.logger.Warn().Float64("used_pct", frac*100).Int64("cap_mb", p.MaxQueueFolderMB).Msg("scratch folder above high-water mark")
		d.signal.Assert()
		if d.locker != nil {
			// Asserting cancels the tick context this check may be running under.
			lockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lockTimeout)
			err := d.locker.LockSession(lockCtx)
			cancel()
			if err != nil {
				d.logger.Warn().Err(err).Msg("session lock on disk pressure failed")
			}
		}
	}
	return frac, nil
}

// Run checks every interval and whenever changes fires, until ctx is
// cancelled. changes may be nil.
func (d *DiskMonitor) Run(ctx context.Context, interval time.Duration, changes <-chan struct{}) {
	var wg sync.WaitGroup
	defer wg.Wait()

	check := func(ctx context.Context) error {
		_, err := d.Check(ctx)
		return err
	}

	if changes != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-changes:
					if !ok {
						return
					}
					if err := check(ctx); err != nil {
						d.logger.Warn().Err(err).Msg("disk check failed")
					}
				}
			}
		}()
	}

	schedule.Every(ctx, "disk-check", d.logger, schedule.Fixed(interval), true, check)
}

// FolderSize sums the sizes of regular files under dir. A missing dir is
// empty.
func FolderSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, entry fs.DirEntry, err error) error {
		if err != nil {
			// Files may vanish mid-walk as the worker deletes delivered
			// artifacts.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return 0, err
	}
	return total, nil
}
