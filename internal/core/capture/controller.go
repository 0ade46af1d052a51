// Package capture owns the decision of whether capture is active and
// performs the periodic capture into the durable queue.
//
// Capture is active iff no suspend reason is asserted. Reasons come from
// independent sources (idle, session lock, disk pressure); each holds a
// Signal bound to its own reason, so one source clearing never re-enables
// capture while another reason is still asserted.
package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/rs/zerolog"

	"github.com/colonyops/auditagent/internal/core/eventbus"
	"github.com/colonyops/auditagent/internal/core/platform"
	"github.com/colonyops/auditagent/internal/core/policy"
	"github.com/colonyops/auditagent/internal/core/schedule"
)

// Enqueuer persists a captured artifact path.
type Enqueuer interface {
	Enqueue(path string) error
}

// PolicySource supplies the current policy snapshot.
type PolicySource interface {
	Current() policy.Policy
}

// Options configures where artifacts are written.
type Options struct {
	Dir       string
	Extension string
	Now       func() time.Time
}

// Controller arbitrates suspend reasons and runs the capture tick while
// active.
type Controller struct {
	capturer platform.Capturer
	queue    Enqueuer
	policy   PolicySource
	bus      *eventbus.EventBus
	logger   zerolog.Logger
	dir      string
	ext      string
	now      func() time.Time

	beforeCapture []func(ctx context.Context)

	mu         sync.Mutex
	reasons    mapset.Set[Reason]
	parent     context.Context
	started    bool
	stopped    bool
	gen        uint64
	cancelTick context.CancelFunc
	wg         sync.WaitGroup
}

// NewController creates a stopped controller with an empty reason set.
func NewController(capturer platform.Capturer, q Enqueuer, pol PolicySource, bus *eventbus.EventBus, logger zerolog.Logger, opts Options) *Controller {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		capturer: capturer,
		queue:    q,
		policy:   pol,
		bus:      bus,
		logger:   logger,
		dir:      opts.Dir,
		ext:      opts.Extension,
		now:      opts.Now,
		reasons:  mapset.NewThreadUnsafeSet[Reason](),
	}
}

// Signal returns the handle for reason. Hand each source its own handle.
func (c *Controller) Signal(reason Reason) *Signal {
	return &Signal{c: c, reason: reason}
}

// BeforeCapture registers fn to run at the start of every tick, before the
// controller re-checks whether it is still active.
func (c *Controller) BeforeCapture(fn func(ctx context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.beforeCapture = append(c.beforeCapture, fn)
}

// Start schedules the capture tick if no reason is asserted. Reasons
// asserted before Start are honored. Calling Start again is a no-op.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started || c.stopped {
		return
	}
	c.started = true
	c.parent = ctx

	if c.reasons.Cardinality() == 0 {
		c.startTickLocked()
		return
	}
	c.logger.Info().Strs("reasons", c.reasonsLocked()).Msg("capture starting suspended")
}

// Stop cancels the capture tick and waits for an in-flight capture to
// finish. It is idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.stopTickLocked()
	c.mu.Unlock()

	c.wg.Wait()
}

// Active reports whether capture is currently enabled.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reasons.Cardinality() == 0
}

// Reasons returns the asserted reasons in sorted order.
func (c *Controller) Reasons() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reasonsLocked()
}

func (c *Controller) reasonsLocked() []string {
	out := make([]string, 0, c.reasons.Cardinality())
	for _, r := range c.reasons.ToSlice() {
		out = append(out, string(r))
	}
	slices.Sort(out)
	return out
}

func (c *Controller) has(r Reason) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reasons.Contains(r)
}

func (c *Controller) assert(r Reason) {
	c.mu.Lock()
	wasActive := c.reasons.Cardinality() == 0
	if !c.reasons.Add(r) {
		c.mu.Unlock()
		return
	}
	if wasActive {
		c.stopTickLocked()
	}
	reasons := c.reasonsLocked()
	c.mu.Unlock()

	if wasActive {
		c.logger.Info().Str("reason", r.String()).Msg("capture suspended")
	} else {
		c.logger.Debug().Str("reason", r.String()).Strs("reasons", reasons).Msg("suspend reason added")
	}
	c.bus.PublishCaptureSuspended(eventbus.CaptureSuspendedPayload{Reason: r.String(), Reasons: reasons})
}

func (c *Controller) clear(r Reason) {
	c.mu.Lock()
	if !c.reasons.Contains(r) {
		c.mu.Unlock()
		return
	}
	c.reasons.Remove(r)

	if c.reasons.Cardinality() > 0 {
		reasons := c.reasonsLocked()
		c.mu.Unlock()
		c.logger.Debug().Str("reason", r.String()).Strs("remaining", reasons).Msg("suspend reason cleared, still suspended")
		return
	}

	interval := c.startTickLocked()
	c.mu.Unlock()

	c.logger.Info().Str("reason", r.String()).Dur("interval", interval).Msg("capture resumed")
	c.bus.PublishCaptureResumed(eventbus.CaptureResumedPayload{Reason: r.String(), Interval: interval})
}

// startTickLocked schedules a fresh tick at the current policy interval.
// Before Start, or after Stop, nothing is scheduled.
func (c *Controller) startTickLocked() time.Duration {
	interval := c.policy.Current().CaptureInterval
	if !c.started || c.stopped {
		return interval
	}

	ctx, cancel := context.WithCancel(c.parent)
	c.gen++
	gen := c.gen
	c.cancelTick = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		schedule.Every(ctx, "capture", c.logger, schedule.Fixed(interval), true, func(ctx context.Context) error {
			return c.captureIfActive(ctx, gen)
		})
	}()
	return interval
}

func (c *Controller) stopTickLocked() {
	if c.cancelTick != nil {
		c.cancelTick()
		c.cancelTick = nil
	}
}

// current reports whether gen is the live tick and capture is active.
func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentLocked(gen)
}

func (c *Controller) currentLocked(gen uint64) bool {
	return c.gen == gen && c.cancelTick != nil && c.reasons.Cardinality() == 0
}

func (c *Controller) captureIfActive(ctx context.Context, gen uint64) error {
	if !c.current(gen) {
		return nil
	}

	c.mu.Lock()
	hooks := slices.Clone(c.beforeCapture)
	c.mu.Unlock()
	for _, fn := range hooks {
		fn(ctx)
	}

	if ctx.Err() != nil || !c.current(gen) {
		return nil
	}

	data, err := c.capturer.Capture(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		captureFailures.Add(ctx, 1)
		c.bus.PublishCaptureFailed(eventbus.CaptureFailedPayload{Err: err.Error()})
		return fmt.Errorf("capture: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// A suspend may have landed while the provider was running.
	if ctx.Err() != nil || !c.currentLocked(gen) {
		c.logger.Debug().Msg("dropping capture taken across a suspend")
		return nil
	}

	path, err := c.writeArtifact(data)
	if err != nil {
		captureFailures.Add(ctx, 1)
		c.bus.PublishCaptureFailed(eventbus.CaptureFailedPayload{Err: err.Error()})
		return err
	}

	if err := c.queue.Enqueue(path); err != nil {
		// The file stays on disk and is adopted on the next start.
		return fmt.Errorf("enqueue artifact: %w", err)
	}

	artifactsCaptured.Add(ctx, 1)
	c.logger.Debug().Str("artifact", path).Int("bytes", len(data)).Msg("artifact captured")
	c.bus.PublishArtifactStored(eventbus.ArtifactStoredPayload{Path: path})
	return nil
}

// ArtifactName renders the timestamp-ordered file name for t.
func ArtifactName(t time.Time, ext string) string {
	return fmt.Sprintf("%s%03d.%s", t.Format("20060102_150405"), t.Nanosecond()/int(time.Millisecond), ext)
}

// writeArtifact stores data under a timestamp name. The rename makes the
// artifact visible only once complete.
func (c *Controller) writeArtifact(data []byte) (string, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}

	dir, err := filepath.Abs(c.dir)
	if err != nil {
		return "", fmt.Errorf("resolve scratch dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".capture-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create artifact: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close artifact: %w", err)
	}

	t := c.now()
	path := filepath.Join(dir, ArtifactName(t, c.ext))
	for i := 1; fileExists(path); i++ {
		path = filepath.Join(dir, ArtifactName(t.Add(time.Duration(i)*time.Millisecond), c.ext))
	}

	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("rename artifact: %w", err)
	}
	return path, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
