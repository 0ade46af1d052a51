// Package agent wires the capture, queue and delivery components into one
// process and owns their start and shutdown order.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/colonyops/auditagent/internal/core/ackchannel"
	"github.com/colonyops/auditagent/internal/core/capture"
	"github.com/colonyops/auditagent/internal/core/config"
	"github.com/colonyops/auditagent/internal/core/delivery"
	"github.com/colonyops/auditagent/internal/core/eventbus"
	"github.com/colonyops/auditagent/internal/core/logging"
	"github.com/colonyops/auditagent/internal/core/monitor"
	"github.com/colonyops/auditagent/internal/core/platform"
	"github.com/colonyops/auditagent/internal/core/policy"
	"github.com/colonyops/auditagent/internal/core/queue"
	"github.com/colonyops/auditagent/internal/core/reporter"
	"github.com/colonyops/auditagent/pkg/executil"
)

// ErrElevated is returned when the agent is started with elevated privileges.
var ErrElevated = errors.New("refusing to run with elevated privileges")

const busBuffer = 256

// Providers are the platform capabilities the agent depends on.
type Providers struct {
	Capturer platform.Capturer
	Idle     platform.IdleSource
	Lock     platform.LockNotifier
	Locker   platform.SessionLocker // nil disables lock escalation
}

// ExecProviders builds command-backed providers from the configuration.
func ExecProviders(cfg *config.Config, e executil.Executor) (Providers, error) {
	capturer, err := platform.NewExecCapturer(e, cfg.Capture.Command)
	if err != nil {
		return Providers{}, fmt.Errorf("capture provider: %w", err)
	}

	idle, err := platform.NewExecIdleSource(e, cfg.Idle.Command)
	if err != nil {
		return Providers{}, fmt.Errorf("idle provider: %w", err)
	}

	lockState, err := platform.NewExecLockStateSource(e, cfg.Session.Command)
	if err != nil {
		return Providers{}, fmt.Errorf("session provider: %w", err)
	}

	p := Providers{
		Capturer: capturer,
		Idle:     idle,
		Lock:     platform.NewPollingLockNotifier(lockState, cfg.Session.PollInterval, logging.Component("session")),
	}

	if cfg.Capture.LockOnDiskPressure {
		locker, err := platform.NewExecSessionLocker(e, cfg.Capture.LockCommand)
		if err != nil {
			return Providers{}, fmt.Errorf("lock provider: %w", err)
		}
		p.Locker = locker
	}

	return p, nil
}

// Agent owns every long-running unit of the process.
type Agent struct {
	cfg    *config.Config
	logger zerolog.Logger

	bus        *eventbus.EventBus
	policy     *policy.Cache
	queue      *queue.Queue
	controller *capture.Controller
	disk       *capture.DiskMonitor
	watcher    *capture.ScratchWatcher
	idle       *monitor.IdleMonitor
	session    *monitor.SessionMonitor
	channel    *ackchannel.Channel
	worker     *delivery.Worker
	reporter   *reporter.Reporter
	health     *monitor.HealthReporter

	elevated func() (bool, error)

	mu            sync.Mutex
	sensors       *errgroup.Group
	stopSensors   context.CancelFunc
	delivery      *errgroup.Group
	transport     *errgroup.Group
	stopTransport context.CancelFunc
	stopOnce      sync.Once
	stopErr       error
	stopped       chan struct{}
}

// New constructs every component and restores the persisted queue.
// Nothing runs until Run is called.
func New(cfg *config.Config, providers Providers, client *http.Client) (*Agent, error) {
	wsURL, err := cfg.HeartbeatURL()
	if err != nil {
		return nil, fmt.Errorf("heartbeat url: %w", err)
	}

	a := &Agent{
		cfg:      cfg,
		logger:   logging.Component("agent"),
		bus:      eventbus.New(busBuffer),
		elevated: platform.Elevated,
		stopped:  make(chan struct{}),
	}
	eventbus.RegisterDebugLogger(a.bus, logging.Component("bus"))

	a.policy = policy.NewCache(
		policy.HTTPFetcher(client, cfg.Endpoint("/settings/latest"), cfg.Server.ClientID),
		a.bus,
		logging.Component("policy"),
	)

	if err := os.MkdirAll(cfg.Queue.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create queue dir: %w", err)
	}

	q, err := queue.Open(cfg.QueueFile(), cfg.Queue.MaxRetries, logging.Component("queue"))
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}
	a.queue = q

	if cfg.AdoptOrphans() {
		n, err := q.AdoptOrphans(cfg.Queue.Dir, cfg.Capture.Extension)
		if err != nil {
			a.logger.Warn().Err(err).Msg("orphan scan failed")
		} else if n > 0 {
			a.logger.Info().Int("count", n).Msg("adopted orphaned artifacts")
		}
	}

	a.controller = capture.NewController(providers.Capturer, q, a.policy, a.bus, logging.Component("capture"), capture.Options{
		Dir:       cfg.Queue.Dir,
		Extension: cfg.Capture.Extension,
	})

	a.disk = capture.NewDiskMonitor(
		cfg.Queue.Dir,
		a.policy,
		a.controller.Signal(capture.ReasonDiskPressure),
		providers.Locker,
		logging.Component("disk"),
	)
	a.controller.BeforeCapture(func(ctx context.Context) {
		if _, err := a.disk.Check(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("disk check before capture failed")
		}
	})

	a.idle = monitor.NewIdleMonitor(providers.Idle, a.policy, a.controller.Signal(capture.ReasonUserIdle), logging.Component("idle"))
	a.session = monitor.NewSessionMonitor(providers.Lock, a.controller.Signal(capture.ReasonSessionLocked), logging.Component("session"))

	a.channel = ackchannel.New(ackchannel.Options{
		URL:          wsURL,
		ClientID:     cfg.Server.ClientID,
		ReconnectMin: cfg.Channel.ReconnectMin,
		ReconnectMax: cfg.Channel.ReconnectMax,
	}, ackchannel.NewRegistry(logging.Component("acks")), a.policy, a.bus, logging.Component("channel"))

	uploader := delivery.NewHTTPUploader(client, delivery.UploaderOptions{
		URL:       cfg.Endpoint("/upload"),
		ClientID:  cfg.Server.ClientID,
		Attempts:  cfg.Delivery.UploadAttempts,
		BaseDelay: cfg.Delivery.UploadBaseDelay,
	}, logging.Component("uploader"))

	a.worker = delivery.NewWorker(q, a.channel, uploader, a.policy, a.bus, logging.Component("delivery"), delivery.WorkerOptions{
		FailurePause:  cfg.Delivery.FailurePause,
		ReconnectWait: cfg.Delivery.ReconnectWait,
	})

	if cfg.ReportEnabled() {
		a.reporter = reporter.New(client, reporter.Options{
			EventsURL: cfg.Endpoint("/logs"),
			ErrorsURL: cfg.Endpoint("/logs/error"),
			ClientID:  cfg.Server.ClientID,
			IPAddress: reporter.LocalIP(cfg.Server.BaseURL),
		}, logging.Component("reporter"))
		a.reporter.Subscribe(a.bus)
	}

	a.health = monitor.NewHealthReporter(a.channel, q, a.disk, a.controller, logging.Component("health"))

	// Opened last: Stop is the only thing that closes it.
	watcher, err := capture.NewScratchWatcher(cfg.Queue.Dir, logging.Component("watcher"))
	if err != nil {
		// The periodic disk check still runs without change notifications.
		a.logger.Warn().Err(err).Msg("scratch watcher unavailable")
	}
	a.watcher = watcher

	return a, nil
}

// Bus exposes the event bus so callers can observe state changes.
func (a *Agent) Bus() *eventbus.EventBus {
	return a.bus
}

// Health returns a point-in-time health snapshot.
func (a *Agent) Health() monitor.Health {
	return a.health.Snapshot()
}

// Queue returns the durable upload queue.
func (a *Agent) Queue() *queue.Queue {
	return a.queue
}

// Run starts every unit and blocks until ctx is cancelled or Stop is
// called, then performs the ordered shutdown. The returned error is non-nil
// only for startup failures.
func (a *Agent) Run(ctx context.Context) error {
	elevated, err := a.elevated()
	if err != nil {
		a.logger.Warn().Err(err).Msg("unable to determine privilege level")
	}
	if elevated {
		return ErrElevated
	}

	a.mu.Lock()
	select {
	case <-a.stopped:
		a.mu.Unlock()
		return nil
	default:
	}
	transportCtx, stopTransport := context.WithCancel(context.WithoutCancel(ctx))
	sensorsCtx, stopSensors := context.WithCancel(context.WithoutCancel(ctx))
	a.stopTransport, a.stopSensors = stopTransport, stopSensors
	a.transport, a.sensors, a.delivery = &errgroup.Group{}, &errgroup.Group{}, &errgroup.Group{}
	a.start(ctx, transportCtx, sensorsCtx)
	a.mu.Unlock()

	select {
	case <-ctx.Done():
	case <-a.stopped:
	}

	if err := a.Stop(); err != nil {
		a.logger.Error().Err(err).Msg("shutdown completed with errors")
	}
	return nil
}

// start launches every unit. Called with a.mu held so Stop observes either
// no groups or fully populated ones.
func (a *Agent) start(ctx, transportCtx, sensorsCtx context.Context) {
	a.transport.Go(func() error { a.bus.Start(transportCtx); return nil })

	// The first fetch is synchronous so capture starts with the collector's
	// interval when it is reachable; defaults apply otherwise.
	if err := a.policy.Refresh(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("initial policy fetch failed, using defaults")
	}

	a.transport.Go(func() error { a.policy.Run(transportCtx, a.cfg.Policy.RefreshInterval, false); return nil })
	a.transport.Go(func() error { a.channel.Run(transportCtx); return nil })
	if a.reporter != nil {
		a.transport.Go(func() error { a.reporter.Run(transportCtx); return nil })
	}

	// Seed suspend reasons before the first tick so a locked or full
	// machine never produces a capture at startup.
	if _, err := a.disk.Check(sensorsCtx); err != nil {
		a.logger.Warn().Err(err).Msg("initial disk check failed")
	}
	if err := a.idle.Check(sensorsCtx); err != nil {
		a.logger.Warn().Err(err).Msg("initial idle check failed")
	}

	var changes <-chan struct{}
	if a.watcher != nil {
		changes = a.watcher.Changes()
	}

	a.sensors.Go(func() error { a.disk.Run(sensorsCtx, a.cfg.Capture.DiskCheckInterval, changes); return nil })
	a.sensors.Go(func() error { a.idle.Run(sensorsCtx, a.cfg.Idle.PollInterval); return nil })
	a.sensors.Go(func() error { a.session.Run(sensorsCtx); return nil })
	a.sensors.Go(func() error { a.health.Run(sensorsCtx, a.cfg.Health.Interval); return nil })

	a.controller.Start(sensorsCtx)

	a.delivery.Go(func() error { a.worker.Run(transportCtx); return nil })

	a.logger.Info().
		Str("client_id", a.cfg.Server.ClientID).
		Str("queue_dir", a.cfg.Queue.Dir).
		Int("pending", a.queue.Size()).
		Msg("agent started")
}

// Stop shuts units down in order: health and the suspend-reason sources,
// then capture, then the delivery worker, then the channel and policy
// refresher. The queue snapshot is already durable so nothing is flushed.
// Stop is idempotent; errors from every phase are aggregated.
func (a *Agent) Stop() error {
	a.stopOnce.Do(func() {
		a.mu.Lock()
		close(a.stopped)
		sensors, stopSensors := a.sensors, a.stopSensors
		deliveryGroup := a.delivery
		transport, stopTransport := a.transport, a.stopTransport
		a.mu.Unlock()

		var errs *multierror.Error

		if stopSensors != nil {
			stopSensors()
			errs = multierror.Append(errs, sensors.Wait())
		}

		a.controller.Stop()

		if a.watcher != nil {
			if err := a.watcher.Close(); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("close scratch watcher: %w", err))
			}
		}

		a.worker.Stop()
		if deliveryGroup != nil {
			errs = multierror.Append(errs, deliveryGroup.Wait())
		}

		if stopTransport != nil {
			stopTransport()
			errs = multierror.Append(errs, transport.Wait())
		}

		a.logger.Info().Int("pending", a.queue.Size()).Msg("agent stopped")
		a.stopErr = errs.ErrorOrNil()
	})
	return a.stopErr
}
