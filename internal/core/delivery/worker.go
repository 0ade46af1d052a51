// Package delivery drains the durable queue: each artifact is uploaded and
// only removed once the collector acknowledges it over the ack channel.
package delivery

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/colonyops/auditagent/internal/core/eventbus"
	"github.com/colonyops/auditagent/internal/core/logging"
	"github.com/colonyops/auditagent/internal/core/policy"
	"github.com/colonyops/auditagent/internal/core/queue"
	"github.com/colonyops/auditagent/internal/core/schedule"
)

// DefaultAckTimeout applies when the policy carries no positive timeout.
const DefaultAckTimeout = 20 * time.Second

// Queue is the part of the durable queue the worker drives.
type Queue interface {
	PeekOldest() (queue.Item, bool)
	MarkComplete(path string) error
	IncrementRetry(path string) (bool, error)
	Notify() <-chan struct{}
}

// AckChannel correlates uploads with acknowledgments.
type AckChannel interface {
	WaitConnected(ctx context.Context, timeout time.Duration) bool
	PrepareAck(id string) error
	WaitForAck(ctx context.Context, id string, timeout time.Duration) (bool, error)
	CancelAck(id string)
}

// Submitter sends one artifact.
type Submitter interface {
	Upload(ctx context.Context, path, uploadID string) error
}

// PolicySource supplies the current policy snapshot.
type PolicySource interface {
	Current() policy.Policy
}

// WorkerOptions tunes the pauses in the drain loop.
type WorkerOptions struct {
	FailurePause  time.Duration
	ReconnectWait time.Duration
}

// Worker is the single consumer of the queue. At most one upload is in
// flight at a time and items are attempted strictly oldest first.
type Worker struct {
	queue     Queue
	channel   AckChannel
	submitter Submitter
	policy    PolicySource
	bus       *eventbus.EventBus
	logger    zerolog.Logger
	opts      WorkerOptions
	newID     func() string

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

func NewWorker(q Queue, channel AckChannel, submitter Submitter, pol PolicySource, bus *eventbus.EventBus, logger zerolog.Logger, opts WorkerOptions) *Worker {
	return &Worker{
		queue:     q,
		channel:   channel,
		submitter: submitter,
		policy:    pol,
		bus:       bus,
		logger:    logger,
		opts:      opts,
		newID:     uuid.NewString,
	}
}

// Run drains the queue until ctx is cancelled or Stop is called.
func (w *Worker) Run(ctx context.Context) {
	w.mu.Lock()
	if w.stopped || w.done != nil {
		w.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	done := w.done
	w.mu.Unlock()

	defer close(done)
	defer cancel()

	w.logger.Info().Msg("delivery worker started")
	for ctx.Err() == nil {
		item, ok := w.queue.PeekOldest()
		if !ok {
			select {
			case <-w.queue.Notify():
			case <-ctx.Done():
			}
			continue
		}

		switch w.deliver(ctx, item) {
		case outcomeSubmitFailed, outcomeDeferred:
			schedule.Sleep(ctx, w.opts.FailurePause)
		}
	}
	w.logger.Info().Msg("delivery worker stopped")
}

// Stop interrupts any blocked wait and returns once the loop has exited.
// An attempt interrupted mid-flight leaves its item untouched. Stop is
// idempotent and safe to call before Run.
func (w *Worker) Stop() {
	w.mu.Lock()
	w.stopped = true
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// deliver performs one attempt for item and reports the outcome; an empty
// outcome means the attempt was interrupted by shutdown.
func (w *Worker) deliver(ctx context.Context, item queue.Item) string {
	ctx = logging.WithArtifact(ctx, item.Path)

	if _, err := os.Stat(item.Path); errors.Is(err, os.ErrNotExist) {
		w.logger.Warn().Ctx(ctx).Msg("queued artifact missing, dropping entry")
		if err := w.queue.MarkComplete(item.Path); err != nil {
			w.logger.Error().Ctx(ctx).Err(err).Msg("failed to drop missing artifact")
		}
		uploads.Add(ctx, 1, outcomeAttr(outcomeMissing))
		return outcomeMissing
	}

	if !w.channel.WaitConnected(ctx, w.opts.ReconnectWait) {
		if ctx.Err() != nil {
			return ""
		}
		w.logger.Warn().Ctx(ctx).Msg("ack channel disconnected, deferring upload")
		uploads.Add(ctx, 1, outcomeAttr(outcomeDeferred))
		return outcomeDeferred
	}

	id := w.newID()
	ctx = logging.WithUploadID(ctx, id)

	if err := w.channel.PrepareAck(id); err != nil {
		w.logger.Error().Ctx(ctx).Err(err).Msg("could not register ack")
		return outcomeDeferred
	}

	w.logger.Debug().Ctx(ctx).Int("retry", item.RetryCount).Msg("uploading artifact")
	if err := w.submitter.Upload(ctx, item.Path, id); err != nil {
		w.channel.CancelAck(id)
		if ctx.Err() != nil {
			return ""
		}
		w.logger.Warn().Ctx(ctx).Err(err).Msg("upload failed")
		uploads.Add(ctx, 1, outcomeAttr(outcomeSubmitFailed))
		w.retry(ctx, item)
		return outcomeSubmitFailed
	}

	timeout := w.policy.Current().AckTimeout
	if timeout <= 0 {
		timeout = DefaultAckTimeout
	}

	acked, err := w.channel.WaitForAck(ctx, id, timeout)
	if err != nil {
		if ctx.Err() != nil {
			return ""
		}
		w.logger.Warn().Ctx(ctx).Err(err).Msg("ack wait failed")
		acked = false
	}

	if !acked {
		w.logger.Warn().Ctx(ctx).Dur("timeout", timeout).Msg("artifact not acknowledged")
		uploads.Add(ctx, 1, outcomeAttr(outcomeUnacknowledged))
		w.retry(ctx, item)
		return outcomeUnacknowledged
	}

	if err := w.queue.MarkComplete(item.Path); err != nil {
		w.logger.Error().Ctx(ctx).Err(err).Msg("failed to mark artifact complete")
		return outcomeDelivered
	}
	if err := os.Remove(item.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		w.logger.Warn().Ctx(ctx).Err(err).Msg("failed to delete delivered artifact")
	}

	uploads.Add(ctx, 1, outcomeAttr(outcomeDelivered))
	w.logger.Info().Ctx(ctx).Msg("artifact delivered")
	w.bus.PublishArtifactDelivered(eventbus.ArtifactDeliveredPayload{Path: item.Path, UploadID: id})
	return outcomeDelivered
}

// retry records a failed attempt. When the retry budget is exhausted the
// artifact is deleted so it is not adopted again on the next start.
func (w *Worker) retry(ctx context.Context, item queue.Item) {
	retained, err := w.queue.IncrementRetry(item.Path)
	if err != nil {
		w.logger.Error().Ctx(ctx).Err(err).Msg("failed to record retry")
		return
	}
	if retained {
		return
	}

	discards.Add(ctx, 1)
	w.logger.Error().Ctx(ctx).Int("retries", item.RetryCount+1).Msg("artifact discarded after exhausting retries")
	if err := os.Remove(item.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		w.logger.Warn().Ctx(ctx).Err(err).Msg("failed to delete discarded artifact")
	}
	w.bus.PublishArtifactDiscarded(eventbus.ArtifactDiscardedPayload{Path: item.Path, Retries: item.RetryCount + 1})
}
