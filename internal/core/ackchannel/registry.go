package ackchannel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"

	"github.com/colonyops/auditagent/pkg/kv"
)

var (
	// ErrNotPrepared is returned by Wait for an id that was never prepared
	// or has already been consumed.
	ErrNotPrepared = errors.New("ack not prepared")
	// ErrDuplicateID is returned by Prepare when the id is already pending.
	ErrDuplicateID = errors.New("ack already pending")
)

const lateAckTTL = 10 * time.Minute

// Registry correlates upload ids with their acknowledgment outcome. An entry
// exists from Prepare until Wait returns or Cancel is called.
type Registry struct {
	pending *kv.Store[string, chan bool]
	expired *ttlcache.Cache[string, struct{}]
	logger  zerolog.Logger
}

func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		pending: kv.New[string, chan bool](),
		expired: ttlcache.New(
			ttlcache.WithTTL[string, struct{}](lateAckTTL),
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		),
		logger: logger,
	}
}

// Prepare registers id. It must be called before the upload is sent so an
// acknowledgment arriving early is not lost.
func (r *Registry) Prepare(id string) error {
	if !r.pending.SetIfAbsent(id, make(chan bool, 1)) {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	return nil
}

// Resolve delivers an outcome for id. It reports whether a pending entry was
// found.
func (r *Registry) Resolve(id string, success bool) bool {
	ch, ok := r.pending.Take(id)
	if !ok {
		if r.expired.Has(id) {
			r.logger.Info().Str("upload_id", id).Bool("success", success).Msg("ack arrived after timeout")
		} else {
			r.logger.Warn().Str("upload_id", id).Msg("ack for unknown upload")
		}
		return false
	}
	ch <- success
	return true
}

// Wait blocks until id is resolved, timeout elapses or ctx is done. A timeout
// reports false with a nil error. The entry is gone when Wait returns.
func (r *Registry) Wait(ctx context.Context, id string, timeout time.Duration) (bool, error) {
	ch, ok := r.pending.Get(id)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotPrepared, id)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case v := <-ch:
		return v, nil
	case <-timer.C:
		if v, resolved := r.abandon(id, ch); resolved {
			return v, nil
		}
		r.expired.DeleteExpired()
		r.expired.Set(id, struct{}{}, ttlcache.DefaultTTL)
		return false, nil
	case <-ctx.Done():
		if v, resolved := r.abandon(id, ch); resolved {
			return v, nil
		}
		return false, ctx.Err()
	}
}

// abandon removes id. If Resolve or Cancel won the race it already took the
// entry, and its value is waiting in ch.
func (r *Registry) abandon(id string, ch chan bool) (bool, bool) {
	if _, ok := r.pending.Take(id); ok {
		return false, false
	}
	return <-ch, true
}

// Cancel drops a pending id, used when the upload itself failed. A
// concurrent Wait observes a failure.
func (r *Registry) Cancel(id string) {
	if ch, ok := r.pending.Take(id); ok {
		ch <- false
	}
}

// Pending returns the number of outstanding registrations.
func (r *Registry) Pending() int {
	return r.pending.Len()
}
