package policy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/colonyops/auditagent/internal/core/eventbus"
	"github.com/colonyops/auditagent/internal/core/schedule"
)

// FetchFunc retrieves the raw settings document.
type FetchFunc func(ctx context.Context) ([]byte, error)

// HTTPFetcher returns a FetchFunc that GETs url with the client identifier
// header. Any non-200 status is an error.
func HTTPFetcher(client *http.Client, url, clientID string) FetchFunc {
	return func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Client-Id", clientID)

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request settings: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("request settings: status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read settings body: %w", err)
		}
		return body, nil
	}
}

// Cache holds the last successfully fetched Policy. Current never blocks on
// the network.
type Cache struct {
	fetch   FetchFunc
	current atomic.Pointer[Policy]
	fetched atomic.Bool
	bus     *eventbus.EventBus
	logger  zerolog.Logger
}

// NewCache creates a Cache primed with Defaults.
func NewCache(fetch FetchFunc, bus *eventbus.EventBus, logger zerolog.Logger) *Cache {
	c := &Cache{fetch: fetch, bus: bus, logger: logger}
	d := Defaults()
	c.current.Store(&d)
	return c
}

// Current returns the latest policy snapshot.
func (c *Cache) Current() Policy {
	return *c.current.Load()
}

// Fetched reports whether at least one refresh has succeeded.
func (c *Cache) Fetched() bool {
	return c.fetched.Load()
}

// Refresh fetches and installs a new snapshot. On failure the previous
// snapshot is kept and the error returned.
func (c *Cache) Refresh(ctx context.Context) error {
	data, err := c.fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch policy: %w", err)
	}

	p, err := Parse(data)
	if err != nil {
		return err
	}

	c.current.Store(&p)
	c.fetched.Store(true)
	c.logger.Debug().
		Dur("capture_interval", p.CaptureInterval).
		Dur("idle_timeout", p.IdleTimeout).
		Dur("ack_timeout", p.AckTimeout).
		Msg("policy refreshed")

	c.bus.PublishPolicyRefreshed(eventbus.PolicyRefreshedPayload{
		CaptureInterval: p.CaptureInterval,
		IdleTimeout:     p.IdleTimeout,
		AckTimeout:      p.AckTimeout,
	})
	return nil
}

// Run refreshes every interval until ctx is cancelled, and once up front
// when immediate is set. Failures keep the previous snapshot and are
// retried on the next tick.
func (c *Cache) Run(ctx context.Context, interval time.Duration, immediate bool) {
	schedule.Every(ctx, "policy-refresh", c.logger, schedule.Fixed(interval), immediate, c.Refresh)
}
