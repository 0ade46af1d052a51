// Package ackchannel maintains the long-lived websocket to the collector
// that carries heartbeats and upload acknowledgments.
package ackchannel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/colonyops/auditagent/internal/core/eventbus"
	"github.com/colonyops/auditagent/internal/core/policy"
	"github.com/colonyops/auditagent/internal/core/schedule"
)

// ErrDisconnected is returned when a frame is sent while the channel is
// down.
var ErrDisconnected = errors.New("ack channel disconnected")

const (
	handshakeTimeout = 5 * time.Second
	writeTimeout     = 5 * time.Second
)

// PolicySource supplies the current policy snapshot.
type PolicySource interface {
	Current() policy.Policy
}

// Options configures a Channel.
type Options struct {
	URL          string
	ClientID     string
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// Channel keeps one websocket open, reconnecting with backoff, and routes
// acknowledgments into its Registry.
type Channel struct {
	opts     Options
	dialer   *websocket.Dialer
	registry *Registry
	policy   PolicySource
	bus      *eventbus.EventBus
	logger   zerolog.Logger

	lastPeer atomic.Int64

	stateMu   sync.Mutex
	connected bool
	ready     chan struct{}

	writeMu sync.Mutex
	conn    *websocket.Conn
}

func New(opts Options, registry *Registry, pol PolicySource, bus *eventbus.EventBus, logger zerolog.Logger) *Channel {
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = time.Second
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = opts.ReconnectMin
	}
	return &Channel{
		opts:     opts,
		dialer:   &websocket.Dialer{HandshakeTimeout: handshakeTimeout, Proxy: http.ProxyFromEnvironment},
		registry: registry,
		policy:   pol,
		bus:      bus,
		logger:   logger,
		ready:    make(chan struct{}),
	}
}

// Connected reports whether the websocket is currently open.
func (c *Channel) Connected() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.connected
}

// WaitConnected blocks until the channel is connected, timeout elapses or
// ctx is done. It reports whether the channel is connected.
func (c *Channel) WaitConnected(ctx context.Context, timeout time.Duration) bool {
	c.stateMu.Lock()
	if c.connected {
		c.stateMu.Unlock()
		return true
	}
	ready := c.ready
	c.stateMu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ready:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// LastPeerHeartbeat returns when the peer last sent a heartbeat token, or
// the zero time.
func (c *Channel) LastPeerHeartbeat() time.Time {
	ns := c.lastPeer.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// PrepareAck registers id before its upload is sent.
func (c *Channel) PrepareAck(id string) error {
	return c.registry.Prepare(id)
}

// WaitForAck blocks for the outcome of id. Timeout reports false.
func (c *Channel) WaitForAck(ctx context.Context, id string, timeout time.Duration) (bool, error) {
	return c.registry.Wait(ctx, id, timeout)
}

// CancelAck drops a registration whose upload was never accepted.
func (c *Channel) CancelAck(id string) {
	c.registry.Cancel(id)
}

// Send writes a text frame.
func (c *Channel) Send(text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.conn == nil {
		return ErrDisconnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Run connects and keeps the channel open until ctx is cancelled,
// reconnecting with exponential backoff between the configured bounds.
func (c *Channel) Run(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.ReconnectMin
	b.MaxInterval = c.opts.ReconnectMax
	b.Multiplier = 2

	for ctx.Err() == nil {
		conn, err := c.dial(ctx)
		if err != nil {
			wait := b.NextBackOff()
			c.logger.Warn().Err(err).Dur("retry_in", wait).Msg("ack channel connect failed")
			if !schedule.Sleep(ctx, wait) {
				break
			}
			continue
		}

		b.Reset()
		err = c.serve(ctx, conn)
		if ctx.Err() != nil {
			break
		}
		c.logger.Warn().Err(err).Msg("ack channel lost")
	}

	c.logger.Info().Msg("ack channel stopped")
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Client-Id", c.opts.ClientID)

	conn, resp, err := c.dialer.DialContext(ctx, c.opts.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", c.opts.URL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}
	return conn, nil
}

// serve runs one connection until it fails or ctx is cancelled.
func (c *Channel) serve(ctx context.Context, conn *websocket.Conn) error {
	conn.SetPongHandler(func(string) error {
		c.touchPeer()
		return nil
	})

	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()
	c.setConnected(true)
	c.logger.Info().Str("url", c.opts.URL).Msg("ack channel connected")

	defer func() {
		c.writeMu.Lock()
		c.conn = nil
		c.writeMu.Unlock()
		c.setConnected(false)
		_ = conn.Close()
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.readLoop(conn)
	})

	g.Go(func() error {
		heartbeat := func() time.Duration { return c.policy.Current().HeartbeatInterval }
		schedule.Every(gctx, "heartbeat", c.logger, heartbeat, false, func(context.Context) error {
			return c.Send(tokenPing)
		})
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closed"), deadline)
		return conn.Close()
	})

	return g.Wait()
}

func (c *Channel) readLoop(conn *websocket.Conn) error {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read frame: %w", err)
		}
		if kind != websocket.TextMessage {
			continue
		}
		c.handle(data)
	}
}

func (c *Channel) handle(data []byte) {
	msg, err := ParseMessage(data)
	if err != nil {
		c.logger.Warn().Err(err).Int("bytes", len(data)).Msg("invalid ack channel frame")
		return
	}

	switch msg.Kind {
	case KindPing:
		c.touchPeer()
		if err := c.Send(tokenPong); err != nil {
			c.logger.Debug().Err(err).Msg("pong failed")
		}
	case KindPong:
		c.touchPeer()
	case KindAck:
		c.logger.Debug().Str("upload_id", msg.UploadID).Bool("success", msg.Success).Msg("ack received")
		c.registry.Resolve(msg.UploadID, msg.Success)
	default:
		c.logger.Debug().Str("type", msg.Type).Msg("ignoring ack channel message")
	}
}

func (c *Channel) touchPeer() {
	c.lastPeer.Store(time.Now().UnixNano())
}

func (c *Channel) setConnected(on bool) {
	c.stateMu.Lock()
	if c.connected == on {
		c.stateMu.Unlock()
		return
	}
	c.connected = on
	if on {
		close(c.ready)
	} else {
		c.ready = make(chan struct{})
	}
	c.stateMu.Unlock()

	c.bus.PublishChannelStateChanged(eventbus.ChannelStateChangedPayload{Connected: on})
}
