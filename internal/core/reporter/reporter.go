// Package reporter forwards notable agent events to the collector's log
// endpoints. Delivery is best effort: failures are logged and never retried.
package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/colonyops/auditagent/internal/core/eventbus"
)

// Event type identifiers understood by the collector.
const (
	EventCaptureSuspended byte = 1
	EventCaptureResumed   byte = 2
	EventChannelUp        byte = 3
	EventChannelDown      byte = 4
)

// Error type identifiers understood by the collector.
const (
	ErrorCaptureFailed     byte = 1
	ErrorArtifactDiscarded byte = 2
)

const outboxSize = 64

// EventLog is the body of POST {prefix}/logs.
type EventLog struct {
	EventTypeID    byte      `json:"eventTypeId"`
	EventDesc      string    `json:"eventDesc"`
	EventSource    string    `json:"eventSource"`
	EventSrcIPAddr string    `json:"eventSrcIPAddr"`
	EventDTime     time.Time `json:"eventDTime"`
}

// ErrorLog is the body of POST {prefix}/logs/error.
type ErrorLog struct {
	ErrorTypeID    byte      `json:"errorTypeId"`
	ErrorDesc      string    `json:"errorDesc"`
	ErrorSource    string    `json:"errorSource"`
	ErrorSrcIPAddr string    `json:"errorSrcIPAddr"`
	ErrorDTime     time.Time `json:"errorDTime"`
}

type post struct {
	url  string
	body any
}

// Options configures a Reporter.
type Options struct {
	EventsURL string
	ErrorsURL string
	ClientID  string
	IPAddress string
}

// Reporter posts events and errors from its own goroutine so a slow
// collector never stalls the event bus.
type Reporter struct {
	client *http.Client
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
	outbox chan post
}

func New(client *http.Client, opts Options, logger zerolog.Logger) *Reporter {
	return &Reporter{
		client: client,
		opts:   opts,
		logger: logger,
		now:    time.Now,
		outbox: make(chan post, outboxSize),
	}
}

// Subscribe wires the reporter to bus events.
func (r *Reporter) Subscribe(bus *eventbus.EventBus) {
	bus.SubscribeCaptureSuspended(func(p eventbus.CaptureSuspendedPayload) {
		r.LogEvent(EventCaptureSuspended, "capture suspended: "+strings.Join(p.Reasons, ","))
	})
	bus.SubscribeCaptureResumed(func(p eventbus.CaptureResumedPayload) {
		r.LogEvent(EventCaptureResumed, fmt.Sprintf("capture resumed after %s (interval %s)", p.Reason, p.Interval))
	})
	bus.SubscribeChannelStateChanged(func(p eventbus.ChannelStateChangedPayload) {
		if p.Connected {
			r.LogEvent(EventChannelUp, "ack channel connected")
			return
		}
		r.LogEvent(EventChannelDown, "ack channel disconnected")
	})
	bus.SubscribeCaptureFailed(func(p eventbus.CaptureFailedPayload) {
		r.LogError(ErrorCaptureFailed, p.Err)
	})
	bus.SubscribeArtifactDiscarded(func(p eventbus.ArtifactDiscardedPayload) {
		r.LogError(ErrorArtifactDiscarded, fmt.Sprintf("artifact %s discarded after %d attempts", p.Path, p.Retries))
	})
}

// LogEvent queues an event report. It never blocks; when the outbox is
// full the report is dropped.
func (r *Reporter) LogEvent(typeID byte, desc string) {
	r.enqueue(post{url: r.opts.EventsURL, body: EventLog{
		EventTypeID:    typeID,
		EventDesc:      desc,
		EventSource:    r.opts.ClientID,
		EventSrcIPAddr: r.opts.IPAddress,
		EventDTime:     r.now().UTC(),
	}})
}

// LogError queues an error report with the same drop semantics as LogEvent.
func (r *Reporter) LogError(typeID byte, desc string) {
	r.enqueue(post{url: r.opts.ErrorsURL, body: ErrorLog{
		ErrorTypeID:    typeID,
		ErrorDesc:      desc,
		ErrorSource:    r.opts.ClientID,
		ErrorSrcIPAddr: r.opts.IPAddress,
		ErrorDTime:     r.now().UTC(),
	}})
}

func (r *Reporter) enqueue(p post) {
	select {
	case r.outbox <- p:
	default:
		r.logger.Warn().Str("url", p.url).Msg("report outbox full, dropping")
	}
}

// Run sends queued reports until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-r.outbox:
			if err := r.send(ctx, p); err != nil && ctx.Err() == nil {
				r.logger.Warn().Err(err).Msg("report failed")
			}
		}
	}
}

func (r *Reporter) send(ctx context.Context, p post) error {
	body, err := json.Marshal(p.body)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Client-Id", r.opts.ClientID)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("post report: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("post report: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// LocalIP returns the address of the interface used to reach baseURL, or
// an empty string when it cannot be determined. No packets are sent.
func LocalIP(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	port := u.Port()
	if port == "" {
		port = "80"
	}

	conn, err := net.Dial("udp", net.JoinHostPort(u.Hostname(), port))
	if err != nil {
		return ""
	}
	defer func() { _ = conn.Close() }()

	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return ""
}
