package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/colonyops/auditagent/internal/core/schedule"
)

// ChannelState reports acknowledgment channel connectivity.
type ChannelState interface {
	Connected() bool
	LastPeerHeartbeat() time.Time
}

// Depth reports the number of queued artifacts.
type Depth interface {
	Size() int
}

// Usage reports scratch folder usage in bytes.
type Usage interface {
	UsageBytes() int64
}

// Suspension reports the asserted suspend reasons.
type Suspension interface {
	Reasons() []string
}

// Health is one health report.
type Health struct {
	Connected         bool      `json:"connected"`
	LastPeerHeartbeat time.Time `json:"last_peer_heartbeat"`
	ScratchBytes      int64     `json:"scratch_bytes"`
	QueueDepth        int       `json:"queue_depth"`
	SuspendReasons    []string  `json:"suspend_reasons"`
}

// HealthReporter periodically logs a Health snapshot.
type HealthReporter struct {
	channel ChannelState
	queue   Depth
	usage   Usage
	capture Suspension
	logger  zerolog.Logger
	now     func() time.Time
}

func NewHealthReporter(channel ChannelState, queue Depth, usage Usage, capture Suspension, logger zerolog.Logger) *HealthReporter {
	h := &HealthReporter{
		channel: channel,
		queue:   queue,
		usage:   usage,
		capture: capture,
		logger:  logger,
		now:     time.Now,
	}
	registerGauges(h)
	return h
}

// Snapshot collects the current health.
func (h *HealthReporter) Snapshot() Health {
	return Health{
		Connected:         h.channel.Connected(),
		LastPeerHeartbeat: h.channel.LastPeerHeartbeat(),
		ScratchBytes:      h.usage.UsageBytes(),
		QueueDepth:        h.queue.Size(),
		SuspendReasons:    h.capture.Reasons(),
	}
}

// Report logs one snapshot.
func (h *HealthReporter) Report(context.Context) error {
	s := h.Snapshot()

	ev := h.logger.Info().
		Bool("connected", s.Connected).
		Int64("scratch_mb", s.ScratchBytes/(1024*1024)).
		Int("queue_depth", s.QueueDepth).
		Strs("suspend_reasons", s.SuspendReasons)
	if s.LastPeerHeartbeat.IsZero() {
		ev = ev.Str("peer_heartbeat", "never")
	} else {
		ev = ev.Dur("peer_heartbeat_age", h.now().Sub(s.LastPeerHeartbeat).Truncate(time.Second))
	}
	ev.Msg("health check")
	return nil
}

// Run reports every interval until ctx is cancelled.
func (h *HealthReporter) Run(ctx context.Context, interval time.Duration) {
	schedule.Every(ctx, "health", h.logger, schedule.Fixed(interval), false, h.Report)
}
