// Package eventbus provides a typed publish/subscribe event bus for
// cross-component communication within the agent. Components publish state
// changes here instead of sharing flags; subscribers (event reporter, health
// reporter, tests) consume them asynchronously.
package eventbus

import "time"

// Event names an event type.
type Event string

// Keep list sorted A-Z
const (
	EventArtifactDelivered   Event = "artifact.delivered"
	EventArtifactDiscarded   Event = "artifact.discarded"
	EventArtifactStored      Event = "artifact.stored"
	EventCaptureFailed       Event = "capture.failed"
	EventCaptureResumed      Event = "capture.resumed"
	EventCaptureSuspended    Event = "capture.suspended"
	EventChannelStateChanged Event = "channel.state-changed"
	EventPolicyRefreshed     Event = "policy.refreshed"
)

// ArtifactStoredPayload is emitted after a captured artifact is enqueued.
type ArtifactStoredPayload struct {
	Path string
}

// ArtifactDeliveredPayload is emitted when the collector acknowledged an artifact.
type ArtifactDeliveredPayload struct {
	Path     string
	UploadID string
}

// ArtifactDiscardedPayload is emitted when an artifact exhausted its retry budget.
type ArtifactDiscardedPayload struct {
	Path    string
	Retries int
}

// CaptureFailedPayload is emitted when the capture provider fails on a tick.
type CaptureFailedPayload struct {
	Err string
}

// CaptureSuspendedPayload is emitted each time a new suspend reason is asserted.
// Reason is the reason whose assertion caused the transition.
type CaptureSuspendedPayload struct {
	Reason  string
	Reasons []string
}

// CaptureResumedPayload is emitted when the last suspend reason clears.
type CaptureResumedPayload struct {
	Reason   string
	Interval time.Duration
}

// ChannelStateChangedPayload is emitted when the ack channel connects or drops.
type ChannelStateChangedPayload struct {
	Connected bool
}

// PolicyRefreshedPayload is emitted after a successful policy fetch.
type PolicyRefreshedPayload struct {
	CaptureInterval time.Duration
	IdleTimeout     time.Duration
	AckTimeout      time.Duration
}
