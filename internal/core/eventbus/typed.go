package eventbus

// PublishArtifactStored publishes EventArtifactStored.
func (bus *EventBus) PublishArtifactStored(p ArtifactStoredPayload) {
	bus.send(EventArtifactStored, p)
}

// SubscribeArtifactStored registers fn for EventArtifactStored.
func (bus *EventBus) SubscribeArtifactStored(fn func(ArtifactStoredPayload)) {
	bus.subscribe(EventArtifactStored, func(v any) { fn(v.(ArtifactStoredPayload)) })
}

// PublishArtifactDelivered publishes EventArtifactDelivered.
func (bus *EventBus) PublishArtifactDelivered(p ArtifactDeliveredPayload) {
	bus.send(EventArtifactDelivered, p)
}

// SubscribeArtifactDelivered registers fn for EventArtifactDelivered.
func (bus *EventBus) SubscribeArtifactDelivered(fn func(ArtifactDeliveredPayload)) {
	bus.subscribe(EventArtifactDelivered, func(v any) { fn(v.(ArtifactDeliveredPayload)) })
}

// PublishArtifactDiscarded publishes EventArtifactDiscarded.
func (bus *EventBus) PublishArtifactDiscarded(p ArtifactDiscardedPayload) {
	bus.send(EventArtifactDiscarded, p)
}

// SubscribeArtifactDiscarded registers fn for EventArtifactDiscarded.
func (bus *EventBus) SubscribeArtifactDiscarded(fn func(ArtifactDiscardedPayload)) {
	bus.subscribe(EventArtifactDiscarded, func(v any) { fn(v.(ArtifactDiscardedPayload)) })
}

// PublishCaptureFailed publishes EventCaptureFailed.
func (bus *EventBus) PublishCaptureFailed(p CaptureFailedPayload) {
	bus.send(EventCaptureFailed, p)
}

// SubscribeCaptureFailed registers fn for EventCaptureFailed.
func (bus *EventBus) SubscribeCaptureFailed(fn func(CaptureFailedPayload)) {
	bus.subscribe(EventCaptureFailed, func(v any) { fn(v.(CaptureFailedPayload)) })
}

// PublishCaptureSuspended publishes EventCaptureSuspended.
func (bus *EventBus) PublishCaptureSuspended(p CaptureSuspendedPayload) {
	bus.send(EventCaptureSuspended, p)
}

// SubscribeCaptureSuspended registers fn for EventCaptureSuspended.
func (bus *EventBus) SubscribeCaptureSuspended(fn func(CaptureSuspendedPayload)) {
	bus.subscribe(EventCaptureSuspended, func(v any) { fn(v.(CaptureSuspendedPayload)) })
}

// PublishCaptureResumed publishes EventCaptureResumed.
func (bus *EventBus) PublishCaptureResumed(p CaptureResumedPayload) {
	bus.send(EventCaptureResumed, p)
}

// SubscribeCaptureResumed registers fn for EventCaptureResumed.
func (bus *EventBus) SubscribeCaptureResumed(fn func(CaptureResumedPayload)) {
	bus.subscribe(EventCaptureResumed, func(v any) { fn(v.(CaptureResumedPayload)) })
}

// PublishChannelStateChanged publishes EventChannelStateChanged.
func (bus *EventBus) PublishChannelStateChanged(p ChannelStateChangedPayload) {
	bus.send(EventChannelStateChanged, p)
}

// SubscribeChannelStateChanged registers fn for EventChannelStateChanged.
func (bus *EventBus) SubscribeChannelStateChanged(fn func(ChannelStateChangedPayload)) {
	bus.subscribe(EventChannelStateChanged, func(v any) { fn(v.(ChannelStateChangedPayload)) })
}

// PublishPolicyRefreshed publishes EventPolicyRefreshed.
func (bus *EventBus) PublishPolicyRefreshed(p PolicyRefreshedPayload) {
	bus.send(EventPolicyRefreshed, p)
}

// SubscribePolicyRefreshed registers fn for EventPolicyRefreshed.
func (bus *EventBus) SubscribePolicyRefreshed(fn func(PolicyRefreshedPayload)) {
	bus.subscribe(EventPolicyRefreshed, func(v any) { fn(v.(PolicyRefreshedPayload)) })
}
