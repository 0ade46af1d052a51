package delivery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colonyops/auditagent/internal/core/ackchannel"
	"github.com/colonyops/auditagent/internal/core/eventbus"
	"github.com/colonyops/auditagent/internal/core/eventbus/testbus"
	"github.com/colonyops/auditagent/internal/core/policy"
	"github.com/colonyops/auditagent/internal/core/queue"
)

type fakeChannel struct {
	registry     *ackchannel.Registry
	disconnected atomic.Bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{registry: ackchannel.NewRegistry(zerolog.Nop())}
}

func (f *fakeChannel) WaitConnected(ctx context.Context, timeout time.Duration) bool {
	if !f.disconnected.Load() {
		return true
	}
	select {
	case <-time.After(timeout):
	case <-ctx.Done():
	}
	return false
}

func (f *fakeChannel) PrepareAck(id string) error { return f.registry.Prepare(id) }

func (f *fakeChannel) WaitForAck(ctx context.Context, id string, timeout time.Duration) (bool, error) {
	return f.registry.Wait(ctx, id, timeout)
}

func (f *fakeChannel) CancelAck(id string) { f.registry.Cancel(id) }

// fakeSubmitter accepts every upload and answers with ack, unless err is
// set. A nil ack leaves the upload unacknowledged.
type fakeSubmitter struct {
	channel *fakeChannel
	ack     func(path string) *bool
	err     error

	mu    sync.Mutex
	paths []string
}

func (f *fakeSubmitter) Upload(_ context.Context, path, id string) error {
	f.mu.Lock()
	f.paths = append(f.paths, path)
	f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	if f.ack != nil {
		if v := f.ack(path); v != nil {
			f.channel.registry.Resolve(id, *v)
		}
	}
	return nil
}

func (f *fakeSubmitter) uploaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

func always(v bool) func(string) *bool {
	return func(string) *bool { return &v }
}

type staticPolicy struct{ p policy.Policy }

func (s staticPolicy) Current() policy.Policy { return s.p }

func ackTimeout(d time.Duration) staticPolicy {
	p := policy.Defaults()
	p.AckTimeout = d
	return staticPolicy{p: p}
}

type fixture struct {
	dir     string
	queue   *queue.Queue
	channel *fakeChannel
	bus     *testbus.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	q, err := queue.Open(filepath.Join(dir, queue.FileName), 3, zerolog.Nop())
	require.NoError(t, err)
	return &fixture{dir: dir, queue: q, channel: newFakeChannel(), bus: testbus.New(t)}
}

func (f *fixture) add(t *testing.T, name string) string {
	t.Helper()
	p := writeArtifact(t, f.dir, name, "png")
	require.NoError(t, f.queue.Enqueue(p))
	return p
}

func (f *fixture) worker(sub Submitter, pol PolicySource) *Worker {
	return NewWorker(f.queue, f.channel, sub, pol, f.bus.EventBus, zerolog.Nop(), WorkerOptions{
		FailurePause:  time.Millisecond,
		ReconnectWait: 10 * time.Millisecond,
	})
}

func (f *fixture) head(t *testing.T) queue.Item {
	t.Helper()
	it, ok := f.queue.PeekOldest()
	require.True(t, ok)
	return it
}

func TestWorker_AckedArtifactIsCompletedAndDeleted(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "a.png")
	sub := &fakeSubmitter{channel: f.channel, ack: always(true)}
	w := f.worker(sub, ackTimeout(time.Second))

	assert.Equal(t, outcomeDelivered, w.deliver(context.Background(), f.head(t)))

	assert.True(t, f.queue.IsEmpty())
	_, err := os.Stat(a)
	assert.True(t, os.IsNotExist(err))
	assert.Zero(t, f.channel.registry.Pending())
	f.bus.AssertPublished(t, eventbus.EventArtifactDelivered)
}

func TestWorker_UploadAcceptedButNeverAcked(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "a.png")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := f.worker(newUploader(srv.URL, 3), ackTimeout(30*time.Millisecond))

	assert.Equal(t, outcomeUnacknowledged, w.deliver(context.Background(), f.head(t)))

	assert.Equal(t, []queue.Item{{Path: a, RetryCount: 1}}, f.queue.Items())
	_, err := os.Stat(a)
	require.NoError(t, err, "artifact must stay on disk until acknowledged")
	assert.Zero(t, f.channel.registry.Pending())
}

func TestWorker_NegativeAckDiscardsAfterRetryBudget(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "a.png")
	sub := &fakeSubmitter{channel: f.channel, ack: always(false)}
	w := f.worker(sub, ackTimeout(time.Second))

	for i := 1; i <= 2; i++ {
		assert.Equal(t, outcomeUnacknowledged, w.deliver(context.Background(), f.head(t)))
		assert.Equal(t, i, f.head(t).RetryCount)
	}

	assert.Equal(t, outcomeUnacknowledged, w.deliver(context.Background(), f.head(t)))
	assert.True(t, f.queue.IsEmpty())
	_, err := os.Stat(a)
	assert.True(t, os.IsNotExist(err), "discarded artifact is removed so it is not adopted again")

	require.True(t, f.bus.WaitFor(eventbus.EventArtifactDiscarded, time.Second))
	discarded := f.bus.Of(eventbus.EventArtifactDiscarded)
	assert.Equal(t, eventbus.ArtifactDiscardedPayload{Path: a, Retries: 3}, discarded[0])
}

func TestWorker_SubmissionFailureCountsAgainstBudget(t *testing.T) {
	f := newFixture(t)
	f.add(t, "a.png")
	sub := &fakeSubmitter{channel: f.channel, err: ErrSubmission}
	w := f.worker(sub, ackTimeout(time.Second))

	assert.Equal(t, outcomeSubmitFailed, w.deliver(context.Background(), f.head(t)))
	assert.Equal(t, 1, f.head(t).RetryCount)
	assert.Zero(t, f.channel.registry.Pending())
}

func TestWorker_DisconnectedDefersWithoutRetry(t *testing.T) {
	f := newFixture(t)
	f.add(t, "a.png")
	f.channel.disconnected.Store(true)
	sub := &fakeSubmitter{channel: f.channel, ack: always(true)}
	w := f.worker(sub, ackTimeout(time.Second))

	assert.Equal(t, outcomeDeferred, w.deliver(context.Background(), f.head(t)))
	assert.Zero(t, f.head(t).RetryCount)
	assert.Empty(t, sub.uploaded())
}

func TestWorker_MissingArtifactIsDropped(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "a.png")
	b := f.add(t, "b.png")
	require.NoError(t, os.Remove(a))

	sub := &fakeSubmitter{channel: f.channel, ack: always(true)}
	w := f.worker(sub, ackTimeout(time.Second))

	assert.Equal(t, outcomeMissing, w.deliver(context.Background(), f.head(t)))
	assert.Equal(t, b, f.head(t).Path)
	assert.Empty(t, sub.uploaded())
}

func TestWorker_RunDrainsInOrder(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "a.png")
	b := f.add(t, "b.png")

	// b is refused once, which must not let c overtake it.
	var refusedB atomic.Bool
	sub := &fakeSubmitter{channel: f.channel, ack: func(p string) *bool {
		ok := !(p == b && refusedB.CompareAndSwap(false, true))
		return &ok
	}}
	w := f.worker(sub, ackTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	c := f.add(t, "c.png")
	assert.Eventually(t, f.queue.IsEmpty, 2*time.Second, time.Millisecond)
	w.Stop()

	assert.Equal(t, []string{a, b, b, c}, sub.uploaded())
}

func TestWorker_StopDuringAckWaitLeavesItem(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "a.png")
	sub := &fakeSubmitter{channel: f.channel}
	w := f.worker(sub, ackTimeout(time.Hour))

	go w.Run(context.Background())
	require.Eventually(t, func() bool { return f.channel.registry.Pending() == 1 }, time.Second, time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not interrupt the ack wait")
	}

	assert.Equal(t, []queue.Item{{Path: a}}, f.queue.Items())
	assert.Zero(t, f.channel.registry.Pending())

	w.Stop()
}

func TestWorker_StopBeforeRun(t *testing.T) {
	f := newFixture(t)
	w := f.worker(&fakeSubmitter{channel: f.channel, err: errors.New("unused")}, ackTimeout(time.Second))

	w.Stop()

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run after Stop must return immediately")
	}
}
