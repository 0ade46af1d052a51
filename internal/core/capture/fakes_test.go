package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/colonyops/auditagent/internal/core/policy"
)

type fakeCapturer struct {
	calls atomic.Int64
	fail  atomic.Bool
}

func (f *fakeCapturer) Capture(context.Context) ([]byte, error) {
	f.calls.Add(1)
	if f.fail.Load() {
		return nil, errors.New("display unavailable")
	}
	return []byte("png-bytes"), nil
}

type memQueue struct {
	mu    sync.Mutex
	paths []string
}

func (q *memQueue) Enqueue(path string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paths = append(q.paths, path)
	return nil
}

func (q *memQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.paths)
}

func (q *memQueue) Paths() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.paths...)
}

type fixedPolicy struct {
	mu sync.Mutex
	p  policy.Policy
}

func newFixedPolicy(interval time.Duration) *fixedPolicy {
	p := policy.Defaults()
	p.CaptureInterval = interval
	return &fixedPolicy{p: p}
}

func (f *fixedPolicy) Current() policy.Policy {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.p
}

func (f *fixedPolicy) SetInterval(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.p.CaptureInterval = d
}

type countingLocker struct {
	calls atomic.Int64

	mu      sync.Mutex
	ctxErrs []error
}

func (l *countingLocker) LockSession(ctx context.Context) error {
	l.calls.Add(1)
	l.mu.Lock()
	l.ctxErrs = append(l.ctxErrs, ctx.Err())
	l.mu.Unlock()
	return nil
}

func (l *countingLocker) contextErrors() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]error(nil), l.ctxErrs...)
}
