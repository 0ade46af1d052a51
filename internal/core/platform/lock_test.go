package platform

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedLockState struct {
	mu      sync.Mutex
	answers []any
}

func (s *scriptedLockState) Locked(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.answers) == 0 {
		return false, nil
	}
	next := s.answers[0]
	if len(s.answers) > 1 {
		s.answers = s.answers[1:]
	}
	if err, ok := next.(error); ok {
		return false, err
	}
	return next.(bool), nil
}

func TestPollingLockNotifier_EmitsTransitionsOnly(t *testing.T) {
	src := &scriptedLockState{answers: []any{false, false, true, errors.New("dbus timeout"), true, false}}
	n := NewPollingLockNotifier(src, time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := n.Watch(ctx)

	var got []LockEvent
	for len(got) < 3 {
		select {
		case ev := <-ch:
			got = append(got, ev)
		case <-time.After(time.Second):
			t.Fatalf("timed out after %v", got)
		}
	}

	assert.Equal(t, []LockEvent{SessionUnlocked, SessionLocked, SessionUnlocked}, got)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}

func TestLockEvent_String(t *testing.T) {
	assert.Equal(t, "locked", SessionLocked.String())
	assert.Equal(t, "unlocked", SessionUnlocked.String())
	assert.Equal(t, "unknown", LockEvent(0).String())
}
