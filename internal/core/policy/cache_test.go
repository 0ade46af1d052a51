package policy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colonyops/auditagent/internal/core/eventbus"
	"github.com/colonyops/auditagent/internal/core/eventbus/testbus"
)

func TestCache_DefaultsBeforeFetch(t *testing.T) {
	c := NewCache(func(context.Context) ([]byte, error) { return nil, errors.New("offline") }, nil, zerolog.Nop())

	assert.Equal(t, Defaults(), c.Current())
	assert.False(t, c.Fetched())
}

func TestCache_RefreshFailureKeepsPrevious(t *testing.T) {
	var fail atomic.Bool
	fetch := func(context.Context) ([]byte, error) {
		if fail.Load() {
			return nil, errors.New("timeout")
		}
		return []byte(`{"configCaptureInterval": 7}`), nil
	}

	bus := testbus.New(t)
	c := NewCache(fetch, bus.EventBus, zerolog.Nop())

	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, 7*time.Second, c.Current().CaptureInterval)
	assert.True(t, c.Fetched())
	bus.AssertPublished(t, eventbus.EventPolicyRefreshed)

	fail.Store(true)
	require.Error(t, c.Refresh(context.Background()))
	assert.Equal(t, 7*time.Second, c.Current().CaptureInterval)
}

func TestCache_MalformedDocumentKeepsPrevious(t *testing.T) {
	c := NewCache(func(context.Context) ([]byte, error) { return []byte("<html>"), nil }, nil, zerolog.Nop())

	require.Error(t, c.Refresh(context.Background()))
	assert.Equal(t, Defaults(), c.Current())
}

func TestHTTPFetcher(t *testing.T) {
	var gotClient string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClient = r.Header.Get("Client-Id")
		if r.URL.Path != "/api/v1/settings/latest" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"configIdleTimeout": 99}`))
	}))
	defer srv.Close()

	fetch := HTTPFetcher(srv.Client(), srv.URL+"/api/v1/settings/latest", "ws-1")
	c := NewCache(fetch, nil, zerolog.Nop())

	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, 99*time.Second, c.Current().IdleTimeout)
	assert.Equal(t, "ws-1", gotClient)

	bad := HTTPFetcher(srv.Client(), srv.URL+"/nope", "ws-1")
	_, err := bad(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestCache_RunRefreshesPeriodically(t *testing.T) {
	var calls atomic.Int64
	fetch := func(context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte(`{}`), nil
	}
	c := NewCache(fetch, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx, 5*time.Millisecond, true)

	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
}

func TestCache_RunWithoutImmediateWaitsForInterval(t *testing.T) {
	var calls atomic.Int64
	fetch := func(context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte(`{}`), nil
	}
	c := NewCache(fetch, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx, time.Hour, false)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, calls.Load())
}
