//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/silent-alarm/internal/api/rest"
	"github.com/oshokin/silent-alarm/internal/domain/alarm"
	"github.com/oshokin/silent-alarm/internal/store"
)

func init() { //nolint:gochecknoinits // Quiet gin output in tests.
	gin.SetMode(gin.TestMode)
}

var testActor = &alarm.Actor{Hostname: "test-host", Username: "test-user"}

// newHTTPStore serves a memory store over the REST router and returns a client for it.
func newHTTPStore(t *testing.T) (*HTTPClient, *store.Memory) {
	t.Helper()

	memory, err := store.NewMemory(context.Background(), nil)
	require.NoError(t, err)

	router := rest.NewRouter(context.Background(), memory, rest.Options{RateLimitPerSec: 1000, RateLimitBurst: 1000})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	client, err := NewHTTPClient(server.URL, WithCallTimeout(time.Second))
	require.NoError(t, err)

	return client, memory
}

// TestHTTPClient_Roundtrip exercises every store operation over REST.
func TestHTTPClient_Roundtrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, _ := newHTTPStore(t)
	alarms := alarm.List{{Date: "2025-01-01", Time: "07:00"}}

	require.NoError(t, client.SetAlarms(ctx, "dev1", alarms))

	got, err := client.Alarms(ctx, "dev1")
	require.NoError(t, err)
	require.Equal(t, alarms, got)

	all, err := client.AllAlarms(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]alarm.List{"dev1": alarms}, all)

	require.NoError(t, client.SetTrigger(ctx, "dev1", true, testActor))

	state, err := client.TriggerState(ctx, "dev1")
	require.NoError(t, err)
	require.True(t, state.Value)
	require.Equal(t, testActor, state.LastActor)

	triggers, err := client.Triggers(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]bool{"dev1": true}, triggers)

	require.NoError(t, client.SetAlarms(ctx, "dev1", nil))

	got, err = client.Alarms(ctx, "dev1")
	require.NoError(t, err)
	require.Empty(t, got)
}

// TestHTTPClient_Errors maps validation and transport failures to store sentinels.
func TestHTTPClient_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, _ := newHTTPStore(t)

	err := client.SetAlarms(ctx, "dev1", alarm.List{{Date: "2025-01-01", Time: "25:00"}})
	require.ErrorIs(t, err, alarm.ErrInvalidAlarm)

	_, err = client.Trigger(ctx, "")
	require.ErrorIs(t, err, store.ErrInvalidDeviceID)

	require.ErrorIs(t, client.SetTrigger(ctx, "dev1", true, nil), errActorRequired)

	_, err = NewHTTPClient("")
	require.ErrorIs(t, err, errAddressRequired)
}

// TestHTTPClient_Timeout reports store.ErrTimeout when the server is too slow.
func TestHTTPClient_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})

	client, err := NewHTTPClient(server.URL, WithCallTimeout(50*time.Millisecond))
	require.NoError(t, err)

	_, err = client.Trigger(context.Background(), "dev1")
	require.ErrorIs(t, err, store.ErrTimeout)
}

// TestHTTPClient_WatchTrigger receives the current value and changes over WebSocket.
func TestHTTPClient_WatchTrigger(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, memory := newHTTPStore(t)

	sub, err := client.WatchTrigger(ctx, "dev1")
	require.NoError(t, err)

	require.False(t, <-sub.Updates())

	require.NoError(t, memory.SetTrigger(ctx, "dev1", true, testActor))
	require.True(t, <-sub.Updates())

	require.NoError(t, memory.Close())

	for range sub.Updates() {
	}

	require.ErrorIs(t, sub.Err(), store.ErrClosed)
	require.NoError(t, sub.Close())
}

// TestHTTPClient_WatchTrigger_Close ends the subscription from the client side.
func TestHTTPClient_WatchTrigger_Close(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, memory := newHTTPStore(t)

	sub, err := client.WatchTrigger(ctx, "dev1")
	require.NoError(t, err)

	<-sub.Updates()
	require.NoError(t, sub.Close())

	_, open := <-sub.Updates()
	require.False(t, open)
	require.Eventually(t, func() bool { return memory.WatcherCount("dev1") == 0 }, time.Second, 10*time.Millisecond)
}
