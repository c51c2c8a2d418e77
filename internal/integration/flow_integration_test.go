package integration

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/silent-alarm/internal/config"
	"github.com/oshokin/silent-alarm/internal/domain/alarm"
	"github.com/oshokin/silent-alarm/internal/hardware"
	"github.com/oshokin/silent-alarm/internal/service/agent"
	"github.com/oshokin/silent-alarm/internal/service/client"
	"github.com/oshokin/silent-alarm/internal/service/scheduler"
)

// TestFlow_AlarmReachesDevice adds an alarm with the CLI, fires it with the
// scheduler and lets a device agent raise and silence it.
func TestFlow_AlarmReachesDevice(t *testing.T) {
	t.Parallel()

	env := startStore(t)
	ctx := context.Background()

	const device = "pi54321"

	fireAt := time.Now().UTC().Add(time.Hour).Truncate(time.Minute)
	entry := alarm.At(fireAt)

	var out bytes.Buffer

	opts := &client.Options{ConfigPath: env.configPath, Output: &out}
	require.NoError(t, client.Add(ctx, opts, device, entry.Date, entry.Time))
	require.NoError(t, client.List(ctx, opts, device))
	require.Contains(t, out.String(), entry.Date)

	storeClient := connect(t, env, config.TransportGRPC)

	// The scheduler runs at the alarm minute.
	s := scheduler.New(storeClient, storeClient, testActor,
		scheduler.WithLocation(time.UTC),
		scheduler.WithClock(func() time.Time { return fireAt.Add(100 * time.Millisecond) }))

	result := s.Tick(ctx)
	require.Zero(t, result.Errors)
	require.Equal(t, []string{device}, result.Activated)

	alarms, err := storeClient.Alarms(ctx, device)
	require.NoError(t, err)
	require.Empty(t, alarms)

	// The device polls over REST.
	httpClient := connect(t, env, config.TransportHTTP)
	pins := hardware.NewLogPins(ctx)
	settings := agent.Settings{
		ResetPolicy:             config.ResetMinute,
		ClockTick:               time.Second,
		OverlayTick:             250 * time.Millisecond,
		StartupGrace:            15 * time.Second,
		DisabledMessageDuration: 10 * time.Second,
		LEDChannel:              25,
		VibrationChannel:        24,
		DisplayWidth:            16,
	}

	a := agent.New(device, agent.NewPollingObserver(httpClient, device, 3*time.Second), httpClient, testActor,
		pins, hardware.NopDisplay{}, settings, agent.WithLocation(time.UTC))

	a.Tick(ctx)

	level, err := pins.Level(25)
	require.NoError(t, err)
	require.Equal(t, hardware.High, level)

	a.PressDisable(ctx)

	level, err = pins.Level(25)
	require.NoError(t, err)
	require.Equal(t, hardware.Low, level)

	value, err := storeClient.Trigger(ctx, device)
	require.NoError(t, err)
	require.False(t, value)

	out.Reset()
	require.NoError(t, client.Trigger(ctx, opts, device, nil))
	require.True(t, strings.HasPrefix(out.String(), device+": off by test-user@test-hostname"))
}

// TestAgentRun_ProvisionsIdentityAndStops runs the whole alarm-clock process against a live store.
func TestAgentRun_ProvisionsIdentityAndStops(t *testing.T) {
	t.Parallel()

	env := startStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- agent.Run(ctx, &agent.Options{ConfigPath: env.configPath})
	}()

	identityFile := filepath.Join(filepath.Dir(env.configPath), "device-id.txt")

	require.Eventually(t, func() bool {
		_, err := os.Stat(identityFile)

		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	contents, err := os.ReadFile(identityFile)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(contents), config.DefaultIdentityPrefix))

	// Let the subscription and a tick happen before stopping.
	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err = <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("agent did not stop")
	}
}
