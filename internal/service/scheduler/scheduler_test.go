package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/silent-alarm/internal/domain/alarm"
	"github.com/oshokin/silent-alarm/internal/store"
)

var (
	errTestWrite = errors.New("test write error")
	errTestRead  = errors.New("test read error")

	testActor = &alarm.Actor{Hostname: "coordinator", Username: "alarm"}
)

// fakeStore wraps a memory store, counts writes and lets tests inject failures.
type fakeStore struct {
	*store.Memory

	mu            sync.Mutex
	triggerWrites int
	alarmWrites   int

	triggersFn   func() error
	setTriggerFn func(deviceID string, value bool) error
	alarmsFn     func(deviceID string)
}

func newFakeStore(t *testing.T) *fakeStore {
	t.Helper()

	memory, err := store.NewMemory(context.Background(), nil)
	require.NoError(t, err)

	return &fakeStore{Memory: memory}
}

func (f *fakeStore) Triggers(ctx context.Context) (map[string]bool, error) {
	if f.triggersFn != nil {
		if err := f.triggersFn(); err != nil {
			return nil, err
		}
	}

	return f.Memory.Triggers(ctx)
}

func (f *fakeStore) SetTrigger(ctx context.Context, deviceID string, value bool, actor *alarm.Actor) error {
	if f.setTriggerFn != nil {
		if err := f.setTriggerFn(deviceID, value); err != nil {
			return err
		}
	}

	f.mu.Lock()
	f.triggerWrites++
	f.mu.Unlock()

	return f.Memory.SetTrigger(ctx, deviceID, value, actor)
}

func (f *fakeStore) Alarms(ctx context.Context, deviceID string) (alarm.List, error) {
	if f.alarmsFn != nil {
		f.alarmsFn(deviceID)
	}

	return f.Memory.Alarms(ctx, deviceID)
}

func (f *fakeStore) SetAlarms(ctx context.Context, deviceID string, alarms alarm.List) error {
	f.mu.Lock()
	f.alarmWrites++
	f.mu.Unlock()

	return f.Memory.SetAlarms(ctx, deviceID, alarms)
}

func (f *fakeStore) writes() (triggers, alarms int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.triggerWrites, f.alarmWrites
}

func clockAt(value string) func() time.Time {
	at, err := time.ParseInLocation("2006-01-02 15:04:05", value, time.UTC)
	if err != nil {
		panic(err)
	}

	return func() time.Time { return at }
}

func trigger(t *testing.T, s *fakeStore, deviceID string) bool {
	t.Helper()

	value, err := s.Memory.Trigger(context.Background(), deviceID)
	require.NoError(t, err)

	return value
}

func alarmsOf(t *testing.T, s *fakeStore, deviceID string) alarm.List {
	t.Helper()

	list, err := s.Memory.Alarms(context.Background(), deviceID)
	require.NoError(t, err)

	return list
}

// TestTick_MatchActivatesAndConsumes covers the matching-minute scenario.
func TestTick_MatchActivatesAndConsumes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fs := newFakeStore(t)
	require.NoError(t, fs.Memory.SetAlarms(ctx, "dev1", alarm.List{{Date: "2025-01-01", Time: "07:00"}}))
	require.NoError(t, fs.Memory.SetTrigger(ctx, "dev1", false, nil))

	s := New(fs, fs, testActor, WithClock(clockAt("2025-01-01 07:00:00")), WithLocation(time.UTC))
	result := s.Tick(ctx)

	require.Equal(t, []string{"dev1"}, result.Activated)
	require.Equal(t, map[string]int{"dev1": 1}, result.Consumed)
	require.Zero(t, result.Errors)
	require.True(t, trigger(t, fs, "dev1"))
	require.Empty(t, alarmsOf(t, fs, "dev1"))

	state, err := fs.TriggerState(ctx, "dev1")
	require.NoError(t, err)
	require.Equal(t, testActor, state.LastActor)
}

// TestTick_NoMatchClears covers the minute after a consumed alarm.
func TestTick_NoMatchClears(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fs := newFakeStore(t)
	require.NoError(t, fs.Memory.SetTrigger(ctx, "dev1", true, nil))
	require.NoError(t, fs.Memory.SetAlarms(ctx, "dev2", alarm.List{{Date: "2025-01-01", Time: "09:00"}}))

	s := New(fs, fs, testActor, WithClock(clockAt("2025-01-01 07:01:00")), WithLocation(time.UTC))
	result := s.Tick(ctx)

	require.Equal(t, []string{"dev1"}, result.Cleared)
	require.Empty(t, result.Activated)
	require.Empty(t, result.Consumed)
	require.False(t, trigger(t, fs, "dev1"))
	require.Len(t, alarmsOf(t, fs, "dev2"), 1)

	_, alarmWrites := fs.writes()
	require.Zero(t, alarmWrites)
}

// TestTick_Idempotent ensures a second tick in the same minute writes nothing.
func TestTick_Idempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fs := newFakeStore(t)
	require.NoError(t, fs.Memory.SetAlarms(ctx, "dev1", alarm.List{{Date: "2025-01-01", Time: "07:00"}}))
	require.NoError(t, fs.Memory.SetTrigger(ctx, "dev2", true, nil))

	s := New(fs, fs, testActor, WithClock(clockAt("2025-01-01 07:00:30")), WithLocation(time.UTC))
	s.Tick(ctx)

	triggerWrites, alarmWrites := fs.writes()
	require.Equal(t, 2, triggerWrites)
	require.Equal(t, 1, alarmWrites)

	result := s.Tick(ctx)
	require.True(t, result.Skipped)

	again, alarmsAgain := fs.writes()
	require.Equal(t, triggerWrites, again)
	require.Equal(t, alarmWrites, alarmsAgain)
}

// TestTick_ConsistentDevicesUntouched checks no redundant writes happen.
func TestTick_ConsistentDevicesUntouched(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fs := newFakeStore(t)
	require.NoError(t, fs.Memory.SetAlarms(ctx, "dev1", alarm.List{{Date: "2025-01-01", Time: "07:00"}}))
	require.NoError(t, fs.Memory.SetTrigger(ctx, "dev1", true, nil))
	require.NoError(t, fs.Memory.SetTrigger(ctx, "dev2", false, nil))

	s := New(fs, fs, testActor, WithClock(clockAt("2025-01-01 07:00:00")), WithLocation(time.UTC))
	result := s.Tick(ctx)

	require.Empty(t, result.Activated)
	require.Empty(t, result.Cleared)
	require.Equal(t, map[string]int{"dev1": 1}, result.Consumed)

	triggerWrites, _ := fs.writes()
	require.Zero(t, triggerWrites)
}

// TestTick_FailureIsolation keeps going after a per-device failure and retries within the minute.
func TestTick_FailureIsolation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fs := newFakeStore(t)
	entry := alarm.Alarm{Date: "2025-01-01", Time: "07:00"}
	require.NoError(t, fs.Memory.SetAlarms(ctx, "dev1", alarm.List{entry}))
	require.NoError(t, fs.Memory.SetAlarms(ctx, "dev2", alarm.List{entry}))

	failing := true
	fs.setTriggerFn = func(deviceID string, _ bool) error {
		if failing && deviceID == "dev1" {
			return errTestWrite
		}

		return nil
	}

	s := New(fs, fs, testActor, WithClock(clockAt("2025-01-01 07:00:10")), WithLocation(time.UTC))
	result := s.Tick(ctx)

	require.Equal(t, 1, result.Errors)
	require.Equal(t, []string{"dev2"}, result.Activated)
	require.Equal(t, map[string]int{"dev2": 1}, result.Consumed)
	require.False(t, trigger(t, fs, "dev1"))
	require.Equal(t, alarm.List{entry}, alarmsOf(t, fs, "dev1"))

	failing = false
	result = s.Tick(ctx)

	require.False(t, result.Skipped)
	require.Zero(t, result.Errors)
	require.Equal(t, []string{"dev1"}, result.Activated)
	require.Empty(t, result.Cleared)
	require.Equal(t, map[string]int{"dev1": 1}, result.Consumed)
	require.True(t, trigger(t, fs, "dev1"))
	require.True(t, trigger(t, fs, "dev2"))
}

// TestTick_RetryKeepsManualReset never re-arms a device that was already activated this minute,
// even when another device's failure makes the scheduler retry.
func TestTick_RetryKeepsManualReset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fs := newFakeStore(t)
	entry := alarm.Alarm{Date: "2025-01-01", Time: "07:00"}
	require.NoError(t, fs.Memory.SetAlarms(ctx, "dev1", alarm.List{entry}))
	require.NoError(t, fs.Memory.SetAlarms(ctx, "dev2", alarm.List{entry}))

	fs.setTriggerFn = func(deviceID string, _ bool) error {
		if deviceID == "dev2" {
			return errTestWrite
		}

		return nil
	}

	now := clockAt("2025-01-01 07:00:00")()
	s := New(fs, fs, testActor, WithClock(func() time.Time { return now }), WithLocation(time.UTC))

	result := s.Tick(ctx)
	require.Equal(t, 1, result.Errors)
	require.Equal(t, []string{"dev1"}, result.Activated)
	require.True(t, trigger(t, fs, "dev1"))
	require.Empty(t, alarmsOf(t, fs, "dev1"))

	// The device silences itself.
	require.NoError(t, fs.Memory.SetTrigger(ctx, "dev1", false, nil))

	now = now.Add(RetryDelay)
	result = s.Tick(ctx)

	require.False(t, result.Skipped)
	require.Equal(t, 1, result.Errors)
	require.Empty(t, result.Activated)
	require.Empty(t, result.Cleared)
	require.False(t, trigger(t, fs, "dev1"))
	require.False(t, trigger(t, fs, "dev2"))
	require.Equal(t, alarm.List{entry}, alarmsOf(t, fs, "dev2"))
}

// TestTick_DropsAlarmsOfFinishedMinute removes alarms whose trigger never got set
// once their minute is over, and leaves other alarms alone.
func TestTick_DropsAlarmsOfFinishedMinute(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fs := newFakeStore(t)
	missed := alarm.Alarm{Date: "2025-01-01", Time: "07:00"}
	later := alarm.Alarm{Date: "2025-01-01", Time: "09:00"}
	require.NoError(t, fs.Memory.SetAlarms(ctx, "dev1", alarm.List{missed, later}))

	fs.setTriggerFn = func(string, bool) error { return errTestWrite }

	now := clockAt("2025-01-01 07:00:00")()
	s := New(fs, fs, testActor, WithClock(func() time.Time { return now }), WithLocation(time.UTC))

	result := s.Tick(ctx)
	require.Equal(t, 1, result.Errors)
	require.Empty(t, result.Consumed)
	require.Equal(t, alarm.List{missed, later}, alarmsOf(t, fs, "dev1"))

	fs.setTriggerFn = nil
	now = now.Add(time.Minute)
	result = s.Tick(ctx)

	require.Zero(t, result.Errors)
	require.Equal(t, map[string]int{"dev1": 1}, result.Dropped)
	require.Empty(t, result.Activated)
	require.False(t, trigger(t, fs, "dev1"))
	require.Equal(t, alarm.List{later}, alarmsOf(t, fs, "dev1"))
}

// TestTick_TriggerSnapshotFailure still activates matched devices and never clears.
func TestTick_TriggerSnapshotFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fs := newFakeStore(t)
	require.NoError(t, fs.Memory.SetAlarms(ctx, "dev1", alarm.List{{Date: "2025-01-01", Time: "07:00"}}))
	require.NoError(t, fs.Memory.SetTrigger(ctx, "dev2", true, nil))

	fs.triggersFn = func() error { return errTestRead }

	s := New(fs, fs, testActor, WithClock(clockAt("2025-01-01 07:00:00")), WithLocation(time.UTC))
	result := s.Tick(ctx)

	require.Equal(t, 1, result.Errors)
	require.Equal(t, []string{"dev1"}, result.Activated)
	require.Empty(t, result.Cleared)
	require.True(t, trigger(t, fs, "dev1"))
	require.True(t, trigger(t, fs, "dev2"))
	require.Empty(t, alarmsOf(t, fs, "dev1"))
}

// TestTick_ConsumeRereadsList keeps alarms another writer added between the snapshot and the delete.
func TestTick_ConsumeRereadsList(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fs := newFakeStore(t)
	fired := alarm.Alarm{Date: "2025-01-01", Time: "07:00"}
	added := alarm.Alarm{Date: "2025-01-02", Time: "07:00"}
	require.NoError(t, fs.Memory.SetAlarms(ctx, "dev1", alarm.List{fired, fired}))

	fs.alarmsFn = func(deviceID string) {
		require.NoError(t, fs.Memory.SetAlarms(ctx, deviceID, alarm.List{fired, fired, added}))
	}

	s := New(fs, fs, testActor, WithClock(clockAt("2025-01-01 07:00:00")), WithLocation(time.UTC))
	result := s.Tick(ctx)

	require.Equal(t, map[string]int{"dev1": 2}, result.Consumed)
	require.Equal(t, alarm.List{added}, alarmsOf(t, fs, "dev1"))
}

// TestTick_Timezone matches alarms in the configured location.
func TestTick_Timezone(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rome, err := time.LoadLocation("Europe/Rome")
	require.NoError(t, err)

	fs := newFakeStore(t)
	require.NoError(t, fs.Memory.SetAlarms(ctx, "dev1", alarm.List{{Date: "2025-01-01", Time: "07:00"}}))

	// 06:00 UTC is 07:00 in Rome in winter.
	s := New(fs, fs, testActor, WithClock(clockAt("2025-01-01 06:00:00")), WithLocation(rome))
	result := s.Tick(ctx)

	require.Equal(t, []string{"dev1"}, result.Activated)
}

// TestNextDelay covers the minute alignment and the clamp.
func TestNextDelay(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, time.January, 1, 7, 0, 0, 0, time.UTC)
	epsilon := 100 * time.Millisecond

	tests := []struct {
		name string
		now  time.Time
		want time.Duration
	}{
		{"on the boundary", base, time.Minute + epsilon},
		{"mid minute", base.Add(30 * time.Second), 30*time.Second + epsilon},
		{"just before the boundary", base.Add(time.Minute - 50*time.Millisecond), 150 * time.Millisecond},
		{"one millisecond before the boundary", base.Add(time.Minute - time.Millisecond), 101 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tt.want, NextDelay(tt.now, epsilon))
		})
	}

	require.Equal(t, MinDelay, NextDelay(base.Add(time.Minute-time.Millisecond), 0))
}

// TestRun_TicksEveryMinute drives the loop with the synthetic clock.
func TestRun_TicksEveryMinute(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		fs := newFakeStore(t)
		start := time.Now().In(time.UTC)
		fire := alarm.At(start.Add(time.Minute))
		require.NoError(t, fs.Memory.SetAlarms(ctx, "dev1", alarm.List{fire}))

		s := New(fs, fs, testActor, WithLocation(time.UTC))
		done := make(chan error, 1)

		go func() {
			done <- s.Run(ctx)
		}()

		synctest.Wait()
		require.False(t, trigger(t, fs, "dev1"))

		// Ticks land just past each minute boundary.
		time.Sleep(time.Minute + time.Second)
		synctest.Wait()
		require.True(t, trigger(t, fs, "dev1"))
		require.Empty(t, alarmsOf(t, fs, "dev1"))

		time.Sleep(time.Minute)
		synctest.Wait()
		require.False(t, trigger(t, fs, "dev1"))

		cancel()
		synctest.Wait()
		require.NoError(t, <-done)
	})
}
