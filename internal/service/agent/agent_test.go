package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/silent-alarm/internal/config"
	"github.com/oshokin/silent-alarm/internal/domain/alarm"
	"github.com/oshokin/silent-alarm/internal/hardware"
)

const (
	testDeviceID     = "pi12345"
	ledChannel       = 25
	vibrationChannel = 24
)

var (
	errTestNetwork = errors.New("test network error")
	errTestWrite   = errors.New("test write error")

	testActor = &alarm.Actor{Hostname: "clock", Username: "pi"}
)

// fakeObserver returns the value and error set by the test.
type fakeObserver struct {
	mu    sync.Mutex
	value bool
	err   error
	calls int
}

func (f *fakeObserver) Current(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++

	return f.value, f.err
}

func (f *fakeObserver) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}

func (f *fakeObserver) set(value bool, err error) {
	f.mu.Lock()
	f.value, f.err = value, err
	f.mu.Unlock()
}

// fakeNotifier is an observer that also pushes changes.
type fakeNotifier struct {
	fakeObserver

	callback func(bool)
}

func (f *fakeNotifier) OnChange(callback func(bool)) {
	f.mu.Lock()
	f.callback = callback
	f.mu.Unlock()
}

func (f *fakeNotifier) push(value bool) {
	f.set(value, nil)

	f.mu.Lock()
	callback := f.callback
	f.mu.Unlock()

	callback(value)
}

// fakeWriter records trigger writes.
type fakeWriter struct {
	mu           sync.Mutex
	writes       []bool
	setTriggerFn func(value bool) error
}

func (f *fakeWriter) SetTrigger(_ context.Context, deviceID string, value bool, actor *alarm.Actor) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if deviceID != testDeviceID || actor == nil {
		return errTestWrite
	}

	f.writes = append(f.writes, value)

	if f.setTriggerFn != nil {
		return f.setTriggerFn(value)
	}

	return nil
}

func (f *fakeWriter) written() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]bool(nil), f.writes...)
}

// recordingDisplay remembers every render.
type recordingDisplay struct {
	mu      sync.Mutex
	renders [][]string
	cleared int
}

func (d *recordingDisplay) Render(lines []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.renders = append(d.renders, append([]string(nil), lines...))

	return nil
}

func (d *recordingDisplay) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cleared++

	return nil
}

func (d *recordingDisplay) Close() error { return nil }

func (d *recordingDisplay) last() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.renders) == 0 {
		return nil
	}

	return d.renders[len(d.renders)-1]
}

func (d *recordingDisplay) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.renders)
}

// fakeClock is a settable wall clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Set(hhmmss string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	parsed, err := time.Parse(time.TimeOnly, hhmmss)
	if err != nil {
		panic(err)
	}

	c.now = time.Date(2025, 1, 1, parsed.Hour(), parsed.Minute(), parsed.Second(), 0, time.UTC)
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	agent    *Agent
	observer *fakeObserver
	writer   *fakeWriter
	pins     *hardware.LogPins
	display  *recordingDisplay
	clock    *fakeClock
}

func testSettings() Settings {
	return Settings{
		ResetPolicy:              config.ResetMinute,
		ClockTick:                time.Second,
		OverlayTick:              250 * time.Millisecond,
		StartupGrace:             15 * time.Second,
		DisabledMessageDuration:  10 * time.Second,
		IdentifierDuration:       10 * time.Second,
		VibrationMessageDuration: 3 * time.Second,
		LEDChannel:               ledChannel,
		VibrationChannel:         vibrationChannel,
		DisplayWidth:             16,
	}
}

func newFixture(t *testing.T, start string, mutate func(*Settings)) *fixture {
	t.Helper()

	settings := testSettings()
	if mutate != nil {
		mutate(&settings)
	}

	f := &fixture{
		observer: &fakeObserver{},
		writer:   &fakeWriter{},
		pins:     hardware.NewLogPins(t.Context()),
		display:  &recordingDisplay{},
		clock:    &fakeClock{},
	}
	f.clock.Set(start)

	f.agent = New(testDeviceID, f.observer, f.writer, testActor, f.pins, f.display, settings,
		WithClock(f.clock.Now),
		WithLocation(time.UTC))

	return f
}

func (f *fixture) level(t *testing.T, channel int) hardware.Level {
	t.Helper()

	level, err := f.pins.Level(channel)
	require.NoError(t, err)

	return level
}

// TestTick_TriggerRaisesAlert turns outputs on within one tick of a rising trigger.
func TestTick_TriggerRaisesAlert(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "07:00:00", nil)
	ctx := t.Context()

	f.agent.Tick(ctx)
	require.Equal(t, hardware.Low, f.level(t, ledChannel))
	require.Equal(t, []string{"2025-01-01", "07:00:00"}, f.display.last())

	f.observer.set(true, nil)
	f.clock.Advance(time.Second)
	f.agent.Tick(ctx)

	require.Equal(t, hardware.High, f.level(t, ledChannel))
	require.Equal(t, hardware.Low, f.level(t, vibrationChannel))
	require.Equal(t, []string{"ALARM ACTIVE!", "07:00:01"}, f.display.last())
	require.True(t, f.agent.State().LastObservedTrigger)

	f.observer.set(false, nil)
	f.clock.Advance(time.Second)
	f.agent.Tick(ctx)

	require.Equal(t, hardware.Low, f.level(t, ledChannel))
	require.Equal(t, []string{"2025-01-01", "07:00:02"}, f.display.last())
}

// TestTick_VibrationFollowsSetting drives the motor only when vibration is enabled.
func TestTick_VibrationFollowsSetting(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "07:00:00", func(s *Settings) { s.VibrationEnabled = true })
	ctx := t.Context()

	f.observer.set(true, nil)
	f.agent.Tick(ctx)
	require.Equal(t, hardware.High, f.level(t, vibrationChannel))

	f.agent.PressVibration(ctx)
	require.False(t, f.agent.State().VibrationEnabled)
	require.Equal(t, hardware.Low, f.level(t, vibrationChannel))
	require.Equal(t, hardware.High, f.level(t, ledChannel))
}

// TestPressDisable_SilencesUntilNextMinute covers the mid-alert disable scenario.
func TestPressDisable_SilencesUntilNextMinute(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "07:00:00", nil)
	ctx := t.Context()

	// The store keeps reporting true: the upstream write is lost.
	f.observer.set(true, nil)
	f.agent.Tick(ctx)
	require.Equal(t, hardware.High, f.level(t, ledChannel))

	f.clock.Set("07:00:30")
	f.agent.PressDisable(ctx)

	state := f.agent.State()
	require.True(t, state.ManuallyDisabled)
	require.Equal(t, f.clock.Now(), state.DisabledAt)
	require.Equal(t, hardware.Low, f.level(t, ledChannel))
	require.Equal(t, []bool{false}, f.writer.written())
	require.Equal(t, []string{"Alarm disabled", "07:00:30"}, f.display.last())

	f.clock.Set("07:00:45")
	f.agent.Tick(ctx)
	require.True(t, f.agent.State().ManuallyDisabled)
	require.Equal(t, hardware.Low, f.level(t, ledChannel))
	require.Equal(t, []string{"2025-01-01", "07:00:45"}, f.display.last())

	f.clock.Set("07:01:00")
	f.agent.Tick(ctx)
	require.False(t, f.agent.State().ManuallyDisabled)
	require.Equal(t, hardware.High, f.level(t, ledChannel))
}

// TestPressDisable_EdgePolicyIgnoresMinute keeps the disable across minutes until an edge arrives.
func TestPressDisable_EdgePolicyIgnoresMinute(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "07:00:00", func(s *Settings) { s.ResetPolicy = config.ResetEdge })
	ctx := t.Context()

	f.writer.setTriggerFn = func(bool) error { return errTestWrite }

	f.observer.set(true, nil)
	f.agent.Tick(ctx)

	f.clock.Set("07:00:30")
	f.agent.PressDisable(ctx)

	f.clock.Set("07:01:00")
	f.agent.Tick(ctx)
	require.True(t, f.agent.State().ManuallyDisabled)
	require.Equal(t, hardware.Low, f.level(t, ledChannel))

	// The scheduler clears the trigger: a foreign true->false edge ends the disable.
	f.observer.set(false, nil)
	f.clock.Set("07:01:01")
	f.agent.Tick(ctx)
	require.False(t, f.agent.State().ManuallyDisabled)
	require.True(t, f.agent.State().DisabledAt.IsZero())
}

// TestPressDisable_OwnResetKeepsMessage keeps the disabled message when the agent's own write comes back.
func TestPressDisable_OwnResetKeepsMessage(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "07:00:00", nil)
	ctx := t.Context()

	f.observer.set(true, nil)
	f.agent.Tick(ctx)

	f.clock.Set("07:00:30")
	f.agent.PressDisable(ctx)

	f.observer.set(false, nil)
	f.clock.Set("07:00:31")
	f.agent.Tick(ctx)

	state := f.agent.State()
	require.False(t, state.LastObservedTrigger)
	require.True(t, state.ManuallyDisabled)
	require.Equal(t, []string{"Alarm disabled", "07:00:31"}, f.display.last())

	// A fresh rising edge always re-arms the alert.
	f.observer.set(true, nil)
	f.clock.Set("07:00:32")
	f.agent.Tick(ctx)
	require.False(t, f.agent.State().ManuallyDisabled)
	require.Equal(t, hardware.High, f.level(t, ledChannel))
}

// TestPressDisable_NoActiveAlert does nothing without an active trigger.
func TestPressDisable_NoActiveAlert(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "07:00:00", nil)
	ctx := t.Context()

	f.agent.Tick(ctx)
	f.agent.PressDisable(ctx)

	require.False(t, f.agent.State().ManuallyDisabled)
	require.Empty(t, f.writer.written())

	// A second press while disabled is ignored as well.
	f.observer.set(true, nil)
	f.agent.Tick(ctx)
	f.agent.PressDisable(ctx)
	f.agent.PressDisable(ctx)
	require.Equal(t, []bool{false}, f.writer.written())
}

// TestOverlay_IdentifierExpiresAndExtends checks the identifier timeout and its refresh.
func TestOverlay_IdentifierExpiresAndExtends(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "07:00:00", nil)
	ctx := t.Context()

	f.agent.Tick(ctx)
	f.agent.PressIdentifier(ctx)
	require.Equal(t, ModeShowingID, f.agent.State().DisplayMode)
	require.Equal(t, []string{"Device ID:", testDeviceID}, f.display.last())

	renders := f.display.count()

	// A press at t0+T-e extends the expiry to (t0+T-e)+T without redrawing.
	f.clock.Advance(9 * time.Second)
	f.agent.PressIdentifier(ctx)
	require.Equal(t, renders, f.display.count())

	f.clock.Advance(10 * time.Second)
	f.agent.Tick(ctx)
	require.Equal(t, ModeShowingID, f.agent.State().DisplayMode)

	f.clock.Advance(time.Millisecond)
	f.agent.Tick(ctx)
	require.Equal(t, ModeClock, f.agent.State().DisplayMode)
	require.Equal(t, []string{"2025-01-01", "07:00:19"}, f.display.last())
}

// TestOverlay_VibrationOverridesIdentifier switches overlays and confirms the new setting.
func TestOverlay_VibrationOverridesIdentifier(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "07:00:00", nil)
	ctx := t.Context()

	f.agent.Press(ctx, hardware.ButtonIdentifier)
	f.agent.Press(ctx, hardware.ButtonVibration)

	state := f.agent.State()
	require.Equal(t, ModeVibratorMessage, state.DisplayMode)
	require.True(t, state.VibrationEnabled)
	require.Equal(t, []string{"Vibration", "enabled"}, f.display.last())

	f.agent.Press(ctx, hardware.ButtonVibration)
	require.Equal(t, []string{"Vibration", "disabled"}, f.display.last())

	// Overlays do not poll the store.
	calls := f.observer.callCount()
	f.clock.Advance(time.Second)
	f.agent.Tick(ctx)
	require.Equal(t, calls, f.observer.callCount())

	f.clock.Advance(3 * time.Second)
	f.agent.Tick(ctx)
	require.Equal(t, ModeClock, f.agent.State().DisplayMode)
}

// TestTick_RendersOnlyOnChange avoids redraws when nothing visible changed.
func TestTick_RendersOnlyOnChange(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "07:00:00", nil)
	ctx := t.Context()

	f.agent.Tick(ctx)
	f.agent.Tick(ctx)
	f.agent.Tick(ctx)
	require.Equal(t, 1, f.display.count())

	f.clock.Advance(time.Second)
	f.agent.Tick(ctx)
	require.Equal(t, 2, f.display.count())
}

// TestTick_NetworkErrorAfterGrace hides read failures during the startup grace period.
func TestTick_NetworkErrorAfterGrace(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "07:00:00", nil)
	ctx := t.Context()

	f.observer.set(true, nil)
	f.agent.Tick(ctx)
	require.Equal(t, hardware.High, f.level(t, ledChannel))

	f.observer.set(true, errTestNetwork)
	f.clock.Advance(5 * time.Second)
	f.agent.Tick(ctx)
	require.False(t, f.agent.State().LastObservedTrigger)
	require.Equal(t, hardware.Low, f.level(t, ledChannel))
	require.Equal(t, []string{"2025-01-01", "07:00:05"}, f.display.last())

	f.clock.Advance(11 * time.Second)
	f.agent.Tick(ctx)
	require.Equal(t, []string{"Network error", "07:00:16"}, f.display.last())

	f.observer.set(false, nil)
	f.clock.Advance(time.Second)
	f.agent.Tick(ctx)
	require.Equal(t, []string{"2025-01-01", "07:00:17"}, f.display.last())
}

// TestTick_ActuatorsSelfHeal rewrites the desired output level on every tick.
func TestTick_ActuatorsSelfHeal(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "07:00:00", nil)
	ctx := t.Context()

	f.observer.set(true, nil)
	f.agent.Tick(ctx)

	require.NoError(t, f.pins.SetDigitalOutput(ledChannel, hardware.Low))
	f.agent.Tick(ctx)
	require.Equal(t, hardware.High, f.level(t, ledChannel))
}

// TestIdentifierLines wraps identifiers wider than the display.
func TestIdentifierLines(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"Device ID:", "pi12345"}, identifierLines("pi12345", 16))
	require.Equal(t, []string{"pi12", "345"}, identifierLines("pi12345", 4))
	require.Equal(t, []string{"abc", "def"}, identifierLines("abcdefgh", 3))
}

// TestRun_TicksAndShutsDown drives the loop with a fake clock and checks the cleanup.
func TestRun_TicksAndShutsDown(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())

		observer := &fakeNotifier{}
		pins := hardware.NewLogPins(ctx)
		display := &recordingDisplay{}
		a := New(testDeviceID, observer, &fakeWriter{}, testActor, pins, display, testSettings(),
			WithLocation(time.UTC))

		done := make(chan error, 1)

		go func() {
			done <- a.Run(ctx)
		}()

		synctest.Wait()
		require.Equal(t, 1, observer.callCount())

		// A push is applied without waiting for the next tick.
		observer.push(true)

		level, err := pins.Level(ledChannel)
		require.NoError(t, err)
		require.Equal(t, hardware.High, level)
		require.True(t, strings.HasPrefix(display.last()[0], "ALARM"))

		time.Sleep(3 * time.Second)
		synctest.Wait()
		require.Equal(t, 4, observer.callCount())

		cancel()
		require.NoError(t, <-done)

		level, err = pins.Level(ledChannel)
		require.NoError(t, err)
		require.Equal(t, hardware.Low, level)
		require.Equal(t, 1, display.cleared)
	})
}

// TestRun_IgnoresEventsAfterShutdown keeps outputs off and the display blank
// when a push or a press arrives after the agent stopped.
func TestRun_IgnoresEventsAfterShutdown(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "07:00:00", nil)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	require.NoError(t, f.agent.Run(ctx))
	require.Equal(t, hardware.Low, f.level(t, ledChannel))
	require.Equal(t, 1, f.display.cleared)

	renders := f.display.count()
	live := t.Context()

	f.observer.set(true, nil)
	f.agent.HandleTrigger(live, true)
	f.agent.PressVibration(live)
	f.agent.PressIdentifier(live)
	f.agent.PressDisable(live)
	f.agent.Tick(live)

	require.Equal(t, hardware.Low, f.level(t, ledChannel))
	require.Equal(t, hardware.Low, f.level(t, vibrationChannel))
	require.Equal(t, renders, f.display.count())
	require.Empty(t, f.writer.written())
	require.Equal(t, ModeClock, f.agent.State().DisplayMode)
}

// TestAgent_ConcurrentEvents drives ticks, pushes and presses from several
// goroutines. Run it with -race; afterwards the outputs must match the state.
func TestAgent_ConcurrentEvents(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "07:00:00", nil)
	ctx := t.Context()

	const rounds = 200

	var wg sync.WaitGroup

	wg.Go(func() {
		for i := range rounds {
			f.observer.set(i%3 != 0, nil)
			f.clock.Advance(700 * time.Millisecond)
			f.agent.Tick(ctx)
		}
	})

	wg.Go(func() {
		for i := range rounds {
			f.agent.HandleTrigger(ctx, i%2 == 0)
		}
	})

	wg.Go(func() {
		for range rounds {
			f.agent.Press(ctx, hardware.ButtonDisable)
		}
	})

	wg.Go(func() {
		for i := range rounds {
			if i%2 == 0 {
				f.agent.Press(ctx, hardware.ButtonIdentifier)
			} else {
				f.agent.Press(ctx, hardware.ButtonVibration)
			}
		}
	})

	wg.Wait()

	state := f.agent.State()
	alerting := state.LastObservedTrigger && !state.ManuallyDisabled

	require.Equal(t, hardware.Level(alerting), f.level(t, ledChannel))
	require.Equal(t, hardware.Level(alerting && state.VibrationEnabled), f.level(t, vibrationChannel))
}
