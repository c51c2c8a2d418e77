package agent

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/oshokin/silent-alarm/internal/config"
	"github.com/oshokin/silent-alarm/internal/domain/alarm"
	"github.com/oshokin/silent-alarm/internal/hardware"
	"github.com/oshokin/silent-alarm/internal/logger"
)

// TriggerWriter writes the trigger of a device.
type TriggerWriter interface {
	SetTrigger(ctx context.Context, deviceID string, value bool, actor *alarm.Actor) error
}

// Settings holds the timing and wiring of an agent.
type Settings struct {
	// ResetPolicy is config.ResetMinute or config.ResetEdge.
	ResetPolicy string
	// ClockTick is the tick interval in CLOCK mode.
	ClockTick time.Duration
	// OverlayTick is the tick interval while an overlay is shown.
	OverlayTick time.Duration
	// StartupGrace hides read failures right after start.
	StartupGrace time.Duration
	// DisabledMessageDuration is how long the disabled message stays after a disable press.
	DisabledMessageDuration time.Duration
	// IdentifierDuration is how long the identifier overlay stays.
	IdentifierDuration time.Duration
	// VibrationMessageDuration is how long the vibration overlay stays.
	VibrationMessageDuration time.Duration
	// LEDChannel is the output driving the alert LED.
	LEDChannel int
	// VibrationChannel is the output driving the vibration motor.
	VibrationChannel int
	// DisplayWidth is the number of columns of the display.
	DisplayWidth int
	// VibrationEnabled is the initial vibration setting.
	VibrationEnabled bool
}

// SettingsFromConfig builds agent settings from the device configuration.
func SettingsFromConfig(cfg *config.DeviceConfig) Settings {
	return Settings{
		ResetPolicy:              cfg.DisableReset,
		ClockTick:                cfg.ClockTick,
		OverlayTick:              cfg.OverlayTick,
		StartupGrace:             cfg.StartupGrace,
		DisabledMessageDuration:  cfg.DisabledMessageDuration,
		IdentifierDuration:       cfg.IdentifierDuration,
		VibrationMessageDuration: cfg.VibrationMessageDuration,
		LEDChannel:               cfg.GPIO.LEDPin,
		VibrationChannel:         cfg.GPIO.VibrationPin,
		DisplayWidth:             cfg.Display.Width,
		VibrationEnabled:         cfg.VibrationEnabled,
	}
}

// Agent is the state machine of one device.
type Agent struct {
	deviceID string
	observer Observer
	triggers TriggerWriter
	actor    *alarm.Actor
	pins     hardware.Pins
	display  hardware.Display
	settings Settings
	location *time.Location
	now      func() time.Time

	mu    sync.Mutex
	state RuntimeState
	// startedAt anchors the startup grace period.
	startedAt time.Time
	// minute is the wall-clock minute seen by the previous tick.
	minute time.Time
	// readFailed is set when the latest trigger read failed.
	readFailed bool
	// awaitingEcho is set while the false written by a disable press has not been observed yet.
	awaitingEcho bool
	// rendered is the content last written to the display, nil when unknown.
	rendered []string
	// stopped is set by shutdown; later events leave outputs and display alone.
	stopped bool
}

// Option configures an Agent.
type Option func(*Agent)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		if now != nil {
			a.now = now
		}
	}
}

// WithLocation sets the timezone of the displayed clock and of minute boundaries.
func WithLocation(location *time.Location) Option {
	return func(a *Agent) {
		if location != nil {
			a.location = location
		}
	}
}

// New creates an agent for deviceID. It starts in CLOCK with nothing disabled.
func New(
	deviceID string,
	observer Observer,
	triggers TriggerWriter,
	actor *alarm.Actor,
	pins hardware.Pins,
	display hardware.Display,
	settings Settings,
	opts ...Option,
) *Agent {
	a := &Agent{
		deviceID: deviceID,
		observer: observer,
		triggers: triggers,
		actor:    actor,
		pins:     pins,
		display:  display,
		settings: settings,
		location: time.Local,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(a)
	}

	a.state = RuntimeState{
		DisplayMode:      ModeClock,
		VibrationEnabled: settings.VibrationEnabled,
	}
	a.startedAt = a.now()
	a.minute = a.minuteOf(a.startedAt)

	return a
}

// State returns a copy of the runtime state.
func (a *Agent) State() RuntimeState {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.state
}

// Run ticks until ctx is canceled, then turns the outputs off and clears the display.
func (a *Agent) Run(ctx context.Context) error {
	ctx = logger.WithKV(ctx, "device_id", a.deviceID)

	if notifier, ok := a.observer.(Notifier); ok {
		notifier.OnChange(func(value bool) {
			a.HandleTrigger(ctx, value)
		})
	}

	defer a.shutdown(ctx)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		a.Tick(ctx)

		// Cancellation during a tick must not schedule another one.
		if ctx.Err() != nil {
			return nil
		}

		timer.Reset(a.interval())
	}
}

// Tick runs one periodic step: minute reset, overlay expiry, trigger
// resolution in CLOCK mode, display refresh and actuator consistency.
func (a *Agent) Tick(ctx context.Context) {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()

		return
	}

	now := a.now()
	a.resetOnMinute(ctx, now)
	a.expireOverlay(ctx, now)
	clock := a.state.DisplayMode == ModeClock
	a.mu.Unlock()

	if clock {
		// The read may block up to the poll timeout and must not hold the state lock.
		value, err := a.observer.Current(ctx)
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			logger.WarnKV(ctx, "Trigger read failed, assuming inactive", "error", err)
		}

		a.mu.Lock()
		defer a.mu.Unlock()

		if a.stopped {
			return
		}

		a.readFailed = err != nil
		a.observe(ctx, value)
		a.reconcile(ctx, a.now())

		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.stopped {
		a.reconcile(ctx, a.now())
	}
}

// HandleTrigger applies a trigger value pushed by a subscription.
func (a *Agent) HandleTrigger(ctx context.Context, value bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return
	}

	a.readFailed = false
	a.observe(ctx, value)
	a.reconcile(ctx, a.now())
}

// Press dispatches a button press.
func (a *Agent) Press(ctx context.Context, button hardware.Button) {
	logger.DebugKV(ctx, "Button pressed", "button", button.String())

	switch button {
	case hardware.ButtonDisable:
		a.PressDisable(ctx)
	case hardware.ButtonIdentifier:
		a.PressIdentifier(ctx)
	case hardware.ButtonVibration:
		a.PressVibration(ctx)
	}
}

// PressDisable silences an active alert and writes false upstream.
// It does nothing unless the trigger is on and not already disabled.
func (a *Agent) PressDisable(ctx context.Context) {
	a.mu.Lock()

	if a.stopped {
		a.mu.Unlock()

		return
	}

	if !a.state.LastObservedTrigger || a.state.ManuallyDisabled {
		a.mu.Unlock()
		logger.Debug(ctx, "Disable pressed without an active alert")

		return
	}

	now := a.now()
	a.state.ManuallyDisabled = true
	a.state.DisabledAt = now
	a.awaitingEcho = true
	a.reconcile(ctx, now)
	a.mu.Unlock()

	logger.Info(ctx, "Alarm disabled manually")

	// Local suppression already happened; the upstream write is best effort.
	if err := a.triggers.SetTrigger(ctx, a.deviceID, false, a.actor); err != nil {
		logger.WarnKV(ctx, "Unable to reset trigger upstream", "error", err)

		a.mu.Lock()
		a.awaitingEcho = false
		a.mu.Unlock()
	}
}

// PressIdentifier shows the device identifier, or extends it when already shown.
func (a *Agent) PressIdentifier(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return
	}

	now := a.now()
	a.state.ModeEnteredAt = now

	if a.state.DisplayMode != ModeShowingID {
		a.state.DisplayMode = ModeShowingID
		logger.DebugKV(ctx, "Showing device identifier", "device_id", a.deviceID)
	}

	a.reconcile(ctx, now)
}

// PressVibration toggles vibration and confirms the new setting on the display.
func (a *Agent) PressVibration(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return
	}

	now := a.now()
	a.state.VibrationEnabled = !a.state.VibrationEnabled
	a.state.DisplayMode = ModeVibratorMessage
	a.state.ModeEnteredAt = now

	logger.InfoKV(ctx, "Vibration toggled", "enabled", a.state.VibrationEnabled)

	a.reconcile(ctx, now)
}

// observe applies a trigger value and its edge. The caller holds a.mu.
func (a *Agent) observe(ctx context.Context, value bool) {
	previous := a.state.LastObservedTrigger
	a.state.LastObservedTrigger = value

	switch {
	case value == previous:
		return
	case value:
		logger.Info(ctx, "Trigger raised")

		a.awaitingEcho = false
		a.clearDisabled()
	case a.awaitingEcho:
		// Our own disable write coming back: keep the disabled message on screen.
		logger.Debug(ctx, "Trigger reset acknowledged")

		a.awaitingEcho = false
	default:
		logger.Info(ctx, "Trigger reset")

		a.clearDisabled()
	}
}

func (a *Agent) clearDisabled() {
	a.state.ManuallyDisabled = false
	a.state.DisabledAt = time.Time{}
}

// resetOnMinute clears a manual disable when the wall-clock minute changes. The caller holds a.mu.
func (a *Agent) resetOnMinute(ctx context.Context, now time.Time) {
	minute := a.minuteOf(now)
	if minute.Equal(a.minute) {
		return
	}

	a.minute = minute

	if a.settings.ResetPolicy == config.ResetEdge || !a.state.ManuallyDisabled {
		return
	}

	logger.Info(ctx, "New minute, manual disable cleared")
	a.clearDisabled()
}

// expireOverlay returns to CLOCK once an overlay outlived its duration. The caller holds a.mu.
func (a *Agent) expireOverlay(ctx context.Context, now time.Time) {
	var duration time.Duration

	switch a.state.DisplayMode {
	case ModeShowingID:
		duration = a.settings.IdentifierDuration
	case ModeVibratorMessage:
		duration = a.settings.VibrationMessageDuration
	default:
		return
	}

	if now.Sub(a.state.ModeEnteredAt) <= duration {
		return
	}

	logger.DebugKV(ctx, "Overlay expired", "mode", a.state.DisplayMode.String())

	a.state.DisplayMode = ModeClock
	a.state.ModeEnteredAt = time.Time{}
	a.rendered = nil
}

// reconcile renders the display when its content changed and drives the
// outputs to the desired level. The caller holds a.mu.
func (a *Agent) reconcile(ctx context.Context, now time.Time) {
	lines := a.content(now)
	if !slices.Equal(lines, a.rendered) {
		if err := a.display.Render(lines); err != nil {
			logger.ErrorKV(ctx, "Unable to render display", "error", err)
		} else {
			a.rendered = lines
		}
	}

	alerting := a.state.Alerting()
	a.setOutput(ctx, a.settings.LEDChannel, alerting)
	a.setOutput(ctx, a.settings.VibrationChannel, alerting && a.state.VibrationEnabled)
}

// content returns the display lines for the current state.
func (a *Agent) content(now time.Time) []string {
	local := now.In(a.location)
	clock := local.Format(timeLayout)

	switch a.state.DisplayMode {
	case ModeShowingID:
		return identifierLines(a.deviceID, a.settings.DisplayWidth)
	case ModeVibratorMessage:
		return vibrationLines(a.state.VibrationEnabled)
	}

	switch {
	case a.state.ManuallyDisabled && now.Sub(a.state.DisabledAt) <= a.settings.DisabledMessageDuration:
		return []string{textDisabled, clock}
	case a.state.Alerting():
		return []string{textActive, clock}
	case a.readFailed && now.Sub(a.startedAt) > a.settings.StartupGrace:
		return []string{textNetworkError, clock}
	default:
		return []string{local.Format(dateLayout), clock}
	}
}

func (a *Agent) setOutput(ctx context.Context, channel int, on bool) {
	level := hardware.Low
	if on {
		level = hardware.High
	}

	if err := a.pins.SetDigitalOutput(channel, level); err != nil {
		logger.ErrorKV(ctx, "Unable to drive output", "channel", channel, "level", level.String(), "error", err)
	}
}

// interval returns the pause before the next tick.
func (a *Agent) interval() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state.DisplayMode != ModeClock {
		return a.settings.OverlayTick
	}

	return a.settings.ClockTick
}

func (a *Agent) shutdown(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopped = true

	for _, channel := range []int{a.settings.LEDChannel, a.settings.VibrationChannel} {
		if err := a.pins.SetDigitalOutput(channel, hardware.Low); err != nil {
			logger.ErrorKV(ctx, "Unable to turn output off", "channel", channel, "error", err)
		}
	}

	if err := a.display.Clear(); err != nil {
		logger.ErrorKV(ctx, "Unable to clear display", "error", err)
	}

	a.rendered = nil

	logger.Info(ctx, "Outputs off, display cleared")
}

func (a *Agent) minuteOf(t time.Time) time.Time {
	return t.In(a.location).Truncate(time.Minute)
}
