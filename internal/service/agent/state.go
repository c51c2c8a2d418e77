package agent

import (
	"time"
)

// DisplayMode selects what the display shows.
type DisplayMode int

// Display modes. SHOWING_ID and VIBRATOR_MESSAGE are overlays that expire back to CLOCK.
const (
	ModeClock DisplayMode = iota
	ModeShowingID
	ModeVibratorMessage
)

// String returns the mode name.
func (m DisplayMode) String() string {
	switch m {
	case ModeClock:
		return "CLOCK"
	case ModeShowingID:
		return "SHOWING_ID"
	case ModeVibratorMessage:
		return "VIBRATOR_MESSAGE"
	default:
		return "UNKNOWN"
	}
}

// RuntimeState is the in-memory state of a running agent. It is never persisted:
// a restarted agent always begins in CLOCK with nothing disabled.
type RuntimeState struct {
	// LastObservedTrigger is the most recent trigger value seen for the device.
	LastObservedTrigger bool
	// ManuallyDisabled suppresses the alert after a disable press.
	ManuallyDisabled bool
	// DisabledAt is when the disable button was pressed, zero when not disabled.
	DisabledAt time.Time
	// DisplayMode is the current display mode.
	DisplayMode DisplayMode
	// ModeEnteredAt is when the current overlay was entered or last refreshed.
	ModeEnteredAt time.Time
	// VibrationEnabled makes an active alert drive the vibration motor as well.
	VibrationEnabled bool
}

// Alerting reports whether the actuators must be on.
func (s *RuntimeState) Alerting() bool {
	return s.LastObservedTrigger && !s.ManuallyDisabled
}

// Display texts.
const (
	textDisabled         = "Alarm disabled"
	textActive           = "ALARM ACTIVE!"
	textNetworkError     = "Network error"
	textDeviceID         = "Device ID:"
	textVibration        = "Vibration"
	textVibrationEnabled = "enabled"
	textVibrationOff     = "disabled"

	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
)

// identifierLines renders id on two lines, splitting it when it does not fit
// next to a caption.
func identifierLines(id string, width int) []string {
	runes := []rune(id)
	if width <= 0 || len(runes) <= width {
		return []string{textDeviceID, id}
	}

	second := runes[width:]
	if len(second) > width {
		second = second[:width]
	}

	return []string{string(runes[:width]), string(second)}
}

func vibrationLines(enabled bool) []string {
	if enabled {
		return []string{textVibration, textVibrationEnabled}
	}

	return []string{textVibration, textVibrationOff}
}
