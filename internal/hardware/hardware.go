package hardware

import (
	"context"
	"errors"
)

// Level is the logical level of a digital output.
type Level bool

// Output levels.
const (
	Low  Level = false
	High Level = true
)

// String renders the level as LOW or HIGH.
func (l Level) String() string {
	if l {
		return "HIGH"
	}

	return "LOW"
}

// Button names a physical button of the device.
type Button int

// Device buttons.
const (
	ButtonDisable Button = iota + 1
	ButtonIdentifier
	ButtonVibration
)

// String returns the button name.
func (b Button) String() string {
	switch b {
	case ButtonDisable:
		return "disable"
	case ButtonIdentifier:
		return "identifier"
	case ButtonVibration:
		return "vibration"
	default:
		return "unknown"
	}
}

// Pins drives digital output channels.
type Pins interface {
	// SetDigitalOutput sets channel to level.
	SetDigitalOutput(channel int, level Level) error
	// Close releases the channels.
	Close() error
}

// Display renders short text on a character display.
type Display interface {
	// Render replaces the display content with lines.
	Render(lines []string) error
	// Clear blanks the display.
	Clear() error
	// Close releases the display.
	Close() error
}

// Buttons reports button presses.
type Buttons interface {
	// Watch calls press for every button press until ctx is canceled or the source fails.
	Watch(ctx context.Context, press func(Button)) error
}

// errUnknownChannel is returned when a channel has never been configured.
var errUnknownChannel = errors.New("unknown channel")
