package store

import (
	"context"
	"errors"

	"github.com/oshokin/silent-alarm/internal/domain/alarm"
)

var (
	// ErrTimeout is returned by remote stores when a call did not complete in time.
	ErrTimeout = errors.New("store call timed out")
	// ErrInvalidDeviceID is returned when an empty device identifier is used as a key.
	ErrInvalidDeviceID = errors.New("device id must not be empty")
	// ErrClosed is returned when the store no longer accepts subscriptions.
	ErrClosed = errors.New("store is closed")
)

// AlarmStore maps a device identifier to its alarm list.
type AlarmStore interface {
	// Alarms returns the alarms of one device. A device without alarms yields an empty list.
	Alarms(ctx context.Context, deviceID string) (alarm.List, error)
	// SetAlarms replaces the alarm list of one device. An empty list removes the device.
	SetAlarms(ctx context.Context, deviceID string, alarms alarm.List) error
	// AllAlarms returns every device that has alarms.
	AllAlarms(ctx context.Context) (map[string]alarm.List, error)
}

// TriggerStore maps a device identifier to its trigger value.
type TriggerStore interface {
	// Trigger returns the trigger of one device. A device never written reads as false.
	Trigger(ctx context.Context, deviceID string) (bool, error)
	// SetTrigger writes the trigger of one device on behalf of actor.
	SetTrigger(ctx context.Context, deviceID string, value bool, actor *alarm.Actor) error
	// Triggers returns every stored trigger.
	Triggers(ctx context.Context) (map[string]bool, error)
}

// TriggerWatcher pushes trigger changes of one device.
type TriggerWatcher interface {
	// WatchTrigger subscribes to the trigger of one device. The current value
	// is delivered first, then every change.
	WatchTrigger(ctx context.Context, deviceID string) (Subscription, error)
}

// Subscription is a live stream of trigger values.
type Subscription interface {
	// Updates delivers trigger values. It is closed when the subscription ends.
	Updates() <-chan bool
	// Err reports why the subscription ended, once Updates is closed.
	Err() error
	// Close ends the subscription. It is safe to call more than once.
	Close() error
}

// Store is the full contract of the shared store.
type Store interface {
	AlarmStore
	TriggerStore
	TriggerWatcher
}
