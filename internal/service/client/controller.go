package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oshokin/silent-alarm/internal/domain/alarm"
	"github.com/oshokin/silent-alarm/internal/store"
)

var (
	// ErrAlarmInPast is returned when an alarm lies more than PastTolerance in the past.
	ErrAlarmInPast = errors.New("alarm is in the past")
	// ErrDuplicateAlarm is returned when the device already has the same alarm.
	ErrDuplicateAlarm = errors.New("alarm already set")
	// ErrNoSuchAlarm is returned when a listing position does not exist.
	ErrNoSuchAlarm = errors.New("no alarm at this position")
)

// PastTolerance is how far in the past a new alarm may still lie.
const PastTolerance = time.Minute

// Store is the part of the shared store the operator commands use.
type Store interface {
	store.AlarmStore
	store.TriggerStore

	TriggerState(ctx context.Context, deviceID string) (*alarm.TriggerState, error)
}

// Controller runs operator commands against a store.
type Controller struct {
	store    Store
	actor    *alarm.Actor
	location *time.Location
	now      func() time.Time
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLocation sets the timezone alarms are interpreted in.
func WithLocation(location *time.Location) ControllerOption {
	return func(c *Controller) {
		if location != nil {
			c.location = location
		}
	}
}

// NewController creates a controller writing triggers on behalf of actor.
func NewController(s Store, actor *alarm.Actor, opts ...ControllerOption) *Controller {
	c := &Controller{
		store:    s,
		actor:    actor,
		location: time.Local,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// AddAlarm appends a new alarm to the device list.
func (c *Controller) AddAlarm(ctx context.Context, deviceID, date, clock string) (alarm.Alarm, error) {
	entry, err := alarm.New(date, clock)
	if err != nil {
		return alarm.Alarm{}, err
	}

	at, err := entry.In(c.location)
	if err != nil {
		return alarm.Alarm{}, err
	}

	if at.Before(c.now().Add(-PastTolerance)) {
		return alarm.Alarm{}, fmt.Errorf("%w: %s", ErrAlarmInPast, entry)
	}

	alarms, err := c.store.Alarms(ctx, deviceID)
	if err != nil {
		return alarm.Alarm{}, fmt.Errorf("get alarms: %w", err)
	}

	if alarms.Contains(entry) {
		return alarm.Alarm{}, fmt.Errorf("%w: %s", ErrDuplicateAlarm, entry)
	}

	if err = c.store.SetAlarms(ctx, deviceID, append(alarms.Clone(), entry)); err != nil {
		return alarm.Alarm{}, fmt.Errorf("set alarms: %w", err)
	}

	return entry, nil
}

// ListAlarms returns the device alarms sorted by date and time.
func (c *Controller) ListAlarms(ctx context.Context, deviceID string) (alarm.List, error) {
	alarms, err := c.store.Alarms(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("get alarms: %w", err)
	}

	return alarms.Sorted(), nil
}

// DeleteAlarm removes the alarm at position (counted from 1) of the sorted listing.
func (c *Controller) DeleteAlarm(ctx context.Context, deviceID string, position int) (alarm.Alarm, error) {
	alarms, err := c.store.Alarms(ctx, deviceID)
	if err != nil {
		return alarm.Alarm{}, fmt.Errorf("get alarms: %w", err)
	}

	sorted := alarms.Sorted()
	if position < 1 || position > len(sorted) {
		return alarm.Alarm{}, fmt.Errorf("%w: %d of %d", ErrNoSuchAlarm, position, len(sorted))
	}

	removed := sorted[position-1]
	kept, _ := alarms.Without(alarm.List{removed})

	if err = c.store.SetAlarms(ctx, deviceID, kept); err != nil {
		return alarm.Alarm{}, fmt.Errorf("set alarms: %w", err)
	}

	return removed, nil
}

// Trigger returns the trigger of the device with its metadata.
func (c *Controller) Trigger(ctx context.Context, deviceID string) (*alarm.TriggerState, error) {
	state, err := c.store.TriggerState(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("get trigger: %w", err)
	}

	return state, nil
}

// SetTrigger forces the trigger of the device.
func (c *Controller) SetTrigger(ctx context.Context, deviceID string, value bool) error {
	if err := c.store.SetTrigger(ctx, deviceID, value, c.actor); err != nil {
		return fmt.Errorf("set trigger: %w", err)
	}

	return nil
}
