package scheduler

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/oshokin/silent-alarm/internal/domain/alarm"
	"github.com/oshokin/silent-alarm/internal/logger"
	"github.com/oshokin/silent-alarm/internal/store"
)

const (
	// DefaultEpsilon is added after the minute boundary before the next tick.
	DefaultEpsilon = 100 * time.Millisecond
	// MinDelay is the shortest sleep between ticks.
	MinDelay = 100 * time.Millisecond
	// RetryDelay bounds the sleep after a tick with errors.
	RetryDelay = 5 * time.Second
)

// Scheduler reconciles device triggers with alarms once per minute.
// It is not safe for concurrent use; Run drives it from one goroutine.
type Scheduler struct {
	// alarms is the alarm store.
	alarms store.AlarmStore
	// triggers is the trigger store.
	triggers store.TriggerStore
	// actor is recorded on every trigger write.
	actor *alarm.Actor
	// location is the timezone alarms are expressed in.
	location *time.Location
	// now is the wall clock.
	now func() time.Time
	// epsilon is added after each minute boundary.
	epsilon time.Duration

	// minute is the last minute a tick ran for, as an alarm key.
	minute alarm.Alarm
	// minuteDone is set once a tick for minute finished without errors.
	minuteDone bool
	// active holds the devices that matched an alarm during minute.
	active map[string]struct{}
	// confirmed holds the active devices whose trigger was seen or written true during minute.
	confirmed map[string]struct{}
	// pending holds matched alarms that were not consumed yet, per device.
	pending map[string]alarm.List
}

// TickResult summarizes one tick.
type TickResult struct {
	// Minute is the minute the tick ran for.
	Minute alarm.Alarm
	// Skipped is set when the minute had already been processed.
	Skipped bool
	// Activated lists devices whose trigger was set to true.
	Activated []string
	// Cleared lists devices whose trigger was set to false.
	Cleared []string
	// Consumed counts removed alarms per device.
	Consumed map[string]int
	// Dropped counts alarms of a past minute removed without a confirmed trigger.
	Dropped map[string]int
	// Errors counts failed store operations.
	Errors int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the timezone alarms are matched in.
func WithLocation(location *time.Location) Option {
	return func(s *Scheduler) {
		if location != nil {
			s.location = location
		}
	}
}

// WithEpsilon sets the delay added after each minute boundary.
func WithEpsilon(epsilon time.Duration) Option {
	return func(s *Scheduler) {
		if epsilon > 0 {
			s.epsilon = epsilon
		}
	}
}

// New creates a scheduler over the provided stores. Trigger writes are attributed to actor.
func New(alarms store.AlarmStore, triggers store.TriggerStore, actor *alarm.Actor, opts ...Option) *Scheduler {
	s := &Scheduler{
		alarms:    alarms,
		triggers:  triggers,
		actor:     actor,
		location:  time.Local,
		now:       time.Now,
		epsilon:   DefaultEpsilon,
		active:    make(map[string]struct{}),
		confirmed: make(map[string]struct{}),
		pending:   make(map[string]alarm.List),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Tick runs one reconciliation pass for the current minute.
//
//nolint:cyclop,funlen // The pass mirrors the reconciliation steps one to one.
func (s *Scheduler) Tick(ctx context.Context) TickResult {
	now := s.now().In(s.location)
	current := alarm.At(now)
	result := TickResult{
		Minute:   current,
		Consumed: make(map[string]int),
		Dropped:  make(map[string]int),
	}

	if current != s.minute {
		s.dropPending(ctx, &result)

		s.minute = current
		s.minuteDone = false
		s.active = make(map[string]struct{})
		s.confirmed = make(map[string]struct{})
	}

	if s.minuteDone {
		result.Skipped = true

		return result
	}

	ctx = logger.WithKV(ctx, "minute", current.String())

	all, err := s.alarms.AllAlarms(ctx)
	if err != nil {
		logger.ErrorKV(ctx, "Failed to read alarms", "error", err)

		result.Errors++

		return result
	}

	matched := make(map[string]alarm.List)

	for deviceID, list := range all {
		hits := list.Matching(now)
		if len(hits) == 0 {
			continue
		}

		matched[deviceID] = hits
		s.active[deviceID] = struct{}{}
		s.pending[deviceID] = hits
	}

	triggers, err := s.triggers.Triggers(ctx)
	if err != nil {
		logger.ErrorKV(ctx, "Failed to read triggers, activating without comparison", "error", err)

		result.Errors++
	}

	for _, deviceID := range slices.Sorted(maps.Keys(s.active)) {
		// A device reset to false after its activation was silenced on purpose.
		if _, done := s.confirmed[deviceID]; done {
			continue
		}

		if err == nil && triggers[deviceID] {
			s.confirmed[deviceID] = struct{}{}

			continue
		}

		if setErr := s.triggers.SetTrigger(ctx, deviceID, true, s.actor); setErr != nil {
			logger.ErrorKV(ctx, "Failed to activate trigger", "device_id", deviceID, "error", setErr)

			result.Errors++

			continue
		}

		s.confirmed[deviceID] = struct{}{}
		result.Activated = append(result.Activated, deviceID)
	}

	// Without a trigger snapshot there is nothing safe to clear.
	if err == nil {
		for _, deviceID := range slices.Sorted(maps.Keys(triggers)) {
			if _, isActive := s.active[deviceID]; isActive || !triggers[deviceID] {
				continue
			}

			if setErr := s.triggers.SetTrigger(ctx, deviceID, false, s.actor); setErr != nil {
				logger.ErrorKV(ctx, "Failed to clear trigger", "device_id", deviceID, "error", setErr)

				result.Errors++

				continue
			}

			result.Cleared = append(result.Cleared, deviceID)
		}
	}

	for _, deviceID := range slices.Sorted(maps.Keys(matched)) {
		// An alarm is consumed only once its trigger is known to be set.
		if _, ok := s.confirmed[deviceID]; !ok {
			continue
		}

		removed, consumeErr := s.consume(ctx, deviceID, matched[deviceID])
		if consumeErr != nil {
			logger.ErrorKV(ctx, "Failed to consume alarms", "device_id", deviceID, "error", consumeErr)

			result.Errors++

			continue
		}

		delete(s.pending, deviceID)

		if removed > 0 {
			result.Consumed[deviceID] = removed
		}
	}

	s.minuteDone = result.Errors == 0

	return result
}

// consume removes the fired alarms from the freshest copy of the device's list.
func (s *Scheduler) consume(ctx context.Context, deviceID string, fired alarm.List) (int, error) {
	fresh, err := s.alarms.Alarms(ctx, deviceID)
	if err != nil {
		return 0, err
	}

	kept, removed := fresh.Without(fired)
	if removed == 0 {
		return 0, nil
	}

	if err = s.alarms.SetAlarms(ctx, deviceID, kept); err != nil {
		return 0, err
	}

	return removed, nil
}

// dropPending removes the alarms of the finished minute that were never consumed.
// They can no longer match, so leaving them would keep them in the list forever.
func (s *Scheduler) dropPending(ctx context.Context, result *TickResult) {
	for _, deviceID := range slices.Sorted(maps.Keys(s.pending)) {
		removed, err := s.consume(ctx, deviceID, s.pending[deviceID])
		if err != nil {
			logger.ErrorKV(ctx, "Failed to drop missed alarms", "device_id", deviceID, "error", err)

			result.Errors++

			continue
		}

		delete(s.pending, deviceID)

		if removed > 0 {
			logger.WarnKV(ctx, "Dropped alarms left over from a finished minute",
				"device_id", deviceID,
				"minute", s.minute.String(),
				"count", removed)

			result.Dropped[deviceID] = removed
		}
	}
}

// Run ticks until ctx is canceled. A cancellation that arrives mid-tick lets
// the tick finish and then returns without sleeping again.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		result := s.Tick(ctx)
		logResult(ctx, result)

		if ctx.Err() != nil {
			return nil
		}

		delay := NextDelay(s.now(), s.epsilon)
		if result.Errors > 0 {
			delay = min(delay, RetryDelay)
		}

		timer := time.NewTimer(delay)

		select {
		case <-ctx.Done():
			timer.Stop()

			return nil
		case <-timer.C:
		}
	}
}

// NextDelay returns how long to sleep from now until just past the next minute
// boundary, clamped to [MinDelay, 1m+epsilon].
func NextDelay(now time.Time, epsilon time.Duration) time.Duration {
	next := now.Truncate(time.Minute).Add(time.Minute)
	delay := next.Sub(now) + epsilon

	return max(MinDelay, min(delay, time.Minute+epsilon))
}

func logResult(ctx context.Context, result TickResult) {
	switch {
	case result.Skipped:
		logger.DebugKV(ctx, "Minute already processed", "minute", result.Minute.String())
	case len(result.Activated) > 0 || len(result.Cleared) > 0 || len(result.Consumed) > 0 ||
		len(result.Dropped) > 0 || result.Errors > 0:
		logger.InfoKV(ctx, "Tick finished",
			"minute", result.Minute.String(),
			"activated", result.Activated,
			"cleared", result.Cleared,
			"consumed", result.Consumed,
			"dropped", result.Dropped,
			"errors", result.Errors)
	default:
		logger.DebugKV(ctx, "Tick finished, nothing to do", "minute", result.Minute.String())
	}
}
