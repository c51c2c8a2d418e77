package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oshokin/silent-alarm/internal/logger"
	"github.com/oshokin/silent-alarm/internal/store"
)

// Observer resolves the current trigger value of the device.
type Observer interface {
	// Current returns the trigger value to act on. A non-nil error means the
	// value is a fallback and the read should be reported as failed.
	Current(ctx context.Context) (bool, error)
}

// Notifier is implemented by observers that push changes between ticks.
type Notifier interface {
	// OnChange registers the callback invoked with every pushed value.
	OnChange(callback func(bool))
}

// PollingObserver reads the trigger from the store on every call.
type PollingObserver struct {
	reader   TriggerReader
	deviceID string
	timeout  time.Duration

	mu   sync.Mutex
	last bool
}

// TriggerReader reads one trigger value.
type TriggerReader interface {
	Trigger(ctx context.Context, deviceID string) (bool, error)
}

// NewPollingObserver creates an observer reading deviceID with the given request timeout.
func NewPollingObserver(reader TriggerReader, deviceID string, timeout time.Duration) *PollingObserver {
	return &PollingObserver{
		reader:   reader,
		deviceID: deviceID,
		timeout:  timeout,
	}
}

// Current reads the trigger. A timeout keeps the last known value without
// reporting an error; any other failure yields false and the error.
func (o *PollingObserver) Current(ctx context.Context) (bool, error) {
	callCtx := ctx

	if o.timeout > 0 {
		var cancel context.CancelFunc

		callCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	value, err := o.reader.Trigger(callCtx, o.deviceID)

	o.mu.Lock()
	defer o.mu.Unlock()

	switch {
	case err == nil:
		o.last = value

		return value, nil
	case ctx.Err() == nil && isTimeout(err):
		logger.WarnKV(ctx, "Trigger read timed out, keeping last value", "device_id", o.deviceID, "value", o.last)

		return o.last, nil
	default:
		o.last = false

		return false, err
	}
}

// remember records a value learned from another source.
func (o *PollingObserver) remember(value bool) {
	o.mu.Lock()
	o.last = value
	o.mu.Unlock()
}

// SubscribingObserver keeps a push subscription open and serves its latest
// value. While the subscription is down it falls back to polling.
type SubscribingObserver struct {
	watcher    store.TriggerWatcher
	fallback   *PollingObserver
	deviceID   string
	retryDelay time.Duration

	mu        sync.Mutex
	connected bool
	value     bool
	callback  func(bool)
}

// DefaultResubscribeDelay is the pause before a dropped subscription is reopened.
const DefaultResubscribeDelay = 5 * time.Second

// NewSubscribingObserver creates an observer over watcher with fallback as the poll path.
func NewSubscribingObserver(
	watcher store.TriggerWatcher,
	fallback *PollingObserver,
	deviceID string,
	retryDelay time.Duration,
) *SubscribingObserver {
	if retryDelay <= 0 {
		retryDelay = DefaultResubscribeDelay
	}

	return &SubscribingObserver{
		watcher:    watcher,
		fallback:   fallback,
		deviceID:   deviceID,
		retryDelay: retryDelay,
	}
}

// OnChange implements Notifier.
func (o *SubscribingObserver) OnChange(callback func(bool)) {
	o.mu.Lock()
	o.callback = callback
	o.mu.Unlock()
}

// Current returns the pushed value while subscribed and polls otherwise.
func (o *SubscribingObserver) Current(ctx context.Context) (bool, error) {
	o.mu.Lock()
	connected, value := o.connected, o.value
	o.mu.Unlock()

	if connected {
		return value, nil
	}

	return o.fallback.Current(ctx)
}

// Connected reports whether the subscription is currently open.
func (o *SubscribingObserver) Connected() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.connected
}

// Run keeps the subscription open until ctx is canceled, reopening it after failures.
func (o *SubscribingObserver) Run(ctx context.Context) {
	ctx = logger.WithKV(ctx, "device_id", o.deviceID)

	for {
		if err := o.consume(ctx); err != nil && ctx.Err() == nil {
			logger.WarnKV(ctx, "Trigger subscription lost, polling until it is back",
				"error", err,
				"retry_in", o.retryDelay.String())
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(o.retryDelay):
		}
	}
}

func (o *SubscribingObserver) consume(ctx context.Context) error {
	sub, err := o.watcher.WatchTrigger(ctx, o.deviceID)
	if err != nil {
		return err
	}

	defer func() {
		_ = sub.Close()

		o.mu.Lock()
		o.connected = false
		o.mu.Unlock()
	}()

	logger.Debug(ctx, "Trigger subscription opened")

	for value := range sub.Updates() {
		o.fallback.remember(value)

		o.mu.Lock()
		o.connected = true
		o.value = value
		callback := o.callback
		o.mu.Unlock()

		if callback != nil {
			callback(value)
		}
	}

	if err = sub.Err(); err != nil {
		return err
	}

	return errSubscriptionEnded
}

// errSubscriptionEnded is reported when the store closes a subscription without an error.
var errSubscriptionEnded = errors.New("subscription ended")

func isTimeout(err error) bool {
	return errors.Is(err, store.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
