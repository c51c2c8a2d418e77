package store

import (
	"sync"

	"github.com/google/uuid"
)

// watcher is one trigger subscription on a Memory store.
type watcher struct {
	// id distinguishes watchers of the same device.
	id uuid.UUID
	// deviceID is the watched device.
	deviceID string
	// updates holds at most the latest undelivered value.
	updates chan bool
	// store owns the watcher registry.
	store *Memory

	// once guards closing.
	once sync.Once
	// mu guards stop and err.
	mu sync.Mutex
	// stop detaches the context cancellation hook.
	stop func() bool
	// err is why the subscription ended.
	err error
}

// publish replaces any undelivered value with value. Callers hold the store lock,
// which also guards against publishing on a closed channel.
func (w *watcher) publish(value bool) {
	select {
	case <-w.updates:
	default:
	}

	select {
	case w.updates <- value:
	default:
	}
}

// Updates implements Subscription.
func (w *watcher) Updates() <-chan bool {
	return w.updates
}

// Err implements Subscription.
func (w *watcher) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.err
}

// Close implements Subscription.
func (w *watcher) Close() error {
	w.closeWith(nil)

	return nil
}

func (w *watcher) closeWith(err error) {
	w.once.Do(func() {
		w.mu.Lock()
		w.err = err
		stop := w.stop
		w.mu.Unlock()

		if stop != nil {
			stop()
		}

		w.store.remove(w)
	})
}
