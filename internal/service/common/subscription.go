//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"io"
	"sync"
)

// remoteSubscription adapts a blocking receive function to store.Subscription.
// Like the in-memory store it keeps only the newest undelivered value.
type remoteSubscription struct {
	updates chan bool
	cancel  context.CancelFunc
	done    chan struct{}

	mu  sync.Mutex
	err error
}

// newRemoteSubscription starts pumping values from recv until it fails or Close is called.
func newRemoteSubscription(cancel context.CancelFunc, recv func() (bool, error)) *remoteSubscription {
	s := &remoteSubscription{
		updates: make(chan bool, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go s.pump(recv)

	return s
}

func (s *remoteSubscription) pump(recv func() (bool, error)) {
	defer close(s.done)
	defer close(s.updates)

	for {
		value, err := recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.mu.Lock()
				s.err = err
				s.mu.Unlock()
			}

			return
		}

		select {
		case <-s.updates:
		default:
		}

		s.updates <- value
	}
}

// Updates implements store.Subscription.
func (s *remoteSubscription) Updates() <-chan bool {
	return s.updates
}

// Err implements store.Subscription.
func (s *remoteSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

// Close implements store.Subscription and waits for the receive loop to exit.
func (s *remoteSubscription) Close() error {
	s.cancel()
	<-s.done

	return nil
}
