package store

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/silent-alarm/internal/domain/alarm"
	"github.com/oshokin/silent-alarm/internal/logger"
	"github.com/oshokin/silent-alarm/internal/repository/snapshot"
)

// Memory is the in-process store. All methods are safe for concurrent use.
type Memory struct {
	// repo persists the snapshot after each mutation. Nil disables persistence.
	repo snapshot.Repository
	// now is the clock used to stamp trigger writes.
	now func() time.Time
	// data is the current content of the store.
	data *snapshot.Snapshot
	// watchers holds the live subscriptions per device.
	watchers map[string]map[uuid.UUID]*watcher
	// closed is set once Close has been called.
	closed bool
	// mu protects data, watchers and closed.
	mu sync.RWMutex
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithClock overrides the clock used to stamp trigger writes.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

var _ Store = (*Memory)(nil)

// NewMemory creates a store seeded from the repository, if one is provided.
func NewMemory(ctx context.Context, repository snapshot.Repository, opts ...MemoryOption) (*Memory, error) {
	m := &Memory{
		repo:     repository,
		now:      time.Now,
		data:     snapshot.New(),
		watchers: make(map[string]map[uuid.UUID]*watcher),
	}

	for _, opt := range opts {
		opt(m)
	}

	if repository == nil {
		return m, nil
	}

	loaded, err := repository.Load(ctx)
	switch {
	case err == nil:
		if loaded != nil {
			m.data = loaded.Clone()
		}
	case errors.Is(err, snapshot.ErrNotFound):
		// Start empty.
	default:
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	logger.InfoKV(ctx, "Store loaded", "devices_with_alarms", len(m.data.Alarms), "triggers", len(m.data.Triggers))

	return m, nil
}

// Alarms returns a copy of the alarms of one device.
func (m *Memory) Alarms(_ context.Context, deviceID string) (alarm.List, error) {
	if err := checkDeviceID(deviceID); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.data.Alarms[deviceID].Clone(), nil
}

// SetAlarms validates and replaces the alarms of one device.
func (m *Memory) SetAlarms(ctx context.Context, deviceID string, alarms alarm.List) error {
	if err := checkDeviceID(deviceID); err != nil {
		return err
	}

	for _, entry := range alarms {
		if err := entry.Validate(); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	previous, existed := m.data.Alarms[deviceID]

	if len(alarms) == 0 {
		delete(m.data.Alarms, deviceID)
	} else {
		m.data.Alarms[deviceID] = alarms.Clone()
	}

	if err := m.persist(ctx); err != nil {
		if existed {
			m.data.Alarms[deviceID] = previous
		} else {
			delete(m.data.Alarms, deviceID)
		}

		return err
	}

	logger.DebugKV(ctx, "Alarms updated", "device_id", deviceID, "count", len(alarms))

	return nil
}

// DeleteAlarms removes every alarm of one device.
func (m *Memory) DeleteAlarms(ctx context.Context, deviceID string) error {
	return m.SetAlarms(ctx, deviceID, nil)
}

// AllAlarms returns a copy of every non-empty alarm list.
func (m *Memory) AllAlarms(context.Context) (map[string]alarm.List, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]alarm.List, len(m.data.Alarms))
	for id, list := range m.data.Alarms {
		result[id] = list.Clone()
	}

	return result, nil
}

// Trigger returns the trigger of one device.
func (m *Memory) Trigger(ctx context.Context, deviceID string) (bool, error) {
	state, err := m.TriggerState(ctx, deviceID)
	if err != nil {
		return false, err
	}

	return state.Value, nil
}

// TriggerState returns the trigger of one device together with its write metadata.
func (m *Memory) TriggerState(_ context.Context, deviceID string) (*alarm.TriggerState, error) {
	if err := checkDeviceID(deviceID); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.data.Triggers[deviceID]
	if !ok {
		return &alarm.TriggerState{}, nil
	}

	return state.Clone(), nil
}

// SetTrigger writes the trigger of one device and notifies watchers if the value changed.
func (m *Memory) SetTrigger(ctx context.Context, deviceID string, value bool, actor *alarm.Actor) error {
	if err := checkDeviceID(deviceID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	previous, existed := m.data.Triggers[deviceID]
	changed := valueOf(previous) != value

	m.data.Triggers[deviceID] = &alarm.TriggerState{
		UpdatedAt: m.now(),
		LastActor: actor.Clone(),
		Value:     value,
	}

	if err := m.persist(ctx); err != nil {
		if existed {
			m.data.Triggers[deviceID] = previous
		} else {
			delete(m.data.Triggers, deviceID)
		}

		return err
	}

	if changed {
		for _, w := range m.watchers[deviceID] {
			w.publish(value)
		}

		logger.InfoKV(ctx, "Trigger changed", "device_id", deviceID, "value", value, "actor", actor)
	}

	return nil
}

// Triggers returns a copy of every stored trigger value.
func (m *Memory) Triggers(context.Context) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]bool, len(m.data.Triggers))
	for id, state := range m.data.Triggers {
		result[id] = state.Value
	}

	return result, nil
}

// Snapshot returns a deep copy of the whole store.
func (m *Memory) Snapshot() *snapshot.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.data.Clone()
}

// WatchTrigger subscribes to the trigger of one device. The subscription ends
// when ctx is canceled, Close is called on it or the store is closed.
func (m *Memory) WatchTrigger(ctx context.Context, deviceID string) (Subscription, error) {
	if err := checkDeviceID(deviceID); err != nil {
		return nil, err
	}

	w := &watcher{
		id:       uuid.New(),
		deviceID: deviceID,
		updates:  make(chan bool, 1),
		store:    m,
	}

	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()

		return nil, ErrClosed
	}

	if m.watchers[deviceID] == nil {
		m.watchers[deviceID] = make(map[uuid.UUID]*watcher)
	}

	m.watchers[deviceID][w.id] = w
	w.publish(valueOf(m.data.Triggers[deviceID]))

	m.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		w.closeWith(context.Cause(ctx))
	})

	w.mu.Lock()
	w.stop = stop
	w.mu.Unlock()

	logger.DebugKV(ctx, "Trigger watch started", "device_id", deviceID, "watcher_id", w.id)

	return w, nil
}

// WatcherCount returns the number of live subscriptions for one device.
func (m *Memory) WatcherCount(deviceID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.watchers[deviceID])
}

// Close ends every subscription and rejects new ones. Reads and writes keep working.
func (m *Memory) Close() error {
	m.mu.Lock()

	m.closed = true

	var all []*watcher
	for _, byID := range m.watchers {
		all = append(all, slices.Collect(maps.Values(byID))...)
	}

	m.mu.Unlock()

	for _, w := range all {
		w.closeWith(ErrClosed)
	}

	return nil
}

// persist saves the current data. Callers must hold the write lock.
func (m *Memory) persist(ctx context.Context) error {
	if m.repo == nil {
		return nil
	}

	if err := m.repo.Save(ctx, m.data); err != nil {
		logger.ErrorKV(ctx, "Failed to persist store snapshot", "error", err)

		return fmt.Errorf("persist snapshot: %w", err)
	}

	return nil
}

// remove unregisters a watcher and closes its channel.
func (m *Memory) remove(w *watcher) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byID := m.watchers[w.deviceID]
	delete(byID, w.id)

	if len(byID) == 0 {
		delete(m.watchers, w.deviceID)
	}

	close(w.updates)
}

func checkDeviceID(deviceID string) error {
	if strings.TrimSpace(deviceID) == "" {
		return ErrInvalidDeviceID
	}

	return nil
}

func valueOf(state *alarm.TriggerState) bool {
	return state != nil && state.Value
}
