package snapshot

import (
	"context"
	"errors"

	"github.com/oshokin/silent-alarm/internal/domain/alarm"
)

// Repository defines persistence operations for the store contents.
type Repository interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snapshot *Snapshot) error
}

// ErrNotFound is returned when nothing has been persisted yet.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot is the full content of the store at one point in time.
type Snapshot struct {
	// Alarms maps a device identifier to its alarms in insertion order.
	Alarms map[string]alarm.List
	// Triggers maps a device identifier to its trigger state.
	Triggers map[string]*alarm.TriggerState
}

// New returns an empty snapshot.
func New() *Snapshot {
	return &Snapshot{
		Alarms:   make(map[string]alarm.List),
		Triggers: make(map[string]*alarm.TriggerState),
	}
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	cloned := New()
	if s == nil {
		return cloned
	}

	for id, list := range s.Alarms {
		cloned.Alarms[id] = list.Clone()
	}

	for id, state := range s.Triggers {
		cloned.Triggers[id] = state.Clone()
	}

	return cloned
}
