package alarm

import (
	"fmt"
	"time"
)

// Actor identifies who wrote a trigger value.
type Actor struct {
	// Hostname is the machine name where the write originated.
	Hostname string
	// Username is the system user of the writing process.
	Username string
}

// Clone returns a deep copy of the actor.
func (a *Actor) Clone() *Actor {
	if a == nil {
		return nil
	}

	cloned := *a

	return &cloned
}

// String renders the actor as username@hostname.
func (a *Actor) String() string {
	if a == nil {
		return "<unknown>"
	}

	return fmt.Sprintf("%s@%s", a.Username, a.Hostname)
}

// TriggerState is the trigger value of one device at a specific point in time.
type TriggerState struct {
	// UpdatedAt is when the trigger was last written.
	UpdatedAt time.Time
	// LastActor is who wrote the trigger last.
	LastActor *Actor
	// Value reports whether the device should currently be alerting.
	Value bool
}

// Clone returns a copy of the state to avoid leaking internal references.
func (s *TriggerState) Clone() *TriggerState {
	if s == nil {
		return nil
	}

	return &TriggerState{
		UpdatedAt: s.UpdatedAt,
		LastActor: s.LastActor.Clone(),
		Value:     s.Value,
	}
}
