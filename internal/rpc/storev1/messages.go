package storev1

import (
	"time"

	"github.com/oshokin/silent-alarm/internal/domain/alarm"
)

// Actor identifies the writer of a trigger.
type Actor struct {
	Hostname string `json:"hostname"`
	Username string `json:"username"`
}

// GetAlarmsRequest asks for the alarms of one device.
type GetAlarmsRequest struct {
	DeviceID string `json:"device_id"`
}

// AlarmsResponse carries the alarms of one device.
type AlarmsResponse struct {
	DeviceID string     `json:"device_id"`
	Alarms   alarm.List `json:"alarms"`
}

// SetAlarmsRequest replaces the alarms of one device.
type SetAlarmsRequest struct {
	DeviceID string     `json:"device_id"`
	Alarms   alarm.List `json:"alarms"`
}

// SetAlarmsResponse acknowledges SetAlarms.
type SetAlarmsResponse struct{}

// ListAlarmsRequest asks for every device with alarms.
type ListAlarmsRequest struct{}

// ListAlarmsResponse maps device identifiers to their alarms.
type ListAlarmsResponse struct {
	Devices map[string]alarm.List `json:"devices"`
}

// GetTriggerRequest asks for the trigger of one device.
type GetTriggerRequest struct {
	DeviceID string `json:"device_id"`
}

// TriggerResponse carries the trigger of one device with its write metadata.
type TriggerResponse struct {
	DeviceID  string    `json:"device_id"`
	Value     bool      `json:"value"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
	LastActor *Actor    `json:"last_actor,omitempty"`
}

// SetTriggerRequest writes the trigger of one device.
type SetTriggerRequest struct {
	DeviceID string `json:"device_id"`
	Value    bool   `json:"value"`
	Actor    *Actor `json:"actor,omitempty"`
}

// SetTriggerResponse acknowledges SetTrigger.
type SetTriggerResponse struct{}

// ListTriggersRequest asks for every stored trigger.
type ListTriggersRequest struct{}

// ListTriggersResponse maps device identifiers to trigger values.
type ListTriggersResponse struct {
	Triggers map[string]bool `json:"triggers"`
}

// WatchTriggerRequest opens a trigger subscription for one device.
type WatchTriggerRequest struct {
	DeviceID string `json:"device_id"`
}

// TriggerEvent is one value pushed on a trigger subscription.
type TriggerEvent struct {
	DeviceID string `json:"device_id"`
	Value    bool   `json:"value"`
}

// FromDomainActor converts a domain actor to its wire form.
func FromDomainActor(actor *alarm.Actor) *Actor {
	if actor == nil {
		return nil
	}

	return &Actor{
		Hostname: actor.Hostname,
		Username: actor.Username,
	}
}

// ToDomain converts a wire actor to the domain type.
func (a *Actor) ToDomain() *alarm.Actor {
	if a == nil {
		return nil
	}

	return &alarm.Actor{
		Hostname: a.Hostname,
		Username: a.Username,
	}
}
