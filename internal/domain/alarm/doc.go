// Package alarm contains the core domain types shared by the store, the
// scheduler and the device agent.
//
// An Alarm is a (date, time) pair at minute granularity owned by one device.
// A TriggerState is the per-device "should this device be alerting" flag,
// together with who changed it last. Clone helpers avoid leaking internal
// references out of the store.
package alarm
