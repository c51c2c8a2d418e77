// Package scheduler implements the alarm scheduler.
//
// Once per wall-clock minute it matches every device's alarms against the
// current minute, keeps the device triggers consistent with the match and
// consumes the alarms that fired. Failures are isolated per device and retried
// by the next tick.
package scheduler
