// Package agent runs the alarm clock of one device.
//
// The agent observes the trigger of its device, drives the alert LED and the
// vibration motor, renders the clock display and handles the disable,
// identifier and vibration buttons. Button presses, pushed trigger updates and
// the periodic tick all mutate one RuntimeState under a single mutex.
package agent
