// Package hardware provides the actuator, display and button drivers of a device.
//
// Pins drive digital outputs (alert LED, vibration motor), Display renders a
// few lines of text and button sources report presses. Each concern has a
// Linux sysfs implementation for real boards and a log/console implementation
// for development machines.
package hardware
