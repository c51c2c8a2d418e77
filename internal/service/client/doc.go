// Package client implements the operator commands of alarm-ctl: adding, listing
// and deleting alarms of a device and reading or forcing its trigger.
package client
