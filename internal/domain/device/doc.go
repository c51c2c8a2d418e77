// Package device defines the device identifier format: a fixed prefix
// followed by exactly five decimal digits (e.g. "pi04217").
package device
