// Package identity persists the device identifier in a single-line text file.
//
// Provision returns the stored identifier, or generates and stores a fresh one
// when the record is missing or malformed.
package identity
