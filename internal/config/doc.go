// Package config defines the settings shared by all silent-alarm binaries and
// provides helpers to load, validate and save them in YAML format.
//
// Validate fills in defaults, so a minimal file only needs server_addr.
package config
