// Package common holds helpers shared by several services.
//
// It provides the remote store clients (gRPC and HTTP) with per-call timeouts,
// detection of the current system actor (hostname/username) for audit purposes
// and a single-instance guard.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
