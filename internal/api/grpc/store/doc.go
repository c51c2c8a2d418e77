// Package store implements the gRPC transport for the shared store.
//
// It adapts domain types to the storev1 wire messages and exposes a server that
// calls into a provided store implementation.
package store
