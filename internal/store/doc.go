// Package store defines the alarm and trigger store contracts and provides the
// authoritative in-memory implementation used by the store service.
//
// Memory keeps the whole data set in memory, persists a full snapshot through a
// snapshot.Repository after every mutation and fans trigger changes out to
// watchers with latest-value semantics.
package store
