// Package snapshot implements persistence for the store contents.
//
// A Snapshot is the whole JSON-tree-like state of the store: every device's
// alarm list and every device's trigger. The store service rewrites the
// snapshot after each mutation through the Repository interface; the
// FileRepository keeps it as a JSON document, the SQLRepository in two tables.
package snapshot
