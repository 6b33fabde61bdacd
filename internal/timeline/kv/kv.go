// Package kv abstracts the key-value store that timeline documents live in.
//
// The store package only ever talks to a Backend. Two implementations are
// provided:
//
//   - Memory: an in-process map. Several Memory handles opened from one Hub
//     share data and see each other's writes as Changes, which models
//     several processes sharing one store.
//   - SQLite: an embedded SQLite database (WAL mode) with a change log table.
//     A Watcher turns file system notifications on the database into Changes
//     for every writer except the local one.
//
// A writer never receives its own changes; only other writers do.
package kv

import (
	"context"
	"time"
)

// Backend is the minimal key-value contract the timeline store needs.
type Backend interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// ListKeys returns every key that starts with prefix, sorted.
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

// Change describes a key modified by another writer.
type Change struct {
	Seq     int64
	Key     string
	Value   string
	Deleted bool
	Writer  string
	At      time.Time
}

// ChangeSource delivers changes made by other writers sharing the backend.
type ChangeSource interface {
	Changes() <-chan Change
}
