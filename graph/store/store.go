// Package store provides checkpoint persistence for graph state.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested thread has no checkpoint.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned when an operation is attempted on a closed store.
var ErrClosed = errors.New("store is closed")

// Store provides checkpoint persistence keyed by thread ID.
//
// A thread is an independent line of conversation or work; each successful
// graph invocation appends one checkpoint (the final merged state) under
// the thread's next version number. Implementations must keep threads
// fully isolated: operations on one thread never observe or disturb
// another's checkpoints.
//
// Implementations in this package:
//   - MemStore: in-memory maps (testing, default)
//   - SQLiteStore: embedded SQLite file or :memory:
//   - MySQLStore: pooled MySQL
//   - PostgresStore: pgx connection pool
//   - RedisStore: Redis with optional TTL
//
// All implementations serialize state as JSON, so S must round-trip
// through encoding/json. Load/Save are atomic per thread; concurrent
// calls for distinct threads are safe.
//
// Type parameter S is the state type to persist.
type Store[S any] interface {
	// Load retrieves the latest state and version for a thread.
	//
	// A thread with no checkpoints is not an error: Load returns the
	// zero value of S and version 0, which callers treat as a fresh
	// conversation.
	//
	// Returns:
	//   - state: The most recent persisted state, or zero value
	//   - version: The version of the returned state, 0 when unseen
	//   - error: Persistence failures only
	Load(ctx context.Context, threadID string) (state S, version int, err error)

	// Save persists state as the thread's next checkpoint version.
	//
	// Version assignment is atomic per thread: concurrent saves for the
	// same thread never produce duplicate versions.
	//
	// Returns:
	//   - version: The newly assigned version (starts at 1)
	//   - error: Persistence failures
	Save(ctx context.Context, threadID string, state S) (version int, err error)

	// Get retrieves the latest checkpoint for a thread, including
	// metadata. Unlike Load, a thread with no checkpoints returns
	// ErrNotFound.
	Get(ctx context.Context, threadID string) (Checkpoint[S], error)

	// Delete removes all checkpoints for a thread.
	// Returns ErrNotFound if the thread has no checkpoints.
	Delete(ctx context.Context, threadID string) error
}

// Checkpoint represents one persisted snapshot of a thread's state.
type Checkpoint[S any] struct {
	// ThreadID identifies the thread this checkpoint belongs to.
	ThreadID string `json:"thread_id"`

	// State is the full merged state at save time.
	State S `json:"state"`

	// Version is the checkpoint's sequence number within the thread,
	// starting at 1.
	Version int `json:"version"`

	// SavedAt records when the checkpoint was persisted.
	SavedAt time.Time `json:"saved_at"`
}
