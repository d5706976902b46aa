package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemStore is an in-memory implementation of Store[S].
//
// It keeps the full version history per thread in maps.
// Designed for:
//   - Testing and development
//   - Single-process deployments
//   - Short-lived conversations where persistence isn't required
//
// MemStore is thread-safe and supports concurrent access. State values are
// deep-copied on the way in and out (JSON round-trip), so callers can never
// mutate a stored checkpoint through a retained reference.
//
// Limitations:
//   - Data is lost when the process terminates
//   - Not suitable for distributed systems
//   - Memory usage grows with checkpoint history
//
// For production use with persistence, use the database-backed stores
// (SQLite, MySQL, Postgres, Redis).
//
// Type parameter S is the state type to persist.
type MemStore[S any] struct {
	mu      sync.RWMutex
	threads map[string][]Checkpoint[S] // threadID -> checkpoints in version order
}

var _ Store[int] = (*MemStore[int])(nil)

// NewMemStore creates a new in-memory store.
//
// Example:
//
//	st := store.NewMemStore[MyState]()
//	compiled, err := g.Compile(graph.WithStore(st))
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{
		threads: make(map[string][]Checkpoint[S]),
	}
}

// Load retrieves the latest state and version for a thread.
//
// A thread with no checkpoints returns the zero state and version 0
// without an error.
func (m *MemStore[S]) Load(_ context.Context, threadID string) (S, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history, exists := m.threads[threadID]
	if !exists || len(history) == 0 {
		var zero S
		return zero, 0, nil
	}

	latest := history[len(history)-1]
	state, err := copyState(latest.State)
	if err != nil {
		var zero S
		return zero, 0, fmt.Errorf("copy state for thread %q: %w", threadID, err)
	}

	return state, latest.Version, nil
}

// Save persists state as the thread's next checkpoint version.
//
// The state is deep-copied before storage so later mutations by the
// caller cannot corrupt the checkpoint.
func (m *MemStore[S]) Save(_ context.Context, threadID string, state S) (int, error) {
	copied, err := copyState(state)
	if err != nil {
		return 0, fmt.Errorf("copy state for thread %q: %w", threadID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	version := len(m.threads[threadID]) + 1
	m.threads[threadID] = append(m.threads[threadID], Checkpoint[S]{
		ThreadID: threadID,
		State:    copied,
		Version:  version,
		SavedAt:  time.Now().UTC(),
	})

	return version, nil
}

// Get retrieves the latest checkpoint for a thread.
//
// Returns ErrNotFound if the thread has no checkpoints.
func (m *MemStore[S]) Get(_ context.Context, threadID string) (Checkpoint[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history, exists := m.threads[threadID]
	if !exists || len(history) == 0 {
		var zero Checkpoint[S]
		return zero, ErrNotFound
	}

	latest := history[len(history)-1]
	state, err := copyState(latest.State)
	if err != nil {
		var zero Checkpoint[S]
		return zero, fmt.Errorf("copy state for thread %q: %w", threadID, err)
	}
	latest.State = state

	return latest, nil
}

// Delete removes all checkpoints for a thread.
//
// Returns ErrNotFound if the thread has no checkpoints.
func (m *MemStore[S]) Delete(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.threads[threadID]; !exists {
		return ErrNotFound
	}

	delete(m.threads, threadID)
	return nil
}

// History returns every checkpoint saved for a thread, in version order.
//
// Returns ErrNotFound if the thread has no checkpoints. The returned
// checkpoints are deep copies; mutating them does not affect the store.
//
// Useful for debugging and for tests that assert on version progression.
func (m *MemStore[S]) History(_ context.Context, threadID string) ([]Checkpoint[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history, exists := m.threads[threadID]
	if !exists || len(history) == 0 {
		return nil, ErrNotFound
	}

	out := make([]Checkpoint[S], len(history))
	for i, cp := range history {
		state, err := copyState(cp.State)
		if err != nil {
			return nil, fmt.Errorf("copy state for thread %q: %w", threadID, err)
		}
		cp.State = state
		out[i] = cp
	}

	return out, nil
}

// Reset removes every thread and its history.
//
// Useful when reusing one store across multiple test cases.
func (m *MemStore[S]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.threads = make(map[string][]Checkpoint[S])
}

// Backend reports the store kind for metrics labels.
func (m *MemStore[S]) Backend() string { return "memory" }

// copyState deep-copies a state value using JSON round-trip serialization.
// S must marshal cleanly to JSON, the same requirement the durable stores
// impose.
func copyState[S any](state S) (S, error) {
	var copied S

	data, err := json.Marshal(state)
	if err != nil {
		return copied, err
	}
	if err := json.Unmarshal(data, &copied); err != nil {
		return copied, err
	}

	return copied, nil
}
