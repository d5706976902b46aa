package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store[S].
//
// It stores thread checkpoints in a single-file database.
// Designed for:
//   - Development and testing with zero setup
//   - Single-process deployments
//   - Local conversations requiring persistence
//   - Prototyping before migrating to a networked store
//
// SQLiteStore uses WAL mode for concurrent reads and proper transactions.
//
// Features:
//   - Single file database (e.g., "./agentgraph.db")
//   - Auto-migration on first use
//   - WAL mode for concurrent reads
//   - Transactional version assignment
//
// Schema:
//   - checkpoints: one row per (thread_id, version)
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type SQLiteStore[S any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

var _ Store[int] = (*SQLiteStore[int])(nil)

// NewSQLiteStore creates a new SQLite-backed store.
//
// The path parameter specifies the database file location:
//   - "./agentgraph.db" - file in current directory
//   - "/var/lib/agentgraph/threads.db" - absolute path
//   - ":memory:" - in-memory database (data lost on close)
//
// The store automatically:
//   - Creates the database file if it doesn't exist
//   - Creates the checkpoints table
//   - Enables WAL mode for concurrent reads
//   - Configures appropriate timeouts
//
// Example:
//
//	st, err := store.NewSQLiteStore[MyState]("./agentgraph.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
//
// For testing with an in-memory database:
//
//	st, err := store.NewSQLiteStore[MyState](":memory:")
func NewSQLiteStore[S any](path string) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time; a single pooled connection
	// also keeps :memory: databases alive between calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Wait up to 5 seconds for locks
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := &SQLiteStore[S]{
		db:     db,
		closed: false,
		path:   path,
	}

	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// createTables creates the required database schema if it doesn't exist.
func (s *SQLiteStore[S]) createTables(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS checkpoints (
			thread_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			state TEXT NOT NULL,
			saved_at TEXT NOT NULL,
			PRIMARY KEY (thread_id, version)
		)
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create checkpoints table: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_checkpoints_thread ON checkpoints(thread_id)"); err != nil {
		return fmt.Errorf("failed to create idx_checkpoints_thread: %w", err)
	}

	return nil
}

// Load retrieves the latest state and version for a thread.
//
// A thread with no checkpoints returns the zero state and version 0
// without an error.
func (s *SQLiteStore[S]) Load(ctx context.Context, threadID string) (S, int, error) {
	var zero S

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return zero, 0, ErrClosed
	}
	s.mu.RUnlock()

	query := `
		SELECT state, version
		FROM checkpoints
		WHERE thread_id = ?
		ORDER BY version DESC
		LIMIT 1
	`

	var (
		stateJSON string
		version   int
	)
	err := s.db.QueryRowContext(ctx, query, threadID).Scan(&stateJSON, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, 0, nil
	}
	if err != nil {
		return zero, 0, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	var state S
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return zero, 0, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return state, version, nil
}

// Save persists state as the thread's next checkpoint version.
//
// The next version is computed and inserted inside a transaction, so
// version numbers are gapless and unique per thread.
func (s *SQLiteStore[S]) Save(ctx context.Context, threadID string, state S) (int, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return 0, ErrClosed
	}
	s.mu.RUnlock()

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal state: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var version int
	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) + 1 FROM checkpoints WHERE thread_id = ?",
		threadID,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to compute next version: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO checkpoints (thread_id, version, state, saved_at) VALUES (?, ?, ?, ?)",
		threadID, version, string(stateJSON), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save checkpoint: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return version, nil
}

// Get retrieves the latest checkpoint for a thread.
//
// Returns ErrNotFound if the thread has no checkpoints.
func (s *SQLiteStore[S]) Get(ctx context.Context, threadID string) (Checkpoint[S], error) {
	var zero Checkpoint[S]

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return zero, ErrClosed
	}
	s.mu.RUnlock()

	query := `
		SELECT version, state, saved_at
		FROM checkpoints
		WHERE thread_id = ?
		ORDER BY version DESC
		LIMIT 1
	`

	var (
		cp        Checkpoint[S]
		stateJSON string
		savedAt   string
	)
	err := s.db.QueryRowContext(ctx, query, threadID).Scan(&cp.Version, &stateJSON, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, ErrNotFound
	}
	if err != nil {
		return zero, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	cp.ThreadID = threadID
	if cp.SavedAt, err = time.Parse(time.RFC3339Nano, savedAt); err != nil {
		return zero, fmt.Errorf("failed to parse saved_at: %w", err)
	}
	if err := json.Unmarshal([]byte(stateJSON), &cp.State); err != nil {
		return zero, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return cp, nil
}

// Delete removes all checkpoints for a thread.
//
// Returns ErrNotFound if the thread has no checkpoints.
func (s *SQLiteStore[S]) Delete(ctx context.Context, threadID string) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	s.mu.RUnlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM checkpoints WHERE thread_id = ?", threadID)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoints: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// Close closes the database connection.
//
// After Close, all operations return ErrClosed.
// Calling Close multiple times is safe (subsequent calls are no-ops).
func (s *SQLiteStore[S]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil // Double-close is a no-op
	}

	s.closed = true
	return s.db.Close()
}

// Ping verifies the database connection is alive.
//
// Useful for health checks and connection validation.
func (s *SQLiteStore[S]) Ping(ctx context.Context) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	s.mu.RUnlock()

	return s.db.PingContext(ctx)
}

// Path returns the database file path.
//
// This is useful for debugging and logging.
func (s *SQLiteStore[S]) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

// Backend reports the store kind for metrics labels.
func (s *SQLiteStore[S]) Backend() string { return "sqlite" }
