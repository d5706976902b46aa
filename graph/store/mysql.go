package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// mysqlTimeLayout is used for saved_at round-trips so the store works with
// or without parseTime=true in the DSN.
const mysqlTimeLayout = "2006-01-02 15:04:05.999999"

// MySQLStore is a MySQL/MariaDB implementation of Store[S].
//
// It stores thread checkpoints in a relational database.
// Designed for:
//   - Production deployments requiring persistence
//   - Distributed systems with multiple workers
//   - Long-running conversations that survive process restarts
//   - Audit trails and compliance requirements
//
// MySQLStore uses connection pooling and transactions for reliability.
// Version assignment runs inside a transaction with a row lock, so
// concurrent saves for one thread never produce duplicate versions.
//
// Schema:
//   - checkpoints: one row per (thread_id, version)
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type MySQLStore[S any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

var _ Store[int] = (*MySQLStore[int])(nil)

// NewMySQLStore creates a new MySQL-backed store.
//
// The DSN (Data Source Name) format is:
//
//	[username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
//
// Example DSNs:
//
//	user:password@tcp(localhost:3306)/agentgraph
//	user:password@tcp(127.0.0.1:3306)/agentgraph?parseTime=true
//
// Security Warning:
//
//	NEVER hardcode credentials in your source code. Use environment variables:
//	    dsn := os.Getenv("MYSQL_DSN")
//	    if dsn == "" {
//	        log.Fatal("MYSQL_DSN environment variable not set")
//	    }
//	    st, err := store.NewMySQLStore[State](dsn)
//
// The store automatically:
//   - Creates the checkpoints table if it doesn't exist
//   - Configures connection pooling
//   - Verifies connectivity before returning
//
// Example:
//
//	st, err := store.NewMySQLStore[MyState](os.Getenv("MYSQL_DSN"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewMySQLStore[S any](dsn string) (*MySQLStore[S], error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)                  // Maximum open connections
	db.SetMaxIdleConns(5)                   // Keep idle connections for reuse
	db.SetConnMaxLifetime(5 * time.Minute)  // Max connection lifetime (prevent stale connections)
	db.SetConnMaxIdleTime(10 * time.Minute) // Max idle time before closing

	// Verify connection
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	st := &MySQLStore[S]{
		db:     db,
		closed: false,
	}

	if err := st.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return st, nil
}

// createTables creates the required database schema if it doesn't exist.
func (m *MySQLStore[S]) createTables(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS checkpoints (
			thread_id VARCHAR(255) NOT NULL,
			version INT NOT NULL,
			state JSON NOT NULL,
			saved_at DATETIME(6) NOT NULL,
			PRIMARY KEY (thread_id, version),
			INDEX idx_thread_id (thread_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`

	if _, err := m.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create checkpoints table: %w", err)
	}

	return nil
}

// Load retrieves the latest state and version for a thread.
//
// A thread with no checkpoints returns the zero state and version 0
// without an error.
func (m *MySQLStore[S]) Load(ctx context.Context, threadID string) (S, int, error) {
	var zero S

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return zero, 0, ErrClosed
	}
	m.mu.RUnlock()

	query := `
		SELECT state, version
		FROM checkpoints
		WHERE thread_id = ?
		ORDER BY version DESC
		LIMIT 1
	`

	var (
		stateJSON []byte
		version   int
	)
	err := m.db.QueryRowContext(ctx, query, threadID).Scan(&stateJSON, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, 0, nil
	}
	if err != nil {
		return zero, 0, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	var state S
	if err := json.Unmarshal(stateJSON, &state); err != nil {
		return zero, 0, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return state, version, nil
}

// Save persists state as the thread's next checkpoint version.
//
// The next version is computed inside a transaction holding a lock on the
// thread's rows, so concurrent saves serialize per thread.
func (m *MySQLStore[S]) Save(ctx context.Context, threadID string, state S) (int, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return 0, ErrClosed
	}
	m.mu.RUnlock()

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal state: %w", err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
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
		"SELECT COALESCE(MAX(version), 0) + 1 FROM checkpoints WHERE thread_id = ? FOR UPDATE",
		threadID,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to compute next version: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO checkpoints (thread_id, version, state, saved_at) VALUES (?, ?, ?, ?)",
		threadID, version, stateJSON, time.Now().UTC().Format(mysqlTimeLayout),
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
func (m *MySQLStore[S]) Get(ctx context.Context, threadID string) (Checkpoint[S], error) {
	var zero Checkpoint[S]

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return zero, ErrClosed
	}
	m.mu.RUnlock()

	query := `
		SELECT version, state, saved_at
		FROM checkpoints
		WHERE thread_id = ?
		ORDER BY version DESC
		LIMIT 1
	`

	var (
		cp        Checkpoint[S]
		stateJSON []byte
		savedAt   []byte
	)
	err := m.db.QueryRowContext(ctx, query, threadID).Scan(&cp.Version, &stateJSON, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, ErrNotFound
	}
	if err != nil {
		return zero, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	cp.ThreadID = threadID
	if cp.SavedAt, err = time.Parse(mysqlTimeLayout, string(savedAt)); err != nil {
		return zero, fmt.Errorf("failed to parse saved_at: %w", err)
	}
	if err := json.Unmarshal(stateJSON, &cp.State); err != nil {
		return zero, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return cp, nil
}

// Delete removes all checkpoints for a thread.
//
// Returns ErrNotFound if the thread has no checkpoints.
func (m *MySQLStore[S]) Delete(ctx context.Context, threadID string) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	m.mu.RUnlock()

	res, err := m.db.ExecContext(ctx, "DELETE FROM checkpoints WHERE thread_id = ?", threadID)
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

// Close closes the database connection pool.
//
// After Close, all operations return ErrClosed.
// Calling Close multiple times is safe (subsequent calls are no-ops).
func (m *MySQLStore[S]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil // Double-close is a no-op (matches sql.DB behavior)
	}

	m.closed = true
	return m.db.Close()
}

// Ping verifies the database connection is alive.
//
// Useful for health checks and connection validation.
func (m *MySQLStore[S]) Ping(ctx context.Context) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	m.mu.RUnlock()

	return m.db.PingContext(ctx)
}

// Stats returns database connection pool statistics.
//
// Useful for monitoring connection usage and pool health.
func (m *MySQLStore[S]) Stats() sql.DBStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.db.Stats()
}

// Backend reports the store kind for metrics labels.
func (m *MySQLStore[S]) Backend() string { return "mysql" }
