package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisEnvelope is the JSON document stored per thread.
type redisEnvelope[S any] struct {
	State   S         `json:"state"`
	Version int       `json:"version"`
	SavedAt time.Time `json:"saved_at"`
}

// farFuture is the index score used when no TTL is set (2100-01-01).
const farFuture = 4102444800

// RedisStore is a Redis implementation of Store[S].
//
// Unlike the SQL stores, Redis keeps only the latest checkpoint per
// thread: each Save overwrites the previous document. Version numbers
// stay monotonic across overwrites via an atomic per-thread counter, so
// the Store contract (Save returns 1, 2, 3, ... per thread) still holds.
//
// Designed for:
//   - Low-latency deployments where checkpoint history isn't needed
//   - Shared state between multiple workers without a SQL database
//   - Sessions that should expire automatically (see WithTTL)
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type RedisStore[S any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	mu     sync.RWMutex
	closed bool
}

var _ Store[int] = (*RedisStore[int])(nil)

// RedisOption configures a RedisStore.
type RedisOption func(*redisConfig)

type redisConfig struct {
	prefix string
	ttl    time.Duration
}

// WithTTL sets the expiration for thread checkpoints.
//
// Zero (the default) means checkpoints never expire.
func WithTTL(ttl time.Duration) RedisOption {
	return func(c *redisConfig) {
		c.ttl = ttl
	}
}

// WithPrefix sets the key prefix for checkpoints.
//
// The default is "agentgraph:checkpoint:". Set a distinct prefix when
// multiple applications share one Redis database.
func WithPrefix(prefix string) RedisOption {
	return func(c *redisConfig) {
		c.prefix = prefix
	}
}

// NewRedisStore creates a new Redis-backed store.
//
// Security Warning:
//
//	NEVER hardcode credentials in your source code. Use environment variables:
//	    password := os.Getenv("REDIS_PASSWORD")
//
// Example:
//
//	st := store.NewRedisStore[MyState]("localhost:6379", "", 0,
//	    store.WithTTL(24*time.Hour),
//	)
//	defer st.Close()
func NewRedisStore[S any](addr, password string, db int, opts ...RedisOption) *RedisStore[S] {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return NewRedisStoreFromClient[S](client, opts...)
}

// NewRedisStoreFromClient creates a Redis-backed store from an existing
// client. The store takes ownership: Close closes the client.
func NewRedisStoreFromClient[S any](client *redis.Client, opts ...RedisOption) *RedisStore[S] {
	cfg := redisConfig{
		prefix: "agentgraph:checkpoint:",
		ttl:    0, // no expiration by default
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &RedisStore[S]{
		client: client,
		prefix: cfg.prefix,
		ttl:    cfg.ttl,
	}
}

func (r *RedisStore[S]) key(threadID string) string {
	return r.prefix + threadID
}

func (r *RedisStore[S]) versionKey(threadID string) string {
	return r.prefix + "version:" + threadID
}

func (r *RedisStore[S]) indexKey() string {
	return r.prefix + "index"
}

// Load retrieves the latest state and version for a thread.
//
// A thread with no checkpoint returns the zero state and version 0
// without an error.
func (r *RedisStore[S]) Load(ctx context.Context, threadID string) (S, int, error) {
	var zero S

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return zero, 0, ErrClosed
	}
	r.mu.RUnlock()

	val, err := r.client.Get(ctx, r.key(threadID)).Result()
	if errors.Is(err, redis.Nil) {
		return zero, 0, nil
	}
	if err != nil {
		return zero, 0, fmt.Errorf("failed to get from redis: %w", err)
	}

	var env redisEnvelope[S]
	if err := json.Unmarshal([]byte(val), &env); err != nil {
		return zero, 0, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return env.State, env.Version, nil
}

// Save persists state as the thread's next checkpoint version,
// replacing the previous checkpoint document.
//
// The version counter is advanced with INCR, so concurrent saves for
// one thread never produce duplicate versions.
func (r *RedisStore[S]) Save(ctx context.Context, threadID string, state S) (int, error) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return 0, ErrClosed
	}
	r.mu.RUnlock()

	version, err := r.client.Incr(ctx, r.versionKey(threadID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to advance version: %w", err)
	}

	env := redisEnvelope[S]{
		State:   state,
		Version: int(version),
		SavedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal state: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, r.key(threadID), data, r.ttl)
	if r.ttl > 0 {
		pipe.Expire(ctx, r.versionKey(threadID), r.ttl)
	}

	// Index score is the expiry time, so List can prune lazily.
	score := float64(time.Now().Add(r.ttl).Unix())
	if r.ttl == 0 {
		score = farFuture
	}
	pipe.ZAdd(ctx, r.indexKey(), redis.Z{
		Score:  score,
		Member: threadID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to save to redis: %w", err)
	}

	return int(version), nil
}

// Get retrieves the latest checkpoint for a thread.
//
// Returns ErrNotFound if the thread has no checkpoint.
func (r *RedisStore[S]) Get(ctx context.Context, threadID string) (Checkpoint[S], error) {
	var zero Checkpoint[S]

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return zero, ErrClosed
	}
	r.mu.RUnlock()

	val, err := r.client.Get(ctx, r.key(threadID)).Result()
	if errors.Is(err, redis.Nil) {
		return zero, ErrNotFound
	}
	if err != nil {
		return zero, fmt.Errorf("failed to get from redis: %w", err)
	}

	var env redisEnvelope[S]
	if err := json.Unmarshal([]byte(val), &env); err != nil {
		return zero, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return Checkpoint[S]{
		ThreadID: threadID,
		State:    env.State,
		Version:  env.Version,
		SavedAt:  env.SavedAt,
	}, nil
}

// Delete removes the thread's checkpoint and version counter.
//
// Returns ErrNotFound if the thread has no checkpoint.
func (r *RedisStore[S]) Delete(ctx context.Context, threadID string) error {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return ErrClosed
	}
	r.mu.RUnlock()

	pipe := r.client.Pipeline()
	delCmd := pipe.Del(ctx, r.key(threadID))
	pipe.Del(ctx, r.versionKey(threadID))
	pipe.ZRem(ctx, r.indexKey(), threadID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	if delCmd.Val() == 0 {
		return ErrNotFound
	}

	return nil
}

// List returns thread IDs with live checkpoints, pruning expired
// entries from the index first.
func (r *RedisStore[S]) List(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, ErrClosed
	}
	r.mu.RUnlock()

	now := float64(time.Now().Unix())
	if err := r.client.ZRemRangeByScore(ctx, r.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune expired threads: %w", err)
	}

	threads, err := r.client.ZRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}

	return threads, nil
}

// Close closes the Redis client.
//
// After Close, all operations return ErrClosed.
// Calling Close multiple times is safe (subsequent calls are no-ops).
func (r *RedisStore[S]) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	r.closed = true
	return r.client.Close()
}

// Ping verifies the Redis connection is alive.
func (r *RedisStore[S]) Ping(ctx context.Context) error {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return ErrClosed
	}
	r.mu.RUnlock()

	return r.client.Ping(ctx).Err()
}

// Backend reports the store kind for metrics labels.
func (r *RedisStore[S]) Backend() string { return "redis" }
