// Package kv provides the Redis-backed key-value, stream and lock store used
// for operational intent snapshots, cached auth tokens, telemetry streams and
// per-declaration critical sections.
package kv

import (
	"context"
	"errors"
	"time"
)

// Common errors returned by the store.
var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("key not found")

	// ErrLockNotAcquired is returned when an advisory lock is already held.
	ErrLockNotAcquired = errors.New("lock not acquired")

	// ErrLockNotHeld is returned when releasing a lock owned by someone else
	// or already expired.
	ErrLockNotHeld = errors.New("lock not held")
)

// StreamEntry is a single record read from a stream.
type StreamEntry struct {
	ID     string
	Values map[string]any
}

// Store is the key-value and stream interface backed by Redis.
type Store interface {
	// Get returns the value at key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value at key with the given TTL. A zero TTL means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetIfAbsent stores value only if key does not exist. Returns true when
	// the value was stored.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Delete removes the given keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// Expire resets the TTL on key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// TTL returns the remaining life of key. Keys without expiry report a
	// negative duration.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Scan returns all keys matching the glob pattern.
	Scan(ctx context.Context, pattern string) ([]string, error)

	// XAdd appends values to the stream, trimming it to approximately maxLen
	// entries when maxLen is positive. Returns the entry id.
	XAdd(ctx context.Context, stream string, maxLen int64, values map[string]any) (string, error)

	// XRange returns entries of the stream in [start, end]. Use "-" and "+"
	// for the full stream.
	XRange(ctx context.Context, stream, start, end string) ([]StreamEntry, error)

	// EnsureGroup creates a consumer group on the stream starting at the
	// current tail. Creating a group that already exists is not an error.
	EnsureGroup(ctx context.Context, stream, group string) error

	// ReadGroup reads up to count pending entries for the consumer, blocking
	// up to block. An empty read returns a nil slice and no error.
	ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]StreamEntry, error)

	// Ack acknowledges processed entries for the group.
	Ack(ctx context.Context, stream, group string, ids ...string) error

	// Publish sends a message on a pub/sub channel.
	Publish(ctx context.Context, channel, message string) error

	// AcquireLock takes an advisory lock under key for at most ttl. The
	// returned token must be passed to ReleaseLock.
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error)

	// ReleaseLock releases a lock previously acquired with the token.
	ReleaseLock(ctx context.Context, key, token string) error

	// Ping verifies connectivity to the backing store.
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close() error
}
