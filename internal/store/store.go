// Package store defines the counter-store abstraction every stateful
// component of chatgate runs against. Production uses the Redis
// implementation in redisstore; local dev and tests use memstore. Both
// satisfy the same interface, so there is no separate in-process code path.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get/HGet/TTL when the key (or field) is absent.
var ErrNotFound = errors.New("store: key not found")

// ErrUnavailable wraps infrastructure failures (connection refused, timeout).
// Callers on the admission path must treat it as "deny", never as "allow".
var ErrUnavailable = errors.New("store: unavailable")

// NoTTL marks a key that exists but has no expiry set.
const NoTTL = time.Duration(-1)

// StreamEntry is one append-only stream record as returned by stream reads.
type StreamEntry struct {
	ID     string
	Values map[string]string
}

// Store is the minimal atomic key-value surface chatgate needs. Every method
// maps to a single round trip; no method requires the caller to compose a
// check-then-act sequence across two calls to stay correct.
type Store interface {
	// Get returns the string value at key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set writes value at key. ttl <= 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX writes value only if key is absent. Returns true if the write
	// happened. ttl <= 0 means no expiry.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Incr atomically increments the integer at key by one, creating it at 0
	// first if absent, and returns the new value. Never touches the TTL.
	Incr(ctx context.Context, key string) (int64, error)

	// IncrBy is Incr with an arbitrary delta.
	IncrBy(ctx context.Context, key string, n int64) (int64, error)

	// Expire sets the TTL of an existing key. A no-op on absent keys.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// TTL returns the remaining lifetime of key, NoTTL if the key has no
	// expiry, or ErrNotFound.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Del removes keys. Deleting an absent key is not an error.
	Del(ctx context.Context, keys ...string) error

	// HSetNX sets field in the hash at key only if the field is absent.
	// Returns true if the field was written.
	HSetNX(ctx context.Context, key, field, value string) (bool, error)

	// HGet returns the value of field in the hash at key, or ErrNotFound.
	HGet(ctx context.Context, key, field string) (string, error)

	// RPush appends values to the list at key, creating it if absent.
	RPush(ctx context.Context, key string, values ...string) error

	// LRange returns list elements in [start, stop], inclusive, with Redis
	// semantics (-1 = last element). Absent keys yield an empty slice.
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// Keys returns the keys matching a glob pattern. Used only by the
	// reporting path, never per request.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// XAdd appends an entry to the stream at key and returns its id.
	// Streams are append-only; nothing in chatgate deletes from them.
	XAdd(ctx context.Context, key string, values map[string]string) (string, error)

	Close() error
}
