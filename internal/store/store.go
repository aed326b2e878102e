// Package store defines the key-value store the security core keeps its
// per-identity counters in. Implementations must make Increment and
// CompareAndSwap atomic with respect to concurrent callers on the same key;
// the core never holds counter state in uncoordinated process globals.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by Get when no live value exists for the key.
var ErrKeyNotFound = errors.New("store: key not found")

// Store is the abstract record store for attempt ledgers, rate-limit
// buckets, and pending two-factor setups.
type Store interface {
	// Get returns the value for key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set writes value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Increment atomically adds one to the counter at key. When the counter
	// is created (first increment, or first after expiry) a fresh window of
	// the given length starts. Returns the new count and the window reset
	// time.
	Increment(ctx context.Context, key string, window time.Duration) (int64, time.Time, error)

	// CompareAndSwap atomically replaces the value at key with next if the
	// current value equals prev. A nil prev means "create only if absent".
	// Returns false without writing when the comparison fails.
	CompareAndSwap(ctx context.Context, key string, prev, next []byte, ttl time.Duration) (bool, error)
}

// Pruner is implemented by stores that need periodic expiry sweeps. The
// Redis store expires keys natively and does not implement it.
type Pruner interface {
	PruneExpired(ctx context.Context) (int64, error)
}
