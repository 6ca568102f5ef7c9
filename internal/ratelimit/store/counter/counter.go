// Package counter provides the shared window-counter store the evaluator
// and incrementer run against.
package counter

import "context"

// Store is an atomic increment-with-TTL key/value store. Implementations
// must make IncrementAndExpire a single atomic operation: an increment that
// is never followed by an expiry-set would leak keys permanently.
type Store interface {
	// Get returns the current count for a key, 0 if absent.
	Get(ctx context.Context, key string) (int64, error)

	// Increment adds one to the key and returns the new count.
	Increment(ctx context.Context, key string) (int64, error)

	// Expire sets the key's TTL in seconds.
	Expire(ctx context.Context, key string, ttlSeconds int64) error

	// IncrementAndExpire atomically increments the key, (re)sets its TTL,
	// and returns the new count. This is the preferred request-path form.
	IncrementAndExpire(ctx context.Context, key string, ttlSeconds int64) (int64, error)
}
