package shared

import (
	"context"
	"time"
)

// IdempotencyStore records request keys that have already been accepted so
// that client retries of non-idempotent operations can be rejected instead
// of allocating twice.
type IdempotencyStore interface {
	// MarkProcessed marks a request key as seen with a TTL.
	// Returns true if the key was newly marked, false if it was already seen.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks whether a request key has already been seen
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Close closes the store and releases resources
	Close() error
}
