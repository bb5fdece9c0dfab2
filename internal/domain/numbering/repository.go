package numbering

import (
	"context"
	"time"
)

// Strategy identifies which authority issued a block of numbers
type Strategy string

const (
	// StrategyPrimary is the monotonic sequence authority (ground truth)
	StrategyPrimary Strategy = "primary"
	// StrategyFallback is the distributed atomic-increment store
	StrategyFallback Strategy = "fallback"
	// StrategyEmergency is the process-local counter used when all durable
	// authorities are down. Cross-instance uniqueness is not guaranteed
	// while it is active; collisions are reconciled reactively on the next
	// durable write.
	StrategyEmergency Strategy = "emergency"
)

// SequenceAuthority is the primary source of monotonically increasing
// numbers. NextBlock must be atomic per call: no two concurrent callers may
// receive overlapping ranges.
type SequenceAuthority interface {
	NextBlock(ctx context.Context, tenantID string, count int) ([]int64, error)
}

// FallbackCounter is the secondary authority backed by a distributed atomic
// increment. The key is tenant-scoped.
type FallbackCounter interface {
	Increment(ctx context.Context, key string, delta int) (int64, error)
}

// ReservationRepository persists identifier reservations. The storage layer
// enforces uniqueness of (identifier, tenant_id) over active rows;
// application-level checks alone cannot prevent races between independent
// allocator instances.
type ReservationRepository interface {
	// Insert writes a new reservation. Returns ErrDuplicateIdentifier
	// (wrapped) when the uniqueness constraint is violated.
	Insert(ctx context.Context, reservation *Reservation) error

	// UpdateStatus transitions a reservation to newStatus. Transitioning a
	// row already in newStatus is a no-op success; a row in a state not
	// listed by TransitionSources fails with shared.ErrInvalidState, and a
	// missing row with shared.ErrNotFound.
	UpdateStatus(ctx context.Context, identifier, tenantID string, newStatus ReservationStatus) error

	// ListExpired returns reservations still marked reserved whose expiry
	// instant lies before the given time.
	ListExpired(ctx context.Context, before time.Time) ([]Reservation, error)

	// HighestSequence returns the largest sequence number among existing
	// reservations for the series prefix within a tenant, or 0 when none
	// exist. Seeds the emergency counter.
	HighestSequence(ctx context.Context, tenantID, seriesPrefix string) (int64, error)
}

// AllocationAttempt captures the context of one allocation try. It exists
// only for the duration of a call and is attached to logs and errors, never
// persisted.
type AllocationAttempt struct {
	TenantID       string
	RequestedCount int
	AttemptNumber  int
	StrategyUsed   Strategy
}
