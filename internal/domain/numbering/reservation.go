package numbering

import (
	"time"

	"github.com/ledgerflow/numbering/internal/domain/shared"
)

// ReservationStatus is the lifecycle state of an identifier reservation
type ReservationStatus string

const (
	// StatusReserved means the identifier is claimed but not yet confirmed
	StatusReserved ReservationStatus = "reserved"
	// StatusConfirmed means the owning operation completed; the identifier
	// is permanently taken
	StatusConfirmed ReservationStatus = "confirmed"
	// StatusReleased means the caller aborted; the identifier may be reissued
	StatusReleased ReservationStatus = "released"
	// StatusExpired means the sweeper reclaimed the reservation after its
	// validity window passed without confirmation
	StatusExpired ReservationStatus = "expired"
)

// Active reports whether the status still holds the identifier. Only active
// rows participate in the uniqueness constraint.
func (s ReservationStatus) Active() bool {
	return s == StatusReserved || s == StatusConfirmed
}

// TransitionSources returns the statuses a reservation may be in for a
// transition to target to succeed. The target itself is always included so
// repeated transitions are idempotent no-ops.
func TransitionSources(target ReservationStatus) []ReservationStatus {
	switch target {
	case StatusConfirmed:
		return []ReservationStatus{StatusReserved, StatusConfirmed}
	case StatusReleased:
		return []ReservationStatus{StatusReserved, StatusReleased}
	case StatusExpired:
		return []ReservationStatus{StatusReserved}
	default:
		return nil
	}
}

// Event types recorded on reservation status transitions
const (
	EventReservationConfirmed = "reservation.confirmed"
	EventReservationReleased  = "reservation.released"
	EventReservationExpired   = "reservation.expired"
)

// Reservation is a provisional claim on an identifier within a tenant scope.
// The pair (Identifier, TenantID) is unique across all active reservations.
// Status transitions record domain events; whoever persists the transition
// drains them into the log stream.
type Reservation struct {
	shared.BaseAggregateRoot
	Identifier string
	TenantID   string
	ReservedAt time.Time
	ExpiresAt  time.Time
	Status     ReservationStatus
}

// NewReservation creates a reserved claim valid for the given window
func NewReservation(identifier, tenantID string, validity time.Duration) *Reservation {
	base := shared.NewBaseAggregateRoot()
	return &Reservation{
		BaseAggregateRoot: base,
		Identifier:        identifier,
		TenantID:          tenantID,
		ReservedAt:        base.CreatedAt,
		ExpiresAt:         base.CreatedAt.Add(validity),
		Status:            StatusReserved,
	}
}

// IsExpired reports whether the validity window has passed at the given instant
func (r *Reservation) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Confirm marks the reservation confirmed. Confirming an already-confirmed
// reservation is a no-op success.
func (r *Reservation) Confirm() error {
	switch r.Status {
	case StatusConfirmed:
		return nil
	case StatusReserved:
		now := time.Now()
		r.Status = StatusConfirmed
		r.UpdatedAt = now
		r.recordTransition(EventReservationConfirmed, now)
		return nil
	default:
		return shared.ErrInvalidState
	}
}

// Release marks the reservation released, freeing the identifier for reuse.
// Releasing a released reservation is a no-op success; a confirmed
// reservation can never return to the pool.
func (r *Reservation) Release() error {
	switch r.Status {
	case StatusReleased:
		return nil
	case StatusReserved:
		now := time.Now()
		r.Status = StatusReleased
		r.UpdatedAt = now
		r.recordTransition(EventReservationReleased, now)
		return nil
	default:
		return shared.ErrInvalidState
	}
}

// Expire reclaims a reservation whose window has passed. Only the sweeper
// calls this; it refuses to touch rows still within their validity window.
func (r *Reservation) Expire(now time.Time) error {
	if r.Status != StatusReserved {
		return shared.ErrInvalidState
	}
	if !r.IsExpired(now) {
		return shared.ErrInvalidState
	}
	r.Status = StatusExpired
	r.UpdatedAt = now
	r.recordTransition(EventReservationExpired, now)
	return nil
}

func (r *Reservation) recordTransition(eventType string, at time.Time) {
	event := shared.NewBaseDomainEvent(eventType, r.ID, r.TenantID, at)
	r.Record(&event)
}

var _ shared.AggregateRoot = (*Reservation)(nil)
