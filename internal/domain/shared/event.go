package shared

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is a fact recorded by an aggregate during a state transition.
// Whoever persists the transition drains the events and emits them to the
// operational log stream.
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	AggregateID() uuid.UUID
	TenantID() string
}

// BaseDomainEvent carries the fields every event shares
type BaseDomainEvent struct {
	ID        uuid.UUID
	Type      string
	Timestamp time.Time
	AggID     uuid.UUID
	Tenant    string
}

// EventID returns the unique event identifier
func (e *BaseDomainEvent) EventID() uuid.UUID {
	return e.ID
}

// EventType returns the type of the event
func (e *BaseDomainEvent) EventType() string {
	return e.Type
}

// OccurredAt returns when the event occurred
func (e *BaseDomainEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID returns the ID of the aggregate that produced this event
func (e *BaseDomainEvent) AggregateID() uuid.UUID {
	return e.AggID
}

// TenantID returns the tenant scope of the event
func (e *BaseDomainEvent) TenantID() string {
	return e.Tenant
}

// NewBaseDomainEvent creates a base event. The caller supplies occurredAt so
// clock-driven transitions produce events at the clock's instant.
func NewBaseDomainEvent(eventType string, aggID uuid.UUID, tenantID string, occurredAt time.Time) BaseDomainEvent {
	return BaseDomainEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: occurredAt,
		AggID:     aggID,
		Tenant:    tenantID,
	}
}
