package shared

// AggregateRoot is an entity that records domain events alongside its state
// transitions. Events stay buffered on the aggregate until the caller that
// persisted the transition drains them.
type AggregateRoot interface {
	Entity
	DomainEvents() []DomainEvent
	ClearDomainEvents()
}

// BaseAggregateRoot provides the event buffer for aggregate roots
type BaseAggregateRoot struct {
	BaseEntity
	events []DomainEvent
}

// Record buffers a domain event for later publication
func (a *BaseAggregateRoot) Record(event DomainEvent) {
	a.events = append(a.events, event)
}

// DomainEvents returns the buffered events in recording order
func (a *BaseAggregateRoot) DomainEvents() []DomainEvent {
	return a.events
}

// ClearDomainEvents empties the buffer after the events have been consumed
func (a *BaseAggregateRoot) ClearDomainEvents() {
	a.events = nil
}

// NewBaseAggregateRoot creates a new base aggregate root
func NewBaseAggregateRoot() BaseAggregateRoot {
	return BaseAggregateRoot{BaseEntity: NewBaseEntity()}
}
