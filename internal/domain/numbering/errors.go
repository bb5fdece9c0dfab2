package numbering

import (
	"errors"

	"github.com/ledgerflow/numbering/internal/domain/shared"
)

// Terminal and collision errors surfaced by the allocator. Callers must not
// retry any of these without remediation.
var (
	// ErrInvalidArgument indicates a caller bug (empty tenant, count < 1).
	ErrInvalidArgument = shared.NewDomainError("INVALID_ARGUMENT", "Invalid allocation argument")

	// ErrDuplicateIdentifier is returned by the reservation store when a
	// write violates the (identifier, tenant_id) uniqueness constraint.
	ErrDuplicateIdentifier = shared.NewDomainError("DUPLICATE_IDENTIFIER", "Identifier already reserved for tenant")

	// ErrExhaustedRetries indicates the collision resolver gave up after
	// its attempt bound.
	ErrExhaustedRetries = shared.NewDomainError("COLLISION_EXHAUSTED", "Identifier allocation exhausted collision retries")

	// ErrAllBackendsUnavailable indicates every strategy, including the
	// emergency local counter, failed.
	ErrAllBackendsUnavailable = shared.NewDomainError("ALL_BACKENDS_UNAVAILABLE", "No identifier authority available")
)

// TransientError marks a dependency failure as retryable (network blips,
// timeouts, temporary backend unavailability). The retry handler only
// retries errors carrying this marker.
type TransientError struct {
	Err error
}

// Error implements the error interface
func (e *TransientError) Error() string {
	return "transient dependency error: " + e.Err.Error()
}

// Unwrap returns the underlying cause
func (e *TransientError) Unwrap() error {
	return e.Err
}

// Retryable marks the error as safe to retry
func (e *TransientError) Retryable() bool {
	return true
}

// MarkTransient wraps err as a retryable dependency failure. A nil err
// stays nil.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is classified as retryable
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
