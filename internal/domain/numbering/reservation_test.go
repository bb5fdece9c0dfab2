package numbering

import (
	"testing"
	"time"

	"github.com/ledgerflow/numbering/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestReservation(t *testing.T) *Reservation {
	r := NewReservation("INV-20260828-000001", "tenant-a", 30*time.Minute)
	require.NotNil(t, r)
	return r
}

func TestNewReservation(t *testing.T) {
	r := createTestReservation(t)

	assert.Equal(t, StatusReserved, r.Status)
	assert.Equal(t, "tenant-a", r.TenantID)
	assert.Equal(t, "INV-20260828-000001", r.Identifier)
	assert.Equal(t, 30*time.Minute, r.ExpiresAt.Sub(r.ReservedAt))
	assert.NotEqual(t, r.ID.String(), "00000000-0000-0000-0000-000000000000")
}

func TestReservation_Confirm(t *testing.T) {
	t.Run("confirms reserved reservation", func(t *testing.T) {
		r := createTestReservation(t)

		err := r.Confirm()

		assert.NoError(t, err)
		assert.Equal(t, StatusConfirmed, r.Status)
	})

	t.Run("is idempotent", func(t *testing.T) {
		r := createTestReservation(t)
		require.NoError(t, r.Confirm())

		err := r.Confirm()

		assert.NoError(t, err)
		assert.Equal(t, StatusConfirmed, r.Status)
	})

	t.Run("rejects released reservation", func(t *testing.T) {
		r := createTestReservation(t)
		require.NoError(t, r.Release())

		err := r.Confirm()

		assert.ErrorIs(t, err, shared.ErrInvalidState)
		assert.Equal(t, StatusReleased, r.Status)
	})
}

func TestReservation_Release(t *testing.T) {
	t.Run("releases reserved reservation", func(t *testing.T) {
		r := createTestReservation(t)

		err := r.Release()

		assert.NoError(t, err)
		assert.Equal(t, StatusReleased, r.Status)
	})

	t.Run("is idempotent", func(t *testing.T) {
		r := createTestReservation(t)
		require.NoError(t, r.Release())

		assert.NoError(t, r.Release())
	})

	t.Run("never releases confirmed reservation", func(t *testing.T) {
		r := createTestReservation(t)
		require.NoError(t, r.Confirm())

		err := r.Release()

		assert.ErrorIs(t, err, shared.ErrInvalidState)
		assert.Equal(t, StatusConfirmed, r.Status)
	})
}

func TestReservation_Expire(t *testing.T) {
	t.Run("expires reservation past its window", func(t *testing.T) {
		r := createTestReservation(t)

		err := r.Expire(r.ExpiresAt.Add(time.Minute))

		assert.NoError(t, err)
		assert.Equal(t, StatusExpired, r.Status)
	})

	t.Run("refuses reservation still within window", func(t *testing.T) {
		r := createTestReservation(t)

		err := r.Expire(r.ExpiresAt.Add(-time.Minute))

		assert.ErrorIs(t, err, shared.ErrInvalidState)
		assert.Equal(t, StatusReserved, r.Status)
	})

	t.Run("refuses confirmed reservation", func(t *testing.T) {
		r := createTestReservation(t)
		require.NoError(t, r.Confirm())

		err := r.Expire(r.ExpiresAt.Add(time.Minute))

		assert.ErrorIs(t, err, shared.ErrInvalidState)
	})
}

func TestReservation_DomainEvents(t *testing.T) {
	t.Run("new reservation has no pending events", func(t *testing.T) {
		r := createTestReservation(t)

		assert.Empty(t, r.DomainEvents())
	})

	t.Run("confirm records a single event", func(t *testing.T) {
		r := createTestReservation(t)
		require.NoError(t, r.Confirm())
		require.NoError(t, r.Confirm())

		events := r.DomainEvents()
		require.Len(t, events, 1)
		assert.Equal(t, EventReservationConfirmed, events[0].EventType())
		assert.Equal(t, r.ID, events[0].AggregateID())
		assert.Equal(t, "tenant-a", events[0].TenantID())
	})

	t.Run("release records a single event", func(t *testing.T) {
		r := createTestReservation(t)
		require.NoError(t, r.Release())
		require.NoError(t, r.Release())

		events := r.DomainEvents()
		require.Len(t, events, 1)
		assert.Equal(t, EventReservationReleased, events[0].EventType())
	})

	t.Run("expire records an event at the reclaim instant", func(t *testing.T) {
		r := createTestReservation(t)
		at := r.ExpiresAt.Add(time.Minute)
		require.NoError(t, r.Expire(at))

		events := r.DomainEvents()
		require.Len(t, events, 1)
		assert.Equal(t, EventReservationExpired, events[0].EventType())
		assert.Equal(t, at, events[0].OccurredAt())
	})

	t.Run("clear empties the buffer", func(t *testing.T) {
		r := createTestReservation(t)
		require.NoError(t, r.Confirm())
		r.ClearDomainEvents()

		assert.Empty(t, r.DomainEvents())
	})

	t.Run("rejected transitions record nothing", func(t *testing.T) {
		r := createTestReservation(t)
		require.NoError(t, r.Confirm())
		r.ClearDomainEvents()
		require.Error(t, r.Release())

		assert.Empty(t, r.DomainEvents())
	})
}

func TestReservationStatus_Active(t *testing.T) {
	assert.True(t, StatusReserved.Active())
	assert.True(t, StatusConfirmed.Active())
	assert.False(t, StatusReleased.Active())
	assert.False(t, StatusExpired.Active())
}

func TestTransitionSources(t *testing.T) {
	assert.ElementsMatch(t,
		[]ReservationStatus{StatusReserved, StatusConfirmed},
		TransitionSources(StatusConfirmed))
	assert.ElementsMatch(t,
		[]ReservationStatus{StatusReserved, StatusReleased},
		TransitionSources(StatusReleased))
	assert.ElementsMatch(t,
		[]ReservationStatus{StatusReserved},
		TransitionSources(StatusExpired))
	assert.Nil(t, TransitionSources(StatusReserved))
}
