package numbering

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/ledgerflow/numbering/internal/domain/numbering"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSweeper_Sweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	t.Run("reclaims only overdue reserved rows", func(t *testing.T) {
		reservations := newMemReservations()
		require.NoError(t, reservations.Insert(ctx, domain.NewReservation("INV-20260828-000001", "tenant-a", -time.Minute)))
		require.NoError(t, reservations.Insert(ctx, domain.NewReservation("INV-20260828-000002", "tenant-a", time.Hour)))
		confirmed := domain.NewReservation("INV-20260828-000003", "tenant-a", -time.Minute)
		require.NoError(t, reservations.Insert(ctx, confirmed))
		require.NoError(t, reservations.UpdateStatus(ctx, confirmed.Identifier, "tenant-a", domain.StatusConfirmed))

		sweeper := NewSweeper(reservations, DefaultSweeperConfig(), &fixedClock{now: now}, zap.NewNop())
		reclaimed, err := sweeper.Sweep(ctx)

		require.NoError(t, err)
		assert.Equal(t, 1, reclaimed)

		status, _ := reservations.statusOf("INV-20260828-000001", "tenant-a")
		assert.Equal(t, domain.StatusExpired, status)
		status, _ = reservations.statusOf("INV-20260828-000002", "tenant-a")
		assert.Equal(t, domain.StatusReserved, status)
		status, _ = reservations.statusOf("INV-20260828-000003", "tenant-a")
		assert.Equal(t, domain.StatusConfirmed, status)
	})

	t.Run("expired identifier becomes allocatable again", func(t *testing.T) {
		reservations := newMemReservations()
		require.NoError(t, reservations.Insert(ctx, domain.NewReservation("INV-20260828-000007", "tenant-a", -time.Minute)))

		sweeper := NewSweeper(reservations, DefaultSweeperConfig(), &fixedClock{now: now}, zap.NewNop())
		_, err := sweeper.Sweep(ctx)
		require.NoError(t, err)

		assert.NoError(t, reservations.Insert(ctx, domain.NewReservation("INV-20260828-000007", "tenant-a", time.Hour)))
	})

	t.Run("tolerates rows confirmed between listing and update", func(t *testing.T) {
		reservations := newMemReservations()
		overdue := domain.NewReservation("INV-20260828-000011", "tenant-a", -time.Minute)
		require.NoError(t, reservations.Insert(ctx, overdue))

		// serve a listing taken before the confirm landed
		stale := &staleListRepo{memReservations: reservations, list: []domain.Reservation{*overdue}}
		require.NoError(t, reservations.UpdateStatus(ctx, overdue.Identifier, "tenant-a", domain.StatusConfirmed))

		sweeper := NewSweeper(stale, DefaultSweeperConfig(), &fixedClock{now: now}, zap.NewNop())
		reclaimed, err := sweeper.Sweep(ctx)

		require.NoError(t, err)
		assert.Equal(t, 0, reclaimed)
		status, _ := reservations.statusOf(overdue.Identifier, "tenant-a")
		assert.Equal(t, domain.StatusConfirmed, status)
	})

	t.Run("logs the expiry event recorded by the transition", func(t *testing.T) {
		core, logs := observer.New(zap.InfoLevel)
		reservations := newMemReservations()
		require.NoError(t, reservations.Insert(ctx, domain.NewReservation("INV-20260828-000021", "tenant-a", -time.Minute)))

		sweeper := NewSweeper(reservations, DefaultSweeperConfig(), &fixedClock{now: now}, zap.New(core))
		reclaimed, err := sweeper.Sweep(ctx)

		require.NoError(t, err)
		require.Equal(t, 1, reclaimed)
		entries := logs.FilterMessage("domain event").All()
		require.Len(t, entries, 1)
		fields := entries[0].ContextMap()
		assert.Equal(t, domain.EventReservationExpired, fields["event_type"])
		assert.Equal(t, "tenant-a", fields["tenant_id"])
		assert.Equal(t, "INV-20260828-000021", fields["identifier"])
		assert.Equal(t, now, fields["occurred_at"])
	})

	t.Run("propagates listing failures", func(t *testing.T) {
		reservations := newMemReservations()
		reservations.listErr = errors.New("db down")

		sweeper := NewSweeper(reservations, DefaultSweeperConfig(), &fixedClock{now: now}, zap.NewNop())
		_, err := sweeper.Sweep(ctx)

		assert.Error(t, err)
	})
}

// staleListRepo replays a listing captured before a concurrent status change
type staleListRepo struct {
	*memReservations
	list []domain.Reservation
}

func (r *staleListRepo) ListExpired(context.Context, time.Time) ([]domain.Reservation, error) {
	return r.list, nil
}

func TestSweeper_StartStop(t *testing.T) {
	reservations := newMemReservations()
	sweeper := NewSweeper(reservations, SweeperConfig{Interval: time.Hour}, nil, zap.NewNop())

	require.NoError(t, sweeper.Start())
	assert.Error(t, sweeper.Start(), "second start must be rejected")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sweeper.Stop(ctx))
	assert.NoError(t, sweeper.Stop(ctx), "stop is idempotent")
}
