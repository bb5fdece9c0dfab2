package numbering

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domain "github.com/ledgerflow/numbering/internal/domain/numbering"
	"github.com/ledgerflow/numbering/internal/domain/shared"
	"github.com/ledgerflow/numbering/internal/infrastructure/resilience"
	"github.com/ledgerflow/numbering/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// SweeperConfig contains reservation sweeper configuration
type SweeperConfig struct {
	// Interval between sweep passes
	Interval time.Duration
}

// DefaultSweeperConfig returns default configuration
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{Interval: 5 * time.Minute}
}

// Sweeper periodically reclaims reservations that were never confirmed or
// released within their validity window. Expiring a row drops it out of the
// active uniqueness scope, so the identifier becomes allocatable again.
type Sweeper struct {
	reservations domain.ReservationRepository
	clock        resilience.Clock
	logger       *zap.Logger
	interval     time.Duration

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewSweeper creates a sweeper over the reservation store
func NewSweeper(reservations domain.ReservationRepository, config SweeperConfig, clock resilience.Clock, logger *zap.Logger) *Sweeper {
	if clock == nil {
		clock = resilience.SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		reservations: reservations,
		clock:        clock,
		logger:       logger,
		interval:     config.Interval,
	}
}

// Start launches the periodic sweep loop
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return errors.New("sweeper is already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.isRunning = true

	s.wg.Add(1)
	go s.runLoop(ctx)

	s.logger.Info("reservation sweeper started",
		zap.Duration("interval", s.interval))
	return nil
}

// Stop halts the sweep loop and waits for an in-flight pass to finish. The
// context bounds how long to wait.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	s.isRunning = false
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("reservation sweeper stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sweeper shutdown timed out: %w", ctx.Err())
	}
}

func (s *Sweeper) runLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(s.interval):
			if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("sweep pass failed", zap.Error(err))
			}
		}
	}
}

// Sweep runs a single pass and returns how many reservations it reclaimed.
// A reservation confirmed between the listing and the update is left alone;
// the status transition guard rejects it and the sweeper moves on.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "sweeper", "sweep")
	defer span.End()

	now := s.clock.Now()
	expired, err := s.reservations.ListExpired(ctx, now)
	if err != nil {
		err = fmt.Errorf("failed to list expired reservations: %w", err)
		telemetry.RecordError(span, err)
		return 0, err
	}

	reclaimed := 0
	for i := range expired {
		r := &expired[i]
		if err := r.Expire(now); err != nil {
			// already transitioned by a concurrent confirm or sweeper
			continue
		}
		err := s.reservations.UpdateStatus(ctx, r.Identifier, r.TenantID, domain.StatusExpired)
		switch {
		case err == nil:
			reclaimed++
			s.publishEvents(r)
		case errors.Is(err, shared.ErrInvalidState) || errors.Is(err, shared.ErrNotFound):
			// lost the race to a confirm or a concurrent sweeper
			continue
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return reclaimed, err
		default:
			s.logger.Error("failed to expire reservation",
				zap.String("tenant_id", r.TenantID),
				zap.String("identifier", r.Identifier),
				zap.Error(err))
		}
	}

	if reclaimed > 0 {
		s.logger.Info("expired reservations reclaimed",
			zap.Int("count", reclaimed),
			zap.Time("cutoff", now))
	}
	return reclaimed, nil
}

// publishEvents drains the domain events recorded by the transition into the
// log stream
func (s *Sweeper) publishEvents(r *domain.Reservation) {
	for _, event := range r.DomainEvents() {
		s.logger.Info("domain event",
			zap.String("event_type", event.EventType()),
			zap.String("event_id", event.EventID().String()),
			zap.String("tenant_id", event.TenantID()),
			zap.String("identifier", r.Identifier),
			zap.Time("occurred_at", event.OccurredAt()))
	}
	r.ClearDomainEvents()
}
