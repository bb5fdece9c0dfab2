package numbering

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "github.com/ledgerflow/numbering/internal/domain/numbering"
	"github.com/ledgerflow/numbering/internal/infrastructure/resilience"
	"github.com/ledgerflow/numbering/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// AllocatorConfig contains operator-configured allocation parameters
type AllocatorConfig struct {
	// Series is the default identifier prefix
	Series string

	// ReservationValidity is how long a reservation may stay unconfirmed
	// before the sweeper reclaims it. Must be comfortably longer than the
	// maximum expected confirmation latency.
	ReservationValidity time.Duration

	// CollisionMaxAttempts bounds how often the collision resolver
	// requests a fresh block before giving up
	CollisionMaxAttempts int

	// RetryMaxAttempts bounds retries of transient authority failures
	RetryMaxAttempts int

	// RetryBaseDelay is the base delay of the exponential backoff between
	// authority retries
	RetryBaseDelay time.Duration

	// EmergencyEnabled allows the process-local counter of last resort.
	// When false, allocation fails once both durable authorities are down.
	EmergencyEnabled bool
}

// DefaultAllocatorConfig returns default configuration
func DefaultAllocatorConfig() AllocatorConfig {
	return AllocatorConfig{
		Series:               domain.DefaultSeries,
		ReservationValidity:  30 * time.Minute,
		CollisionMaxAttempts: 3,
		RetryMaxAttempts:     3,
		RetryBaseDelay:       100 * time.Millisecond,
		EmergencyEnabled:     true,
	}
}

// AllocatorService hands out unique, gap-tolerant identifiers to concurrent
// callers. It tries the primary sequence authority, then the fallback
// counter, then a process-local emergency counter, writing a reservation
// row for every identifier it returns. Correctness does not depend on any
// in-process lock for the durable paths: the authorities are atomic and the
// reservation store's uniqueness constraint is the last-resort safety net.
type AllocatorService struct {
	authority       domain.SequenceAuthority
	fallback        domain.FallbackCounter
	reservations    domain.ReservationRepository
	primaryBreaker  *resilience.Breaker
	fallbackBreaker *resilience.Breaker
	resolver        *CollisionResolver
	clock           resilience.Clock
	logger          *zap.Logger
	config          AllocatorConfig

	// emergency counters, keyed tenant|series|day. The mutex guards only
	// the read-increment-write of the counter map, never I/O.
	mu        sync.Mutex
	emergency map[string]int64
}

// NewAllocatorService creates an allocator wired to its authorities and
// per-dependency breakers
func NewAllocatorService(
	authority domain.SequenceAuthority,
	fallback domain.FallbackCounter,
	reservations domain.ReservationRepository,
	primaryBreaker *resilience.Breaker,
	fallbackBreaker *resilience.Breaker,
	clock resilience.Clock,
	logger *zap.Logger,
	config AllocatorConfig,
) *AllocatorService {
	if clock == nil {
		clock = resilience.SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AllocatorService{
		authority:       authority,
		fallback:        fallback,
		reservations:    reservations,
		primaryBreaker:  primaryBreaker,
		fallbackBreaker: fallbackBreaker,
		clock:           clock,
		logger:          logger,
		config:          config,
		emergency:       make(map[string]int64),
	}
	s.resolver = NewCollisionResolver(s, config.CollisionMaxAttempts, logger)
	return s
}

// Allocate returns exactly count unique identifiers reserved for the
// tenant, strictly increasing within the call, or a classified terminal
// error. The caller must Confirm or Release every returned identifier;
// unconfirmed reservations are reclaimed by the sweeper at expiry.
func (s *AllocatorService) Allocate(ctx context.Context, tenantID string, count int) ([]string, error) {
	return s.AllocateSeries(ctx, tenantID, s.config.Series, count)
}

// AllocateSeries allocates identifiers under an explicit series prefix
func (s *AllocatorService) AllocateSeries(ctx context.Context, tenantID, series string, count int) ([]string, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "allocator", "allocate",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID),
		telemetry.WithAttribute(telemetry.SpanAttrCount, count))
	defer span.End()

	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant ID is required", domain.ErrInvalidArgument)
	}
	if count < 1 {
		return nil, fmt.Errorf("%w: count must be >= 1, got %d", domain.ErrInvalidArgument, count)
	}
	if series == "" {
		series = s.config.Series
	}

	identifiers, strategy, err := s.NextIdentifiers(ctx, tenantID, series, count)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrSeries, series,
		telemetry.SpanAttrStrategy, string(strategy))

	attempt := domain.AllocationAttempt{
		TenantID:       tenantID,
		RequestedCount: count,
		AttemptNumber:  1,
		StrategyUsed:   strategy,
	}

	for {
		err := s.reserve(ctx, tenantID, identifiers)
		if err == nil {
			s.logger.Debug("identifiers allocated",
				zap.String("tenant_id", tenantID),
				zap.Int("count", count),
				zap.String("strategy", string(attempt.StrategyUsed)),
				zap.Int("attempt", attempt.AttemptNumber))
			return identifiers, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			telemetry.RecordError(span, ctxErr)
			return nil, ctxErr
		}
		if !errors.Is(err, domain.ErrDuplicateIdentifier) {
			// the reservation store is the last backend standing on every
			// strategy; if it cannot persist, nothing can
			err = fmt.Errorf("%w: tenant %s, strategy %s: %w",
				domain.ErrAllBackendsUnavailable, tenantID, attempt.StrategyUsed, err)
			telemetry.RecordError(span, err)
			return nil, err
		}

		telemetry.AddEvent(span, "collision_detected",
			telemetry.SpanAttrAttempt, attempt.AttemptNumber)
		retry, next, resolveErr := s.resolver.ResolveCollision(ctx, tenantID, identifiers, attempt.AttemptNumber)
		if !retry {
			resolveErr = fmt.Errorf("tenant %s, %d attempts, strategy %s: %w",
				tenantID, attempt.AttemptNumber, attempt.StrategyUsed, resolveErr)
			telemetry.RecordError(span, resolveErr)
			return nil, resolveErr
		}
		identifiers = next
		attempt.AttemptNumber++
	}
}

// Confirm marks reservations confirmed. Confirming an already-confirmed
// identifier is a no-op success, so retried confirmations are safe.
func (s *AllocatorService) Confirm(ctx context.Context, identifiers []string, tenantID string) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "allocator", "confirm",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID),
		telemetry.WithAttribute(telemetry.SpanAttrCount, len(identifiers)))
	defer span.End()

	err := s.updateAll(ctx, identifiers, tenantID, domain.StatusConfirmed)
	telemetry.RecordError(span, err)
	return err
}

// Release marks reservations released, making the identifiers eligible for
// issuance again
func (s *AllocatorService) Release(ctx context.Context, identifiers []string, tenantID string) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "allocator", "release",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID),
		telemetry.WithAttribute(telemetry.SpanAttrCount, len(identifiers)))
	defer span.End()

	err := s.updateAll(ctx, identifiers, tenantID, domain.StatusReleased)
	telemetry.RecordError(span, err)
	return err
}

func (s *AllocatorService) updateAll(ctx context.Context, identifiers []string, tenantID string, status domain.ReservationStatus) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenant ID is required", domain.ErrInvalidArgument)
	}
	if len(identifiers) == 0 {
		return fmt.Errorf("%w: no identifiers given", domain.ErrInvalidArgument)
	}
	for _, identifier := range identifiers {
		if err := s.reservations.UpdateStatus(ctx, identifier, tenantID, status); err != nil {
			return fmt.Errorf("%s %s for tenant %s: %w", status, identifier, tenantID, err)
		}
	}
	return nil
}

// NextIdentifiers walks the ordered strategy chain and returns a formatted
// block. It implements the resolver's BlockSource so collision retries draw
// from whichever strategy is currently reachable.
func (s *AllocatorService) NextIdentifiers(ctx context.Context, tenantID, series string, count int) ([]string, domain.Strategy, error) {
	day := s.clock.Now().UTC()

	block, primaryErr := resilience.ExecuteWithRetry(ctx, func() ([]int64, error) {
		return resilience.Do(s.primaryBreaker, func() ([]int64, error) {
			return s.authority.NextBlock(ctx, tenantID, count)
		})
	}, s.config.RetryMaxAttempts, s.config.RetryBaseDelay, s.clock)
	if primaryErr == nil {
		return formatBlock(series, day, block), domain.StrategyPrimary, nil
	}
	if isContextErr(primaryErr) {
		return nil, "", primaryErr
	}
	s.logger.Warn("primary sequence authority unavailable, using fallback counter",
		zap.String("tenant_id", tenantID),
		zap.Error(primaryErr))

	key := domain.FallbackKey(tenantID, series, day)
	end, fallbackErr := resilience.ExecuteWithRetry(ctx, func() (int64, error) {
		return resilience.Do(s.fallbackBreaker, func() (int64, error) {
			return s.fallback.Increment(ctx, key, count)
		})
	}, s.config.RetryMaxAttempts, s.config.RetryBaseDelay, s.clock)
	if fallbackErr == nil {
		block := make([]int64, count)
		for i := range block {
			block[i] = end - int64(count) + int64(i) + 1
		}
		return formatBlock(series, day, block), domain.StrategyFallback, nil
	}
	if isContextErr(fallbackErr) {
		return nil, "", fallbackErr
	}
	if !s.config.EmergencyEnabled {
		return nil, "", fmt.Errorf("%w: primary: %v; fallback: %v; emergency counter disabled",
			domain.ErrAllBackendsUnavailable, primaryErr, fallbackErr)
	}

	identifiers, emergencyErr := s.emergencyBlock(ctx, tenantID, series, count, day)
	if emergencyErr != nil {
		return nil, "", fmt.Errorf("%w: primary: %v; fallback: %v; emergency: %v",
			domain.ErrAllBackendsUnavailable, primaryErr, fallbackErr, emergencyErr)
	}
	// single point of truth is lost while this path is active; numbers are
	// reconciled reactively by the uniqueness constraint on the next
	// durable write
	s.logger.Warn("emergency local counter active, cross-instance uniqueness not guaranteed",
		zap.String("tenant_id", tenantID),
		zap.String("series", series),
		zap.Int("count", count))
	return identifiers, domain.StrategyEmergency, nil
}

// emergencyBlock issues numbers from a process-local counter seeded from
// the highest persisted sequence for the series. The seed read happens
// before the lock is taken; the critical section is read-increment-write
// only.
func (s *AllocatorService) emergencyBlock(ctx context.Context, tenantID, series string, count int, day time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seed, err := s.reservations.HighestSequence(ctx, tenantID, domain.SeriesPrefix(series, day))
	if err != nil {
		if isContextErr(err) {
			return nil, err
		}
		// last resort: a time-derived seed keeps numbers moving while the
		// store is unreadable; any overlap is caught at reservation time
		seed = s.clock.Now().Unix() % 1_000_000
		s.logger.Warn("emergency seed query failed, using time-derived seed",
			zap.String("tenant_id", tenantID),
			zap.Int64("seed", seed),
			zap.Error(err))
	}

	daySuffix := "|" + day.Format("20060102")
	key := tenantID + "|" + series + daySuffix

	s.mu.Lock()
	// counters for previous days can never be consulted again; dropping them
	// keeps the map bounded by the tenant/series pairs active today
	for k := range s.emergency {
		if !strings.HasSuffix(k, daySuffix) {
			delete(s.emergency, k)
		}
	}
	current, ok := s.emergency[key]
	if !ok || current < seed {
		current = seed
	}
	start := current + 1
	current += int64(count)
	s.emergency[key] = current
	s.mu.Unlock()

	identifiers := make([]string, count)
	for i := range identifiers {
		identifiers[i] = domain.FormatIdentifier(series, day, start+int64(i))
	}
	return identifiers, nil
}

// reserve writes a reservation row per identifier. On a duplicate it rolls
// back the rows already written in this block and reports the collision;
// rollback failures are tolerated because the sweeper reclaims the rows at
// expiry anyway.
func (s *AllocatorService) reserve(ctx context.Context, tenantID string, identifiers []string) error {
	inserted := make([]string, 0, len(identifiers))
	for _, identifier := range identifiers {
		reservation := domain.NewReservation(identifier, tenantID, s.config.ReservationValidity)
		if err := s.reservations.Insert(ctx, reservation); err != nil {
			s.rollback(context.WithoutCancel(ctx), tenantID, inserted)
			return err
		}
		inserted = append(inserted, identifier)
	}
	return nil
}

func (s *AllocatorService) rollback(ctx context.Context, tenantID string, identifiers []string) {
	for _, identifier := range identifiers {
		if err := s.reservations.UpdateStatus(ctx, identifier, tenantID, domain.StatusReleased); err != nil {
			s.logger.Error("failed to roll back reservation, sweeper will reclaim it",
				zap.String("tenant_id", tenantID),
				zap.String("identifier", identifier),
				zap.Error(err))
		}
	}
}

// ReservationValidity returns the configured confirmation window
func (s *AllocatorService) ReservationValidity() time.Duration {
	return s.config.ReservationValidity
}

// BreakerStates reports the state of each protected dependency for health
// and operator alerting
func (s *AllocatorService) BreakerStates() map[string]string {
	return map[string]string{
		s.primaryBreaker.Name():  s.primaryBreaker.State().String(),
		s.fallbackBreaker.Name(): s.fallbackBreaker.State().String(),
	}
}

func formatBlock(series string, day time.Time, block []int64) []string {
	identifiers := make([]string, len(block))
	for i, sequence := range block {
		identifiers[i] = domain.FormatIdentifier(series, day, sequence)
	}
	return identifiers
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
