package numbering

import (
	"context"
	"fmt"
	"strings"

	domain "github.com/ledgerflow/numbering/internal/domain/numbering"
	"go.uber.org/zap"
)

// BlockSource produces a fresh block of formatted identifiers. The allocator
// implements it; collision retries go back through the full strategy chain
// so a retry can succeed on a different authority than the attempt that
// collided.
type BlockSource interface {
	NextIdentifiers(ctx context.Context, tenantID, series string, count int) ([]string, domain.Strategy, error)
}

// CollisionResolver decides what happens after a reservation write fails on
// the uniqueness constraint. Collisions are expected during fallback and
// emergency operation, where independently advancing counters can issue
// numbers the primary already handed out.
type CollisionResolver struct {
	source      BlockSource
	maxAttempts int
	logger      *zap.Logger
}

// NewCollisionResolver creates a resolver with a bounded attempt budget
func NewCollisionResolver(source BlockSource, maxAttempts int, logger *zap.Logger) *CollisionResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CollisionResolver{
		source:      source,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// ResolveCollision reacts to a collided block. While attempts remain it
// returns a replacement block drawn from the current strategy chain; once
// the budget is spent it returns retry=false with ErrExhaustedRetries, and
// the caller surfaces a terminal error instead of looping forever against a
// store that keeps refusing.
func (r *CollisionResolver) ResolveCollision(ctx context.Context, tenantID string, failed []string, attempt int) (retry bool, next []string, err error) {
	if len(failed) == 0 {
		return false, nil, fmt.Errorf("%w: empty collision set", domain.ErrInvalidArgument)
	}
	if attempt >= r.maxAttempts {
		r.logger.Error("collision retries exhausted",
			zap.String("tenant_id", tenantID),
			zap.Int("attempts", attempt),
			zap.Strings("identifiers", failed))
		return false, nil, domain.ErrExhaustedRetries
	}

	series := seriesOf(failed[0])
	r.logger.Warn("identifier collision, requesting fresh block",
		zap.String("tenant_id", tenantID),
		zap.String("series", series),
		zap.Int("attempt", attempt),
		zap.Int("count", len(failed)))

	next, strategy, err := r.source.NextIdentifiers(ctx, tenantID, series, len(failed))
	if err != nil {
		return false, nil, err
	}
	r.logger.Debug("replacement block issued",
		zap.String("tenant_id", tenantID),
		zap.String("strategy", string(strategy)),
		zap.Int("attempt", attempt+1))
	return true, next, nil
}

// seriesOf recovers the series prefix from a formatted identifier. A
// malformed identifier degrades to the default series rather than failing
// the whole resolution.
func seriesOf(identifier string) string {
	if idx := strings.Index(identifier, "-"); idx > 0 {
		return identifier[:idx]
	}
	return domain.DefaultSeries
}
