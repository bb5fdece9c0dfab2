package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/ledgerflow/numbering/internal/domain/numbering"
	"gorm.io/gorm"
)

// GormSequenceAuthority implements the primary sequence authority on top of
// a tenant_sequences table. A block of count numbers is claimed with a
// single upsert, so concurrent callers can never receive overlapping
// ranges: the database serializes the row update.
type GormSequenceAuthority struct {
	db     *gorm.DB
	series string
}

// NewGormSequenceAuthority creates a sequence authority for one identifier series
func NewGormSequenceAuthority(db *gorm.DB, series string) *GormSequenceAuthority {
	if series == "" {
		series = numbering.DefaultSeries
	}
	return &GormSequenceAuthority{db: db, series: series}
}

const advanceSequenceSQL = `
INSERT INTO tenant_sequences (tenant_id, series, current_value, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (tenant_id, series)
DO UPDATE SET
	current_value = tenant_sequences.current_value + excluded.current_value,
	updated_at = excluded.updated_at
RETURNING current_value`

// NextBlock atomically advances the tenant's sequence by count and returns
// the claimed numbers in increasing order
func (a *GormSequenceAuthority) NextBlock(ctx context.Context, tenantID string, count int) ([]int64, error) {
	if count < 1 {
		return nil, fmt.Errorf("%w: count must be >= 1", numbering.ErrInvalidArgument)
	}

	var end int64
	err := a.db.WithContext(ctx).
		Raw(advanceSequenceSQL, tenantID, a.series, count, time.Now()).
		Scan(&end).Error
	if err != nil {
		return nil, numbering.MarkTransient(err)
	}

	block := make([]int64, count)
	for i := range block {
		block[i] = end - int64(count) + int64(i) + 1
	}
	return block, nil
}

// Ensure GormSequenceAuthority implements the authority interface
var _ numbering.SequenceAuthority = (*GormSequenceAuthority)(nil)
