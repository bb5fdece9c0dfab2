package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerflow/numbering/internal/domain/numbering"
	"github.com/ledgerflow/numbering/internal/domain/shared"
	"github.com/ledgerflow/numbering/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormReservationRepository implements numbering.ReservationRepository using GORM
type GormReservationRepository struct {
	db *gorm.DB
}

// NewGormReservationRepository creates a new GormReservationRepository
func NewGormReservationRepository(db *gorm.DB) *GormReservationRepository {
	return &GormReservationRepository{db: db}
}

// Insert writes a new reservation row. A unique-constraint violation maps
// to numbering.ErrDuplicateIdentifier; other failures are marked transient
// so the caller can classify them for retry.
func (r *GormReservationRepository) Insert(ctx context.Context, reservation *numbering.Reservation) error {
	model := models.ReservationModelFromDomain(reservation)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", numbering.ErrDuplicateIdentifier, reservation.Identifier)
		}
		return numbering.MarkTransient(err)
	}
	return nil
}

// UpdateStatus transitions a reservation using a guarded update so it is
// safe against concurrent sweeps and confirmations. Zero affected rows are
// disambiguated by re-reading the current status: already at the target
// status is an idempotent no-op, any other status is an invalid transition.
func (r *GormReservationRepository) UpdateStatus(ctx context.Context, identifier, tenantID string, newStatus numbering.ReservationStatus) error {
	sources := numbering.TransitionSources(newStatus)
	if len(sources) == 0 {
		return shared.ErrInvalidState
	}

	result := r.db.WithContext(ctx).
		Model(&models.ReservationModel{}).
		Where("tenant_id = ? AND identifier = ? AND status IN ?", tenantID, identifier, statusStrings(sources)).
		Updates(map[string]any{
			"status":     string(newStatus),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return numbering.MarkTransient(result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var model models.ReservationModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND identifier = ?", tenantID, identifier).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return shared.ErrNotFound
		}
		return numbering.MarkTransient(err)
	}
	if model.Status == string(newStatus) {
		return nil
	}
	return fmt.Errorf("%w: reservation %s is %s", shared.ErrInvalidState, identifier, model.Status)
}

// ListExpired returns reservations still reserved whose expiry lies before
// the given instant
func (r *GormReservationRepository) ListExpired(ctx context.Context, before time.Time) ([]numbering.Reservation, error) {
	var reservationModels []models.ReservationModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", string(numbering.StatusReserved), before).
		Order("expires_at ASC").
		Find(&reservationModels).Error; err != nil {
		return nil, numbering.MarkTransient(err)
	}
	reservations := make([]numbering.Reservation, len(reservationModels))
	for i, model := range reservationModels {
		reservations[i] = *model.ToDomain()
	}
	return reservations, nil
}

// HighestSequence returns the largest sequence among reservations matching
// the series prefix for a tenant, 0 when none exist. Sequences are
// zero-padded but can outgrow the padding width, so rows are ordered by
// identifier length before the lexicographic comparison.
func (r *GormReservationRepository) HighestSequence(ctx context.Context, tenantID, seriesPrefix string) (int64, error) {
	var model models.ReservationModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND identifier LIKE ?", tenantID, seriesPrefix+"%").
		Order("LENGTH(identifier) DESC, identifier DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, numbering.MarkTransient(err)
	}
	return numbering.ParseSequence(model.Identifier)
}

func statusStrings(statuses []numbering.ReservationStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// Ensure GormReservationRepository implements the repository interface
var _ numbering.ReservationRepository = (*GormReservationRepository)(nil)
