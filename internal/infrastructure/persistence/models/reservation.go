package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/ledgerflow/numbering/internal/domain/numbering"
	"github.com/ledgerflow/numbering/internal/domain/shared"
)

// ReservationModel is the persistence model for an identifier reservation.
// The uniqueness of (tenant_id, identifier) over active rows is enforced by
// a partial unique index created in the migrations, not by a gorm tag,
// because released and expired rows must not block reuse.
type ReservationModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID   string    `gorm:"type:varchar(64);not null;index:idx_reservations_tenant_identifier,priority:1"`
	Identifier string    `gorm:"type:varchar(64);not null;index:idx_reservations_tenant_identifier,priority:2"`
	ReservedAt time.Time `gorm:"not null"`
	ExpiresAt  time.Time `gorm:"not null;index"`
	Status     string    `gorm:"type:varchar(16);not null;index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName returns the table name for GORM
func (ReservationModel) TableName() string {
	return "identifier_reservations"
}

// ToDomain converts the persistence model to a domain Reservation
func (m *ReservationModel) ToDomain() *numbering.Reservation {
	return &numbering.Reservation{
		BaseAggregateRoot: shared.BaseAggregateRoot{
			BaseEntity: shared.BaseEntity{
				ID:        m.ID,
				CreatedAt: m.CreatedAt,
				UpdatedAt: m.UpdatedAt,
			},
		},
		Identifier: m.Identifier,
		TenantID:   m.TenantID,
		ReservedAt: m.ReservedAt,
		ExpiresAt:  m.ExpiresAt,
		Status:     numbering.ReservationStatus(m.Status),
	}
}

// ReservationModelFromDomain creates a persistence model from a domain Reservation
func ReservationModelFromDomain(r *numbering.Reservation) *ReservationModel {
	return &ReservationModel{
		ID:         r.ID,
		TenantID:   r.TenantID,
		Identifier: r.Identifier,
		ReservedAt: r.ReservedAt,
		ExpiresAt:  r.ExpiresAt,
		Status:     string(r.Status),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

// TenantSequenceModel backs the primary sequence authority: one row per
// (tenant, series), advanced atomically by a single upsert statement.
type TenantSequenceModel struct {
	TenantID     string `gorm:"type:varchar(64);primaryKey"`
	Series       string `gorm:"type:varchar(32);primaryKey"`
	CurrentValue int64  `gorm:"not null;default:0"`
	UpdatedAt    time.Time
}

// TableName returns the table name for GORM
func (TenantSequenceModel) TableName() string {
	return "tenant_sequences"
}
