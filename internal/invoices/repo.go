package invoices

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jasskhinda/facility-billing/pkg/db/models"
)

// Repository persists the invoice projection.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByPeriod(ctx context.Context, facilityID uuid.UUID, month string) (*models.Invoice, error)
	Upsert(ctx context.Context, invoice *models.Invoice) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByPeriod(ctx context.Context, facilityID uuid.UUID, month string) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).
		Where("facility_id = ? AND month = ?", facilityID, month).
		First(&invoice).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}

// Upsert writes the projection keyed by (facility_id, month). A conflicting
// row is updated in place.
func (r *repository) Upsert(ctx context.Context, invoice *models.Invoice) error {
	invoice.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "facility_id"}, {Name: "month"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"total_amount",
				"payment_status",
				"notes",
				"trip_ids",
				"last_payment_id",
				"last_verified_at",
				"updated_at",
			}),
		}).
		Create(invoice).Error
}
