package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jasskhinda/facility-billing/pkg/db/models"
	"github.com/jasskhinda/facility-billing/pkg/enums"
	"github.com/jasskhinda/facility-billing/pkg/pagination"
)

// Repository is the append-only payment ledger. Rows are never deleted and
// leave pending_verification at most once.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindByProcessorPaymentID(ctx context.Context, processorPaymentID string) (*models.Payment, error)
	ListByFacilityMonth(ctx context.Context, facilityID uuid.UUID, month string) ([]models.Payment, error)
	LatestVerified(ctx context.Context, facilityID uuid.UUID, month string) (*models.Payment, error)
	HasPendingCheck(ctx context.Context, facilityID uuid.UUID, month string) (bool, error)
	MarkVerified(ctx context.Context, input VerifyUpdate) (bool, error)
	MarkFailed(ctx context.Context, input FailUpdate) (bool, error)
	ListPending(ctx context.Context, query PendingQuery) ([]models.Payment, *pagination.Cursor, error)
	ListTouchedPeriods(ctx context.Context, since time.Time) ([]Period, error)
}

// VerifyUpdate moves a pending payment to completed.
type VerifyUpdate struct {
	PaymentID        uuid.UUID
	VerificationDate time.Time
	Notes            *string
	ProcessorStatus  *string
}

// FailUpdate moves a pending payment to failed.
type FailUpdate struct {
	PaymentID       uuid.UUID
	Reason          string
	ProcessorStatus *string
}

// PendingQuery pages through payments awaiting verification.
type PendingQuery struct {
	Method *enums.PaymentMethod
	Params pagination.Params
}

// Period is a (facility, month) pair.
type Period struct {
	FacilityID uuid.UUID
	Month      string
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) FindByProcessorPaymentID(ctx context.Context, processorPaymentID string) (*models.Payment, error) {
	return r.first(r.db.WithContext(ctx).Where("processor_payment_id = ?", processorPaymentID))
}

func (r *repository) ListByFacilityMonth(ctx context.Context, facilityID uuid.UUID, month string) ([]models.Payment, error) {
	var payments []models.Payment
	if err := r.db.WithContext(ctx).
		Where("facility_id = ? AND month = ?", facilityID, month).
		Order("created_at ASC, id ASC").
		Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repository) LatestVerified(ctx context.Context, facilityID uuid.UUID, month string) (*models.Payment, error) {
	return r.first(r.db.WithContext(ctx).
		Where("facility_id = ? AND month = ?", facilityID, month).
		Where("status = ? AND verification_date IS NOT NULL", enums.PaymentStatusCompleted).
		Order("verification_date DESC, created_at DESC"))
}

func (r *repository) HasPendingCheck(ctx context.Context, facilityID uuid.UUID, month string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("facility_id = ? AND month = ?", facilityID, month).
		Where("method = ? AND status = ?", enums.PaymentMethodCheckSubmit, enums.PaymentStatusPendingVerification).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) MarkVerified(ctx context.Context, input VerifyUpdate) (bool, error) {
	updates := map[string]any{
		"status":            enums.PaymentStatusCompleted,
		"verification_date": input.VerificationDate.UTC(),
		"updated_at":        time.Now().UTC(),
	}
	if input.Notes != nil {
		updates["verification_notes"] = *input.Notes
	}
	if input.ProcessorStatus != nil {
		updates["processor_status"] = *input.ProcessorStatus
	}
	return r.transition(ctx, input.PaymentID, updates)
}

func (r *repository) MarkFailed(ctx context.Context, input FailUpdate) (bool, error) {
	updates := map[string]any{
		"status":         enums.PaymentStatusFailed,
		"failure_reason": input.Reason,
		"updated_at":     time.Now().UTC(),
	}
	if input.ProcessorStatus != nil {
		updates["processor_status"] = *input.ProcessorStatus
	}
	return r.transition(ctx, input.PaymentID, updates)
}

func (r *repository) transition(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, enums.PaymentStatusPendingVerification).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListPending(ctx context.Context, query PendingQuery) ([]models.Payment, *pagination.Cursor, error) {
	limit := pagination.NormalizeLimit(query.Params.Limit)
	cursor, err := pagination.ParseCursor(query.Params.Cursor)
	if err != nil {
		return nil, nil, err
	}

	q := r.db.WithContext(ctx).
		Where("status = ?", enums.PaymentStatusPendingVerification)
	if query.Method != nil {
		q = q.Where("method = ?", *query.Method)
	}

	var payments []models.Payment
	if err := q.Scopes(pagination.Keyset(cursor, limit)).Find(&payments).Error; err != nil {
		return nil, nil, err
	}

	page, next := pagination.Page(payments, limit, func(p models.Payment) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	return page, next, nil
}

// ListTouchedPeriods returns the periods with ledger activity since the
// given time.
func (r *repository) ListTouchedPeriods(ctx context.Context, since time.Time) ([]Period, error) {
	var periods []Period
	if err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Select("DISTINCT facility_id, month").
		Where("updated_at >= ?", since.UTC()).
		Order("month ASC, facility_id ASC").
		Scan(&periods).Error; err != nil {
		return nil, err
	}
	return periods, nil
}

func (r *repository) first(q *gorm.DB) (*models.Payment, error) {
	var payment models.Payment
	if err := q.First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}
