package outbox

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jasskhinda/facility-billing/pkg/db"
	"github.com/jasskhinda/facility-billing/pkg/db/models"
	"github.com/jasskhinda/facility-billing/pkg/enums"
	pkgerrors "github.com/jasskhinda/facility-billing/pkg/errors"
)

const (
	maxDLQErrorLen   = 1024
	defaultDLQLimit  = 50
	maxDLQQueryLimit = 200
)

// DLQRepository stores billing events the publisher gave up on. Rows are
// inserted inside the publisher's claim transaction, read back by operators
// and eventually purged by the retention job.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// DLQQuery filters the operator listing.
type DLQQuery struct {
	Reason     *enums.OutboxDLQErrorReason
	EventType  *enums.OutboxEventType
	FacilityID *uuid.UUID
	Limit      int
}

// DLQReasonCount is one row of the per-reason summary.
type DLQReasonCount struct {
	Reason enums.OutboxDLQErrorReason `gorm:"column:error_reason" json:"reason"`
	Count  int64                      `gorm:"column:total" json:"count"`
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if !entry.ErrorReason.IsValid() {
		return errors.New("dlq entry requires a known error reason")
	}
	if entry.ErrorMessage != nil {
		msg := truncateDLQError(*entry.ErrorMessage)
		entry.ErrorMessage = &msg
	}
	if err := tx.Create(&entry).Error; err != nil {
		if db.IsUniqueViolation(err, "ux_outbox_dlq_event") || db.IsUniqueViolation(err, "outbox_dlq.event_id") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "event already dead-lettered")
		}
		return err
	}
	return nil
}

func (r *DLQRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var dlq models.OutboxDLQ
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&dlq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dlq, nil
}

// List returns the newest parked events first.
func (r *DLQRepository) List(ctx context.Context, query DLQQuery) ([]models.OutboxDLQ, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultDLQLimit
	}
	if limit > maxDLQQueryLimit {
		limit = maxDLQQueryLimit
	}
	q := r.db.WithContext(ctx).Model(&models.OutboxDLQ{})
	if query.Reason != nil {
		q = q.Where("error_reason = ?", *query.Reason)
	}
	if query.EventType != nil {
		q = q.Where("event_type = ?", *query.EventType)
	}
	if query.FacilityID != nil {
		q = q.Where("facility_id = ?", *query.FacilityID)
	}
	var rows []models.OutboxDLQ
	err := q.Order("failed_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// CountByReason summarizes the DLQ for the admin listing.
func (r *DLQRepository) CountByReason(ctx context.Context) ([]DLQReasonCount, error) {
	var counts []DLQReasonCount
	err := r.db.WithContext(ctx).
		Model(&models.OutboxDLQ{}).
		Select("error_reason, COUNT(*) AS total").
		Group("error_reason").
		Order("error_reason").
		Scan(&counts).Error
	return counts, err
}

// DeleteFailedBefore purges DLQ rows that failed before cutoff.
func (r *DLQRepository) DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		return 0, errors.New("transaction required")
	}
	result := tx.WithContext(ctx).
		Where("failed_at < ?", cutoff.UTC()).
		Delete(&models.OutboxDLQ{})
	return result.RowsAffected, result.Error
}

func truncateDLQError(message string) string {
	if len(message) <= maxDLQErrorLen {
		return message
	}
	cut := maxDLQErrorLen
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut]
}
