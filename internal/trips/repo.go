package trips

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/jasskhinda/facility-billing/pkg/db/models"
	"github.com/jasskhinda/facility-billing/pkg/enums"
)

// Repository persists trips. Trips are booked elsewhere; this package only
// reads them and freezes their price.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, trip *models.Trip) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Trip, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Trip, error)
	ListBillable(ctx context.Context, query BillableQuery) ([]models.Trip, error)
	FreezePrice(ctx context.Context, input FreezeInput) (bool, error)
}

// BillableQuery selects priced trips picked up in [Start, End).
type BillableQuery struct {
	FacilityID uuid.UUID
	Start      time.Time
	End        time.Time
	Statuses   []enums.TripStatus
}

// FreezeInput is the one-time price write for a trip.
type FreezeInput struct {
	TripID            uuid.UUID
	Price             decimal.Decimal
	Breakdown         []byte
	PricedAt          time.Time
	PickupCounty      string
	DestinationCounty string
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

func (r *repository) Create(ctx context.Context, trip *models.Trip) error {
	return r.db.WithContext(ctx).Create(trip).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Trip, error) {
	var trip models.Trip
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&trip).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trip, nil
}

func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Trip, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var trips []models.Trip
	if err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("pickup_at ASC").
		Find(&trips).Error; err != nil {
		return nil, err
	}
	return trips, nil
}

// ListBillable returns trips with a frozen price. Positivity of the price is
// checked by the caller.
func (r *repository) ListBillable(ctx context.Context, query BillableQuery) ([]models.Trip, error) {
	q := r.db.WithContext(ctx).
		Where("facility_id = ?", query.FacilityID).
		Where("pickup_at >= ? AND pickup_at < ?", query.Start.UTC(), query.End.UTC()).
		Where("price IS NOT NULL")
	if len(query.Statuses) > 0 {
		q = q.Where("status IN ?", query.Statuses)
	}
	var trips []models.Trip
	if err := q.Order("pickup_at ASC, id ASC").Find(&trips).Error; err != nil {
		return nil, err
	}
	return trips, nil
}

// FreezePrice writes the price only while it is still unset and reports
// whether this call won.
func (r *repository) FreezePrice(ctx context.Context, input FreezeInput) (bool, error) {
	updates := map[string]any{
		"price":           input.Price,
		"price_breakdown": datatypes.JSON(input.Breakdown),
		"priced_at":       input.PricedAt.UTC(),
		"updated_at":      time.Now().UTC(),
	}
	if input.PickupCounty != "" {
		updates["pickup_county"] = input.PickupCounty
	}
	if input.DestinationCounty != "" {
		updates["destination_county"] = input.DestinationCounty
	}
	res := r.db.WithContext(ctx).
		Model(&models.Trip{}).
		Where("id = ? AND price IS NULL", input.TripID).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
