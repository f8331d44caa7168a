package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/jasskhinda/facility-billing/pkg/enums"
)

// Trip is a booked ride. Price and PriceBreakdown are written once by the
// pricing step and never rewritten.
type Trip struct {
	ID                   uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	FacilityID           uuid.UUID              `gorm:"column:facility_id;type:uuid;not null"`
	ClientID             uuid.UUID              `gorm:"column:client_id;type:uuid;not null"`
	ClientKind           enums.ClientKind       `gorm:"column:client_kind;type:client_kind;not null;default:'managed'"`
	ClientName           string                 `gorm:"column:client_name;not null;default:''"`
	PickupAt             time.Time              `gorm:"column:pickup_at;not null"`
	PickupAddress        string                 `gorm:"column:pickup_address;not null;default:''"`
	DestinationAddress   string                 `gorm:"column:destination_address;not null;default:''"`
	PickupCounty         *string                `gorm:"column:pickup_county"`
	DestinationCounty    *string                `gorm:"column:destination_county"`
	PickupLat            *float64               `gorm:"column:pickup_lat"`
	PickupLng            *float64               `gorm:"column:pickup_lng"`
	DestinationLat       *float64               `gorm:"column:destination_lat"`
	DestinationLng       *float64               `gorm:"column:destination_lng"`
	DistanceMiles        decimal.Decimal        `gorm:"column:distance_miles;type:numeric(10,2);not null"`
	Wheelchair           enums.WheelchairOption `gorm:"column:wheelchair;type:wheelchair_option;not null;default:'none'"`
	RoundTrip            bool                   `gorm:"column:round_trip;not null;default:false"`
	AdditionalPassengers int                    `gorm:"column:additional_passengers;not null;default:0"`
	ClientWeight         *float64               `gorm:"column:client_weight"`
	ClientCategory       enums.ClientCategory   `gorm:"column:client_category;type:client_category;not null;default:'facility'"`
	Status               enums.TripStatus       `gorm:"column:status;type:trip_status;not null;default:'pending'"`
	Price                decimal.NullDecimal    `gorm:"column:price;type:numeric(12,2)"`
	PriceBreakdown       datatypes.JSON         `gorm:"column:price_breakdown;type:jsonb"`
	PricedAt             *time.Time             `gorm:"column:priced_at"`
	CreatedAt            time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (Trip) TableName() string { return "trips" }

func (t *Trip) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// IsPriced reports whether the fare has been frozen on the trip.
func (t *Trip) IsPriced() bool {
	return t != nil && t.Price.Valid
}
