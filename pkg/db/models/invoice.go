package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/jasskhinda/facility-billing/pkg/db/types"
	"github.com/jasskhinda/facility-billing/pkg/enums"
)

// Invoice is the per-(facility, month) projection rebuilt from payments.
type Invoice struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	FacilityID     uuid.UUID           `gorm:"column:facility_id;type:uuid;not null;uniqueIndex:ux_invoices_facility_month"`
	Month          string              `gorm:"column:month;type:char(7);not null;uniqueIndex:ux_invoices_facility_month"`
	TotalAmount    decimal.Decimal     `gorm:"column:total_amount;type:numeric(12,2);not null"`
	PaymentStatus  enums.InvoiceStatus `gorm:"column:payment_status;type:invoice_status;not null;default:'UNPAID'"`
	Notes          *string             `gorm:"column:notes"`
	TripIDs        dbtypes.UUIDArray   `gorm:"column:trip_ids;type:uuid[];not null"`
	LastPaymentID  *uuid.UUID          `gorm:"column:last_payment_id;type:uuid"`
	LastVerifiedAt *time.Time          `gorm:"column:last_verified_at"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Invoice) TableName() string { return "invoices" }

func (i *Invoice) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
