package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	dbtypes "github.com/jasskhinda/facility-billing/pkg/db/types"
	"github.com/jasskhinda/facility-billing/pkg/enums"
)

// Payment is an append-only ledger row. Only Status, VerificationDate,
// VerificationNotes, FailureReason and ProcessorStatus change after insert,
// and only once out of pending_verification.
type Payment struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	FacilityID         uuid.UUID           `gorm:"column:facility_id;type:uuid;not null"`
	Month              string              `gorm:"column:month;type:char(7);not null"`
	Amount             decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Method             enums.PaymentMethod `gorm:"column:method;type:payment_method;not null"`
	Status             enums.PaymentStatus `gorm:"column:status;type:payment_status;not null"`
	PaymentDate        time.Time           `gorm:"column:payment_date;not null"`
	VerificationDate   *time.Time          `gorm:"column:verification_date"`
	CheckSubType       *enums.CheckSubType `gorm:"column:check_sub_type;type:check_sub_type"`
	TripIDs            dbtypes.UUIDArray   `gorm:"column:trip_ids;type:uuid[];not null"`
	ProcessorPaymentID *string             `gorm:"column:processor_payment_id"`
	ProcessorStatus    *string             `gorm:"column:processor_status"`
	IdempotencyKey     string              `gorm:"column:idempotency_key;not null"`
	Metadata           datatypes.JSON      `gorm:"column:metadata;type:jsonb"`
	VerificationNotes  *string             `gorm:"column:verification_notes"`
	FailureReason      *string             `gorm:"column:failure_reason"`
	SubmittedBy        *string             `gorm:"column:submitted_by"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Payment) TableName() string { return "payments" }

func (p *Payment) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
