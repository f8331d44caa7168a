package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jasskhinda/facility-billing/pkg/enums"
)

// BillingPeriod is embedded in every billing event so consumers can route
// by (facility, month) without loading the aggregate.
type BillingPeriod struct {
	FacilityID uuid.UUID `json:"facility_id"`
	Month      string    `json:"month"`
}

// PaymentSubmittedEvent is emitted when a payment row is appended to the ledger.
type PaymentSubmittedEvent struct {
	BillingPeriod
	PaymentID    uuid.UUID           `json:"payment_id"`
	Amount       decimal.Decimal     `json:"amount"`
	Method       enums.PaymentMethod `json:"method"`
	Status       enums.PaymentStatus `json:"status"`
	CheckSubType *enums.CheckSubType `json:"check_sub_type,omitempty"`
	TripIDs      []uuid.UUID         `json:"trip_ids"`
	PaymentDate  time.Time           `json:"payment_date"`
}

// PaymentVerifiedEvent is emitted when a pending payment is confirmed by
// back-office staff or by the processor.
type PaymentVerifiedEvent struct {
	BillingPeriod
	PaymentID        uuid.UUID           `json:"payment_id"`
	Method           enums.PaymentMethod `json:"method"`
	Amount           decimal.Decimal     `json:"amount"`
	VerificationDate time.Time           `json:"verification_date"`
}

// PaymentRejectedEvent is emitted when a pending payment fails verification
// or settlement.
type PaymentRejectedEvent struct {
	BillingPeriod
	PaymentID uuid.UUID           `json:"payment_id"`
	Method    enums.PaymentMethod `json:"method"`
	Reason    string              `json:"reason"`
}

// InvoiceStatusChangedEvent is emitted when a rebuild moves the projection
// to a different status.
type InvoiceStatusChangedEvent struct {
	BillingPeriod
	InvoiceID   uuid.UUID           `json:"invoice_id"`
	From        enums.InvoiceStatus `json:"from"`
	To          enums.InvoiceStatus `json:"to"`
	TotalAmount decimal.Decimal     `json:"total_amount"`
}

// TripPricedEvent is emitted once when a trip's fare is frozen.
type TripPricedEvent struct {
	BillingPeriod
	TripID   uuid.UUID       `json:"trip_id"`
	Price    decimal.Decimal `json:"price"`
	PricedAt time.Time       `json:"priced_at"`
}

// Period returns the billing period the event belongs to.
func (p BillingPeriod) Period() BillingPeriod {
	return p
}

// PeriodScoped is satisfied by every billing event payload.
type PeriodScoped interface {
	Period() BillingPeriod
}
