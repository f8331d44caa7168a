package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/jasskhinda/facility-billing/pkg/db/models"
	dbtypes "github.com/jasskhinda/facility-billing/pkg/db/types"
	"github.com/jasskhinda/facility-billing/pkg/enums"
	"github.com/jasskhinda/facility-billing/pkg/types"
)

// Entry captures the immutable data a ledger row requires.
type Entry struct {
	FacilityID         uuid.UUID
	Month              types.Month
	Amount             decimal.Decimal
	Method             enums.PaymentMethod
	Status             enums.PaymentStatus
	CheckSubType       *enums.CheckSubType
	TripIDs            []uuid.UUID
	ProcessorPaymentID string
	ProcessorStatus    string
	IdempotencyKey     string
	Metadata           map[string]any
	SubmittedBy        string
	PaymentDate        time.Time
	VerificationDate   *time.Time
}

// NewPayment validates an entry and builds the row to append.
func NewPayment(e Entry) (*models.Payment, error) {
	if e.FacilityID == uuid.Nil {
		return nil, fmt.Errorf("facility id is required")
	}
	if e.Month.IsZero() {
		return nil, fmt.Errorf("month is required")
	}
	if !e.Amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive")
	}
	if !e.Method.IsValid() {
		return nil, fmt.Errorf("invalid payment method %q", e.Method)
	}
	if e.IdempotencyKey == "" {
		return nil, fmt.Errorf("idempotency key is required")
	}
	if e.PaymentDate.IsZero() {
		return nil, fmt.Errorf("payment date is required")
	}

	switch e.Status {
	case enums.PaymentStatusCompleted:
		if e.VerificationDate == nil {
			return nil, fmt.Errorf("completed payments carry a verification date")
		}
	case enums.PaymentStatusPendingVerification:
		if e.VerificationDate != nil {
			return nil, fmt.Errorf("pending payments cannot carry a verification date")
		}
	default:
		return nil, fmt.Errorf("payments are appended as completed or pending_verification, got %q", e.Status)
	}

	if e.Method == enums.PaymentMethodCheckSubmit {
		if e.CheckSubType == nil || !e.CheckSubType.IsValid() {
			return nil, fmt.Errorf("check payments require a sub-type")
		}
		if e.Status != enums.PaymentStatusPendingVerification {
			return nil, fmt.Errorf("check payments start pending verification")
		}
	} else if e.CheckSubType != nil {
		return nil, fmt.Errorf("check sub-type only applies to check payments")
	}

	payment := &models.Payment{
		FacilityID:     e.FacilityID,
		Month:          e.Month.String(),
		Amount:         e.Amount.Round(2),
		Method:         e.Method,
		Status:         e.Status,
		PaymentDate:    e.PaymentDate.UTC(),
		CheckSubType:   e.CheckSubType,
		TripIDs:        dbtypes.NewUUIDArray(e.TripIDs...),
		IdempotencyKey: e.IdempotencyKey,
	}
	if e.VerificationDate != nil {
		v := e.VerificationDate.UTC()
		payment.VerificationDate = &v
	}
	if e.ProcessorPaymentID != "" {
		id := e.ProcessorPaymentID
		payment.ProcessorPaymentID = &id
	}
	if e.ProcessorStatus != "" {
		status := e.ProcessorStatus
		payment.ProcessorStatus = &status
	}
	if e.SubmittedBy != "" {
		by := e.SubmittedBy
		payment.SubmittedBy = &by
	}
	if len(e.Metadata) > 0 {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode payment metadata: %w", err)
		}
		payment.Metadata = datatypes.JSON(raw)
	}
	return payment, nil
}

// Totals summarizes a period's ledger rows.
type Totals struct {
	Completed decimal.Decimal
	Pending   decimal.Decimal
	Failed    decimal.Decimal
}

// Outstanding is every amount not marked failed.
func (t Totals) Outstanding() decimal.Decimal {
	return t.Completed.Add(t.Pending)
}

// Summarize adds up ledger rows by status.
func Summarize(payments []models.Payment) Totals {
	totals := Totals{Completed: decimal.Zero, Pending: decimal.Zero, Failed: decimal.Zero}
	for _, p := range payments {
		switch p.Status {
		case enums.PaymentStatusCompleted:
			totals.Completed = totals.Completed.Add(p.Amount)
		case enums.PaymentStatusPendingVerification:
			totals.Pending = totals.Pending.Add(p.Amount)
		case enums.PaymentStatusFailed:
			totals.Failed = totals.Failed.Add(p.Amount)
		}
	}
	return totals
}
