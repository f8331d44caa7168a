package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jasskhinda/facility-billing/internal/access"
	"github.com/jasskhinda/facility-billing/internal/fares"
	"github.com/jasskhinda/facility-billing/internal/invoices"
	"github.com/jasskhinda/facility-billing/internal/trips"
	"github.com/jasskhinda/facility-billing/pkg/db/models"
	"github.com/jasskhinda/facility-billing/pkg/enums"
	pkgerrors "github.com/jasskhinda/facility-billing/pkg/errors"
	"github.com/jasskhinda/facility-billing/pkg/logger"
	"github.com/jasskhinda/facility-billing/pkg/types"
)

type tripReader interface {
	ListBillable(ctx context.Context, query trips.BillableQuery) ([]models.Trip, error)
}

type paymentReader interface {
	ListByFacilityMonth(ctx context.Context, facilityID uuid.UUID, month string) ([]models.Payment, error)
}

// TripCounts reports how many trips landed in each bucket.
type TripCounts struct {
	Paid        int `json:"paid"`
	NewBillable int `json:"new_billable"`
	Total       int `json:"total"`
}

// TripLine is one billable trip with its frozen fare.
type TripLine struct {
	TripID             uuid.UUID        `json:"trip_id"`
	ClientName         string           `json:"client_name"`
	PickupAt           time.Time        `json:"pickup_at"`
	PickupAddress      string           `json:"pickup_address"`
	DestinationAddress string           `json:"destination_address"`
	Status             enums.TripStatus `json:"status"`
	Price              decimal.Decimal  `json:"price"`
	Bucket             Bucket           `json:"bucket"`
	Breakdown          *fares.Breakdown `json:"breakdown,omitempty"`
}

// PaymentEntry is one row of the payment history.
type PaymentEntry struct {
	ID                uuid.UUID           `json:"id"`
	Amount            decimal.Decimal     `json:"amount"`
	Method            enums.PaymentMethod `json:"method"`
	Status            enums.PaymentStatus `json:"status"`
	CheckSubType      *enums.CheckSubType `json:"check_sub_type,omitempty"`
	PaymentDate       time.Time           `json:"payment_date"`
	VerificationDate  *time.Time          `json:"verification_date,omitempty"`
	VerificationNotes *string             `json:"verification_notes,omitempty"`
	FailureReason     *string             `json:"failure_reason,omitempty"`
	TripCount         int                 `json:"trip_count"`
}

// PaymentBreakdown is the month view shown to a facility.
type PaymentBreakdown struct {
	FacilityID            uuid.UUID           `json:"facility_id"`
	Month                 types.Month         `json:"month"`
	PaidAmount            decimal.Decimal     `json:"paid_amount"`
	NewBillableAmount     decimal.Decimal     `json:"new_billable_amount"`
	TotalAmount           decimal.Decimal     `json:"total_amount"`
	TripCounts            TripCounts          `json:"trip_counts"`
	InvoiceStatus         enums.InvoiceStatus `json:"invoice_status"`
	ShowPaidAmount        bool                `json:"show_paid_amount"`
	ShowNewBillableAmount bool                `json:"show_new_billable_amount"`
	PendingCheck          bool                `json:"pending_check"`
	Cutoff                *time.Time          `json:"cutoff,omitempty"`
	LastVerifiedPaymentID *uuid.UUID          `json:"last_verified_payment_id,omitempty"`
	Trips                 []TripLine          `json:"trips"`
	PaymentHistory        []PaymentEntry      `json:"payment_history"`
}

// Aggregator computes billing views. It only reads.
type Aggregator interface {
	GetPaymentBreakdown(ctx context.Context, facilityID uuid.UUID, month types.Month) (*PaymentBreakdown, error)
}

// ServiceParams groups dependencies for the aggregator.
type ServiceParams struct {
	Trips            tripReader
	Payments         paymentReader
	BillableStatuses []enums.TripStatus
	Logger           *logger.Logger
	Location         *time.Location
}

type service struct {
	trips    tripReader
	payments paymentReader
	statuses []enums.TripStatus
	logg     *logger.Logger
	loc      *time.Location
}

// NewService builds the aggregator.
func NewService(params ServiceParams) (Aggregator, error) {
	if params.Trips == nil {
		return nil, errors.New("trip repository is required")
	}
	if params.Payments == nil {
		return nil, errors.New("payment repository is required")
	}
	statuses := params.BillableStatuses
	if len(statuses) == 0 {
		statuses = []enums.TripStatus{enums.TripStatusCompleted}
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	return &service{
		trips:    params.Trips,
		payments: params.Payments,
		statuses: statuses,
		logg:     params.Logger,
		loc:      loc,
	}, nil
}

// ParseBillableStatuses maps the configured status names.
func ParseBillableStatuses(values []string) ([]enums.TripStatus, error) {
	out := make([]enums.TripStatus, 0, len(values))
	for _, value := range values {
		status, err := enums.ParseTripStatus(value)
		if err != nil {
			return nil, err
		}
		out = append(out, status)
	}
	return out, nil
}

func (s *service) GetPaymentBreakdown(ctx context.Context, facilityID uuid.UUID, month types.Month) (*PaymentBreakdown, error) {
	if facilityID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "facility id is required")
	}
	if month.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "month is required")
	}
	if err := access.AuthorizeFacility(ctx, facilityID); err != nil {
		return nil, err
	}

	start, end := month.Bounds(s.loc)
	rows, err := s.trips.ListBillable(ctx, trips.BillableQuery{
		FacilityID: facilityID,
		Start:      start,
		End:        end,
		Statuses:   s.statuses,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list billable trips")
	}
	billable := rows[:0]
	for _, trip := range rows {
		if trip.Price.Valid && trip.Price.Decimal.IsPositive() {
			billable = append(billable, trip)
		}
	}

	payments, err := s.payments.ListByFacilityMonth(ctx, facilityID, month.String())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
	}

	last := latestVerified(payments)
	var cutoff *time.Time
	if last != nil {
		at := last.VerificationDate.UTC()
		cutoff = &at
	}
	split := Partition(billable, cutoff)

	out := &PaymentBreakdown{
		FacilityID:        facilityID,
		Month:             month,
		PaidAmount:        Sum(split.Paid),
		NewBillableAmount: Sum(split.NewBillable),
		TripCounts: TripCounts{
			Paid:        len(split.Paid),
			NewBillable: len(split.NewBillable),
			Total:       len(billable),
		},
		InvoiceStatus:  invoices.Replay(payments).State.Status,
		PendingCheck:   hasPendingCheck(payments),
		Cutoff:         cutoff,
		Trips:          make([]TripLine, 0, len(billable)),
		PaymentHistory: make([]PaymentEntry, 0, len(payments)),
	}
	out.TotalAmount = out.PaidAmount.Add(out.NewBillableAmount)
	if last != nil {
		id := last.ID
		out.LastVerifiedPaymentID = &id
	}
	out.ShowPaidAmount = hasPositiveCompleted(payments)
	out.ShowNewBillableAmount = out.NewBillableAmount.IsPositive() && !out.PendingCheck

	for _, trip := range split.Paid {
		out.Trips = append(out.Trips, s.tripLine(ctx, trip, BucketPaid))
	}
	for _, trip := range split.NewBillable {
		out.Trips = append(out.Trips, s.tripLine(ctx, trip, BucketNewBillable))
	}
	for _, p := range payments {
		out.PaymentHistory = append(out.PaymentHistory, PaymentEntry{
			ID:                p.ID,
			Amount:            p.Amount,
			Method:            p.Method,
			Status:            p.Status,
			CheckSubType:      p.CheckSubType,
			PaymentDate:       p.PaymentDate,
			VerificationDate:  p.VerificationDate,
			VerificationNotes: p.VerificationNotes,
			FailureReason:     p.FailureReason,
			TripCount:         len(p.TripIDs),
		})
	}
	return out, nil
}

func (s *service) tripLine(ctx context.Context, trip models.Trip, bucket Bucket) TripLine {
	line := TripLine{
		TripID:             trip.ID,
		ClientName:         trip.ClientName,
		PickupAt:           trip.PickupAt,
		PickupAddress:      trip.PickupAddress,
		DestinationAddress: trip.DestinationAddress,
		Status:             trip.Status,
		Price:              trip.Price.Decimal,
		Bucket:             bucket,
	}
	if len(trip.PriceBreakdown) == 0 {
		return line
	}
	breakdown, err := fares.ParseBreakdown(trip.PriceBreakdown)
	if err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithField(ctx, "trip_id", trip.ID.String()), "stored fare breakdown unreadable", err)
		}
		return line
	}
	line.Breakdown = &breakdown
	return line
}

func latestVerified(payments []models.Payment) *models.Payment {
	var last *models.Payment
	for i := range payments {
		p := &payments[i]
		if p.Status != enums.PaymentStatusCompleted || p.VerificationDate == nil {
			continue
		}
		if last == nil ||
			p.VerificationDate.After(*last.VerificationDate) ||
			(p.VerificationDate.Equal(*last.VerificationDate) && p.CreatedAt.After(last.CreatedAt)) {
			last = p
		}
	}
	return last
}

func hasPendingCheck(payments []models.Payment) bool {
	for _, p := range payments {
		if p.Method == enums.PaymentMethodCheckSubmit && p.Status == enums.PaymentStatusPendingVerification {
			return true
		}
	}
	return false
}

func hasPositiveCompleted(payments []models.Payment) bool {
	for _, p := range payments {
		if p.Status == enums.PaymentStatusCompleted && p.Amount.IsPositive() {
			return true
		}
	}
	return false
}
