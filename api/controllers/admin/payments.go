package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jasskhinda/facility-billing/api/responses"
	"github.com/jasskhinda/facility-billing/api/validators"
	"github.com/jasskhinda/facility-billing/internal/invoices"
	"github.com/jasskhinda/facility-billing/internal/ledger"
	"github.com/jasskhinda/facility-billing/pkg/db/models"
	"github.com/jasskhinda/facility-billing/pkg/enums"
	pkgerrors "github.com/jasskhinda/facility-billing/pkg/errors"
	"github.com/jasskhinda/facility-billing/pkg/logger"
	"github.com/jasskhinda/facility-billing/pkg/pagination"
	"github.com/jasskhinda/facility-billing/pkg/types"
)

const maxCursorLength = 256

type PendingLister interface {
	ListPending(ctx context.Context, query ledger.PendingQuery) ([]models.Payment, *pagination.Cursor, error)
}

type InvoiceService interface {
	ApplyVerification(ctx context.Context, input invoices.VerificationInput) (*models.Payment, error)
	RejectPayment(ctx context.Context, input invoices.RejectInput) (*models.Payment, error)
	Rebuild(ctx context.Context, facilityID uuid.UUID, month types.Month) (*invoices.RebuildResult, error)
}

type paymentView struct {
	ID                 uuid.UUID           `json:"id"`
	FacilityID         uuid.UUID           `json:"facility_id"`
	Month              string              `json:"month"`
	Amount             decimal.Decimal     `json:"amount"`
	Method             enums.PaymentMethod `json:"method"`
	Status             enums.PaymentStatus `json:"status"`
	CheckSubType       *enums.CheckSubType `json:"check_sub_type,omitempty"`
	PaymentDate        time.Time           `json:"payment_date"`
	VerificationDate   *time.Time          `json:"verification_date,omitempty"`
	VerificationNotes  *string             `json:"verification_notes,omitempty"`
	FailureReason      *string             `json:"failure_reason,omitempty"`
	ProcessorPaymentID *string             `json:"processor_payment_id,omitempty"`
	TripIDs            []uuid.UUID         `json:"trip_ids"`
	SubmittedBy        *string             `json:"submitted_by,omitempty"`
}

type pendingPaymentsResponse struct {
	Payments []paymentView `json:"payments"`
	Cursor   string        `json:"cursor"`
}

func PendingPayments(lister PendingLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if lister == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		cursor, err := validators.ParseQueryString(r, "cursor", maxCursorLength)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if _, err := pagination.ParseCursor(cursor); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor"))
			return
		}
		method, err := validators.ParseQueryEnum(r, "method", enums.ParsePaymentMethod)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		query := ledger.PendingQuery{Method: method, Params: pagination.Params{Limit: limit, Cursor: cursor}}

		rows, next, err := lister.ListPending(ctx, query)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list pending payments"))
			return
		}
		payload := pendingPaymentsResponse{Payments: make([]paymentView, len(rows))}
		for i := range rows {
			payload.Payments[i] = toPaymentView(&rows[i])
		}
		if next != nil {
			payload.Cursor = pagination.EncodeCursor(*next)
		}
		responses.WriteSuccess(w, payload)
	}
}

type verifyPaymentRequest struct {
	VerificationDate time.Time        `json:"verification_date" validate:"required"`
	Notes            string           `json:"notes" validate:"max=1000"`
	ExpectedAmount   *decimal.Decimal `json:"expected_amount" validate:"omitempty,money"`
	ExpectedMonth    *string          `json:"expected_month" validate:"omitempty,billing_month"`
}

func VerifyPayment(svc InvoiceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoice service unavailable"))
			return
		}
		paymentID, err := validators.ParseUUIDParam(r, "paymentId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var body verifyPaymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		input := invoices.VerificationInput{
			PaymentID:        paymentID,
			VerificationDate: body.VerificationDate,
			Notes:            validators.SanitizeString(body.Notes, 1000),
			ExpectedAmount:   body.ExpectedAmount,
		}
		if body.ExpectedMonth != nil {
			month, parseErr := types.ParseMonth(*body.ExpectedMonth)
			if parseErr != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid expected_month"))
				return
			}
			input.ExpectedMonth = &month
		}

		payment, err := svc.ApplyVerification(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toPaymentView(payment))
	}
}

type rejectPaymentRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func RejectPayment(svc InvoiceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoice service unavailable"))
			return
		}
		paymentID, err := validators.ParseUUIDParam(r, "paymentId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var body rejectPaymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		payment, err := svc.RejectPayment(ctx, invoices.RejectInput{
			PaymentID: paymentID,
			Reason:    validators.SanitizeString(body.Reason, 500),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toPaymentView(payment))
	}
}

type invoiceView struct {
	FacilityID     uuid.UUID           `json:"facility_id"`
	Month          string              `json:"month"`
	Status         enums.InvoiceStatus `json:"status"`
	TotalAmount    decimal.Decimal     `json:"total_amount"`
	TripIDs        []uuid.UUID         `json:"trip_ids"`
	LastPaymentID  *uuid.UUID          `json:"last_payment_id,omitempty"`
	LastVerifiedAt *time.Time          `json:"last_verified_at,omitempty"`
	Notes          *string             `json:"notes,omitempty"`
}

type rebuildResponse struct {
	Invoice   *invoiceView        `json:"invoice"`
	Previous  enums.InvoiceStatus `json:"previous_status"`
	Changed   bool                `json:"changed"`
	Anomalies []invoices.Anomaly  `json:"anomalies,omitempty"`
}

func RebuildInvoice(svc InvoiceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoice service unavailable"))
			return
		}
		facilityID, err := validators.ParseUUIDParam(r, "facilityId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		month, err := validators.ParseMonthParam(r, "month")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Rebuild(ctx, facilityID, month)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, rebuildResponse{
			Invoice:   toInvoiceView(result.Invoice),
			Previous:  result.Previous,
			Changed:   result.Changed,
			Anomalies: result.Anomalies,
		})
	}
}

func toPaymentView(p *models.Payment) paymentView {
	if p == nil {
		return paymentView{}
	}
	view := paymentView{
		ID:                 p.ID,
		FacilityID:         p.FacilityID,
		Month:              p.Month,
		Amount:             p.Amount,
		Method:             p.Method,
		Status:             p.Status,
		CheckSubType:       p.CheckSubType,
		PaymentDate:        p.PaymentDate.UTC(),
		VerificationDate:   p.VerificationDate,
		VerificationNotes:  p.VerificationNotes,
		FailureReason:      p.FailureReason,
		ProcessorPaymentID: p.ProcessorPaymentID,
		TripIDs:            []uuid.UUID(p.TripIDs),
		SubmittedBy:        p.SubmittedBy,
	}
	if view.TripIDs == nil {
		view.TripIDs = []uuid.UUID{}
	}
	return view
}

func toInvoiceView(inv *models.Invoice) *invoiceView {
	if inv == nil {
		return nil
	}
	view := &invoiceView{
		FacilityID:     inv.FacilityID,
		Month:          inv.Month,
		Status:         inv.PaymentStatus,
		TotalAmount:    inv.TotalAmount,
		TripIDs:        []uuid.UUID(inv.TripIDs),
		LastPaymentID:  inv.LastPaymentID,
		LastVerifiedAt: inv.LastVerifiedAt,
		Notes:          inv.Notes,
	}
	if view.TripIDs == nil {
		view.TripIDs = []uuid.UUID{}
	}
	return view
}
