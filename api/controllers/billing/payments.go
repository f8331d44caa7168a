package billing

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jasskhinda/facility-billing/api/middleware"
	"github.com/jasskhinda/facility-billing/api/responses"
	"github.com/jasskhinda/facility-billing/api/validators"
	"github.com/jasskhinda/facility-billing/internal/payments"
	"github.com/jasskhinda/facility-billing/pkg/enums"
	pkgerrors "github.com/jasskhinda/facility-billing/pkg/errors"
	"github.com/jasskhinda/facility-billing/pkg/logger"
	"github.com/jasskhinda/facility-billing/pkg/types"
)

type PaymentProcessor interface {
	SubmitPayment(ctx context.Context, input payments.SubmitInput) (*payments.SubmitResult, error)
}

type submitPaymentRequest struct {
	Month       string             `json:"month" validate:"required,billing_month"`
	TripIDs     []uuid.UUID        `json:"trip_ids"`
	Amount      decimal.Decimal    `json:"amount" validate:"money"`
	Method      string             `json:"method" validate:"required,oneof=credit_card saved_card bank_transfer check_submit"`
	PaymentData paymentDataRequest `json:"payment_data"`
}

type paymentDataRequest struct {
	CardNonce         string  `json:"card_nonce"`
	CardholderName    string  `json:"cardholder_name" validate:"max=128"`
	VerificationToken string  `json:"verification_token"`
	SavedCardID       string  `json:"saved_card_id"`
	BankSourceID      string  `json:"bank_source_id"`
	CheckSubType      *string `json:"check_sub_type" validate:"omitempty,oneof=will_mail already_mailed hand_delivered"`
	CheckNumber       string  `json:"check_number" validate:"max=32"`
	Note              string  `json:"note" validate:"max=500"`
}

func SubmitPayment(svc PaymentProcessor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		facilityID, err := validators.ParseUUIDParam(r, "facilityId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var body submitPaymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		month, err := types.ParseMonth(body.Month)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid month").WithDetails(map[string]any{"month": "must be formatted YYYY-MM"}))
			return
		}

		input := payments.SubmitInput{
			FacilityID: facilityID,
			Month:      month,
			TripIDs:    body.TripIDs,
			Amount:     body.Amount,
			Method:     enums.PaymentMethod(body.Method),
			Data: payments.PaymentData{
				CardNonce:         strings.TrimSpace(body.PaymentData.CardNonce),
				CardholderName:    validators.SanitizeString(body.PaymentData.CardholderName, 128),
				VerificationToken: strings.TrimSpace(body.PaymentData.VerificationToken),
				SavedCardID:       strings.TrimSpace(body.PaymentData.SavedCardID),
				BankSourceID:      strings.TrimSpace(body.PaymentData.BankSourceID),
				CheckNumber:       validators.SanitizeString(body.PaymentData.CheckNumber, 32),
				Note:              validators.SanitizeString(body.PaymentData.Note, 500),
			},
			IdempotencyKey: strings.TrimSpace(r.Header.Get(middleware.IdempotencyHeader)),
		}
		if body.PaymentData.CheckSubType != nil {
			sub := enums.CheckSubType(*body.PaymentData.CheckSubType)
			input.Data.CheckSubType = &sub
		}

		result, err := svc.SubmitPayment(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
