package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/jasskhinda/facility-billing/internal/access"
	"github.com/jasskhinda/facility-billing/internal/invoices"
	"github.com/jasskhinda/facility-billing/internal/ledger"
	"github.com/jasskhinda/facility-billing/pkg/db/models"
	"github.com/jasskhinda/facility-billing/pkg/enums"
	pkgerrors "github.com/jasskhinda/facility-billing/pkg/errors"
	"github.com/jasskhinda/facility-billing/pkg/logger"
	"github.com/jasskhinda/facility-billing/pkg/metrics"
	"github.com/jasskhinda/facility-billing/pkg/outbox"
	"github.com/jasskhinda/facility-billing/pkg/outbox/payloads"
	"github.com/jasskhinda/facility-billing/pkg/square"
	"github.com/jasskhinda/facility-billing/pkg/types"
)

const defaultGatewayTimeout = 15 * time.Second

var hundred = decimal.NewFromInt(100)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type tripLoader interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Trip, error)
}

type invoiceProjector interface {
	CurrentState(ctx context.Context, facilityID uuid.UUID, month types.Month) (invoices.State, error)
	Rebuild(ctx context.Context, facilityID uuid.UUID, month types.Month) (*invoices.RebuildResult, error)
}

// PaymentData carries the method specific fields of a submission.
type PaymentData struct {
	CardNonce         string
	CardholderName    string
	VerificationToken string
	SavedCardID       string
	BankSourceID      string
	CheckSubType      *enums.CheckSubType
	CheckNumber       string
	Note              string
}

// SubmitInput is a facility's payment against one billing month.
type SubmitInput struct {
	FacilityID     uuid.UUID
	Month          types.Month
	TripIDs        []uuid.UUID
	Amount         decimal.Decimal
	Method         enums.PaymentMethod
	Data           PaymentData
	IdempotencyKey string
}

// SubmitResult reports the recorded payment and the invoice status after it.
type SubmitResult struct {
	PaymentID          uuid.UUID           `json:"payment_id"`
	Status             enums.PaymentStatus `json:"status"`
	InvoiceStatus      enums.InvoiceStatus `json:"invoice_status"`
	ProcessorPaymentID *string             `json:"processor_payment_id,omitempty"`
}

// Processor records facility payments.
type Processor interface {
	SubmitPayment(ctx context.Context, input SubmitInput) (*SubmitResult, error)
}

type ServiceParams struct {
	Ledger         ledger.Repository
	Trips          tripLoader
	Invoices       invoiceProjector
	Locker         invoices.Locker
	Gateway        Gateway
	Tx             txRunner
	Outbox         outbox.Emitter
	Metrics        *metrics.PaymentMetrics
	Logger         *logger.Logger
	Location       *time.Location
	Now            func() time.Time
	GatewayTimeout time.Duration
	AllowACH       bool
}

type service struct {
	ledger   ledger.Repository
	trips    tripLoader
	invoices invoiceProjector
	locker   invoices.Locker
	gateway  Gateway
	tx       txRunner
	outbox   outbox.Emitter
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
	loc      *time.Location
	now      func() time.Time
	timeout  time.Duration
	allowACH bool
}

func NewService(params ServiceParams) (Processor, error) {
	if params.Ledger == nil {
		return nil, errors.New("ledger repository is required")
	}
	if params.Trips == nil {
		return nil, errors.New("trip repository is required")
	}
	if params.Invoices == nil {
		return nil, errors.New("invoice service is required")
	}
	if params.Gateway == nil {
		return nil, errors.New("payment gateway is required")
	}
	if params.Tx == nil {
		return nil, errors.New("tx runner is required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox is required")
	}
	locker := params.Locker
	if locker == nil {
		locker = invoices.NewLocalLocker()
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	timeout := params.GatewayTimeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return &service{
		ledger:   params.Ledger,
		trips:    params.Trips,
		invoices: params.Invoices,
		locker:   locker,
		gateway:  params.Gateway,
		tx:       params.Tx,
		outbox:   params.Outbox,
		metrics:  params.Metrics,
		logg:     params.Logger,
		loc:      loc,
		now:      now,
		timeout:  timeout,
		allowACH: params.AllowACH,
	}, nil
}

func (s *service) SubmitPayment(ctx context.Context, input SubmitInput) (*SubmitResult, error) {
	if err := s.validate(input); err != nil {
		return nil, err
	}
	if err := access.AuthorizeFacility(ctx, input.FacilityID); err != nil {
		return nil, err
	}
	if err := s.validateTrips(ctx, input); err != nil {
		return nil, err
	}

	logCtx := s.logContext(ctx, input)
	payment, state, err := s.record(ctx, logCtx, input)
	if err != nil {
		return nil, err
	}
	s.metrics.IncSubmitted(payment.Method.String(), payment.Status.String())

	result := &SubmitResult{
		PaymentID:          payment.ID,
		Status:             payment.Status,
		ProcessorPaymentID: payment.ProcessorPaymentID,
	}
	if ev, err := invoices.SubmissionEvent(payment.Method, payment.Status, payment.CheckSubType); err == nil {
		if next, err := state.Apply(ev); err == nil {
			result.InvoiceStatus = next.Status
		}
	}

	rebuilt, err := s.invoices.Rebuild(ctx, input.FacilityID, input.Month)
	if err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithPaymentID(logCtx, payment.ID.String()), "invoice rebuild after payment failed", err)
		}
	} else if rebuilt != nil && rebuilt.Invoice != nil {
		result.InvoiceStatus = rebuilt.Invoice.PaymentStatus
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(s.logg.WithPaymentID(logCtx, payment.ID.String()), map[string]any{
			"status":         payment.Status,
			"invoice_status": result.InvoiceStatus,
		}), "payment recorded")
	}
	return result, nil
}

// record appends the payment while holding the period lock, so the in-flight
// check and the insert see the same ledger. The lock covers the gateway call:
// a charge the processor accepted is always recorded.
func (s *service) record(ctx, logCtx context.Context, input SubmitInput) (*models.Payment, invoices.State, error) {
	release, err := s.locker.Lock(ctx, input.FacilityID, input.Month.String())
	if err != nil {
		return nil, invoices.State{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock invoice period")
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil && s.logg != nil {
			s.logg.Error(logCtx, "release invoice lock", err)
		}
	}()

	state, err := s.invoices.CurrentState(ctx, input.FacilityID, input.Month)
	if err != nil {
		return nil, state, err
	}
	if !state.Status.IsSettled() {
		return nil, state, pkgerrors.New(pkgerrors.CodeStateConflict, "a payment for this month is awaiting confirmation").
			WithDetails(map[string]any{"invoice_status": state.Status})
	}

	expected, err := invoices.SubmissionEvent(input.Method, input.Method.ExpectedStatus(), input.Data.CheckSubType)
	if err != nil {
		return nil, state, err
	}
	if !state.Allows(expected) {
		return nil, state, pkgerrors.New(pkgerrors.CodeStateConflict, "payment not allowed in the current invoice state").
			WithDetails(map[string]any{"invoice_status": state.Status, "event": expected})
	}

	idemKey := strings.TrimSpace(input.IdempotencyKey)
	if idemKey == "" {
		idemKey = uuid.NewString()
	}

	entry := ledger.Entry{
		FacilityID:     input.FacilityID,
		Month:          input.Month,
		Amount:         input.Amount,
		Method:         input.Method,
		TripIDs:        input.TripIDs,
		IdempotencyKey: idemKey,
		Metadata:       metadataFor(input),
		PaymentDate:    s.now().UTC(),
	}
	if actor, ok := access.ActorFrom(ctx); ok && actor.ID != "" {
		entry.SubmittedBy = actor.ID
	}

	if input.Method == enums.PaymentMethodCheckSubmit {
		entry.Status = enums.PaymentStatusPendingVerification
		entry.CheckSubType = input.Data.CheckSubType
	} else {
		charged, err := s.charge(ctx, input, idemKey)
		if err != nil {
			if s.logg != nil {
				s.logg.Error(logCtx, "payment processor rejected payment", err)
			}
			return nil, state, err
		}
		entry.ProcessorPaymentID = charged.ID
		entry.ProcessorStatus = charged.Status
		entry.PaymentDate = s.now().UTC()
		if charged.Status == ProcessorCompleted {
			entry.Status = enums.PaymentStatusCompleted
			confirmed := entry.PaymentDate
			entry.VerificationDate = &confirmed
		} else {
			entry.Status = enums.PaymentStatusPendingVerification
		}
	}

	payment, err := ledger.NewPayment(entry)
	if err != nil {
		err = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build payment row")
		s.logUnrecorded(logCtx, entry, idemKey, err)
		return nil, state, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.ledger.WithTx(tx).Insert(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "insert payment")
		}
		actor, _ := access.ActorFrom(ctx)
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentSubmitted,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Actor:         actor.Ref(),
			Data: payloads.PaymentSubmittedEvent{
				BillingPeriod: payloads.BillingPeriod{FacilityID: payment.FacilityID, Month: payment.Month},
				PaymentID:     payment.ID,
				Amount:        payment.Amount,
				Method:        payment.Method,
				Status:        payment.Status,
				CheckSubType:  payment.CheckSubType,
				TripIDs:       input.TripIDs,
				PaymentDate:   payment.PaymentDate,
			},
		})
	})
	if err != nil {
		s.logUnrecorded(logCtx, entry, idemKey, err)
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodePersistence, err, "record payment")
		}
		return nil, state, err
	}
	return payment, state, nil
}

func (s *service) charge(ctx context.Context, input SubmitInput, idemKey string) (*GatewayPayment, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	charged, err := s.chargeByMethod(ctx, input, idemKey)
	s.metrics.ObserveGateway(input.Method.String(), time.Since(started), err != nil)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeIdempotency {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeProcessor, err, "payment processor call failed")
	}

	switch charged.Status {
	case ProcessorCompleted:
		return charged, nil
	case ProcessorPending, ProcessorApproved:
		if input.Method == enums.PaymentMethodBankTransfer {
			return charged, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeProcessor, "payment was not accepted by the processor").
		WithDetails(map[string]any{"processor_status": charged.Status, "processor_payment_id": charged.ID})
}

func (s *service) chargeByMethod(ctx context.Context, input SubmitInput, idemKey string) (*GatewayPayment, error) {
	customerID, err := s.gateway.EnsureCustomer(ctx, input.FacilityID)
	if err != nil {
		return nil, err
	}
	charge := ChargeInput{
		AmountCents:    input.Amount.Mul(hundred).IntPart(),
		CustomerID:     customerID,
		IdempotencyKey: square.DeriveIdempotencyKey("charge", idemKey),
		ReferenceID:    input.Month.String(),
		Note:           "Facility invoice " + input.Month.String(),
	}

	switch input.Method {
	case enums.PaymentMethodCreditCard:
		cardID, err := s.gateway.VaultCard(ctx, VaultInput{
			CustomerID:        customerID,
			Nonce:             input.Data.CardNonce,
			CardholderName:    input.Data.CardholderName,
			VerificationToken: input.Data.VerificationToken,
			IdempotencyKey:    square.DeriveIdempotencyKey("vault", idemKey),
		})
		if err != nil {
			return nil, err
		}
		charge.SourceID = cardID
	case enums.PaymentMethodSavedCard:
		charge.SourceID = input.Data.SavedCardID
	case enums.PaymentMethodBankTransfer:
		charge.SourceID = input.Data.BankSourceID
	}
	return s.gateway.Charge(ctx, charge)
}

// logUnrecorded reports a failure to write the ledger row. Once the processor
// has accepted a charge the full context is needed to reconcile by hand.
func (s *service) logUnrecorded(ctx context.Context, entry ledger.Entry, idemKey string, err error) {
	if entry.ProcessorPaymentID == "" {
		if s.logg != nil {
			s.logg.Error(ctx, "payment could not be recorded", err)
		}
		return
	}
	s.metrics.IncUnrecorded()
	if s.logg == nil {
		return
	}
	s.logg.Error(s.logg.WithFields(ctx, map[string]any{
		"processor_payment_id": entry.ProcessorPaymentID,
		"processor_status":     entry.ProcessorStatus,
		"idempotency_key":      idemKey,
		"trip_ids":             entry.TripIDs,
	}), "charged payment could not be recorded", err)
}

func (s *service) validate(input SubmitInput) error {
	problems := map[string]string{}
	if input.FacilityID == uuid.Nil {
		problems["facility_id"] = "is required"
	}
	if input.Month.IsZero() {
		problems["month"] = "is required"
	}
	switch {
	case !input.Amount.IsPositive():
		problems["amount"] = "must be greater than zero"
	case !input.Amount.Equal(input.Amount.Round(2)):
		problems["amount"] = "must have at most two decimal places"
	}
	seen := map[uuid.UUID]bool{}
	for _, id := range input.TripIDs {
		if id == uuid.Nil || seen[id] {
			problems["trip_ids"] = "must be distinct trip ids"
			break
		}
		seen[id] = true
	}

	data := input.Data
	switch input.Method {
	case enums.PaymentMethodCreditCard:
		if strings.TrimSpace(data.CardNonce) == "" {
			problems["payment_data.card_nonce"] = "is required"
		}
	case enums.PaymentMethodSavedCard:
		if strings.TrimSpace(data.SavedCardID) == "" {
			problems["payment_data.saved_card_id"] = "is required"
		}
	case enums.PaymentMethodBankTransfer:
		if !s.allowACH {
			problems["method"] = "bank transfers are not enabled"
		} else if strings.TrimSpace(data.BankSourceID) == "" {
			problems["payment_data.bank_source_id"] = "is required"
		}
	case enums.PaymentMethodCheckSubmit:
		if data.CheckSubType == nil {
			problems["payment_data.check_sub_type"] = "is required"
		} else if !data.CheckSubType.IsValid() {
			problems["payment_data.check_sub_type"] = "must be will_mail, already_mailed or hand_delivered"
		}
	default:
		problems["method"] = "must be credit_card, saved_card, bank_transfer or check_submit"
	}
	if input.Method != enums.PaymentMethodCheckSubmit && data.CheckSubType != nil {
		problems["payment_data.check_sub_type"] = "only applies to check payments"
	}

	if len(problems) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid payment").WithDetails(problems)
	}
	return nil
}

func (s *service) validateTrips(ctx context.Context, input SubmitInput) error {
	if len(input.TripIDs) == 0 {
		return nil
	}
	trips, err := s.trips.FindByIDs(ctx, input.TripIDs)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load trips")
	}
	found := make(map[uuid.UUID]models.Trip, len(trips))
	for _, trip := range trips {
		found[trip.ID] = trip
	}
	invalid := []string{}
	for _, id := range input.TripIDs {
		trip, ok := found[id]
		if !ok || trip.FacilityID != input.FacilityID || !input.Month.Contains(trip.PickupAt, s.loc) || !trip.IsPriced() {
			invalid = append(invalid, id.String())
		}
	}
	if len(invalid) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "trips do not belong to this facility and month").
			WithDetails(map[string]any{"trip_ids": invalid})
	}
	return nil
}

func (s *service) logContext(ctx context.Context, input SubmitInput) context.Context {
	if s.logg == nil {
		return ctx
	}
	ctx = s.logg.WithBillingPeriod(ctx, input.FacilityID.String(), input.Month.String())
	return s.logg.WithFields(ctx, map[string]any{
		"amount": input.Amount.StringFixed(2),
		"method": input.Method,
	})
}

func metadataFor(input SubmitInput) map[string]any {
	meta := map[string]any{}
	if n := strings.TrimSpace(input.Data.CheckNumber); n != "" {
		meta["check_number"] = n
	}
	if n := strings.TrimSpace(input.Data.Note); n != "" {
		meta["note"] = n
	}
	if n := strings.TrimSpace(input.Data.CardholderName); n != "" {
		meta["cardholder_name"] = n
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}
