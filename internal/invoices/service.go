package invoices

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/jasskhinda/facility-billing/internal/access"
	"github.com/jasskhinda/facility-billing/internal/ledger"
	"github.com/jasskhinda/facility-billing/pkg/db/models"
	dbtypes "github.com/jasskhinda/facility-billing/pkg/db/types"
	"github.com/jasskhinda/facility-billing/pkg/enums"
	pkgerrors "github.com/jasskhinda/facility-billing/pkg/errors"
	"github.com/jasskhinda/facility-billing/pkg/logger"
	"github.com/jasskhinda/facility-billing/pkg/outbox"
	"github.com/jasskhinda/facility-billing/pkg/outbox/payloads"
	"github.com/jasskhinda/facility-billing/pkg/types"
)

const (
	futureSkew = 5 * time.Minute
	// rebuilds race settlement writes on the same payments rows
	maxRebuildAttempts = 3
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service owns every invoice status change.
type Service interface {
	GetInvoiceStatus(ctx context.Context, facilityID uuid.UUID, month types.Month) (*InvoiceView, error)
	CurrentState(ctx context.Context, facilityID uuid.UUID, month types.Month) (State, error)
	Rebuild(ctx context.Context, facilityID uuid.UUID, month types.Month) (*RebuildResult, error)
	ApplyVerification(ctx context.Context, input VerificationInput) (*models.Payment, error)
	RejectPayment(ctx context.Context, input RejectInput) (*models.Payment, error)
	SettlePayment(ctx context.Context, input SettleInput) (*models.Payment, error)
}

// InvoiceView is the invoice as derived from the ledger, with a flag for a
// stored projection that has drifted.
type InvoiceView struct {
	FacilityID     uuid.UUID           `json:"facility_id"`
	Month          types.Month         `json:"month"`
	Status         enums.InvoiceStatus `json:"status"`
	TotalAmount    decimal.Decimal     `json:"total_amount"`
	TripIDs        []uuid.UUID         `json:"trip_ids"`
	LastPaymentID  *uuid.UUID          `json:"last_payment_id,omitempty"`
	LastVerifiedAt *time.Time          `json:"last_verified_at,omitempty"`
	Notes          *string             `json:"notes,omitempty"`
	Stale          bool                `json:"stale"`
	Anomalies      []Anomaly           `json:"anomalies,omitempty"`
}

// RebuildResult reports what a rebuild wrote.
type RebuildResult struct {
	Invoice   *models.Invoice
	Previous  enums.InvoiceStatus
	Changed   bool
	Anomalies []Anomaly
}

// VerificationInput is the back-office confirmation of a pending payment.
type VerificationInput struct {
	PaymentID        uuid.UUID
	VerificationDate time.Time
	Notes            string
	ExpectedAmount   *decimal.Decimal
	ExpectedMonth    *types.Month
}

// RejectInput marks a pending payment failed.
type RejectInput struct {
	PaymentID       uuid.UUID
	Reason          string
	ProcessorStatus string
}

// SettleInput confirms a pending payment from the processor side.
type SettleInput struct {
	PaymentID       uuid.UUID
	SettledAt       time.Time
	ProcessorStatus string
}

type ServiceParams struct {
	Ledger   ledger.Repository
	Repo     Repository
	Tx       txRunner
	Locker   Locker
	Outbox   outbox.Emitter
	Logger   *logger.Logger
	Location *time.Location
	Now      func() time.Time
}

type service struct {
	ledger ledger.Repository
	repo   Repository
	tx     txRunner
	locker Locker
	outbox outbox.Emitter
	logg   *logger.Logger
	loc    *time.Location
	now    func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Ledger == nil {
		return nil, errors.New("ledger repository is required")
	}
	if params.Repo == nil {
		return nil, errors.New("invoice repository is required")
	}
	if params.Tx == nil {
		return nil, errors.New("tx runner is required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox is required")
	}
	locker := params.Locker
	if locker == nil {
		locker = NewLocalLocker()
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		ledger: params.Ledger,
		repo:   params.Repo,
		tx:     params.Tx,
		locker: locker,
		outbox: params.Outbox,
		logg:   params.Logger,
		loc:    loc,
		now:    now,
	}, nil
}

func (s *service) GetInvoiceStatus(ctx context.Context, facilityID uuid.UUID, month types.Month) (*InvoiceView, error) {
	if err := validatePeriod(facilityID, month); err != nil {
		return nil, err
	}
	if err := access.AuthorizeFacility(ctx, facilityID); err != nil {
		return nil, err
	}
	payments, err := s.ledger.ListByFacilityMonth(ctx, facilityID, month.String())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payments")
	}
	stored, err := s.repo.FindByPeriod(ctx, facilityID, month.String())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
	}

	proj := Replay(payments)
	view := &InvoiceView{
		FacilityID:     facilityID,
		Month:          month,
		Status:         proj.State.Status,
		TotalAmount:    proj.TotalAmount,
		TripIDs:        proj.TripIDs,
		LastPaymentID:  proj.LastPaymentID,
		LastVerifiedAt: proj.LastVerifiedAt,
		Notes:          proj.Notes,
		Anomalies:      proj.Anomalies,
	}
	if view.TripIDs == nil {
		view.TripIDs = []uuid.UUID{}
	}
	if stored == nil {
		view.Stale = len(payments) > 0
	} else {
		view.Stale = stored.PaymentStatus != proj.State.Status || !stored.TotalAmount.Equal(proj.TotalAmount)
	}
	return view, nil
}

func (s *service) CurrentState(ctx context.Context, facilityID uuid.UUID, month types.Month) (State, error) {
	payments, err := s.ledger.ListByFacilityMonth(ctx, facilityID, month.String())
	if err != nil {
		return State{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payments")
	}
	return Replay(payments).State, nil
}

func (s *service) Rebuild(ctx context.Context, facilityID uuid.UUID, month types.Month) (*RebuildResult, error) {
	if err := validatePeriod(facilityID, month); err != nil {
		return nil, err
	}
	release, err := s.locker.Lock(ctx, facilityID, month.String())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock invoice period")
	}
	defer s.release(ctx, release)
	return s.rebuildLocked(ctx, facilityID, month.String())
}

func (s *service) rebuildLocked(ctx context.Context, facilityID uuid.UUID, month string) (*RebuildResult, error) {
	var (
		result *RebuildResult
		err    error
	)
	for attempt := 1; attempt <= maxRebuildAttempts; attempt++ {
		result, err = s.rebuildTx(ctx, facilityID, month)
		if err == nil || !pkgerrors.IsTransientDB(err) || ctx.Err() != nil {
			break
		}
		if s.logg != nil {
			s.logg.Warn(s.logg.WithFields(s.logg.WithBillingPeriod(ctx, facilityID.String(), month), map[string]any{
				"attempt": attempt,
				"error":   err.Error(),
			}), "invoice rebuild hit a transient database error")
		}
	}
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithBillingPeriod(ctx, facilityID.String(), month)
		for _, anomaly := range result.Anomalies {
			s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
				"payment_id": anomaly.PaymentID.String(),
				"event":      anomaly.Event,
				"from":       anomaly.From,
				"reason":     anomaly.Reason,
			}), "ledger event skipped during invoice rebuild")
		}
		if result.Changed {
			s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
				"from": result.Previous,
				"to":   result.Invoice.PaymentStatus,
			}), "invoice status changed")
		}
	}
	return result, nil
}

func (s *service) rebuildTx(ctx context.Context, facilityID uuid.UUID, month string) (*RebuildResult, error) {
	result := &RebuildResult{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		payments, err := s.ledger.WithTx(tx).ListByFacilityMonth(ctx, facilityID, month)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payments")
		}
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindByPeriod(ctx, facilityID, month)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
		}

		proj := Replay(payments)
		result.Anomalies = proj.Anomalies
		result.Previous = enums.InvoiceStatusUnpaid
		if existing != nil {
			result.Previous = existing.PaymentStatus
		}

		invoice := &models.Invoice{
			FacilityID:     facilityID,
			Month:          month,
			TotalAmount:    proj.TotalAmount,
			PaymentStatus:  proj.State.Status,
			Notes:          proj.Notes,
			TripIDs:        dbtypes.NewUUIDArray(proj.TripIDs...),
			LastPaymentID:  proj.LastPaymentID,
			LastVerifiedAt: proj.LastVerifiedAt,
		}
		if err := repo.Upsert(ctx, invoice); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "upsert invoice")
		}
		stored, err := repo.FindByPeriod(ctx, facilityID, month)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload invoice")
		}
		result.Invoice = stored
		result.Changed = result.Previous != proj.State.Status
		if !result.Changed {
			return nil
		}

		actor, _ := access.ActorFrom(ctx)
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventInvoiceStatusChanged,
			AggregateType: enums.AggregateInvoice,
			AggregateID:   stored.ID,
			Actor:         actor.Ref(),
			Data: payloads.InvoiceStatusChangedEvent{
				BillingPeriod: payloads.BillingPeriod{FacilityID: facilityID, Month: month},
				InvoiceID:     stored.ID,
				From:          result.Previous,
				To:            proj.State.Status,
				TotalAmount:   proj.TotalAmount,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) ApplyVerification(ctx context.Context, input VerificationInput) (*models.Payment, error) {
	if err := access.RequireStaff(ctx); err != nil {
		return nil, err
	}
	if input.PaymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	if input.VerificationDate.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "verification date required")
	}
	if input.VerificationDate.After(s.now().Add(futureSkew)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "verification date cannot be in the future")
	}

	payment, err := s.loadPending(ctx, input.PaymentID)
	if err != nil {
		return nil, err
	}
	if err := s.reconcile(payment, input); err != nil {
		s.logPaymentError(ctx, payment, "verification rejected", err)
		return nil, err
	}

	notes := strings.TrimSpace(input.Notes)
	var notesPtr *string
	if notes != "" {
		notesPtr = &notes
	}
	return s.complete(ctx, payment, input.VerificationDate, notesPtr, nil, false)
}

func (s *service) SettlePayment(ctx context.Context, input SettleInput) (*models.Payment, error) {
	if err := access.RequireStaff(ctx); err != nil {
		return nil, err
	}
	if input.SettledAt.IsZero() {
		input.SettledAt = s.now()
	}
	payment, err := s.loadPending(ctx, input.PaymentID)
	if err != nil {
		return nil, err
	}
	var status *string
	if input.ProcessorStatus != "" {
		status = &input.ProcessorStatus
	}
	return s.complete(ctx, payment, input.SettledAt, nil, status, true)
}

func (s *service) RejectPayment(ctx context.Context, input RejectInput) (*models.Payment, error) {
	if err := access.RequireStaff(ctx); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason required")
	}
	payment, err := s.loadPending(ctx, input.PaymentID)
	if err != nil {
		return nil, err
	}
	month, err := types.ParseMonth(payment.Month)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stored payment month")
	}

	release, err := s.locker.Lock(ctx, payment.FacilityID, payment.Month)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock invoice period")
	}
	defer s.release(ctx, release)

	if err := s.checkTransition(ctx, payment, month, enums.PaymentStatusFailed); err != nil {
		return nil, err
	}

	var processorStatus *string
	if input.ProcessorStatus != "" {
		processorStatus = &input.ProcessorStatus
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		won, err := s.ledger.WithTx(tx).MarkFailed(ctx, ledger.FailUpdate{
			PaymentID:       payment.ID,
			Reason:          reason,
			ProcessorStatus: processorStatus,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "mark payment failed")
		}
		if !won {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment is no longer pending verification")
		}
		actor, _ := access.ActorFrom(ctx)
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentRejected,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Actor:         actor.Ref(),
			Data: payloads.PaymentRejectedEvent{
				BillingPeriod: payloads.BillingPeriod{FacilityID: payment.FacilityID, Month: payment.Month},
				PaymentID:     payment.ID,
				Method:        payment.Method,
				Reason:        reason,
			},
		})
	})
	if err != nil {
		s.logPaymentError(ctx, payment, "payment rejection failed", err)
		return nil, err
	}
	s.logPayment(ctx, payment, "payment rejected")

	if _, err := s.rebuildLocked(ctx, payment.FacilityID, payment.Month); err != nil {
		s.logPaymentError(ctx, payment, "invoice rebuild after rejection failed", err)
	}
	return s.reload(ctx, payment.ID)
}

// complete moves a pending payment to completed under the period lock and
// rebuilds the projection.
func (s *service) complete(ctx context.Context, payment *models.Payment, at time.Time, notes, processorStatus *string, clampToCutoff bool) (*models.Payment, error) {
	month, err := types.ParseMonth(payment.Month)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stored payment month")
	}

	release, err := s.locker.Lock(ctx, payment.FacilityID, payment.Month)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock invoice period")
	}
	defer s.release(ctx, release)

	at = at.UTC()
	latest, err := s.ledger.LatestVerified(ctx, payment.FacilityID, payment.Month)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load verification cutoff")
	}
	if latest != nil && latest.VerificationDate != nil && at.Before(*latest.VerificationDate) {
		if !clampToCutoff {
			err := pkgerrors.New(pkgerrors.CodeReconciliation, "verification date predates the current cutoff").
				WithDetails(map[string]any{"cutoff": latest.VerificationDate.UTC(), "verification_date": at})
			s.logPaymentError(ctx, payment, "verification rejected", err)
			return nil, err
		}
		at = latest.VerificationDate.UTC()
	}
	if err := s.checkTransition(ctx, payment, month, enums.PaymentStatusCompleted); err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		won, err := s.ledger.WithTx(tx).MarkVerified(ctx, ledger.VerifyUpdate{
			PaymentID:        payment.ID,
			VerificationDate: at,
			Notes:            notes,
			ProcessorStatus:  processorStatus,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "mark payment verified")
		}
		if !won {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment is no longer pending verification")
		}
		actor, _ := access.ActorFrom(ctx)
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentVerified,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Actor:         actor.Ref(),
			Data: payloads.PaymentVerifiedEvent{
				BillingPeriod:    payloads.BillingPeriod{FacilityID: payment.FacilityID, Month: payment.Month},
				PaymentID:        payment.ID,
				Method:           payment.Method,
				Amount:           payment.Amount,
				VerificationDate: at,
			},
		})
	})
	if err != nil {
		s.logPaymentError(ctx, payment, "payment verification failed", err)
		return nil, err
	}
	s.logPayment(ctx, payment, "payment verified")

	if _, err := s.rebuildLocked(ctx, payment.FacilityID, payment.Month); err != nil {
		s.logPaymentError(ctx, payment, "invoice rebuild after verification failed", err)
	}
	return s.reload(ctx, payment.ID)
}

func (s *service) reconcile(payment *models.Payment, input VerificationInput) error {
	details := map[string]any{"payment_id": payment.ID, "month": payment.Month, "amount": payment.Amount.StringFixed(2)}
	if input.ExpectedAmount != nil && !input.ExpectedAmount.Equal(payment.Amount) {
		details["expected_amount"] = input.ExpectedAmount.StringFixed(2)
		return pkgerrors.New(pkgerrors.CodeReconciliation, "verified amount does not match the payment").WithDetails(details)
	}
	if input.ExpectedMonth != nil && input.ExpectedMonth.String() != payment.Month {
		details["expected_month"] = input.ExpectedMonth.String()
		return pkgerrors.New(pkgerrors.CodeReconciliation, "verified month does not match the payment").WithDetails(details)
	}
	verifiedDay := truncateDay(input.VerificationDate.In(s.loc))
	paymentDay := truncateDay(payment.PaymentDate.In(s.loc))
	if verifiedDay.Before(paymentDay) {
		details["payment_date"] = payment.PaymentDate.UTC()
		details["verification_date"] = input.VerificationDate.UTC()
		return pkgerrors.New(pkgerrors.CodeReconciliation, "verification date predates the payment").WithDetails(details)
	}
	return nil
}

func (s *service) checkTransition(ctx context.Context, payment *models.Payment, month types.Month, to enums.PaymentStatus) error {
	payments, err := s.ledger.ListByFacilityMonth(ctx, payment.FacilityID, month.String())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payments")
	}
	ev, err := ResolutionEvent(payment.Method, to)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, err.Error())
	}
	proj := Replay(payments)
	if proj.Orphaned(payment.ID) {
		// the payment never reached the invoice, so resolving it cannot move it
		s.logPayment(ctx, payment, "resolving payment whose submission was skipped by the invoice")
		return nil
	}
	if _, err := proj.State.Apply(ev); err != nil {
		return err
	}
	return nil
}

func (s *service) loadPending(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	if paymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	payment, err := s.ledger.FindByID(ctx, paymentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	if payment.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment is not pending verification").
			WithDetails(map[string]any{"payment_id": payment.ID, "status": payment.Status})
	}
	return payment, nil
}

func (s *service) reload(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	payment, err := s.ledger.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment")
	}
	return payment, nil
}

func (s *service) release(ctx context.Context, release func(context.Context) error) {
	if err := release(context.WithoutCancel(ctx)); err != nil && s.logg != nil {
		s.logg.Error(ctx, "release invoice lock", err)
	}
}

func (s *service) logPayment(ctx context.Context, payment *models.Payment, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Info(paymentFields(s.logg, ctx, payment), msg)
}

func (s *service) logPaymentError(ctx context.Context, payment *models.Payment, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Error(paymentFields(s.logg, ctx, payment), msg, err)
}

// paymentFields attaches the audit context every money-affecting log line carries.
func paymentFields(logg *logger.Logger, ctx context.Context, payment *models.Payment) context.Context {
	ctx = logg.WithBillingPeriod(ctx, payment.FacilityID.String(), payment.Month)
	ctx = logg.WithPaymentID(ctx, payment.ID.String())
	return logg.WithFields(ctx, map[string]any{
		"amount": payment.Amount.StringFixed(2),
		"method": payment.Method,
		"status": payment.Status,
	})
}

func validatePeriod(facilityID uuid.UUID, month types.Month) error {
	if facilityID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "facility id required")
	}
	if month.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "month required")
	}
	return nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
