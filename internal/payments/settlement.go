package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/jasskhinda/facility-billing/internal/access"
	"github.com/jasskhinda/facility-billing/internal/invoices"
	"github.com/jasskhinda/facility-billing/internal/ledger"
	"github.com/jasskhinda/facility-billing/pkg/db/models"
	"github.com/jasskhinda/facility-billing/pkg/enums"
	pkgerrors "github.com/jasskhinda/facility-billing/pkg/errors"
	"github.com/jasskhinda/facility-billing/pkg/logger"
	"github.com/jasskhinda/facility-billing/pkg/metrics"
	"github.com/jasskhinda/facility-billing/pkg/pagination"
)

const (
	settlementActor     = "ach-settlement"
	defaultSyncPageSize = 50
)

type paymentSettler interface {
	SettlePayment(ctx context.Context, input invoices.SettleInput) (*models.Payment, error)
	RejectPayment(ctx context.Context, input invoices.RejectInput) (*models.Payment, error)
}

// SyncResult summarizes one settlement pass.
type SyncResult struct {
	Checked int
	Settled int
	Failed  int
	Pending int
}

// SettlementService resolves pending bank transfers from the processor.
type SettlementService interface {
	SyncPending(ctx context.Context) (SyncResult, error)
	HandleProcessorUpdate(ctx context.Context, processorPaymentID, status string, at time.Time) error
}

type SettlementParams struct {
	Ledger   ledger.Repository
	Gateway  Gateway
	Invoices paymentSettler
	Metrics  *metrics.PaymentMetrics
	Logger   *logger.Logger
	Now      func() time.Time
	PageSize int
	Timeout  time.Duration
}

type settlementService struct {
	ledger   ledger.Repository
	gateway  Gateway
	invoices paymentSettler
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
	now      func() time.Time
	pageSize int
	timeout  time.Duration
}

func NewSettlementService(params SettlementParams) (SettlementService, error) {
	if params.Ledger == nil {
		return nil, errors.New("ledger repository is required")
	}
	if params.Gateway == nil {
		return nil, errors.New("payment gateway is required")
	}
	if params.Invoices == nil {
		return nil, errors.New("invoice service is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = defaultSyncPageSize
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return &settlementService{
		ledger:   params.Ledger,
		gateway:  params.Gateway,
		invoices: params.Invoices,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      now,
		pageSize: pageSize,
		timeout:  timeout,
	}, nil
}

// SyncPending walks every pending bank transfer and applies the processor's
// current status. One payment failing does not stop the pass.
func (s *settlementService) SyncPending(ctx context.Context) (SyncResult, error) {
	ctx = s.systemContext(ctx)
	method := enums.PaymentMethodBankTransfer
	result := SyncResult{}
	var errs error
	cursor := ""

	for {
		page, next, err := s.ledger.ListPending(ctx, ledger.PendingQuery{
			Method: &method,
			Params: pagination.Params{Limit: s.pageSize, Cursor: cursor},
		})
		if err != nil {
			return result, multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending bank transfers"))
		}
		for i := range page {
			payment := &page[i]
			result.Checked++
			outcome, err := s.syncOne(ctx, payment)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("payment %s: %w", payment.ID, err))
				continue
			}
			switch outcome {
			case outcomeSettled:
				result.Settled++
			case outcomeFailed:
				result.Failed++
			default:
				result.Pending++
			}
		}
		if next == nil {
			break
		}
		cursor = pagination.EncodeCursor(*next)
	}
	return result, errs
}

// HandleProcessorUpdate applies a pushed status change for a processor payment.
// Unknown payments and non-terminal statuses are ignored.
func (s *settlementService) HandleProcessorUpdate(ctx context.Context, processorPaymentID, status string, at time.Time) error {
	processorPaymentID = strings.TrimSpace(processorPaymentID)
	if processorPaymentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "processor payment id required")
	}
	ctx = s.systemContext(ctx)
	payment, err := s.ledger.FindByProcessorPaymentID(ctx, processorPaymentID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment by processor id")
	}
	if payment == nil || payment.Status.IsTerminal() {
		return nil
	}
	_, err = s.apply(ctx, payment, &GatewayPayment{ID: processorPaymentID, Status: strings.ToUpper(status), UpdatedAt: at})
	return err
}

type outcome int

const (
	outcomePending outcome = iota
	outcomeSettled
	outcomeFailed
)

func (s *settlementService) syncOne(ctx context.Context, payment *models.Payment) (outcome, error) {
	if payment.ProcessorPaymentID == nil || *payment.ProcessorPaymentID == "" {
		return outcomePending, nil
	}
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	remote, err := s.gateway.GetPayment(callCtx, *payment.ProcessorPaymentID)
	s.metrics.ObserveGateway(payment.Method.String(), time.Since(started), err != nil)
	if err != nil {
		return outcomePending, pkgerrors.Wrap(pkgerrors.CodeProcessor, err, "fetch processor payment")
	}
	return s.apply(ctx, payment, remote)
}

func (s *settlementService) apply(ctx context.Context, payment *models.Payment, remote *GatewayPayment) (outcome, error) {
	at := remote.UpdatedAt
	if at.IsZero() || at.After(s.now()) {
		at = s.now().UTC()
	}

	switch remote.Status {
	case ProcessorCompleted:
		_, err := s.invoices.SettlePayment(ctx, invoices.SettleInput{
			PaymentID:       payment.ID,
			SettledAt:       at,
			ProcessorStatus: remote.Status,
		})
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
				return outcomePending, nil
			}
			return outcomePending, err
		}
		s.metrics.IncSettlement("settled")
		s.logOutcome(ctx, payment.ID, remote.Status, "bank transfer settled")
		return outcomeSettled, nil
	case ProcessorFailed, ProcessorCanceled:
		_, err := s.invoices.RejectPayment(ctx, invoices.RejectInput{
			PaymentID:       payment.ID,
			Reason:          "processor reported " + strings.ToLower(remote.Status),
			ProcessorStatus: remote.Status,
		})
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
				return outcomePending, nil
			}
			return outcomePending, err
		}
		s.metrics.IncSettlement("failed")
		s.logOutcome(ctx, payment.ID, remote.Status, "bank transfer failed")
		return outcomeFailed, nil
	default:
		return outcomePending, nil
	}
}

// systemContext acts as the processor. Settlement is never attributed to
// the caller that triggered it.
func (s *settlementService) systemContext(ctx context.Context) context.Context {
	return access.WithActor(ctx, access.System(settlementActor))
}

func (s *settlementService) logOutcome(ctx context.Context, paymentID uuid.UUID, status, msg string) {
	if s.logg == nil {
		return
	}
	ctx = s.logg.WithPaymentID(ctx, paymentID.String())
	s.logg.Info(s.logg.WithField(ctx, "processor_status", status), msg)
}
