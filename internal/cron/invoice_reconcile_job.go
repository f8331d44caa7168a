package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/jasskhinda/facility-billing/internal/invoices"
	"github.com/jasskhinda/facility-billing/internal/ledger"
	"github.com/jasskhinda/facility-billing/pkg/logger"
	"github.com/jasskhinda/facility-billing/pkg/types"
)

const defaultReconcileLookback = time.Hour

type periodLister interface {
	ListTouchedPeriods(ctx context.Context, since time.Time) ([]ledger.Period, error)
}

type invoiceRebuilder interface {
	Rebuild(ctx context.Context, facilityID uuid.UUID, month types.Month) (*invoices.RebuildResult, error)
}

type InvoiceReconcileJobParams struct {
	Logger   *logger.Logger
	Ledger   periodLister
	Invoices invoiceRebuilder
	Lookback time.Duration
}

// NewInvoiceReconcileJob rebuilds the stored invoice for every period with
// recent ledger activity so projections that missed an event converge.
func NewInvoiceReconcileJob(params InvoiceReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if params.Invoices == nil {
		return nil, fmt.Errorf("invoice service required")
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = defaultReconcileLookback
	}
	return &invoiceReconcileJob{
		logg:     params.Logger,
		ledger:   params.Ledger,
		invoices: params.Invoices,
		lookback: lookback,
		now:      time.Now,
	}, nil
}

type invoiceReconcileJob struct {
	logg     *logger.Logger
	ledger   periodLister
	invoices invoiceRebuilder
	lookback time.Duration
	now      func() time.Time
	lastRun  time.Time
}

func (j *invoiceReconcileJob) Name() string { return "invoice-reconcile" }

func (j *invoiceReconcileJob) Run(ctx context.Context) error {
	started := j.now().UTC()
	since := started.Add(-j.lookback)
	if !j.lastRun.IsZero() && j.lastRun.Add(-j.lookback).Before(since) {
		since = j.lastRun.Add(-j.lookback)
	}

	periods, err := j.ledger.ListTouchedPeriods(ctx, since)
	if err != nil {
		return fmt.Errorf("list touched periods: %w", err)
	}

	var (
		errs      error
		changed   int
		anomalies int
	)
	for _, period := range periods {
		month, parseErr := types.ParseMonth(period.Month)
		if parseErr != nil {
			errs = multierr.Append(errs, fmt.Errorf("period %s/%s: %w", period.FacilityID, period.Month, parseErr))
			continue
		}
		result, rebuildErr := j.invoices.Rebuild(ctx, period.FacilityID, month)
		if rebuildErr != nil {
			errs = multierr.Append(errs, fmt.Errorf("rebuild %s/%s: %w", period.FacilityID, period.Month, rebuildErr))
			continue
		}
		if result == nil {
			continue
		}
		if result.Changed && result.Invoice != nil {
			changed++
			logCtx := j.logg.WithBillingPeriod(ctx, period.FacilityID.String(), period.Month)
			j.logg.Warn(j.logg.WithFields(logCtx, map[string]any{
				"previous_status": result.Previous.String(),
				"status":          result.Invoice.PaymentStatus.String(),
			}), "invoice projection corrected")
		}
		anomalies += len(result.Anomalies)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"since":     since,
		"periods":   len(periods),
		"changed":   changed,
		"anomalies": anomalies,
	})
	j.logg.Info(logCtx, "invoice reconcile complete")

	if errs != nil {
		return errs
	}
	j.lastRun = started
	return nil
}
