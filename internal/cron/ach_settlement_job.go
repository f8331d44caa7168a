package cron

import (
	"context"
	"fmt"

	"github.com/jasskhinda/facility-billing/internal/payments"
	"github.com/jasskhinda/facility-billing/pkg/logger"
)

type settlementSyncer interface {
	SyncPending(ctx context.Context) (payments.SyncResult, error)
}

type ACHSettlementJobParams struct {
	Logger     *logger.Logger
	Settlement settlementSyncer
}

// NewACHSettlementJob polls the processor for bank transfers still pending
// verification. It backs up the webhook path when a notification is lost.
func NewACHSettlementJob(params ACHSettlementJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Settlement == nil {
		return nil, fmt.Errorf("settlement service required")
	}
	return &achSettlementJob{logg: params.Logger, settlement: params.Settlement}, nil
}

type achSettlementJob struct {
	logg       *logger.Logger
	settlement settlementSyncer
}

func (j *achSettlementJob) Name() string { return "ach-settlement" }

func (j *achSettlementJob) Run(ctx context.Context) error {
	result, err := j.settlement.SyncPending(ctx)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"checked": result.Checked,
		"settled": result.Settled,
		"failed":  result.Failed,
		"pending": result.Pending,
	})
	if err != nil {
		j.logg.Error(logCtx, "ach settlement sync incomplete", err)
		return fmt.Errorf("ach settlement: %w", err)
	}
	j.logg.Info(logCtx, "ach settlement sync complete")
	return nil
}
