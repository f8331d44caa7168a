package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/jasskhinda/facility-billing/pkg/logger"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultDLQRetention    = 90 * 24 * time.Hour
	defaultMinAttempts     = 10
)

// OutboxRetentionJobParams configure the nightly purge of delivered billing
// events and old dead letters. Outbox rows go once published or once they
// have burned MinAttempts publishes; DLQ rows stay longer so operators can
// still replay a failed payment or invoice event.
type OutboxRetentionJobParams struct {
	Logger          *logger.Logger
	DB              txRunner
	Outbox          outboxPurger
	DLQ             dlqPurger
	OutboxRetention time.Duration
	DLQRetention    time.Duration
	MinAttempts     int
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPurger interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type dlqPurger interface {
	DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:            params.Logger,
		db:              params.DB,
		outbox:          params.Outbox,
		dlq:             params.DLQ,
		outboxRetention: params.OutboxRetention,
		dlqRetention:    params.DLQRetention,
		minAttempts:     params.MinAttempts,
		now:             time.Now,
	}
	if job.outboxRetention <= 0 {
		job.outboxRetention = defaultOutboxRetention
	}
	if job.dlqRetention <= 0 {
		job.dlqRetention = defaultDLQRetention
	}
	if job.dlqRetention < job.outboxRetention {
		job.dlqRetention = job.outboxRetention
	}
	if job.minAttempts <= 0 {
		job.minAttempts = defaultMinAttempts
	}
	return job, nil
}

type outboxRetentionJob struct {
	logg            *logger.Logger
	db              txRunner
	outbox          outboxPurger
	dlq             dlqPurger
	outboxRetention time.Duration
	dlqRetention    time.Duration
	minAttempts     int
	now             func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Every() time.Duration { return 24 * time.Hour }

// Run purges each table in its own transaction so a DLQ failure does not
// roll back the outbox purge.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	outboxCutoff := now.Add(-j.outboxRetention)
	dlqCutoff := now.Add(-j.dlqRetention)

	var (
		errs          error
		outboxDeleted int64
		dlqDeleted    int64
	)
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.outbox.DeletePublishedBefore(ctx, tx, outboxCutoff, j.minAttempts)
		outboxDeleted = rows
		return err
	})
	if err != nil {
		outboxDeleted = 0
		errs = multierr.Append(errs, fmt.Errorf("purge outbox: %w", err))
	}
	if j.dlq != nil {
		err = j.db.WithTx(ctx, func(tx *gorm.DB) error {
			rows, err := j.dlq.DeleteFailedBefore(ctx, tx, dlqCutoff)
			dlqDeleted = rows
			return err
		})
		if err != nil {
			dlqDeleted = 0
			errs = multierr.Append(errs, fmt.Errorf("purge dlq: %w", err))
		}
	}

	if outboxDeleted > 0 || dlqDeleted > 0 {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"outbox_cutoff":  outboxCutoff,
			"dlq_cutoff":     dlqCutoff,
			"min_attempts":   j.minAttempts,
			"outbox_deleted": outboxDeleted,
			"dlq_deleted":    dlqDeleted,
		})
		j.logg.Info(logCtx, "outbox retention cleanup complete")
	} else if errs == nil {
		j.logg.Debug(ctx, "outbox retention found nothing to purge")
	}
	return errs
}
