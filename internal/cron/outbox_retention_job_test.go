package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/jasskhinda/facility-billing/pkg/logger"
)

type purgeCall struct {
	cutoff      time.Time
	minAttempts int
}

type fakeOutboxPurger struct {
	calls []purgeCall
	rows  int64
	err   error
}

func (f *fakeOutboxPurger) DeletePublishedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error) {
	f.calls = append(f.calls, purgeCall{cutoff: cutoff, minAttempts: minAttemptCount})
	return f.rows, f.err
}

type fakeDLQPurger struct {
	cutoffs []time.Time
	rows    int64
	err     error
}

func (f *fakeDLQPurger) DeleteFailedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.rows, f.err
}

type countingTx struct{ calls int }

func (c *countingTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	c.calls++
	return fn(nil)
}

func newRetentionJob(t *testing.T, params OutboxRetentionJobParams) *outboxRetentionJob {
	t.Helper()
	if params.Logger == nil {
		params.Logger = logger.New(logger.Options{ServiceName: "test"})
	}
	if params.DB == nil {
		params.DB = &countingTx{}
	}
	job, err := NewOutboxRetentionJob(params)
	require.NoError(t, err)
	typed, ok := job.(*outboxRetentionJob)
	require.True(t, ok)
	return typed
}

func TestOutboxRetentionJobUsesDefaults(t *testing.T) {
	now := time.Date(2025, 7, 10, 6, 0, 0, 0, time.UTC)
	outboxRepo := &fakeOutboxPurger{rows: 7}
	dlqRepo := &fakeDLQPurger{rows: 2}
	tx := &countingTx{}
	job := newRetentionJob(t, OutboxRetentionJobParams{DB: tx, Outbox: outboxRepo, DLQ: dlqRepo})
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))

	require.Len(t, outboxRepo.calls, 1)
	assert.Equal(t, now.Add(-defaultOutboxRetention), outboxRepo.calls[0].cutoff)
	assert.Equal(t, defaultMinAttempts, outboxRepo.calls[0].minAttempts)
	require.Len(t, dlqRepo.cutoffs, 1)
	assert.Equal(t, now.Add(-defaultDLQRetention), dlqRepo.cutoffs[0])
	assert.Equal(t, 2, tx.calls)
}

func TestOutboxRetentionJobKeepsDeadLettersAtLeastAsLongAsOutbox(t *testing.T) {
	now := time.Date(2025, 7, 10, 6, 0, 0, 0, time.UTC)
	outboxRepo := &fakeOutboxPurger{}
	dlqRepo := &fakeDLQPurger{}
	job := newRetentionJob(t, OutboxRetentionJobParams{
		Outbox:          outboxRepo,
		DLQ:             dlqRepo,
		OutboxRetention: 60 * 24 * time.Hour,
		DLQRetention:    7 * 24 * time.Hour,
		MinAttempts:     5,
	})
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, outboxRepo.calls[0].cutoff, dlqRepo.cutoffs[0])
	assert.Equal(t, 5, outboxRepo.calls[0].minAttempts)
}

func TestOutboxRetentionJobRunsDLQPurgeWhenOutboxFails(t *testing.T) {
	outboxRepo := &fakeOutboxPurger{err: errors.New("outbox locked")}
	dlqRepo := &fakeDLQPurger{err: errors.New("dlq locked")}
	job := newRetentionJob(t, OutboxRetentionJobParams{Outbox: outboxRepo, DLQ: dlqRepo})

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.ErrorContains(t, err, "purge outbox")
	assert.ErrorContains(t, err, "purge dlq")
	assert.Len(t, dlqRepo.cutoffs, 1)
}

func TestOutboxRetentionJobWithoutDLQ(t *testing.T) {
	outboxRepo := &fakeOutboxPurger{}
	tx := &countingTx{}
	job := newRetentionJob(t, OutboxRetentionJobParams{DB: tx, Outbox: outboxRepo})

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, tx.calls)
}

func TestNewOutboxRetentionJobRequiresOutbox(t *testing.T) {
	_, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		DB:     &countingTx{},
	})
	require.Error(t, err)
}
