package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jasskhinda/facility-billing/pkg/logger"
	"github.com/jasskhinda/facility-billing/pkg/metrics"
)

const defaultInterval = 15 * time.Minute

// Periodic jobs run at most once per Every; other jobs run on every tick.
type Periodic interface {
	Every() time.Duration
}

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Service ticks every interval and, while holding the cluster lock, runs
// each job that is due. A failing or panicking job is reported and retried
// on the next tick without stopping the others.
type Service struct {
	logg     *logger.Logger
	jobs     []Job
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
	now      func() time.Time
	nextDue  map[string]time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Lock == nil:
		return nil, errors.New("lock required")
	}
	var jobs []Job
	if params.Registry != nil {
		jobs = params.Registry.Jobs()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     params.Logger,
		jobs:     jobs,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
		now:      time.Now,
		nextDue:  map[string]time.Time{},
	}, nil
}

// Run ticks until ctx is canceled. The first tick fires immediately.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.tick(ctx, false); err != nil {
			s.logg.Error(ctx, "cron tick failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce runs every registered job once under the lock, ignoring cadence.
// Operators use it to force a settlement sweep or a reconcile.
func (s *Service) RunOnce(ctx context.Context) error {
	return s.tick(ctx, true)
}

func (s *Service) tick(ctx context.Context, force bool) error {
	held, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire cron lock: %w", err)
	}
	if !held {
		s.logg.Info(ctx, "cron lock held elsewhere; skipping tick")
		s.metrics.IncSkipped()
		return nil
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			s.logg.Error(ctx, "release cron lock", err)
		}
	}()

	now := s.now()
	ran := 0
	for _, job := range s.jobs {
		if !force && now.Before(s.nextDue[job.Name()]) {
			continue
		}
		ran++
		if s.execute(ctx, job) == nil {
			s.schedule(job, now)
		}
	}
	s.logg.Info(s.logg.WithField(ctx, "jobs_run", ran), "cron tick complete")
	return nil
}

// schedule records the next time a periodic job is due. Jobs without a
// cadence are never delayed.
func (s *Service) schedule(job Job, ranAt time.Time) {
	if periodic, ok := job.(Periodic); ok {
		s.nextDue[job.Name()] = ranAt.Add(periodic.Every())
	}
}

func (s *Service) execute(ctx context.Context, job Job) (err error) {
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})
	start := s.now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
		finished := s.now()
		elapsed := finished.Sub(start)
		s.metrics.ObserveRun(job.Name(), elapsed, finished, err)
		doneCtx := s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
		if err != nil {
			s.logg.Error(doneCtx, "job failed", err)
			return
		}
		s.logg.Info(doneCtx, "job completed")
	}()
	return job.Run(jobCtx)
}
