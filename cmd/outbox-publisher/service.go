package main

import (
	"context"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jasskhinda/facility-billing/pkg/config"
	"github.com/jasskhinda/facility-billing/pkg/db/models"
	"github.com/jasskhinda/facility-billing/pkg/logger"
	"github.com/jasskhinda/facility-billing/pkg/metrics"
	"github.com/jasskhinda/facility-billing/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPoll        = 500 * time.Millisecond
	defaultMaxAttempts = 10
	publishTimeout     = 15 * time.Second
	maxRetryDelay      = 10 * time.Second
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	DLQRepository    dlqRepository
	Metrics          *metrics.OutboxMetrics
	PublisherFactory publisherFactory
}

// drainLimits bounds one claim of the outbox table.
type drainLimits struct {
	batch       int
	maxAttempts int
	poll        time.Duration
}

func limitsFromConfig(cfg config.OutboxConfig) drainLimits {
	limits := drainLimits{
		batch:       cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
		poll:        time.Duration(cfg.PollIntervalMS) * time.Millisecond,
	}
	if limits.batch <= 0 {
		limits.batch = defaultBatchSize
	}
	if limits.maxAttempts <= 0 {
		limits.maxAttempts = defaultMaxAttempts
	}
	if limits.poll <= 0 {
		limits.poll = defaultPoll
	}
	return limits
}

// Service relays committed outbox rows to Pub/Sub. Rows for one facility
// and month share an ordering key, so the projection consumer applies them
// in commit order.
type Service struct {
	logg       *logger.Logger
	db         dbClient
	pubsub     pubSubClient
	repo       outboxRepository
	dlq        dlqRepository
	registry   registryResolver
	metrics    *metrics.OutboxMetrics
	publishers publisherFactory
	cache      *topicPublishers
	limits     drainLimits
	now        func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	for _, dep := range []struct {
		name    string
		missing bool
	}{
		{"config", params.Config == nil},
		{"logger", params.Logger == nil},
		{"database client", params.DB == nil},
		{"pubsub client", params.PubSub == nil},
		{"outbox repository", params.Repository == nil},
		{"event registry", params.Registry == nil},
		{"dlq repository", params.DLQRepository == nil},
	} {
		if dep.missing {
			return nil, fmt.Errorf("outbox publisher: %s is required", dep.name)
		}
	}

	svc := &Service{
		logg:       params.Logger,
		db:         params.DB,
		pubsub:     params.PubSub,
		repo:       params.Repository,
		dlq:        params.DLQRepository,
		registry:   params.Registry,
		metrics:    params.Metrics,
		publishers: params.PublisherFactory,
		limits:     limitsFromConfig(params.Config.Outbox),
		now:        time.Now,
	}
	if svc.publishers == nil {
		svc.cache = newTopicPublishers(params.PubSub)
		svc.publishers = svc.cache.get
	}
	return svc, nil
}

// Run polls until ctx is done. A claimed batch is followed immediately by
// the next claim; an empty table waits one poll interval and a failed
// drain backs off exponentially.
func (s *Service) Run(ctx context.Context) error {
	if err := s.checkDependencies(ctx); err != nil {
		return err
	}
	defer s.cache.stop()

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"batch_size":   s.limits.batch,
		"max_attempts": s.limits.maxAttempts,
		"poll_ms":      s.limits.poll.Milliseconds(),
	}), "outbox publisher polling")

	delay := retryDelay{base: s.limits.poll, max: maxRetryDelay}
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		claimed, err := s.drainOnce(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox drain failed", err)
			wait = delay.failure()
		case claimed > 0:
			delay.reset()
			continue
		default:
			delay.reset()
			wait = delay.idle()
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

func (s *Service) checkDependencies(ctx context.Context) error {
	for _, dep := range []struct {
		name string
		ping func(context.Context) error
	}{
		{"database", s.db.Ping},
		{"pubsub", s.pubsub.Ping},
	} {
		if err := dep.ping(ctx); err != nil {
			s.logg.Error(ctx, dep.name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}
	return nil
}

// drainOnce claims one batch under row locks and settles every row in the
// same transaction. Publish failures are recorded on the rows; only
// bookkeeping failures abort the batch.
func (s *Service) drainOnce(ctx context.Context) (int, error) {
	claimed := 0
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.limits.batch, s.limits.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox batch: %w", err)
		}
		claimed = len(events)
		held := heldKeys{}
		for i := range events {
			if err := s.settle(ctx, tx, events[i], held); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}
