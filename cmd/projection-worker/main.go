package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/jasskhinda/facility-billing/internal/bootstrap"
	"github.com/jasskhinda/facility-billing/internal/consumers/projection"
	"github.com/jasskhinda/facility-billing/pkg/logger"
	"github.com/jasskhinda/facility-billing/pkg/metrics"
	"github.com/jasskhinda/facility-billing/pkg/outbox/idempotency"
	"github.com/jasskhinda/facility-billing/pkg/pubsub"
)

const serviceKind = "projection-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); !bootstrap.Shutdown(err) {
		logg.Error(ctx, "projection worker exited", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	rt, err := bootstrap.Open(ctx, serviceKind, bootstrap.WithRedis())
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg := rt.Config

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, rt.Logger, pubsub.RequireSubscription())
	if err != nil {
		return err
	}
	rt.OnClose("pubsub", pubsubClient.Close)

	subscription := pubsubClient.ProjectionSubscription()
	if subscription == nil {
		return errors.New("projection subscription not configured")
	}

	manager, err := idempotency.NewManager(rt.Redis, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return err
	}
	invoiceService, err := bootstrap.NewInvoiceService(bootstrap.Params{
		Config: cfg,
		Logger: rt.Logger,
		DB:     rt.DB,
		Redis:  rt.Redis,
	})
	if err != nil {
		return err
	}
	consumer, err := projection.NewConsumer(invoiceService, rt.Logger)
	if err != nil {
		return err
	}
	worker, err := projection.NewWorker(subscription, consumer, manager, rt.Logger)
	if err != nil {
		return err
	}
	worker.WithMetrics(metrics.NewProjectionMetrics(prometheus.DefaultRegisterer))

	runCtx := rt.Context(ctx, map[string]any{"subscription": cfg.PubSub.ProjectionSubscription})
	rt.Logger.Info(runCtx, "projection worker ready")

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		return metrics.Serve(groupCtx, cfg.Metrics.Addr, prometheus.DefaultGatherer, rt.Logger)
	})
	group.Go(func() error {
		return worker.Run(groupCtx)
	})
	err = group.Wait()
	if bootstrap.Shutdown(err) {
		rt.Logger.Info(runCtx, "projection worker stopped")
	}
	return err
}
