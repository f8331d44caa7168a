package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/jasskhinda/facility-billing/internal/bootstrap"
	"github.com/jasskhinda/facility-billing/pkg/logger"
	"github.com/jasskhinda/facility-billing/pkg/metrics"
	"github.com/jasskhinda/facility-billing/pkg/outbox"
	"github.com/jasskhinda/facility-billing/pkg/outbox/registry"
	"github.com/jasskhinda/facility-billing/pkg/pubsub"
)

const serviceKind = "outbox-publisher"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); !bootstrap.Shutdown(err) {
		logg.Error(ctx, "outbox publisher exited", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	rt, err := bootstrap.Open(ctx, serviceKind, bootstrap.WithDevMigrations())
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg := rt.Config

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, rt.Logger, pubsub.RequireTopic())
	if err != nil {
		return err
	}
	rt.OnClose("pubsub", pubsubClient.Close)

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		return err
	}

	conn := rt.DB.DB()
	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        rt.Logger,
		DB:            rt.DB,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(conn),
		Registry:      eventRegistry,
		DLQRepository: outbox.NewDLQRepository(conn),
		Metrics:       metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return err
	}

	runCtx := rt.Context(ctx, map[string]any{"topic": cfg.PubSub.BillingTopic})
	rt.Logger.Info(runCtx, "starting outbox publisher")

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		return metrics.Serve(groupCtx, cfg.Metrics.Addr, prometheus.DefaultGatherer, rt.Logger)
	})
	group.Go(func() error {
		return service.Run(groupCtx)
	})
	err = group.Wait()
	if bootstrap.Shutdown(err) {
		rt.Logger.Info(runCtx, "outbox publisher drained")
	}
	return err
}
