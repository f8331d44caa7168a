package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/jasskhinda/facility-billing/internal/bootstrap"
	"github.com/jasskhinda/facility-billing/internal/cron"
	"github.com/jasskhinda/facility-billing/pkg/logger"
	"github.com/jasskhinda/facility-billing/pkg/metrics"
	"github.com/jasskhinda/facility-billing/pkg/outbox"
	"github.com/jasskhinda/facility-billing/pkg/square"
)

const serviceKind = "cron-worker"

type flags struct {
	once bool
	jobs []string
}

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	only := flag.String("jobs", "", "comma-separated job names to run (default: all)")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flags{once: *once, jobs: splitJobs(*only)}); !bootstrap.Shutdown(err) {
		logg.Error(ctx, "cron worker exited", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, f flags) error {
	rt, err := bootstrap.Open(ctx, serviceKind, bootstrap.WithRedis(), bootstrap.WithDevMigrations())
	if err != nil {
		return err
	}
	defer rt.Close()

	service, err := newCronService(ctx, rt, f.jobs)
	if err != nil {
		return err
	}

	runCtx := rt.Context(ctx, nil)
	if f.once {
		rt.Logger.Info(runCtx, "running single cron cycle")
		return service.RunOnce(runCtx)
	}

	rt.Logger.Info(runCtx, "starting cron worker")
	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		return metrics.Serve(groupCtx, rt.Config.Metrics.Addr, prometheus.DefaultGatherer, rt.Logger)
	})
	group.Go(func() error {
		return service.Run(groupCtx)
	})
	err = group.Wait()
	if bootstrap.Shutdown(err) {
		rt.Logger.Info(runCtx, "cron worker stopped")
	}
	return err
}

func newCronService(ctx context.Context, rt *bootstrap.Runtime, only []string) (*cron.Service, error) {
	cfg := rt.Config
	squareClient, err := square.NewClient(ctx, cfg.Square, rt.Logger)
	if err != nil {
		return nil, err
	}
	services, err := bootstrap.New(bootstrap.Params{
		Config:     cfg,
		Logger:     rt.Logger,
		DB:         rt.DB,
		Redis:      rt.Redis,
		Square:     squareClient,
		Registerer: prometheus.DefaultRegisterer,
	})
	if err != nil {
		return nil, err
	}

	settlementJob, err := cron.NewACHSettlementJob(cron.ACHSettlementJobParams{
		Logger:     rt.Logger,
		Settlement: services.Settlement,
	})
	if err != nil {
		return nil, err
	}
	reconcileJob, err := cron.NewInvoiceReconcileJob(cron.InvoiceReconcileJobParams{
		Logger:   rt.Logger,
		Ledger:   services.LedgerRepo,
		Invoices: services.Invoices,
		Lookback: cfg.Cron.ReconcileLookback,
	})
	if err != nil {
		return nil, err
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:          rt.Logger,
		DB:              rt.DB,
		Outbox:          services.OutboxRepo,
		DLQ:             outbox.NewDLQRepository(rt.DB.DB()),
		OutboxRetention: cfg.Cron.OutboxRetention,
		DLQRetention:    cfg.Cron.DLQRetention,
		MinAttempts:     cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}

	registry, err := cron.NewRegistry(settlementJob, reconcileJob, retentionJob)
	if err != nil {
		return nil, err
	}
	if len(only) > 0 {
		if registry, err = registry.Only(only...); err != nil {
			return nil, err
		}
	}

	lock, err := cron.NewCycleLock(rt.Redis, cfg.App.Env, cfg.Cron.Interval)
	if err != nil {
		return nil, err
	}
	return cron.NewService(cron.ServiceParams{
		Logger:   rt.Logger,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
}

func splitJobs(raw string) []string {
	var names []string
	for _, part := range strings.Split(raw, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}
