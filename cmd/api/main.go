package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/jasskhinda/facility-billing/api/controllers"
	"github.com/jasskhinda/facility-billing/api/routes"
	"github.com/jasskhinda/facility-billing/internal/bootstrap"
	"github.com/jasskhinda/facility-billing/pkg/config"
	"github.com/jasskhinda/facility-billing/pkg/logger"
	"github.com/jasskhinda/facility-billing/pkg/outbox"
	"github.com/jasskhinda/facility-billing/pkg/square"
)

const (
	serviceKind       = "api"
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
	shutdownGrace     = 20 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logg.Error(ctx, "api exited", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	rt, err := bootstrap.Open(ctx, serviceKind, bootstrap.WithRedis(), bootstrap.WithDevMigrations())
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg, logg, dbClient, redisClient := rt.Config, rt.Logger, rt.DB, rt.Redis

	squareClient, err := square.NewClient(ctx, cfg.Square, logg)
	if err != nil {
		return err
	}

	services, err := bootstrap.New(bootstrap.Params{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Redis:      redisClient,
		Square:     squareClient,
		Registerer: prometheus.DefaultRegisterer,
	})
	if err != nil {
		return err
	}

	conn := dbClient.DB()
	handler := routes.NewRouter(cfg, logg, routes.Dependencies{
		Ready:            map[string]controllers.Pinger{"database": dbClient, "redis": redisClient},
		IdempotencyStore: redisClient,
		Gatherer:         prometheus.DefaultGatherer,
		Trips:            services.Trips,
		Billing:          services.Billing,
		Documents:        services.Documents,
		Payments:         services.Payments,
		Invoices:         services.Invoices,
		Pending:          services.LedgerRepo,
		DLQ:              outbox.NewDLQRepository(conn),
		Replayer:         outbox.NewReplayer(dbClient, services.OutboxRepo),
		SquareWebhook:    services.SquareWebhook,
		SquareVerifier:   squareClient,
		SquareDeliveries: services.Deliveries,
	})

	addr := listenAddr(cfg)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	runCtx := rt.Context(ctx, map[string]any{"addr": addr})
	logg.Info(runCtx, "starting api server")

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logg.Info(runCtx, "draining api server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(runCtx), shutdownGrace)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := group.Wait(); err != nil {
		return err
	}
	logg.Info(runCtx, "api server stopped")
	return nil
}

// listenAddr lets the platform's PORT override the configured port.
func listenAddr(cfg *config.Config) string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":" + cfg.App.Port
}
