package bootstrap

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jasskhinda/facility-billing/internal/billing"
	"github.com/jasskhinda/facility-billing/internal/documents"
	"github.com/jasskhinda/facility-billing/internal/fares"
	"github.com/jasskhinda/facility-billing/internal/invoices"
	"github.com/jasskhinda/facility-billing/internal/ledger"
	"github.com/jasskhinda/facility-billing/internal/payments"
	"github.com/jasskhinda/facility-billing/internal/trips"
	squarewebhook "github.com/jasskhinda/facility-billing/internal/webhooks/square"
	"github.com/jasskhinda/facility-billing/pkg/config"
	"github.com/jasskhinda/facility-billing/pkg/db"
	"github.com/jasskhinda/facility-billing/pkg/logger"
	"github.com/jasskhinda/facility-billing/pkg/metrics"
	"github.com/jasskhinda/facility-billing/pkg/outbox"
	"github.com/jasskhinda/facility-billing/pkg/redis"
	"github.com/jasskhinda/facility-billing/pkg/square"
)

const squareWebhookScope = "square-webhook"

// Params are the shared clients every binary opens before building services.
type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Redis      *redis.Client
	Square     *square.Client
	Registerer prometheus.Registerer
	Now        func() time.Time
}

// Services is the billing service graph shared by the api and the workers.
type Services struct {
	Location *time.Location

	TripsRepo  trips.Repository
	LedgerRepo ledger.Repository
	OutboxRepo *outbox.Repository

	Trips      trips.Service
	Invoices   invoices.Service
	Billing    billing.Aggregator
	Documents  *documents.Exporter
	Payments   payments.Processor
	Settlement payments.SettlementService

	SquareWebhook *squarewebhook.Service
	Deliveries    *squarewebhook.Deliveries
}

// New wires repositories and services on top of the opened clients.
func New(params Params) (*Services, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("db client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.Square == nil {
		return nil, errors.New("square client is required")
	}
	cfg := params.Config
	logg := params.Logger
	now := params.Now
	if now == nil {
		now = time.Now
	}
	reg := params.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	loc, err := cfg.Billing.Location()
	if err != nil {
		return nil, err
	}
	statuses, err := cfg.Billing.TripStatuses()
	if err != nil {
		return nil, err
	}

	conn := params.DB.DB()
	tripsRepo := trips.NewRepository(conn)
	ledgerRepo := ledger.NewRepository(conn)
	outboxRepo := outbox.NewRepository(conn)
	emitter := outbox.NewService(outboxRepo, logg)

	calculator, err := fares.NewFromConfig(cfg.Fare, cfg.Billing)
	if err != nil {
		return nil, fmt.Errorf("fare calculator: %w", err)
	}
	tripService, err := trips.NewService(trips.ServiceParams{
		Repo:       tripsRepo,
		Tx:         params.DB,
		Calculator: calculator,
		Outbox:     emitter,
		Logger:     logg,
		Location:   loc,
		Now:        now,
	})
	if err != nil {
		return nil, fmt.Errorf("trip service: %w", err)
	}

	locker, err := invoices.NewRedisLocker(params.Redis, cfg.Billing.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("invoice locker: %w", err)
	}
	invoiceService, err := newInvoiceService(params, ledgerRepo, emitter, locker, loc, now)
	if err != nil {
		return nil, err
	}

	aggregator, err := billing.NewService(billing.ServiceParams{
		Trips:            tripsRepo,
		Payments:         ledgerRepo,
		BillableStatuses: statuses,
		Logger:           logg,
		Location:         loc,
	})
	if err != nil {
		return nil, fmt.Errorf("billing aggregator: %w", err)
	}
	exporter, err := documents.NewExporter(aggregator, documents.NewRenderer(cfg.Billing.IssuerName, loc, now))
	if err != nil {
		return nil, fmt.Errorf("document exporter: %w", err)
	}

	gateway, err := payments.NewSquareGateway(params.Square)
	if err != nil {
		return nil, fmt.Errorf("square gateway: %w", err)
	}
	paymentMetrics := metrics.NewPaymentMetrics(reg)
	processor, err := payments.NewService(payments.ServiceParams{
		Ledger:         ledgerRepo,
		Trips:          tripsRepo,
		Invoices:       invoiceService,
		Locker:         locker,
		Gateway:        gateway,
		Tx:             params.DB,
		Outbox:         emitter,
		Metrics:        paymentMetrics,
		Logger:         logg,
		Location:       loc,
		Now:            now,
		GatewayTimeout: cfg.Square.Timeout,
		AllowACH:       cfg.FeatureFlags.AllowACH,
	})
	if err != nil {
		return nil, fmt.Errorf("payment service: %w", err)
	}
	settlement, err := payments.NewSettlementService(payments.SettlementParams{
		Ledger:   ledgerRepo,
		Gateway:  gateway,
		Invoices: invoiceService,
		Metrics:  paymentMetrics,
		Logger:   logg,
		Now:      now,
		Timeout:  cfg.Square.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("settlement service: %w", err)
	}

	webhookService, err := squarewebhook.NewService(squarewebhook.ServiceParams{
		Settlement: settlement,
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("square webhook service: %w", err)
	}
	deliveries, err := squarewebhook.NewDeliveries(params.Redis, squareWebhookScope, cfg.Eventing.HTTPIdempotencyTTL)
	if err != nil {
		return nil, fmt.Errorf("square deliveries: %w", err)
	}

	return &Services{
		Location:      loc,
		TripsRepo:     tripsRepo,
		LedgerRepo:    ledgerRepo,
		OutboxRepo:    outboxRepo,
		Trips:         tripService,
		Invoices:      invoiceService,
		Billing:       aggregator,
		Documents:     exporter,
		Payments:      processor,
		Settlement:    settlement,
		SquareWebhook: webhookService,
		Deliveries:    deliveries,
	}, nil
}

// NewInvoiceService builds only the invoice state machine, for workers that
// rebuild projections without touching the processor.
func NewInvoiceService(params Params) (invoices.Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("db client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	loc, err := params.Config.Billing.Location()
	if err != nil {
		return nil, err
	}
	conn := params.DB.DB()
	emitter := outbox.NewService(outbox.NewRepository(conn), params.Logger)
	locker, err := invoices.NewRedisLocker(params.Redis, params.Config.Billing.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("invoice locker: %w", err)
	}
	return newInvoiceService(params, ledger.NewRepository(conn), emitter, locker, loc, now)
}

func newInvoiceService(params Params, ledgerRepo ledger.Repository, emitter outbox.Emitter, locker invoices.Locker, loc *time.Location, now func() time.Time) (invoices.Service, error) {
	service, err := invoices.NewService(invoices.ServiceParams{
		Ledger:   ledgerRepo,
		Repo:     invoices.NewRepository(params.DB.DB()),
		Tx:       params.DB,
		Locker:   locker,
		Outbox:   emitter,
		Logger:   params.Logger,
		Location: loc,
		Now:      now,
	})
	if err != nil {
		return nil, fmt.Errorf("invoice service: %w", err)
	}
	return service, nil
}
