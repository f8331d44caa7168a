package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jasskhinda/facility-billing/api/controllers"
	admincontrollers "github.com/jasskhinda/facility-billing/api/controllers/admin"
	billingcontrollers "github.com/jasskhinda/facility-billing/api/controllers/billing"
	farecontrollers "github.com/jasskhinda/facility-billing/api/controllers/fares"
	webhookcontrollers "github.com/jasskhinda/facility-billing/api/controllers/webhooks"
	"github.com/jasskhinda/facility-billing/api/middleware"
	squarewebhook "github.com/jasskhinda/facility-billing/internal/webhooks/square"
	"github.com/jasskhinda/facility-billing/pkg/config"
	"github.com/jasskhinda/facility-billing/pkg/logger"
)

// InvoiceService covers both the facility status read and the back-office
// verification surface.
type InvoiceService interface {
	billingcontrollers.InvoiceReader
	admincontrollers.InvoiceService
}

// Dependencies are the services the HTTP surface dispatches to.
type Dependencies struct {
	Ready            map[string]controllers.Pinger
	IdempotencyStore middleware.ReplayStore
	Gatherer         prometheus.Gatherer

	Trips     farecontrollers.TripPricer
	Billing   billingcontrollers.BreakdownService
	Documents billingcontrollers.DocumentService
	Payments  billingcontrollers.PaymentProcessor
	Invoices  InvoiceService
	Pending   admincontrollers.PendingLister
	DLQ       admincontrollers.DLQReader
	Replayer  admincontrollers.DLQReplayer

	SquareWebhook    *squarewebhook.Service
	SquareVerifier   webhookcontrollers.SignatureVerifier
	SquareDeliveries *squarewebhook.Deliveries
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.Ready, logg))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/square", webhookcontrollers.SquareWebhook(webhookService(deps.SquareWebhook), deps.SquareVerifier, squareDeliveries(deps.SquareDeliveries), logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Actor(logg))
		if deps.IdempotencyStore != nil {
			r.Use(middleware.Idempotency(deps.IdempotencyStore, logg))
		}

		r.Post("/fares/quote", farecontrollers.FareQuote(deps.Trips, logg))
		r.Post("/trips/{tripId}/price", farecontrollers.PriceTrip(deps.Trips, logg))

		r.Route("/facilities/{facilityId}", func(r chi.Router) {
			r.Route("/billing/{month}", func(r chi.Router) {
				r.Get("/", billingcontrollers.PaymentBreakdown(deps.Billing, logg))
				r.Get("/invoice.pdf", billingcontrollers.InvoiceDocument(deps.Documents, billingcontrollers.FormatPDF, logg))
				r.Get("/invoice.xlsx", billingcontrollers.InvoiceDocument(deps.Documents, billingcontrollers.FormatXLSX, logg))
			})
			r.Post("/payments", billingcontrollers.SubmitPayment(deps.Payments, logg))
			r.Get("/invoices/{month}", billingcontrollers.InvoiceStatus(deps.Invoices, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Actor(logg))
		r.Use(middleware.RequireStaff(logg))
		if deps.IdempotencyStore != nil {
			r.Use(middleware.Idempotency(deps.IdempotencyStore, logg))
		}

		r.Route("/payments", func(r chi.Router) {
			r.Get("/pending", admincontrollers.PendingPayments(deps.Pending, logg))
			r.Post("/{paymentId}/verify", admincontrollers.VerifyPayment(deps.Invoices, logg))
			r.Post("/{paymentId}/reject", admincontrollers.RejectPayment(deps.Invoices, logg))
		})
		r.Post("/invoices/{facilityId}/{month}/rebuild", admincontrollers.RebuildInvoice(deps.Invoices, logg))
		r.Get("/outbox/dlq", admincontrollers.OutboxDLQ(deps.DLQ, logg))
		r.Post("/outbox/dlq/{eventId}/replay", admincontrollers.ReplayOutboxDLQ(deps.Replayer, logg))
	})

	return r
}

// The webhook controller checks its collaborators for nil; a typed nil
// pointer inside the interface would slip past that check.
func webhookService(svc *squarewebhook.Service) webhookcontrollers.SquareWebhookService {
	if svc == nil {
		return nil
	}
	return svc
}

func squareDeliveries(d *squarewebhook.Deliveries) webhookcontrollers.DeliveryTracker {
	if d == nil {
		return nil
	}
	return d
}
