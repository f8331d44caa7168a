package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics tracks payment submissions, gateway calls and settlement.
type PaymentMetrics struct {
	submitted       *prometheus.CounterVec
	gatewayFailures *prometheus.CounterVec
	gatewayLatency  *prometheus.HistogramVec
	settlements     *prometheus.CounterVec
	unrecorded      prometheus.Counter
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	submitted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_payments_submitted_total",
		Help: "Payments recorded in the ledger by method and resulting status.",
	}, []string{"method", "status"})
	gatewayFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_gateway_failures_total",
		Help: "Payment processor calls that failed, by method.",
	}, []string{"method"})
	gatewayLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "billing_gateway_duration_seconds",
		Help:    "Duration of payment processor calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_payment_settlements_total",
		Help: "Pending payments resolved, by outcome.",
	}, []string{"outcome"})
	unrecorded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "billing_payments_unrecorded_total",
		Help: "Charges accepted by the processor that could not be written to the ledger.",
	})
	reg.MustRegister(submitted, gatewayFailures, gatewayLatency, settlements, unrecorded)
	return &PaymentMetrics{
		submitted:       submitted,
		gatewayFailures: gatewayFailures,
		gatewayLatency:  gatewayLatency,
		settlements:     settlements,
		unrecorded:      unrecorded,
	}
}

// IncSubmitted counts a ledger write.
func (m *PaymentMetrics) IncSubmitted(method, status string) {
	if m == nil || m.submitted == nil {
		return
	}
	m.submitted.WithLabelValues(normalizeLabel(method), normalizeLabel(status)).Inc()
}

// ObserveGateway records a processor call and whether it failed.
func (m *PaymentMetrics) ObserveGateway(method string, duration time.Duration, failed bool) {
	if m == nil || m.gatewayLatency == nil {
		return
	}
	m.gatewayLatency.WithLabelValues(normalizeLabel(method)).Observe(duration.Seconds())
	if failed {
		m.gatewayFailures.WithLabelValues(normalizeLabel(method)).Inc()
	}
}

// IncSettlement counts a resolved pending payment (settled, failed).
func (m *PaymentMetrics) IncSettlement(outcome string) {
	if m == nil || m.settlements == nil {
		return
	}
	m.settlements.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncUnrecorded counts a charge the ledger failed to record.
func (m *PaymentMetrics) IncUnrecorded() {
	if m == nil || m.unrecorded == nil {
		return
	}
	m.unrecorded.Inc()
}
