package metrics

import "github.com/prometheus/client_golang/prometheus"

// Projection message outcomes.
const (
	ProjectionApplied   = "applied"
	ProjectionDuplicate = "duplicate"
	ProjectionRetried   = "retried"
	ProjectionDropped   = "dropped"
	ProjectionIgnored   = "ignored"
)

// ProjectionMetrics counts how the invoice projection worker settled each
// Pub/Sub delivery.
type ProjectionMetrics struct {
	messages *prometheus.CounterVec
}

func NewProjectionMetrics(reg prometheus.Registerer) *ProjectionMetrics {
	if reg == nil {
		return &ProjectionMetrics{}
	}
	messages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_projection_messages_total",
		Help: "Billing events seen by the invoice projection, by outcome.",
	}, []string{"event_type", "outcome"})
	reg.MustRegister(messages)
	return &ProjectionMetrics{messages: messages}
}

func (m *ProjectionMetrics) Observe(eventType, outcome string) {
	if m == nil || m.messages == nil {
		return
	}
	m.messages.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}
