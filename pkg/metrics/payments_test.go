package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestPaymentMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPaymentMetrics(reg)
	m.IncSubmitted("credit_card", "completed")
	m.IncSubmitted("credit_card", "completed")
	m.ObserveGateway("bank_transfer", 120*time.Millisecond, true)
	m.IncSettlement("settled")

	method := func(v string) map[string]string { return map[string]string{"method": v} }
	assert.Equal(t, 2.0, sample(t, reg, "billing_payments_submitted_total", method("credit_card")).GetCounter().GetValue())
	assert.Equal(t, 1.0, sample(t, reg, "billing_gateway_failures_total", method("bank_transfer")).GetCounter().GetValue())
	assert.Greater(t, sample(t, reg, "billing_gateway_duration_seconds", method("bank_transfer")).GetHistogram().GetSampleSum(), 0.0)
	assert.Equal(t, 1.0, sample(t, reg, "billing_payment_settlements_total", map[string]string{"outcome": "settled"}).GetCounter().GetValue())
}

func TestNilPaymentMetricsAreNoops(t *testing.T) {
	var m *PaymentMetrics
	m.IncSubmitted("check_submit", "pending_verification")
	m.ObserveGateway("credit_card", time.Second, false)
	m.IncSettlement("failed")
	m.IncUnrecorded()

	empty := NewPaymentMetrics(nil)
	empty.IncSubmitted("check_submit", "pending_verification")
	empty.IncUnrecorded()
}
