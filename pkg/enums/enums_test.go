package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInvoiceStatus(t *testing.T) {
	status, err := ParseInvoiceStatus("CHECK_IN_TRANSIT")
	require.NoError(t, err)
	assert.Equal(t, InvoiceStatusCheckInTransit, status)

	_, err = ParseInvoiceStatus("check_in_transit")
	assert.Error(t, err)
}

func TestInvoiceStatusGroups(t *testing.T) {
	for _, status := range validInvoiceStatuses {
		settled := status.IsSettled()
		inFlight := status.IsCheckInFlight() || status == InvoiceStatusProcessingBankTransfer
		assert.NotEqual(t, settled, inFlight, "status %s must be settled or in flight", status)
	}
	assert.False(t, InvoiceStatusUnpaid.IsPaid())
	assert.True(t, InvoiceStatusPaidWithCard.IsPaid())
}

func TestPaymentMethodUsesGateway(t *testing.T) {
	assert.True(t, PaymentMethodCreditCard.UsesGateway())
	assert.True(t, PaymentMethodSavedCard.UsesGateway())
	assert.True(t, PaymentMethodBankTransfer.UsesGateway())
	assert.False(t, PaymentMethodCheckSubmit.UsesGateway())
}

func TestPaymentMethodExpectedStatus(t *testing.T) {
	assert.Equal(t, PaymentStatusCompleted, PaymentMethodCreditCard.ExpectedStatus())
	assert.Equal(t, PaymentStatusCompleted, PaymentMethodSavedCard.ExpectedStatus())
	assert.Equal(t, PaymentStatusPendingVerification, PaymentMethodBankTransfer.ExpectedStatus())
	assert.Equal(t, PaymentStatusPendingVerification, PaymentMethodCheckSubmit.ExpectedStatus())
	assert.Equal(t, PaymentStatusPendingVerification, PaymentMethod("wire").ExpectedStatus())

	_, err := ParsePaymentMethod("cash")
	assert.Error(t, err)
}

func TestPaymentStatusTransitions(t *testing.T) {
	pending := PaymentStatusPendingVerification
	assert.False(t, pending.IsTerminal())
	assert.True(t, pending.CanTransitionTo(PaymentStatusCompleted))
	assert.True(t, pending.CanTransitionTo(PaymentStatusFailed))
	assert.False(t, pending.CanTransitionTo(pending))

	for _, final := range []PaymentStatus{PaymentStatusCompleted, PaymentStatusFailed, PaymentStatus("voided")} {
		assert.True(t, final.IsTerminal(), final)
		assert.False(t, final.CanTransitionTo(PaymentStatusPendingVerification), final)
	}

	status, err := ParsePaymentStatus("failed")
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusFailed, status)
	_, err = ParsePaymentStatus("refunded")
	assert.Error(t, err)
}

func TestParseOutboxTypes(t *testing.T) {
	evt, err := ParseOutboxEventType("payment_submitted")
	require.NoError(t, err)
	assert.True(t, evt.IsValid())

	_, err = ParseOutboxAggregateType("vendor_order")
	assert.Error(t, err)
}

func TestParseOutboxDLQErrorReason(t *testing.T) {
	reason, err := ParseOutboxDLQErrorReason("unresolvable")
	require.NoError(t, err)
	assert.Equal(t, OutboxDLQReasonUnresolvable, reason)

	_, err = ParseOutboxDLQErrorReason("gave_up")
	assert.Error(t, err)
}
