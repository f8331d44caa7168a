package squarewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/jasskhinda/facility-billing/pkg/errors"
)

type update struct {
	id     string
	status string
	at     time.Time
}

type stubSettlement struct {
	updates []update
	err     error
}

func (s *stubSettlement) HandleProcessorUpdate(ctx context.Context, processorPaymentID, status string, at time.Time) error {
	s.updates = append(s.updates, update{id: processorPaymentID, status: status, at: at})
	return s.err
}

const paymentUpdated = `{
  "merchant_id": "M1",
  "type": "payment.updated",
  "event_id": "evt-1",
  "created_at": "2025-06-27T09:00:05Z",
  "data": {
    "type": "payment",
    "id": "sq-42",
    "object": {
      "payment": {
        "id": "sq-42",
        "status": "COMPLETED",
        "source_type": "BANK_ACCOUNT",
        "updated_at": "2025-06-27T09:00:00.000Z"
      }
    }
  }
}`

func decode(t *testing.T, raw string) *SquareWebhookEvent {
	t.Helper()
	var event SquareWebhookEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &event))
	return &event
}

func TestHandleEventForwardsPaymentUpdates(t *testing.T) {
	settlement := &stubSettlement{}
	svc, err := NewService(ServiceParams{Settlement: settlement})
	require.NoError(t, err)

	require.NoError(t, svc.HandleEvent(context.Background(), decode(t, paymentUpdated)))
	require.Len(t, settlement.updates, 1)
	assert.Equal(t, "sq-42", settlement.updates[0].id)
	assert.Equal(t, "COMPLETED", settlement.updates[0].status)
	assert.True(t, settlement.updates[0].at.Equal(time.Date(2025, time.June, 27, 9, 0, 0, 0, time.UTC)))
}

func TestHandleEventIgnoresOtherTypes(t *testing.T) {
	settlement := &stubSettlement{}
	svc, err := NewService(ServiceParams{Settlement: settlement})
	require.NoError(t, err)

	require.NoError(t, svc.HandleEvent(context.Background(), &SquareWebhookEvent{Type: "refund.updated"}))
	assert.Empty(t, settlement.updates)
}

func TestHandleEventRejectsMissingPayment(t *testing.T) {
	svc, err := NewService(ServiceParams{Settlement: &stubSettlement{}})
	require.NoError(t, err)

	err = svc.HandleEvent(context.Background(), &SquareWebhookEvent{Type: "payment.updated"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	err = svc.HandleEvent(context.Background(), nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestHandleEventPropagatesSettlementErrors(t *testing.T) {
	settlement := &stubSettlement{err: errors.New("db down")}
	svc, err := NewService(ServiceParams{Settlement: settlement})
	require.NoError(t, err)

	assert.Error(t, svc.HandleEvent(context.Background(), decode(t, paymentUpdated)))
}

func TestNewServiceRequiresSettlement(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.Error(t, err)
}
