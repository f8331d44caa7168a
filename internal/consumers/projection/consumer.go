package projection

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jasskhinda/facility-billing/internal/invoices"
	"github.com/jasskhinda/facility-billing/pkg/enums"
	pkgerrors "github.com/jasskhinda/facility-billing/pkg/errors"
	"github.com/jasskhinda/facility-billing/pkg/logger"
	"github.com/jasskhinda/facility-billing/pkg/outbox/payloads"
	"github.com/jasskhinda/facility-billing/pkg/outbox/registry"
	"github.com/jasskhinda/facility-billing/pkg/types"
)

// projectedEvents change what an invoice shows.
var projectedEvents = []enums.OutboxEventType{
	enums.EventPaymentSubmitted,
	enums.EventPaymentVerified,
	enums.EventPaymentRejected,
}

type invoiceRebuilder interface {
	Rebuild(ctx context.Context, facilityID uuid.UUID, month types.Month) (*invoices.RebuildResult, error)
}

// Consumer keeps the stored invoice projection in step with ledger events.
// Invoice status changes are its own output and are not consumed.
type Consumer struct {
	invoices invoiceRebuilder
	logg     *logger.Logger
	decoders *registry.DecoderRegistry
}

func NewConsumer(rebuilder invoiceRebuilder, logg *logger.Logger) (*Consumer, error) {
	if rebuilder == nil {
		return nil, fmt.Errorf("invoice service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	decoders := registry.NewDecoderRegistry()
	if err := decoders.RegisterSchemas(projectedEvents...); err != nil {
		return nil, err
	}
	return &Consumer{invoices: rebuilder, logg: logg, decoders: decoders}, nil
}

// Handles reports whether the consumer acts on the event type. Its own
// invoice_status_changed events are not registered, so they are acked
// without work.
func (c *Consumer) Handles(eventType enums.OutboxEventType) bool {
	return c.decoders.Handles(eventType)
}

// Process rebuilds the invoice for the event's billing period. Envelopes
// without a version are treated as v1. Payload problems come back as
// CodeValidation so the worker drops them instead of redelivering.
func (c *Consumer) Process(ctx context.Context, eventType enums.OutboxEventType, version int, data json.RawMessage) error {
	if !c.Handles(eventType) {
		return nil
	}

	decoded, err := c.decoders.Decode(eventType, version, data)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode "+string(eventType))
	}
	scoped, ok := decoded.(payloads.PeriodScoped)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, string(eventType)+" payload carries no billing period")
	}
	period := scoped.Period()
	if period.FacilityID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "facility_id missing")
	}
	month, err := types.ParseMonth(period.Month)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "month")
	}

	logCtx := c.logg.WithBillingPeriod(ctx, period.FacilityID.String(), period.Month)
	result, err := c.invoices.Rebuild(logCtx, period.FacilityID, month)
	if err != nil {
		return fmt.Errorf("rebuild invoice: %w", err)
	}
	if result != nil && result.Changed && result.Invoice != nil {
		c.logg.Info(c.logg.WithFields(logCtx, map[string]any{
			"previous_status": result.Previous.String(),
			"status":          result.Invoice.PaymentStatus.String(),
		}), "invoice projection updated")
	}
	return nil
}
