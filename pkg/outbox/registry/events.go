package registry

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/jasskhinda/facility-billing/pkg/config"
	"github.com/jasskhinda/facility-billing/pkg/db/models"
	"github.com/jasskhinda/facility-billing/pkg/enums"
	"github.com/jasskhinda/facility-billing/pkg/outbox"
	"github.com/jasskhinda/facility-billing/pkg/outbox/payloads"
)

// Schema is the v1 contract of one billing event. Publisher and
// consumers decode from the same table.
type Schema struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Decode        Decoder
}

var billingSchemas = []Schema{
	{enums.EventPaymentSubmitted, enums.AggregatePayment, As[payloads.PaymentSubmittedEvent]()},
	{enums.EventPaymentVerified, enums.AggregatePayment, As[payloads.PaymentVerifiedEvent]()},
	{enums.EventPaymentRejected, enums.AggregatePayment, As[payloads.PaymentRejectedEvent]()},
	{enums.EventInvoiceStatusChanged, enums.AggregateInvoice, As[payloads.InvoiceStatusChangedEvent]()},
	{enums.EventTripPriced, enums.AggregateTrip, As[payloads.TripPricedEvent]()},
}

// Schemas lists every event the billing service emits.
func Schemas() []Schema {
	return slices.Clone(billingSchemas)
}

// EventDescriptor binds a schema to the topic it is published on.
type EventDescriptor struct {
	Schema
	Topic string
}

// ResolvedEvent is an outbox row checked against its schema and decoded.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry is the publisher's view of the schemas.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry routes every billing event to the billing topic so one
// ordered stream carries a period's history.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.BillingTopic == "" {
		return nil, errors.New("billing topic is required")
	}
	entries := make(map[enums.OutboxEventType]EventDescriptor, len(billingSchemas))
	for _, schema := range billingSchemas {
		entries[schema.EventType] = EventDescriptor{Schema: schema, Topic: cfg.BillingTopic}
	}
	return &EventRegistry{entries: entries}, nil
}

// Resolve rejects rows that can never publish: unknown types, aggregate
// mismatches and undecodable payloads all come back as NonRetryableError.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, permanent("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, permanent("%s belongs to %s, row says %s", event.EventType, desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, permanent("%s row has no aggregate_id", event.EventType)
	}

	envelope, err := outbox.ParseEnvelope(event.Payload)
	if errors.Is(err, outbox.ErrEmptyEventData) {
		return nil, permanent("%s row has no payload data", event.EventType)
	}
	if err != nil {
		return nil, NewNonRetryableError(err)
	}

	payload, err := desc.Decode(envelope.Data)
	if err != nil {
		return nil, permanent("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}

// NonRetryableError marks a row that fails the same way on every attempt.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func permanent(format string, args ...any) NonRetryableError {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}
