package enums

import (
	"fmt"
	"slices"
	"strings"
)

// OutboxAggregateType is the entity an outbox row describes.
type OutboxAggregateType string

const (
	AggregatePayment OutboxAggregateType = "payment"
	AggregateInvoice OutboxAggregateType = "invoice"
	AggregateTrip    OutboxAggregateType = "trip"
)

// OutboxEventType names a billing event on the wire and in outbox_events.
type OutboxEventType string

const (
	EventPaymentSubmitted     OutboxEventType = "payment_submitted"
	EventPaymentVerified      OutboxEventType = "payment_verified"
	EventPaymentRejected      OutboxEventType = "payment_rejected"
	EventInvoiceStatusChanged OutboxEventType = "invoice_status_changed"
	EventTripPriced           OutboxEventType = "trip_priced"
)

// eventAggregates fixes which aggregate each event is emitted for.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventPaymentSubmitted:     AggregatePayment,
	EventPaymentVerified:      AggregatePayment,
	EventPaymentRejected:      AggregatePayment,
	EventInvoiceStatusChanged: AggregateInvoice,
	EventTripPriced:           AggregateTrip,
}

func (a OutboxAggregateType) IsValid() bool {
	for _, owner := range eventAggregates {
		if owner == a {
			return true
		}
	}
	return false
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	a := OutboxAggregateType(strings.TrimSpace(value))
	if !a.IsValid() {
		return "", fmt.Errorf("invalid aggregate type %q", value)
	}
	return a, nil
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate returns the aggregate the event belongs to, or "" when unknown.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	e := OutboxEventType(strings.TrimSpace(value))
	if !e.IsValid() {
		return "", fmt.Errorf("invalid event type %q", value)
	}
	return e, nil
}

// AllOutboxEventTypes lists known events in a stable order.
func AllOutboxEventTypes() []OutboxEventType {
	out := make([]OutboxEventType, 0, len(eventAggregates))
	for e := range eventAggregates {
		out = append(out, e)
	}
	slices.Sort(out)
	return out
}
