package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jasskhinda/facility-billing/pkg/db/models"
	"github.com/jasskhinda/facility-billing/pkg/enums"
	"github.com/jasskhinda/facility-billing/pkg/outbox/payloads"
	"github.com/jasskhinda/facility-billing/pkg/outbox/registry"
)

// heldKeys are ordering keys whose publish failed earlier in the batch.
// Later rows on a held key wait for the next drain so a period's events
// never overtake each other.
type heldKeys map[string]struct{}

func (s *Service) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, held heldKeys) error {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonUnresolvable, err, s.logFields(event, nil, ""))
	}

	key := orderingKey(event, resolved)
	fields := s.logFields(event, resolved, key)
	if _, blocked := held[key]; key != "" && blocked {
		s.logg.Debug(s.logg.WithFields(ctx, fields), "outbox event held behind failed ordering key")
		return nil
	}

	pubErr := s.publish(ctx, event, resolved, key)
	if pubErr == nil {
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.IncPublished(string(event.EventType))
		s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event published")
		return nil
	}

	if key != "" {
		held[key] = struct{}{}
	}
	attempts := event.AttemptCount + 1
	fields["attempt_count"] = attempts

	var permanent registry.NonRetryableError
	switch {
	case errors.As(pubErr, &permanent):
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, pubErr, fields)
	case attempts >= s.limits.maxAttempts:
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("gave up after %d attempts: %w", attempts, pubErr), fields)
	}

	s.logg.Warn(s.logg.WithField(s.logg.WithFields(ctx, fields), "error", pubErr.Error()), "outbox publish failed, will retry")
	s.metrics.IncFailed(string(event.EventType))
	if err := s.repo.MarkFailedTx(tx, event.ID, pubErr); err != nil {
		return fmt.Errorf("mark failed %s: %w", event.ID, err)
	}
	return nil
}

// deadLetter copies the row into outbox_dlq and retires it from polling.
func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	fields["error_reason"] = reason
	s.logg.Warn(s.logg.WithField(s.logg.WithFields(ctx, fields), "error", cause.Error()), "outbox event dead-lettered")

	if err := s.dlq.InsertTx(tx, newDLQEntry(event, reason, cause, s.now())); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.limits.maxAttempts); err != nil {
		return fmt.Errorf("retire %s: %w", event.ID, err)
	}
	s.metrics.IncDeadLettered(string(event.EventType), string(reason))
	return nil
}

func newDLQEntry(event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, at time.Time) models.OutboxDLQ {
	msg := cause.Error()
	return models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		FacilityID:    event.FacilityID,
		Month:         event.Month,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      at.UTC(),
	}
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent, key string) error {
	topic := resolved.Descriptor.Topic
	pub := s.publishers(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %q", topic))
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	result := pub.Publish(ctx, &gcppubsub.Message{
		Data:        event.Payload,
		Attributes:  messageAttributes(event, resolved),
		OrderingKey: key,
	})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("topic %q returned no publish result", topic))
	}
	if _, err := result.Get(ctx); err != nil {
		// the client pauses a key after a failure until it is resumed
		if key != "" {
			pub.ResumePublish(key)
		}
		return err
	}
	return nil
}

func messageAttributes(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]string {
	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
	}
	if period, ok := periodOf(resolved); ok {
		attrs["facility_id"] = period.FacilityID.String()
		attrs["month"] = period.Month
	}
	return attrs
}

// orderingKey prefers the period columns stamped at emit time and falls
// back to the payload. Events outside a billing period publish unordered.
func orderingKey(event models.OutboxEvent, resolved *registry.ResolvedEvent) string {
	if key := event.PeriodKey(); key != "" {
		return key
	}
	period, ok := periodOf(resolved)
	if !ok || period.FacilityID == uuid.Nil || period.Month == "" {
		return ""
	}
	return period.FacilityID.String() + ":" + period.Month
}

func periodOf(resolved *registry.ResolvedEvent) (payloads.BillingPeriod, bool) {
	if resolved == nil {
		return payloads.BillingPeriod{}, false
	}
	scoped, ok := resolved.Payload.(payloads.PeriodScoped)
	if !ok {
		return payloads.BillingPeriod{}, false
	}
	return scoped.Period(), true
}

func (s *Service) logFields(event models.OutboxEvent, resolved *registry.ResolvedEvent, key string) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if resolved != nil {
		fields["topic"] = resolved.Descriptor.Topic
		if resolved.Envelope.EventID != "" {
			fields["event_id"] = resolved.Envelope.EventID
		}
	}
	if key != "" {
		fields["ordering_key"] = key
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}
