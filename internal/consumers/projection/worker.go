package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/jasskhinda/facility-billing/pkg/enums"
	pkgerrors "github.com/jasskhinda/facility-billing/pkg/errors"
	"github.com/jasskhinda/facility-billing/pkg/logger"
	"github.com/jasskhinda/facility-billing/pkg/metrics"
	"github.com/jasskhinda/facility-billing/pkg/outbox"
	"github.com/jasskhinda/facility-billing/pkg/outbox/idempotency"
)

const consumerName = "invoice-projection"

type idempotencyChecker interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (idempotency.Status, error)
	Complete(ctx context.Context, consumer string, eventID uuid.UUID) error
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type eventProcessor interface {
	Handles(eventType enums.OutboxEventType) bool
	Process(ctx context.Context, eventType enums.OutboxEventType, version int, data json.RawMessage) error
}

type outcomeRecorder interface {
	Observe(eventType, outcome string)
}

// Worker pulls billing events from Pub/Sub and hands them to the consumer.
type Worker struct {
	subscription *gcppubsub.Subscriber
	consumer     eventProcessor
	manager      idempotencyChecker
	metrics      outcomeRecorder
	logg         *logger.Logger
}

// WithMetrics records one outcome per delivery.
func (w *Worker) WithMetrics(m outcomeRecorder) *Worker {
	w.metrics = m
	return w
}

func NewWorker(subscription *gcppubsub.Subscriber, consumer eventProcessor, manager idempotencyChecker, logg *logger.Logger) (*Worker, error) {
	if subscription == nil {
		return nil, errors.New("projection subscription is required")
	}
	if consumer == nil {
		return nil, errors.New("projection consumer is required")
	}
	if manager == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Worker{subscription: subscription, consumer: consumer, manager: manager, logg: logg}, nil
}

// Run consumes messages until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	return w.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if w.process(innerCtx, msg) {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type message struct {
	eventID   uuid.UUID
	eventType enums.OutboxEventType
	version   int
	data      json.RawMessage
}

// process returns true when the message should be redelivered.
func (w *Worker) process(ctx context.Context, msg *gcppubsub.Message) bool {
	eventType, outcome, retry := w.handle(ctx, msg)
	if w.metrics != nil {
		w.metrics.Observe(eventType, outcome)
	}
	return retry
}

func (w *Worker) handle(ctx context.Context, msg *gcppubsub.Message) (string, string, bool) {
	logCtx := w.logg.WithField(ctx, "message_id", msg.ID)

	decoded, err := decodeMessage(msg)
	if err != nil {
		w.logg.Warn(w.logg.WithField(logCtx, "error", err.Error()), "dropping malformed billing event")
		return msg.Attributes["event_type"], metrics.ProjectionDropped, false
	}
	eventType := string(decoded.eventType)
	logCtx = w.logg.WithFields(logCtx, map[string]any{
		"event_id":   decoded.eventID.String(),
		"event_type": string(decoded.eventType),
	})
	if !w.consumer.Handles(decoded.eventType) {
		w.logg.Debug(logCtx, "event not handled by projection")
		return eventType, metrics.ProjectionIgnored, false
	}

	status, err := w.manager.Claim(logCtx, consumerName, decoded.eventID)
	if err != nil {
		w.logg.Error(logCtx, "idempotency check failed", err)
		return eventType, metrics.ProjectionRetried, true
	}
	switch status {
	case idempotency.Done:
		w.logg.Info(logCtx, "event already processed")
		return eventType, metrics.ProjectionDuplicate, false
	case idempotency.InFlight:
		w.logg.Info(logCtx, "event claimed by another worker")
		return eventType, metrics.ProjectionRetried, true
	}

	if err := w.consumer.Process(logCtx, decoded.eventType, decoded.version, decoded.data); err != nil {
		w.logg.Error(logCtx, "projection update failed", err)
		if relErr := w.manager.Release(logCtx, consumerName, decoded.eventID); relErr != nil {
			w.logg.Error(logCtx, "failed to release idempotency claim", relErr)
		}
		// a coded permanent failure would fail the same way on every redelivery
		if !pkgerrors.IsRetryable(err) {
			return eventType, metrics.ProjectionDropped, false
		}
		return eventType, metrics.ProjectionRetried, true
	}
	if err := w.manager.Complete(logCtx, consumerName, decoded.eventID); err != nil {
		// the rebuild is idempotent, so a lost marker only costs a replay
		w.logg.Error(logCtx, "failed to mark event processed", err)
	}
	return eventType, metrics.ProjectionApplied, false
}

func decodeMessage(msg *gcppubsub.Message) (*message, error) {
	stored, err := outbox.ParseEnvelope(msg.Data)
	if err != nil {
		return nil, err
	}

	eventType, err := enums.ParseOutboxEventType(strings.TrimSpace(msg.Attributes["event_type"]))
	if err != nil {
		return nil, fmt.Errorf("event_type: %w", err)
	}

	eventID := stored.ID()
	if eventID == uuid.Nil {
		eventID, err = uuid.Parse(strings.TrimSpace(msg.Attributes["event_id"]))
		if err != nil {
			return nil, fmt.Errorf("event_id: %w", err)
		}
	}

	return &message{eventID: eventID, eventType: eventType, version: stored.Version, data: stored.Data}, nil
}
