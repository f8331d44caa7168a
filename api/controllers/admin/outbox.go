package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jasskhinda/facility-billing/api/responses"
	"github.com/jasskhinda/facility-billing/api/validators"
	"github.com/jasskhinda/facility-billing/pkg/db/models"
	"github.com/jasskhinda/facility-billing/pkg/enums"
	pkgerrors "github.com/jasskhinda/facility-billing/pkg/errors"
	"github.com/jasskhinda/facility-billing/pkg/logger"
	"github.com/jasskhinda/facility-billing/pkg/outbox"
)

const maxDLQListLimit = 200

type DLQReader interface {
	List(ctx context.Context, query outbox.DLQQuery) ([]models.OutboxDLQ, error)
	CountByReason(ctx context.Context) ([]outbox.DLQReasonCount, error)
}

type dlqEntryView struct {
	EventID      uuid.UUID                  `json:"event_id"`
	EventType    enums.OutboxEventType      `json:"event_type"`
	AggregateID  uuid.UUID                  `json:"aggregate_id"`
	FacilityID   *uuid.UUID                 `json:"facility_id,omitempty"`
	Month        *string                    `json:"month,omitempty"`
	Reason       enums.OutboxDLQErrorReason `json:"reason"`
	ErrorMessage *string                    `json:"error_message,omitempty"`
	Attempts     int                        `json:"attempts"`
	FailedAt     time.Time                  `json:"failed_at"`
}

type dlqResponse struct {
	Entries []dlqEntryView          `json:"entries"`
	Totals  []outbox.DLQReasonCount `json:"totals"`
}

// OutboxDLQ lists billing events the publisher parked, newest first, with
// per-reason totals across the whole table.
func OutboxDLQ(reader DLQReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if reader == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dlq unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, maxDLQListLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		reason, err := validators.ParseQueryEnum(r, "reason", enums.ParseOutboxDLQErrorReason)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		eventType, err := validators.ParseQueryEnum(r, "event_type", enums.ParseOutboxEventType)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		facilityID, err := validators.ParseQueryUUID(r, "facility_id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		rows, err := reader.List(ctx, outbox.DLQQuery{Reason: reason, EventType: eventType, FacilityID: facilityID, Limit: limit})
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list outbox dlq"))
			return
		}
		totals, err := reader.CountByReason(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "count outbox dlq"))
			return
		}

		payload := dlqResponse{Entries: make([]dlqEntryView, len(rows)), Totals: totals}
		if payload.Totals == nil {
			payload.Totals = []outbox.DLQReasonCount{}
		}
		for i, row := range rows {
			payload.Entries[i] = dlqEntryView{
				EventID:      row.EventID,
				EventType:    row.EventType,
				AggregateID:  row.AggregateID,
				FacilityID:   row.FacilityID,
				Month:        row.Month,
				Reason:       row.ErrorReason,
				ErrorMessage: row.ErrorMessage,
				Attempts:     row.AttemptCount,
				FailedAt:     row.FailedAt.UTC(),
			}
		}
		responses.WriteSuccess(w, payload)
	}
}

type DLQReplayer interface {
	Replay(ctx context.Context, eventID uuid.UUID, force bool) (*models.OutboxDLQ, error)
}

type replayView struct {
	EventID   uuid.UUID                  `json:"event_id"`
	EventType enums.OutboxEventType      `json:"event_type"`
	Reason    enums.OutboxDLQErrorReason `json:"previous_reason"`
	Forced    bool                       `json:"forced"`
}

// ReplayOutboxDLQ requeues a parked event. Events parked for anything other
// than exhausted retries need ?force=true.
func ReplayOutboxDLQ(replayer DLQReplayer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if replayer == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dlq replay unavailable"))
			return
		}
		eventID, err := validators.ParseUUIDParam(r, "eventId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		force, err := validators.ParseQueryBool(r, "force")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		parked, err := replayer.Replay(ctx, eventID, force)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		logg.Info(logg.WithFields(ctx, map[string]any{
			"event_id":        eventID.String(),
			"event_type":      parked.EventType,
			"previous_reason": parked.ErrorReason,
			"forced":          force,
		}), "outbox event requeued from dlq")
		responses.WriteSuccessStatus(w, http.StatusAccepted, replayView{
			EventID:   eventID,
			EventType: parked.EventType,
			Reason:    parked.ErrorReason,
			Forced:    force,
		})
	}
}
