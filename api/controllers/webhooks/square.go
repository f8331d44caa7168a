package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/jasskhinda/facility-billing/api/responses"
	squarewebhook "github.com/jasskhinda/facility-billing/internal/webhooks/square"
	pkgerrors "github.com/jasskhinda/facility-billing/pkg/errors"
	"github.com/jasskhinda/facility-billing/pkg/logger"
	"github.com/jasskhinda/facility-billing/pkg/square"
)

const maxWebhookBody = 1 << 20

type SquareWebhookService interface {
	HandleEvent(ctx context.Context, event *squarewebhook.SquareWebhookEvent) error
}

// DeliveryTracker dedupes Square's at-least-once notifications.
type DeliveryTracker interface {
	Begin(ctx context.Context, eventID string) (squarewebhook.Delivery, error)
	Finish(ctx context.Context, eventID string) error
	Abandon(ctx context.Context, eventID string) error
}

type SignatureVerifier interface {
	VerifyWebhook(body []byte, header string) bool
}

// SquareWebhook applies Square payment notifications to the ledger.
// Processed events are acknowledged without work. An event another replica
// is still handling gets a 409 so Square redelivers it later, and a failed
// event is released for the same reason.
func SquareWebhook(svc SquareWebhookService, verifier SignatureVerifier, deliveries DeliveryTracker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil || verifier == nil || deliveries == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "square webhook not configured"))
			return
		}

		event, err := verifiedEvent(r, verifier)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		eventID := event.DeliveryID()
		if eventID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "event id missing"))
			return
		}
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{"square_event_id": eventID, "square_event_type": event.Type})
		}

		delivery, err := deliveries.Begin(ctx, eventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "track square delivery"))
			return
		}
		switch delivery {
		case squarewebhook.DeliveryProcessed:
			logInfo(ctx, logg, "square.webhook.duplicate")
			responses.WriteSuccess(w, nil)
			return
		case squarewebhook.DeliveryInProgress:
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "event is being processed"))
			return
		}

		if err := svc.HandleEvent(ctx, event); err != nil {
			if relErr := deliveries.Abandon(ctx, eventID); relErr != nil && logg != nil {
				logg.Error(ctx, "square.webhook.release_failed", relErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := deliveries.Finish(ctx, eventID); err != nil && logg != nil {
			// the ledger change is committed; a redelivery is a no-op there
			logg.Error(ctx, "square.webhook.finish_failed", err)
		}
		logInfo(ctx, logg, "square.webhook.processed")
		responses.WriteSuccess(w, nil)
	}
}

func verifiedEvent(r *http.Request, verifier SignatureVerifier) (*squarewebhook.SquareWebhookEvent, error) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body")
	}
	signature := strings.TrimSpace(r.Header.Get(square.SignatureHeader))
	if signature == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "square signature missing")
	}
	if !verifier.VerifyWebhook(payload, signature) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid square signature")
	}
	var event squarewebhook.SquareWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event")
	}
	return &event, nil
}

func logInfo(ctx context.Context, logg *logger.Logger, msg string) {
	if logg != nil {
		logg.Info(ctx, msg)
	}
}
