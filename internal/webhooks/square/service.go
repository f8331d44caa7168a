package squarewebhook

import (
	"context"
	"strings"
	"time"

	pkgerrors "github.com/jasskhinda/facility-billing/pkg/errors"
	"github.com/jasskhinda/facility-billing/pkg/logger"
)

type settlementHandler interface {
	HandleProcessorUpdate(ctx context.Context, processorPaymentID, status string, at time.Time) error
}

type ServiceParams struct {
	Settlement settlementHandler
	Logger     *logger.Logger
}

// Service applies Square payment notifications to pending ledger rows.
type Service struct {
	settlement settlementHandler
	logg       *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Settlement == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement handler required")
	}
	return &Service{settlement: params.Settlement, logg: params.Logger}, nil
}

type SquareWebhookEvent struct {
	EventID    string            `json:"event_id"`
	MerchantID string            `json:"merchant_id"`
	Type       string            `json:"type"`
	CreatedAt  string            `json:"created_at"`
	Data       SquareWebhookData `json:"data"`
}

// DeliveryID identifies the notification; older payloads only carry the
// object id.
func (e *SquareWebhookEvent) DeliveryID() string {
	if id := strings.TrimSpace(e.EventID); id != "" {
		return id
	}
	return strings.TrimSpace(e.Data.ID)
}

type SquareWebhookData struct {
	Type   string              `json:"type"`
	ID     string              `json:"id"`
	Object SquareWebhookObject `json:"object"`
}

type SquareWebhookObject struct {
	Payment *SquarePayment `json:"payment"`
}

// SquarePayment is the subset of the Square payment object read from
// notifications.
type SquarePayment struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	SourceType  string `json:"source_type"`
	ReferenceID string `json:"reference_id"`
	UpdatedAt   string `json:"updated_at"`
}

// HandleEvent processes payment lifecycle events. Other event types are
// acknowledged and ignored.
func (s *Service) HandleEvent(ctx context.Context, event *SquareWebhookEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "square event required")
	}

	switch strings.ToLower(event.Type) {
	case "payment.created", "payment.updated":
		payment := event.Data.Object.Payment
		if payment == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment payload missing")
		}
		paymentID := strings.TrimSpace(payment.ID)
		if paymentID == "" {
			paymentID = strings.TrimSpace(event.Data.ID)
		}
		if paymentID == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment id missing")
		}
		if s.logg != nil {
			s.logg.Info(s.logg.WithFields(ctx, map[string]any{
				"processor_payment_id": paymentID,
				"processor_status":     payment.Status,
				"event_type":           event.Type,
			}), "square payment notification")
		}
		return s.settlement.HandleProcessorUpdate(ctx, paymentID, payment.Status, parseTime(payment.UpdatedAt))
	default:
		return nil
	}
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}
