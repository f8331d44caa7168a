package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"

	pkgerrors "github.com/jasskhinda/facility-billing/pkg/errors"
	"github.com/jasskhinda/facility-billing/pkg/square"
)

// Processor payment states as reported by Square.
const (
	ProcessorApproved  = "APPROVED"
	ProcessorPending   = "PENDING"
	ProcessorCompleted = "COMPLETED"
	ProcessorCanceled  = "CANCELED"
	ProcessorFailed    = "FAILED"
)

// GatewayPayment is the processor's view of a charge.
type GatewayPayment struct {
	ID        string
	Status    string
	UpdatedAt time.Time
}

// ChargeInput is one charge against a card or bank account source.
type ChargeInput struct {
	AmountCents    int64
	CustomerID     string
	SourceID       string
	IdempotencyKey string
	ReferenceID    string
	Note           string
}

// VaultInput stores a card nonce on a customer.
type VaultInput struct {
	CustomerID        string
	Nonce             string
	CardholderName    string
	VerificationToken string
	IdempotencyKey    string
}

// Gateway is the payment processor surface used by the processor and the
// settlement sync.
type Gateway interface {
	EnsureCustomer(ctx context.Context, facilityID uuid.UUID) (string, error)
	VaultCard(ctx context.Context, input VaultInput) (string, error)
	Charge(ctx context.Context, input ChargeInput) (*GatewayPayment, error)
	GetPayment(ctx context.Context, processorPaymentID string) (*GatewayPayment, error)
}

type squareClient interface {
	EnsureCustomer(ctx context.Context, params square.CustomerCreateParams) (*sq.Customer, error)
	CreateCard(ctx context.Context, params square.CardCreateParams) (*sq.Card, error)
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error)
}

// SquareGateway adapts the shared Square client.
type SquareGateway struct {
	client squareClient
}

func NewSquareGateway(client squareClient) (*SquareGateway, error) {
	if client == nil {
		return nil, errors.New("square client is required")
	}
	return &SquareGateway{client: client}, nil
}

// CustomerReference is the Square reference id for a facility.
func CustomerReference(facilityID uuid.UUID) string {
	return "facility:" + facilityID.String()
}

func (g *SquareGateway) EnsureCustomer(ctx context.Context, facilityID uuid.UUID) (string, error) {
	customer, err := g.client.EnsureCustomer(ctx, square.CustomerCreateParams{
		ReferenceID:    CustomerReference(facilityID),
		CompanyName:    "Facility " + facilityID.String(),
		IdempotencyKey: square.DeriveIdempotencyKey("customer", facilityID.String()),
	})
	if err != nil {
		return "", err
	}
	if customer == nil {
		return "", pkgerrors.New(pkgerrors.CodeProcessor, "square customer missing")
	}
	id := strings.TrimSpace(stringValue(customer.GetID()))
	if id == "" {
		return "", pkgerrors.New(pkgerrors.CodeProcessor, "square customer id missing")
	}
	return id, nil
}

func (g *SquareGateway) VaultCard(ctx context.Context, input VaultInput) (string, error) {
	card, err := g.client.CreateCard(ctx, square.CardCreateParams{
		CustomerID:        input.CustomerID,
		SourceID:          input.Nonce,
		CardholderName:    input.CardholderName,
		VerificationToken: input.VerificationToken,
		IdempotencyKey:    input.IdempotencyKey,
	})
	if err != nil {
		return "", err
	}
	if card == nil || strings.TrimSpace(stringValue(card.GetID())) == "" {
		return "", pkgerrors.New(pkgerrors.CodeProcessor, "square card missing id")
	}
	return *card.GetID(), nil
}

func (g *SquareGateway) Charge(ctx context.Context, input ChargeInput) (*GatewayPayment, error) {
	payment, err := g.client.CreatePayment(ctx, square.PaymentCreateParams{
		AmountCents:    input.AmountCents,
		Currency:       "USD",
		CustomerID:     input.CustomerID,
		SourceID:       input.SourceID,
		IdempotencyKey: input.IdempotencyKey,
		ReferenceID:    input.ReferenceID,
		Note:           input.Note,
		Autocomplete:   true,
	})
	if err != nil {
		return nil, err
	}
	return fromSquare(payment)
}

func (g *SquareGateway) GetPayment(ctx context.Context, processorPaymentID string) (*GatewayPayment, error) {
	payment, err := g.client.GetPayment(ctx, processorPaymentID)
	if err != nil {
		return nil, err
	}
	return fromSquare(payment)
}

func fromSquare(payment *sq.Payment) (*GatewayPayment, error) {
	if payment == nil || strings.TrimSpace(stringValue(payment.GetID())) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeProcessor, "square payment missing id")
	}
	out := &GatewayPayment{
		ID:     *payment.GetID(),
		Status: strings.ToUpper(stringValue(payment.GetStatus())),
	}
	if raw := stringValue(payment.GetUpdatedAt()); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			out.UpdatedAt = ts.UTC()
		}
	}
	return out, nil
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
