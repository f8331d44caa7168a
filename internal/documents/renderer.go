package documents

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jasskhinda/facility-billing/internal/billing"
	"github.com/jasskhinda/facility-billing/pkg/types"
)

const defaultIssuer = "Facility Transportation Billing"

const (
	ContentTypePDF  = "application/pdf"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Renderer turns a payment breakdown into downloadable documents.
type Renderer struct {
	issuer string
	loc    *time.Location
	now    func() time.Time
}

func NewRenderer(issuer string, loc *time.Location, now func() time.Time) *Renderer {
	if issuer == "" {
		issuer = defaultIssuer
	}
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Renderer{issuer: issuer, loc: loc, now: now}
}

// Document is a rendered export.
type Document struct {
	Filename    string
	ContentType string
	Body        []byte
}

type breakdownSource interface {
	GetPaymentBreakdown(ctx context.Context, facilityID uuid.UUID, month types.Month) (*billing.PaymentBreakdown, error)
}

// Exporter loads the breakdown through the aggregator, so exports share its
// authorization and amounts.
type Exporter struct {
	source   breakdownSource
	renderer *Renderer
}

func NewExporter(source breakdownSource, renderer *Renderer) (*Exporter, error) {
	if source == nil {
		return nil, errors.New("breakdown source is required")
	}
	if renderer == nil {
		return nil, errors.New("renderer is required")
	}
	return &Exporter{source: source, renderer: renderer}, nil
}

func (e *Exporter) InvoicePDF(ctx context.Context, facilityID uuid.UUID, month types.Month) (*Document, error) {
	b, err := e.source.GetPaymentBreakdown(ctx, facilityID, month)
	if err != nil {
		return nil, err
	}
	body, err := e.renderer.InvoicePDF(b)
	if err != nil {
		return nil, err
	}
	return &Document{Filename: Filename(facilityID, b, "pdf"), ContentType: ContentTypePDF, Body: body}, nil
}

func (e *Exporter) InvoiceWorkbook(ctx context.Context, facilityID uuid.UUID, month types.Month) (*Document, error) {
	b, err := e.source.GetPaymentBreakdown(ctx, facilityID, month)
	if err != nil {
		return nil, err
	}
	body, err := e.renderer.InvoiceWorkbook(b)
	if err != nil {
		return nil, err
	}
	return &Document{Filename: Filename(facilityID, b, "xlsx"), ContentType: ContentTypeXLSX, Body: body}, nil
}
