package billing

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/jasskhinda/facility-billing/api/responses"
	"github.com/jasskhinda/facility-billing/api/validators"
	billingsvc "github.com/jasskhinda/facility-billing/internal/billing"
	"github.com/jasskhinda/facility-billing/internal/documents"
	"github.com/jasskhinda/facility-billing/internal/invoices"
	pkgerrors "github.com/jasskhinda/facility-billing/pkg/errors"
	"github.com/jasskhinda/facility-billing/pkg/logger"
	"github.com/jasskhinda/facility-billing/pkg/types"
)

type BreakdownService interface {
	GetPaymentBreakdown(ctx context.Context, facilityID uuid.UUID, month types.Month) (*billingsvc.PaymentBreakdown, error)
}

type InvoiceReader interface {
	GetInvoiceStatus(ctx context.Context, facilityID uuid.UUID, month types.Month) (*invoices.InvoiceView, error)
}

type DocumentService interface {
	InvoicePDF(ctx context.Context, facilityID uuid.UUID, month types.Month) (*documents.Document, error)
	InvoiceWorkbook(ctx context.Context, facilityID uuid.UUID, month types.Month) (*documents.Document, error)
}

// DocumentFormat selects the export rendered by InvoiceDocument.
type DocumentFormat string

const (
	FormatPDF  DocumentFormat = "pdf"
	FormatXLSX DocumentFormat = "xlsx"
)

func PaymentBreakdown(svc BreakdownService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}
		facilityID, month, err := parsePeriod(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		breakdown, err := svc.GetPaymentBreakdown(ctx, facilityID, month)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, breakdown)
	}
}

func InvoiceStatus(svc InvoiceReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoice service unavailable"))
			return
		}
		facilityID, month, err := parsePeriod(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		view, err := svc.GetInvoiceStatus(ctx, facilityID, month)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func InvoiceDocument(svc DocumentService, format DocumentFormat, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "document service unavailable"))
			return
		}
		facilityID, month, err := parsePeriod(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var doc *documents.Document
		switch format {
		case FormatPDF:
			doc, err = svc.InvoicePDF(ctx, facilityID, month)
		case FormatXLSX:
			doc, err = svc.InvoiceWorkbook(ctx, facilityID, month)
		default:
			err = pkgerrors.New(pkgerrors.CodeNotFound, "unknown document format")
		}
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteFile(w, doc.ContentType, doc.Filename, doc.Body)
	}
}

func parsePeriod(r *http.Request) (uuid.UUID, types.Month, error) {
	facilityID, err := validators.ParseUUIDParam(r, "facilityId")
	if err != nil {
		return uuid.Nil, types.Month{}, err
	}
	month, err := validators.ParseMonthParam(r, "month")
	if err != nil {
		return uuid.Nil, types.Month{}, err
	}
	return facilityID, month, nil
}
