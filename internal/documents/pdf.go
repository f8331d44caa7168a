package documents

import (
	"bytes"
	"fmt"

	"github.com/phpdave11/gofpdf"

	"github.com/jasskhinda/facility-billing/internal/billing"
)

var pdfColumns = []struct {
	title string
	width float64
	align string
}{
	{"Date", 28, "L"},
	{"Client", 52, "L"},
	{"Destination", 62, "L"},
	{"Status", 20, "C"},
	{"Amount", 28, "R"},
}

// InvoicePDF renders the monthly statement. Amounts come from the frozen
// trip prices and never from a recalculation.
func (r *Renderer) InvoicePDF(b *billing.PaymentBreakdown) ([]byte, error) {
	if b == nil {
		return nil, fmt.Errorf("breakdown is required")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Invoice "+b.Month.String(), false)
	pdf.SetAuthor(r.issuer, false)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, r.issuer)
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 7, "Monthly transportation invoice")
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 11)
	for _, row := range [][2]string{
		{"Facility", b.FacilityID.String()},
		{"Billing month", b.Month.String()},
		{"Status", StatusLabel(b.InvoiceStatus)},
		{"Generated", r.now().In(r.loc).Format("2006-01-02 15:04 MST")},
	} {
		pdf.CellFormat(40, 6, row[0]+":", "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, row[1], "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	for _, col := range pdfColumns {
		pdf.CellFormat(col.width, 7, col.title, "1", 0, col.align, true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, trip := range b.Trips {
		cells := []string{
			trip.PickupAt.In(r.loc).Format("Jan 02 15:04"),
			tr(truncate(trip.ClientName, 30)),
			tr(truncate(trip.DestinationAddress, 38)),
			bucketLabel(trip.Bucket),
			Money(trip.Price),
		}
		for i, col := range pdfColumns {
			pdf.CellFormat(col.width, 6, cells[i], "1", 0, col.align, false, 0, "")
		}
		pdf.Ln(-1)
	}
	if len(b.Trips) == 0 {
		pdf.CellFormat(0, 6, "No billable trips this month.", "1", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 11)
	if b.ShowPaidAmount {
		summaryRow(pdf, fmt.Sprintf("Previously paid (%d trips)", b.TripCounts.Paid), Money(b.PaidAmount))
	}
	if b.ShowNewBillableAmount {
		summaryRow(pdf, fmt.Sprintf("New billable (%d trips)", b.TripCounts.NewBillable), Money(b.NewBillableAmount))
	}
	pdf.SetFont("Helvetica", "B", 12)
	summaryRow(pdf, fmt.Sprintf("Total (%d trips)", b.TripCounts.Total), Money(b.TotalAmount))

	if len(b.PaymentHistory) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.Cell(0, 7, "Payments")
		pdf.Ln(7)
		pdf.SetFont("Helvetica", "", 9)
		for _, p := range b.PaymentHistory {
			line := fmt.Sprintf("%s  %s  %s  %s", p.PaymentDate.In(r.loc).Format("2006-01-02"), p.Method, p.Status, Money(p.Amount))
			if p.VerificationDate != nil {
				line += "  verified " + p.VerificationDate.In(r.loc).Format("2006-01-02")
			}
			pdf.Cell(0, 5, line)
			pdf.Ln(5)
		}
	}

	if b.PendingCheck {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.MultiCell(0, 5, "A check payment is awaiting verification and is not yet reflected as paid.", "", "", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render invoice pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func summaryRow(pdf *gofpdf.Fpdf, label, value string) {
	pdf.CellFormat(150, 7, label, "", 0, "R", false, 0, "")
	pdf.CellFormat(40, 7, value, "", 1, "R", false, 0, "")
}

func truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max-1]) + "."
}
