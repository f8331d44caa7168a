package documents

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/jasskhinda/facility-billing/internal/billing"
)

const (
	tripsSheet    = "Trips"
	paymentsSheet = "Payments"
)

var tripHeaders = []string{"Trip ID", "Pickup", "Client", "Pickup address", "Destination", "Status", "Bucket", "Amount"}

var paymentHeaders = []string{"Payment ID", "Payment date", "Method", "Status", "Check type", "Verified", "Amount"}

// InvoiceWorkbook renders the month as a spreadsheet with one sheet of trips
// and one of payments.
func (r *Renderer) InvoiceWorkbook(b *billing.PaymentBreakdown) ([]byte, error) {
	if b == nil {
		return nil, fmt.Errorf("breakdown is required")
	}
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(tripsSheet)
	if err != nil {
		return nil, fmt.Errorf("create trips sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if _, err := f.NewSheet(paymentsSheet); err != nil {
		return nil, fmt.Errorf("create payments sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "#000000", Style: 1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	moneyStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return nil, fmt.Errorf("money style: %w", err)
	}

	if err := f.SetCellValue(tripsSheet, "A1", fmt.Sprintf("%s invoice %s", r.issuer, b.Month.String())); err != nil {
		return nil, err
	}
	if err := f.SetCellValue(tripsSheet, "A2", "Status: "+StatusLabel(b.InvoiceStatus)); err != nil {
		return nil, err
	}
	if err := writeHeader(f, tripsSheet, 4, tripHeaders, headerStyle); err != nil {
		return nil, err
	}

	row := 5
	for _, trip := range b.Trips {
		price, _ := trip.Price.Float64()
		values := []any{
			trip.TripID.String(),
			trip.PickupAt.In(r.loc).Format("2006-01-02 15:04"),
			trip.ClientName,
			trip.PickupAddress,
			trip.DestinationAddress,
			string(trip.Status),
			bucketLabel(trip.Bucket),
			price,
		}
		if err := writeRow(f, tripsSheet, row, values); err != nil {
			return nil, err
		}
		row++
	}
	amountCol := len(tripHeaders)
	if err := styleColumn(f, tripsSheet, amountCol, 5, row+3, moneyStyle); err != nil {
		return nil, err
	}

	row++
	for _, total := range []struct {
		label  string
		amount decimal.Decimal
		show   bool
	}{
		{"Previously paid", b.PaidAmount, b.ShowPaidAmount},
		{"New billable", b.NewBillableAmount, b.ShowNewBillableAmount},
		{"Total", b.TotalAmount, true},
	} {
		if !total.show {
			continue
		}
		label, _ := excelize.CoordinatesToCellName(amountCol-1, row)
		value, _ := excelize.CoordinatesToCellName(amountCol, row)
		if err := f.SetCellValue(tripsSheet, label, total.label); err != nil {
			return nil, err
		}
		amount, _ := total.amount.Float64()
		if err := f.SetCellValue(tripsSheet, value, amount); err != nil {
			return nil, err
		}
		if err := f.SetCellStyle(tripsSheet, value, value, moneyStyle); err != nil {
			return nil, err
		}
		row++
	}

	if err := writeHeader(f, paymentsSheet, 1, paymentHeaders, headerStyle); err != nil {
		return nil, err
	}
	for i, p := range b.PaymentHistory {
		amount, _ := p.Amount.Float64()
		checkType := ""
		if p.CheckSubType != nil {
			checkType = string(*p.CheckSubType)
		}
		verified := ""
		if p.VerificationDate != nil {
			verified = p.VerificationDate.In(r.loc).Format("2006-01-02 15:04")
		}
		values := []any{
			p.ID.String(),
			p.PaymentDate.In(r.loc).Format("2006-01-02 15:04"),
			string(p.Method),
			string(p.Status),
			checkType,
			verified,
			amount,
		}
		if err := writeRow(f, paymentsSheet, i+2, values); err != nil {
			return nil, err
		}
	}
	if err := styleColumn(f, paymentsSheet, len(paymentHeaders), 2, len(b.PaymentHistory)+1, moneyStyle); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeHeader(f *excelize.File, sheet string, row int, headers []string, style int) error {
	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return err
		}
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheet, col, col, 20); err != nil {
			return err
		}
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func styleColumn(f *excelize.File, sheet string, col, fromRow, toRow, style int) error {
	if toRow < fromRow {
		return nil
	}
	top, err := excelize.CoordinatesToCellName(col, fromRow)
	if err != nil {
		return err
	}
	bottom, err := excelize.CoordinatesToCellName(col, toRow)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, top, bottom, style)
}
