package documents

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jasskhinda/facility-billing/internal/billing"
	"github.com/jasskhinda/facility-billing/pkg/enums"
)

// Money renders an amount as US dollars with thousands separators.
func Money(amount decimal.Decimal) string {
	fixed := amount.Abs().StringFixed(2)
	whole, cents, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	sign := ""
	if amount.IsNegative() {
		sign = "-"
	}
	return fmt.Sprintf("%s$%s.%s", sign, b.String(), cents)
}

// Filename is the download name for a facility month export.
func Filename(facilityID uuid.UUID, b *billing.PaymentBreakdown, ext string) string {
	short := facilityID.String()
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("invoice-%s-%s.%s", short, b.Month.String(), ext)
}

var statusLabels = map[enums.InvoiceStatus]string{
	enums.InvoiceStatusUnpaid:                 "Unpaid",
	enums.InvoiceStatusCheckWillMail:          "Check will be mailed",
	enums.InvoiceStatusCheckInTransit:         "Check in transit",
	enums.InvoiceStatusCheckBeingVerified:     "Check being verified",
	enums.InvoiceStatusPaidWithCheckVerified:  "Paid by check (verified)",
	enums.InvoiceStatusProcessingBankTransfer: "Bank transfer processing",
	enums.InvoiceStatusPaidWithBankTransfer:   "Paid by bank transfer",
	enums.InvoiceStatusPaidWithCard:           "Paid by card",
}

// StatusLabel is the human readable invoice status.
func StatusLabel(status enums.InvoiceStatus) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return string(status)
}

func bucketLabel(bucket billing.Bucket) string {
	if bucket == billing.BucketPaid {
		return "Paid"
	}
	return "Due"
}
