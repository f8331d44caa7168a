package enums

import "fmt"

// InvoiceStatus is the payment status shown on a facility's monthly invoice.
type InvoiceStatus string

const (
	InvoiceStatusUnpaid                 InvoiceStatus = "UNPAID"
	InvoiceStatusCheckWillMail          InvoiceStatus = "CHECK_WILL_MAIL"
	InvoiceStatusCheckInTransit         InvoiceStatus = "CHECK_IN_TRANSIT"
	InvoiceStatusCheckBeingVerified     InvoiceStatus = "CHECK_BEING_VERIFIED"
	InvoiceStatusPaidWithCheckVerified  InvoiceStatus = "PAID_WITH_CHECK_VERIFIED"
	InvoiceStatusProcessingBankTransfer InvoiceStatus = "PROCESSING_BANK_TRANSFER"
	InvoiceStatusPaidWithBankTransfer   InvoiceStatus = "PAID_WITH_BANK_TRANSFER"
	InvoiceStatusPaidWithCard           InvoiceStatus = "PAID_WITH_CARD"
)

var validInvoiceStatuses = []InvoiceStatus{
	InvoiceStatusUnpaid,
	InvoiceStatusCheckWillMail,
	InvoiceStatusCheckInTransit,
	InvoiceStatusCheckBeingVerified,
	InvoiceStatusPaidWithCheckVerified,
	InvoiceStatusProcessingBankTransfer,
	InvoiceStatusPaidWithBankTransfer,
	InvoiceStatusPaidWithCard,
}

// String implements fmt.Stringer.
func (i InvoiceStatus) String() string {
	return string(i)
}

// IsValid reports whether the value is a known InvoiceStatus.
func (i InvoiceStatus) IsValid() bool {
	for _, candidate := range validInvoiceStatuses {
		if candidate == i {
			return true
		}
	}
	return false
}

// ParseInvoiceStatus converts raw input into a InvoiceStatus.
func ParseInvoiceStatus(value string) (InvoiceStatus, error) {
	for _, candidate := range validInvoiceStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid invoice status %q", value)
}

// IsSettled reports whether the status is UNPAID or one of the PAID_* states,
// i.e. no payment is in flight.
func (i InvoiceStatus) IsSettled() bool {
	switch i {
	case InvoiceStatusUnpaid, InvoiceStatusPaidWithCard, InvoiceStatusPaidWithBankTransfer, InvoiceStatusPaidWithCheckVerified:
		return true
	default:
		return false
	}
}

// IsPaid reports whether the status is one of the PAID_* states.
func (i InvoiceStatus) IsPaid() bool {
	return i.IsSettled() && i != InvoiceStatusUnpaid
}

// IsCheckInFlight reports whether a check payment awaits verification.
func (i InvoiceStatus) IsCheckInFlight() bool {
	switch i {
	case InvoiceStatusCheckWillMail, InvoiceStatusCheckInTransit, InvoiceStatusCheckBeingVerified:
		return true
	default:
		return false
	}
}
