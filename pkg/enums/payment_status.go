package enums

import "fmt"

// PaymentStatus tracks a ledger payment. Payments open as
// pending_verification (checks, ACH, uncaptured cards) or completed (captured
// cards); pending payments later settle to completed or failed. Completed and
// failed are final.
type PaymentStatus string

const (
	PaymentStatusPendingVerification PaymentStatus = "pending_verification"
	PaymentStatusCompleted           PaymentStatus = "completed"
	PaymentStatusFailed              PaymentStatus = "failed"
)

var paymentStatusTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPendingVerification: {PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusCompleted:           nil,
	PaymentStatusFailed:              nil,
}

func (p PaymentStatus) String() string {
	return string(p)
}

func (p PaymentStatus) IsValid() bool {
	_, ok := paymentStatusTransitions[p]
	return ok
}

// IsTerminal reports whether the payment can no longer change status.
// Unknown statuses count as terminal.
func (p PaymentStatus) IsTerminal() bool {
	return len(paymentStatusTransitions[p]) == 0
}

// CanTransitionTo reports whether next is a legal successor of p.
func (p PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, candidate := range paymentStatusTransitions[p] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	status := PaymentStatus(value)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid payment status %q", value)
	}
	return status, nil
}
