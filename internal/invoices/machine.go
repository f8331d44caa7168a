package invoices

import (
	"fmt"

	"github.com/jasskhinda/facility-billing/pkg/enums"
	pkgerrors "github.com/jasskhinda/facility-billing/pkg/errors"
)

// Event is a payment occurrence that may move an invoice.
type Event string

const (
	EventCheckWillMail         Event = "check_will_mail"
	EventCheckAlreadyMailed    Event = "check_already_mailed"
	EventCheckHandDelivered    Event = "check_hand_delivered"
	EventCheckVerified         Event = "check_verified"
	EventBankTransferSucceeded Event = "bank_transfer_succeeded"
	EventBankTransferPending   Event = "bank_transfer_pending"
	EventBankTransferSettled   Event = "bank_transfer_settled"
	EventCardSucceeded         Event = "card_succeeded"
	EventPaymentFailed         Event = "payment_failed"
)

// revertTarget marks a rule whose destination is the last settled state.
const revertTarget enums.InvoiceStatus = ""

var settledStates = []enums.InvoiceStatus{
	enums.InvoiceStatusUnpaid,
	enums.InvoiceStatusPaidWithCheckVerified,
	enums.InvoiceStatusPaidWithBankTransfer,
	enums.InvoiceStatusPaidWithCard,
}

var checkInFlightStates = []enums.InvoiceStatus{
	enums.InvoiceStatusCheckWillMail,
	enums.InvoiceStatusCheckInTransit,
	enums.InvoiceStatusCheckBeingVerified,
}

type rule struct {
	from []enums.InvoiceStatus
	to   enums.InvoiceStatus
}

// transitions is the only place invoice statuses are decided.
var transitions = map[Event]rule{
	EventCheckWillMail:         {from: settledStates, to: enums.InvoiceStatusCheckWillMail},
	EventCheckAlreadyMailed:    {from: settledStates, to: enums.InvoiceStatusCheckInTransit},
	EventCheckHandDelivered:    {from: settledStates, to: enums.InvoiceStatusCheckBeingVerified},
	EventCheckVerified:         {from: checkInFlightStates, to: enums.InvoiceStatusPaidWithCheckVerified},
	EventBankTransferSucceeded: {from: settledStates, to: enums.InvoiceStatusPaidWithBankTransfer},
	EventBankTransferPending:   {from: settledStates, to: enums.InvoiceStatusProcessingBankTransfer},
	EventBankTransferSettled:   {from: []enums.InvoiceStatus{enums.InvoiceStatusProcessingBankTransfer}, to: enums.InvoiceStatusPaidWithBankTransfer},
	EventCardSucceeded:         {from: settledStates, to: enums.InvoiceStatusPaidWithCard},
	EventPaymentFailed: {
		from: append(append([]enums.InvoiceStatus{}, checkInFlightStates...), enums.InvoiceStatusProcessingBankTransfer),
		to:   revertTarget,
	},
}

// State is an invoice status plus the settled status a failed in-flight
// payment falls back to.
type State struct {
	Status  enums.InvoiceStatus
	Settled enums.InvoiceStatus
}

// Initial is the state of a month with no payments.
func Initial() State {
	return State{Status: enums.InvoiceStatusUnpaid, Settled: enums.InvoiceStatusUnpaid}
}

// Restore rebuilds a state from a stored status.
func Restore(status enums.InvoiceStatus, settled enums.InvoiceStatus) State {
	if !status.IsValid() {
		return Initial()
	}
	if status.IsSettled() {
		return State{Status: status, Settled: status}
	}
	if !settled.IsSettled() {
		settled = enums.InvoiceStatusUnpaid
	}
	return State{Status: status, Settled: settled}
}

// Apply returns the state after ev, or a STATE_CONFLICT error when the table
// has no edge for it.
func (s State) Apply(ev Event) (State, error) {
	r, ok := transitions[ev]
	if !ok {
		return s, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown invoice event %q", ev))
	}
	if !contains(r.from, s.Status) {
		return s, pkgerrors.New(pkgerrors.CodeStateConflict, "invoice transition not allowed").
			WithDetails(map[string]any{"from": s.Status, "event": ev})
	}
	to := r.to
	if to == revertTarget {
		to = s.Settled
	}
	next := State{Status: to, Settled: s.Settled}
	if to.IsSettled() {
		next.Settled = to
	}
	return next, nil
}

// Allows reports whether ev has an edge from the current status.
func (s State) Allows(ev Event) bool {
	_, err := s.Apply(ev)
	return err == nil
}

// SubmissionEvent maps a newly appended payment onto its opening event.
func SubmissionEvent(method enums.PaymentMethod, status enums.PaymentStatus, sub *enums.CheckSubType) (Event, error) {
	switch method {
	case enums.PaymentMethodCreditCard, enums.PaymentMethodSavedCard:
		if status == enums.PaymentStatusCompleted {
			return EventCardSucceeded, nil
		}
	case enums.PaymentMethodBankTransfer:
		switch status {
		case enums.PaymentStatusCompleted:
			return EventBankTransferSucceeded, nil
		case enums.PaymentStatusPendingVerification:
			return EventBankTransferPending, nil
		}
	case enums.PaymentMethodCheckSubmit:
		if sub == nil {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "check sub-type required")
		}
		switch *sub {
		case enums.CheckSubTypeWillMail:
			return EventCheckWillMail, nil
		case enums.CheckSubTypeAlreadyMailed:
			return EventCheckAlreadyMailed, nil
		case enums.CheckSubTypeHandDelivered:
			return EventCheckHandDelivered, nil
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("no invoice event for %s payment in status %s", method, status))
}

// ResolutionEvent maps the settlement of a pending payment onto its event.
func ResolutionEvent(method enums.PaymentMethod, status enums.PaymentStatus) (Event, error) {
	if status == enums.PaymentStatusFailed {
		return EventPaymentFailed, nil
	}
	if status == enums.PaymentStatusCompleted {
		switch method {
		case enums.PaymentMethodCheckSubmit:
			return EventCheckVerified, nil
		case enums.PaymentMethodBankTransfer:
			return EventBankTransferSettled, nil
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("no resolution event for %s payment in status %s", method, status))
}

func contains(set []enums.InvoiceStatus, status enums.InvoiceStatus) bool {
	for _, candidate := range set {
		if candidate == status {
			return true
		}
	}
	return false
}
