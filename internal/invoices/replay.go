package invoices

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jasskhinda/facility-billing/pkg/db/models"
	"github.com/jasskhinda/facility-billing/pkg/enums"
)

// Occurrence is one event derived from a ledger row.
type Occurrence struct {
	PaymentID uuid.UUID
	Event     Event
	At        time.Time
	createdAt time.Time
	phase     int
}

// Anomaly is a ledger event the transition table refused during replay.
type Anomaly struct {
	PaymentID uuid.UUID           `json:"payment_id"`
	Event     Event               `json:"event"`
	From      enums.InvoiceStatus `json:"from"`
	Reason    string              `json:"reason"`
}

// Projection is the invoice derived from a period's ledger.
type Projection struct {
	State          State
	TotalAmount    decimal.Decimal
	TripIDs        []uuid.UUID
	LastPaymentID  *uuid.UUID
	LastVerifiedAt *time.Time
	Notes          *string
	Anomalies      []Anomaly

	// payments whose opening event the table refused
	orphaned map[uuid.UUID]bool
}

// Orphaned reports whether a payment's opening event was refused, so the
// payment never moved the invoice.
func (p Projection) Orphaned(paymentID uuid.UUID) bool {
	return p.orphaned[paymentID]
}

// EventsFor expands a ledger row into the events of its lifecycle.
func EventsFor(p models.Payment) ([]Occurrence, error) {
	opening := p.Status
	if p.Status != enums.PaymentStatusCompleted || p.Method == enums.PaymentMethodCheckSubmit {
		opening = enums.PaymentStatusPendingVerification
	}
	if p.Method == enums.PaymentMethodBankTransfer && p.Status == enums.PaymentStatusCompleted &&
		p.VerificationDate != nil && !p.VerificationDate.Equal(p.PaymentDate) {
		opening = enums.PaymentStatusPendingVerification
	}

	open, err := SubmissionEvent(p.Method, opening, p.CheckSubType)
	if err != nil {
		return nil, err
	}
	out := []Occurrence{{PaymentID: p.ID, Event: open, At: p.PaymentDate, createdAt: p.CreatedAt}}
	if opening == p.Status {
		return out, nil
	}

	resolution, err := ResolutionEvent(p.Method, p.Status)
	if err != nil {
		return nil, err
	}
	at := p.UpdatedAt
	if p.Status == enums.PaymentStatusCompleted && p.VerificationDate != nil {
		at = *p.VerificationDate
	}
	if at.Before(p.PaymentDate) {
		at = p.PaymentDate
	}
	return append(out, Occurrence{PaymentID: p.ID, Event: resolution, At: at, createdAt: p.CreatedAt, phase: 1}), nil
}

// Replay folds a period's ledger through the transition table. Events the
// table refuses are reported as anomalies and skipped. Once a payment's
// opening event is refused its resolution is skipped too.
func Replay(payments []models.Payment) Projection {
	proj := Projection{State: Initial(), TotalAmount: decimal.Zero, orphaned: map[uuid.UUID]bool{}}
	occurrences := make([]Occurrence, 0, len(payments)*2)
	byID := make(map[uuid.UUID]models.Payment, len(payments))
	seenTrips := map[uuid.UUID]bool{}

	for _, p := range payments {
		byID[p.ID] = p
		events, err := EventsFor(p)
		if err != nil {
			proj.Anomalies = append(proj.Anomalies, Anomaly{PaymentID: p.ID, From: proj.State.Status, Reason: err.Error()})
			continue
		}
		occurrences = append(occurrences, events...)

		if p.Status == enums.PaymentStatusFailed {
			continue
		}
		proj.TotalAmount = proj.TotalAmount.Add(p.Amount)
		for _, id := range p.TripIDs {
			if !seenTrips[id] {
				seenTrips[id] = true
				proj.TripIDs = append(proj.TripIDs, id)
			}
		}
	}

	sort.SliceStable(occurrences, func(i, j int) bool {
		a, b := occurrences[i], occurrences[j]
		if !a.At.Equal(b.At) {
			return a.At.Before(b.At)
		}
		if !a.createdAt.Equal(b.createdAt) {
			return a.createdAt.Before(b.createdAt)
		}
		if a.PaymentID != b.PaymentID {
			return a.PaymentID.String() < b.PaymentID.String()
		}
		return a.phase < b.phase
	})

	for _, occ := range occurrences {
		if occ.phase > 0 && proj.orphaned[occ.PaymentID] {
			continue
		}
		next, err := proj.State.Apply(occ.Event)
		if err != nil {
			if occ.phase == 0 {
				proj.orphaned[occ.PaymentID] = true
			}
			proj.Anomalies = append(proj.Anomalies, Anomaly{
				PaymentID: occ.PaymentID,
				Event:     occ.Event,
				From:      proj.State.Status,
				Reason:    err.Error(),
			})
			continue
		}
		proj.State = next
		id := occ.PaymentID
		proj.LastPaymentID = &id

		p := byID[occ.PaymentID]
		switch occ.Event {
		case EventPaymentFailed:
			proj.Notes = p.FailureReason
		case EventCheckVerified, EventBankTransferSettled, EventBankTransferSucceeded, EventCardSucceeded:
			if p.VerificationDate != nil {
				v := *p.VerificationDate
				if proj.LastVerifiedAt == nil || v.After(*proj.LastVerifiedAt) {
					proj.LastVerifiedAt = &v
				}
			}
			if p.VerificationNotes != nil {
				proj.Notes = p.VerificationNotes
			}
		}
	}
	return proj
}
