package square

import (
	"strings"
	"unicode/utf8"

	sq "github.com/square/square-go-sdk"

	pkgerrors "github.com/jasskhinda/facility-billing/pkg/errors"
)

// Square field limits for the requests billing sends.
const (
	maxPaymentReferenceLen = 40
	maxPaymentNoteLen      = 500
	maxCustomerNoteLen     = 500
	defaultCurrency        = "USD"
)

// CustomerCreateParams register a facility as a Square customer. ReferenceID
// is the facility reference so the customer can be found again by search.
type CustomerCreateParams struct {
	Email          string
	CompanyName    string
	ReferenceID    string
	Note           string
	IdempotencyKey string
}

func (p CustomerCreateParams) validate() error {
	if optional(p.ReferenceID) == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "square customer reference id required")
	}
	return nil
}

func (p CustomerCreateParams) toSquareRequest(idempotencyKey string) *sq.CreateCustomerRequest {
	return &sq.CreateCustomerRequest{
		IdempotencyKey: optional(idempotencyKey),
		EmailAddress:   optional(p.Email),
		CompanyName:    optional(p.CompanyName),
		ReferenceID:    optional(p.ReferenceID),
		Note:           optional(clip(p.Note, maxCustomerNoteLen)),
	}
}

// CardCreateParams vault a tokenized card on a facility's customer record.
type CardCreateParams struct {
	CustomerID        string
	SourceID          string
	CardholderName    string
	ReferenceID       string
	VerificationToken string
	IdempotencyKey    string
}

func (p CardCreateParams) validate() error {
	switch {
	case optional(p.CustomerID) == nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "square customer id required to save a card")
	case optional(p.SourceID) == nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "card token required")
	}
	return nil
}

func (p CardCreateParams) toSquareRequest(idempotencyKey string) *sq.CreateCardRequest {
	return &sq.CreateCardRequest{
		IdempotencyKey:    idempotencyKey,
		SourceID:          strings.TrimSpace(p.SourceID),
		VerificationToken: optional(p.VerificationToken),
		Card: &sq.Card{
			CustomerID:     optional(p.CustomerID),
			CardholderName: optional(p.CardholderName),
			ReferenceID:    optional(p.ReferenceID),
		},
	}
}

// PaymentCreateParams charge one monthly invoice. ReferenceID carries the
// billing month and Note is shown on the Square dashboard; both are clipped
// to Square's limits rather than rejected.
type PaymentCreateParams struct {
	AmountCents    int64
	Currency       string
	LocationID     string
	CustomerID     string
	SourceID       string
	IdempotencyKey string
	Note           string
	ReferenceID    string
	Autocomplete   bool
}

func (p PaymentCreateParams) validate() error {
	switch {
	case p.AmountCents <= 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive").
			WithDetails(map[string]any{"amount_cents": p.AmountCents})
	case optional(p.SourceID) == nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "payment source required")
	case optional(p.LocationID) == nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "square location id required")
	}
	return nil
}

func (p PaymentCreateParams) toSquareRequest(idempotencyKey string) *sq.CreatePaymentRequest {
	autocomplete := p.Autocomplete
	return &sq.CreatePaymentRequest{
		IdempotencyKey: idempotencyKey,
		LocationID:     optional(p.LocationID),
		CustomerID:     optional(p.CustomerID),
		SourceID:       strings.TrimSpace(p.SourceID),
		Autocomplete:   &autocomplete,
		AmountMoney:    money(p.AmountCents, p.Currency),
		Note:           optional(clip(p.Note, maxPaymentNoteLen)),
		ReferenceID:    optional(clip(p.ReferenceID, maxPaymentReferenceLen)),
	}
}

// optional returns nil for blank input so the SDK omits the field.
func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// clip shortens value to at most limit runes.
func clip(value string, limit int) string {
	value = strings.TrimSpace(value)
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit])
}

func int64Ptr(value int64) *int64 {
	return &value
}

func money(amountCents int64, currency string) *sq.Money {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		code = defaultCurrency
	}
	c := sq.Currency(code)
	return &sq.Money{
		Amount:   int64Ptr(amountCents),
		Currency: &c,
	}
}
