package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jasskhinda/facility-billing/pkg/db/dbtest"
	"github.com/jasskhinda/facility-billing/pkg/db/models"
	"github.com/jasskhinda/facility-billing/pkg/enums"
	"github.com/jasskhinda/facility-billing/pkg/pagination"
	"github.com/jasskhinda/facility-billing/pkg/types"
)

var june = types.Month{Year: 2025, Month: time.June}

func checkEntry(facility uuid.UUID, sub enums.CheckSubType) Entry {
	return Entry{
		FacilityID:     facility,
		Month:          june,
		Amount:         decimal.RequireFromString("240.50"),
		Method:         enums.PaymentMethodCheckSubmit,
		Status:         enums.PaymentStatusPendingVerification,
		CheckSubType:   &sub,
		TripIDs:        []uuid.UUID{uuid.New()},
		IdempotencyKey: uuid.NewString(),
		PaymentDate:    time.Date(2025, time.June, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewPaymentValidatesEntry(t *testing.T) {
	facility := uuid.New()
	verified := time.Date(2025, time.June, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		mutate func(*Entry)
	}{
		{"missing facility", func(e *Entry) { e.FacilityID = uuid.Nil }},
		{"missing month", func(e *Entry) { e.Month = types.Month{} }},
		{"zero amount", func(e *Entry) { e.Amount = decimal.Zero }},
		{"unknown method", func(e *Entry) { e.Method = "cash" }},
		{"missing idempotency key", func(e *Entry) { e.IdempotencyKey = "" }},
		{"check marked completed", func(e *Entry) {
			e.Status = enums.PaymentStatusCompleted
			e.VerificationDate = &verified
		}},
		{"check without sub-type", func(e *Entry) { e.CheckSubType = nil }},
		{"pending with verification date", func(e *Entry) { e.VerificationDate = &verified }},
		{"appended as failed", func(e *Entry) { e.Status = enums.PaymentStatusFailed }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := checkEntry(facility, enums.CheckSubTypeWillMail)
			tt.mutate(&entry)
			_, err := NewPayment(entry)
			require.Error(t, err)
		})
	}

	card := Entry{
		FacilityID:       facility,
		Month:            june,
		Amount:           decimal.NewFromInt(80),
		Method:           enums.PaymentMethodCreditCard,
		Status:           enums.PaymentStatusCompleted,
		IdempotencyKey:   "key-1",
		PaymentDate:      verified,
		VerificationDate: &verified,
		Metadata:         map[string]any{"card_last4": "1111"},
	}
	payment, err := NewPayment(card)
	require.NoError(t, err)
	assert.Equal(t, "2025-06", payment.Month)
	assert.JSONEq(t, `{"card_last4":"1111"}`, string(payment.Metadata))
}

func TestRepositoryTransitionsExactlyOnce(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()

	payment, err := NewPayment(checkEntry(uuid.New(), enums.CheckSubTypeAlreadyMailed))
	require.NoError(t, err)
	require.NoError(t, repo.Insert(ctx, payment))

	verifiedAt := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)
	notes := "deposited"
	won, err := repo.MarkVerified(ctx, VerifyUpdate{PaymentID: payment.ID, VerificationDate: verifiedAt, Notes: &notes})
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.MarkVerified(ctx, VerifyUpdate{PaymentID: payment.ID, VerificationDate: verifiedAt.Add(time.Hour)})
	require.NoError(t, err)
	assert.False(t, won)

	won, err = repo.MarkFailed(ctx, FailUpdate{PaymentID: payment.ID, Reason: "bounced"})
	require.NoError(t, err)
	assert.False(t, won)

	stored, err := repo.FindByID(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCompleted, stored.Status)
	require.NotNil(t, stored.VerificationDate)
	assert.True(t, stored.VerificationDate.Equal(verifiedAt))
	require.NotNil(t, stored.VerificationNotes)
	assert.Equal(t, "deposited", *stored.VerificationNotes)
	assert.Len(t, stored.TripIDs, 1)
}

func TestLatestVerifiedAndPendingCheck(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()
	facility := uuid.New()

	latest, err := repo.LatestVerified(ctx, facility, june.String())
	require.NoError(t, err)
	assert.Nil(t, latest)

	for _, day := range []int{5, 20, 12} {
		verified := time.Date(2025, time.June, day, 0, 0, 0, 0, time.UTC)
		payment, err := NewPayment(Entry{
			FacilityID:       facility,
			Month:            june,
			Amount:           decimal.NewFromInt(int64(day)),
			Method:           enums.PaymentMethodCreditCard,
			Status:           enums.PaymentStatusCompleted,
			IdempotencyKey:   uuid.NewString(),
			PaymentDate:      verified,
			VerificationDate: &verified,
		})
		require.NoError(t, err)
		require.NoError(t, repo.Insert(ctx, payment))
	}

	latest, err = repo.LatestVerified(ctx, facility, june.String())
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 20, latest.VerificationDate.Day())

	pending, err := repo.HasPendingCheck(ctx, facility, june.String())
	require.NoError(t, err)
	assert.False(t, pending)

	check, err := NewPayment(checkEntry(facility, enums.CheckSubTypeHandDelivered))
	require.NoError(t, err)
	require.NoError(t, repo.Insert(ctx, check))

	pending, err = repo.HasPendingCheck(ctx, facility, june.String())
	require.NoError(t, err)
	assert.True(t, pending)

	all, err := repo.ListByFacilityMonth(ctx, facility, june.String())
	require.NoError(t, err)
	assert.Len(t, all, 4)
	totals := Summarize(all)
	assert.True(t, totals.Completed.Equal(decimal.NewFromInt(37)))
	assert.True(t, totals.Pending.Equal(decimal.RequireFromString("240.50")))
	assert.True(t, totals.Outstanding().Equal(decimal.RequireFromString("277.50")))
}

func TestListPendingPaginates(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()

	base := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		payment, err := NewPayment(checkEntry(uuid.New(), enums.CheckSubTypeWillMail))
		require.NoError(t, err)
		payment.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Insert(ctx, payment))
	}

	first, next, err := repo.ListPending(ctx, PendingQuery{Params: pagination.Params{Limit: 3}})
	require.NoError(t, err)
	require.Len(t, first, 3)
	require.NotNil(t, next)

	second, next, err := repo.ListPending(ctx, PendingQuery{Params: pagination.Params{Limit: 3, Cursor: pagination.EncodeCursor(*next)}})
	require.NoError(t, err)
	assert.Len(t, second, 2)
	assert.Nil(t, next)

	seen := map[uuid.UUID]bool{}
	for _, p := range append(first, second...) {
		assert.False(t, seen[p.ID])
		seen[p.ID] = true
	}

	card := enums.PaymentMethodBankTransfer
	none, _, err := repo.ListPending(ctx, PendingQuery{Method: &card})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListTouchedPeriods(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()
	facility := uuid.New()

	for i := 0; i < 2; i++ {
		payment, err := NewPayment(checkEntry(facility, enums.CheckSubTypeWillMail))
		require.NoError(t, err)
		require.NoError(t, repo.Insert(ctx, payment))
	}

	periods, err := repo.ListTouchedPeriods(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, periods, 1)
	assert.Equal(t, Period{FacilityID: facility, Month: "2025-06"}, periods[0])

	var stored []models.Payment
	require.NoError(t, client.DB().Find(&stored).Error)
	assert.Len(t, stored, 2)
}
