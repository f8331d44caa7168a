package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jasskhinda/facility-billing/internal/access"
	"github.com/jasskhinda/facility-billing/internal/invoices"
	"github.com/jasskhinda/facility-billing/internal/ledger"
	"github.com/jasskhinda/facility-billing/internal/trips"
	"github.com/jasskhinda/facility-billing/pkg/db"
	"github.com/jasskhinda/facility-billing/pkg/db/dbtest"
	"github.com/jasskhinda/facility-billing/pkg/db/models"
	"github.com/jasskhinda/facility-billing/pkg/enums"
	pkgerrors "github.com/jasskhinda/facility-billing/pkg/errors"
	"github.com/jasskhinda/facility-billing/pkg/metrics"
	"github.com/jasskhinda/facility-billing/pkg/outbox"
	"github.com/jasskhinda/facility-billing/pkg/types"
)

var june = types.Month{Year: 2025, Month: time.June}

type fixture struct {
	client    *db.Client
	gateway   *fakeGateway
	ledger    ledger.Repository
	trips     trips.Repository
	invoices  invoices.Service
	locker    invoices.Locker
	emitter   outbox.Emitter
	metrics   *metrics.PaymentMetrics
	now       func() time.Time
	processor Processor
	settler   SettlementService
	facility  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Open(t)
	now := func() time.Time { return time.Date(2025, time.June, 28, 15, 0, 0, 0, time.UTC) }
	ledgerRepo := ledger.NewRepository(client.DB())
	tripRepo := trips.NewRepository(client.DB())
	emitter := outbox.NewService(outbox.NewRepository(client.DB()), nil)
	locker := invoices.NewLocalLocker()

	invoiceSvc, err := invoices.NewService(invoices.ServiceParams{
		Ledger: ledgerRepo,
		Repo:   invoices.NewRepository(client.DB()),
		Tx:     client,
		Locker: locker,
		Outbox: emitter,
		Now:    now,
	})
	require.NoError(t, err)

	gateway := newFakeGateway()
	paymentMetrics := metrics.NewPaymentMetrics(prometheus.NewRegistry())
	processor, err := NewService(ServiceParams{
		Ledger:   ledgerRepo,
		Trips:    tripRepo,
		Invoices: invoiceSvc,
		Locker:   locker,
		Gateway:  gateway,
		Tx:       client,
		Outbox:   emitter,
		Metrics:  paymentMetrics,
		Now:      now,
		AllowACH: true,
	})
	require.NoError(t, err)

	settler, err := NewSettlementService(SettlementParams{
		Ledger:   ledgerRepo,
		Gateway:  gateway,
		Invoices: invoiceSvc,
		Metrics:  paymentMetrics,
		Now:      now,
		PageSize: 1,
	})
	require.NoError(t, err)

	return &fixture{
		client:    client,
		gateway:   gateway,
		ledger:    ledgerRepo,
		trips:     tripRepo,
		invoices:  invoiceSvc,
		locker:    locker,
		emitter:   emitter,
		metrics:   paymentMetrics,
		now:       now,
		processor: processor,
		settler:   settler,
		facility:  uuid.New(),
	}
}

func (f *fixture) ctx() context.Context {
	return access.WithActor(context.Background(), access.Actor{ID: "fac-user", Role: enums.ActorRoleFacility, FacilityIDs: []uuid.UUID{f.facility}})
}

func (f *fixture) trip(t *testing.T, pickup time.Time, price string) models.Trip {
	t.Helper()
	trip := models.Trip{
		FacilityID:    f.facility,
		ClientID:      uuid.New(),
		PickupAt:      pickup,
		DistanceMiles: decimal.NewFromInt(10),
		Status:        enums.TripStatusCompleted,
		Price:         decimal.NewNullDecimal(decimal.RequireFromString(price)),
	}
	require.NoError(t, f.trips.Create(context.Background(), &trip))
	return trip
}

func (f *fixture) invoiceCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.client.DB().Model(&models.Invoice{}).Where("facility_id = ?", f.facility).Count(&count).Error)
	return count
}

func checkSub(sub enums.CheckSubType) *enums.CheckSubType {
	return &sub
}

func TestCardPaymentCompletesAndMarksInvoicePaid(t *testing.T) {
	f := newFixture(t)
	trip := f.trip(t, time.Date(2025, time.June, 5, 10, 0, 0, 0, time.UTC), "80.00")

	res, err := f.processor.SubmitPayment(f.ctx(), SubmitInput{
		FacilityID: f.facility,
		Month:      june,
		TripIDs:    []uuid.UUID{trip.ID},
		Amount:     decimal.RequireFromString("80.00"),
		Method:     enums.PaymentMethodCreditCard,
		Data:       PaymentData{CardNonce: "cnon:ok", CardholderName: "Sam Doe"},
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCompleted, res.Status)
	assert.Equal(t, enums.InvoiceStatusPaidWithCard, res.InvoiceStatus)
	require.NotNil(t, res.ProcessorPaymentID)

	stored, err := f.ledger.FindByID(context.Background(), res.PaymentID)
	require.NoError(t, err)
	require.NotNil(t, stored.VerificationDate)
	assert.True(t, stored.VerificationDate.Equal(stored.PaymentDate))
	require.NotNil(t, stored.SubmittedBy)
	assert.Equal(t, "fac-user", *stored.SubmittedBy)

	require.Len(t, f.gateway.vaulted, 1)
	require.Len(t, f.gateway.charges, 1)
	assert.Equal(t, int64(8000), f.gateway.charges[0].AmountCents)
	assert.Equal(t, "ccof:cnon:ok", f.gateway.charges[0].SourceID)

	var events []models.OutboxEvent
	require.NoError(t, f.client.DB().Where("event_type = ?", enums.EventPaymentSubmitted).Find(&events).Error)
	assert.Len(t, events, 1)
}

// Only completed methods can repeat: a second check or a submission while an
// ACH transfer is pending is a STATE_CONFLICT (see TestSecondCheckWhileFirstInFlightConflicts).
func TestIdenticalCardSubmissionsWriteTwoPaymentsAndOneInvoice(t *testing.T) {
	f := newFixture(t)
	input := SubmitInput{
		FacilityID: f.facility,
		Month:      june,
		Amount:     decimal.NewFromInt(50),
		Method:     enums.PaymentMethodSavedCard,
		Data:       PaymentData{SavedCardID: "ccof:saved"},
	}

	first, err := f.processor.SubmitPayment(f.ctx(), input)
	require.NoError(t, err)
	second, err := f.processor.SubmitPayment(f.ctx(), input)
	require.NoError(t, err)
	assert.NotEqual(t, first.PaymentID, second.PaymentID)

	payments, err := f.ledger.ListByFacilityMonth(context.Background(), f.facility, june.String())
	require.NoError(t, err)
	assert.Len(t, payments, 2)
	assert.Equal(t, int64(1), f.invoiceCount(t))

	invoice, err := invoices.NewRepository(f.client.DB()).FindByPeriod(context.Background(), f.facility, june.String())
	require.NoError(t, err)
	assert.True(t, invoice.TotalAmount.Equal(decimal.NewFromInt(100)))
}

func TestSecondCheckWhileFirstInFlightConflicts(t *testing.T) {
	f := newFixture(t)
	input := SubmitInput{
		FacilityID: f.facility,
		Month:      june,
		Amount:     decimal.RequireFromString("300.00"),
		Method:     enums.PaymentMethodCheckSubmit,
		Data:       PaymentData{CheckSubType: checkSub(enums.CheckSubTypeWillMail)},
	}

	_, err := f.processor.SubmitPayment(f.ctx(), input)
	require.NoError(t, err)
	_, err = f.processor.SubmitPayment(f.ctx(), input)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	payments, err := f.ledger.ListByFacilityMonth(context.Background(), f.facility, june.String())
	require.NoError(t, err)
	assert.Len(t, payments, 1)
	assert.Equal(t, int64(1), f.invoiceCount(t))
}

func TestAlreadyMailedCheckStaysInTransit(t *testing.T) {
	f := newFixture(t)

	res, err := f.processor.SubmitPayment(f.ctx(), SubmitInput{
		FacilityID: f.facility,
		Month:      june,
		Amount:     decimal.RequireFromString("300.00"),
		Method:     enums.PaymentMethodCheckSubmit,
		Data:       PaymentData{CheckSubType: checkSub(enums.CheckSubTypeAlreadyMailed), CheckNumber: "1042"},
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPendingVerification, res.Status)
	assert.Equal(t, enums.InvoiceStatusCheckInTransit, res.InvoiceStatus)
	assert.Nil(t, res.ProcessorPaymentID)
	assert.Zero(t, f.gateway.chargeCount())

	view, err := f.invoices.GetInvoiceStatus(f.ctx(), f.facility, june)
	require.NoError(t, err)
	assert.Equal(t, enums.InvoiceStatusCheckInTransit, view.Status)
	assert.False(t, view.Status.IsPaid())

	_, err = f.processor.SubmitPayment(f.ctx(), SubmitInput{
		FacilityID: f.facility,
		Month:      june,
		Amount:     decimal.NewFromInt(300),
		Method:     enums.PaymentMethodSavedCard,
		Data:       PaymentData{SavedCardID: "ccof:saved"},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Zero(t, f.gateway.chargeCount())
}

func TestProcessorFailureWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.gateway.chargeErr = errors.New("card declined")

	_, err := f.processor.SubmitPayment(f.ctx(), SubmitInput{
		FacilityID: f.facility,
		Month:      june,
		Amount:     decimal.NewFromInt(80),
		Method:     enums.PaymentMethodCreditCard,
		Data:       PaymentData{CardNonce: "cnon:declined"},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeProcessor))

	payments, err := f.ledger.ListByFacilityMonth(context.Background(), f.facility, june.String())
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestBankTransferStatuses(t *testing.T) {
	f := newFixture(t)

	f.gateway.status = ProcessorFailed
	_, err := f.processor.SubmitPayment(f.ctx(), SubmitInput{
		FacilityID: f.facility,
		Month:      june,
		Amount:     decimal.NewFromInt(120),
		Method:     enums.PaymentMethodBankTransfer,
		Data:       PaymentData{BankSourceID: "bauth:1"},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeProcessor))

	f.gateway.status = ProcessorPending
	res, err := f.processor.SubmitPayment(f.ctx(), SubmitInput{
		FacilityID: f.facility,
		Month:      june,
		Amount:     decimal.NewFromInt(120),
		Method:     enums.PaymentMethodBankTransfer,
		Data:       PaymentData{BankSourceID: "bauth:2"},
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPendingVerification, res.Status)
	assert.Equal(t, enums.InvoiceStatusProcessingBankTransfer, res.InvoiceStatus)
}

func TestSubmitPaymentValidation(t *testing.T) {
	f := newFixture(t)
	otherFacility := uuid.New()
	julyTrip := f.trip(t, time.Date(2025, time.July, 2, 10, 0, 0, 0, time.UTC), "80")

	cases := []struct {
		name  string
		input SubmitInput
	}{
		{"zero amount", SubmitInput{FacilityID: f.facility, Month: june, Amount: decimal.Zero, Method: enums.PaymentMethodCheckSubmit, Data: PaymentData{CheckSubType: checkSub(enums.CheckSubTypeWillMail)}}},
		{"three decimals", SubmitInput{FacilityID: f.facility, Month: june, Amount: decimal.RequireFromString("10.005"), Method: enums.PaymentMethodCheckSubmit, Data: PaymentData{CheckSubType: checkSub(enums.CheckSubTypeWillMail)}}},
		{"missing month", SubmitInput{FacilityID: f.facility, Amount: decimal.NewFromInt(10), Method: enums.PaymentMethodCheckSubmit, Data: PaymentData{CheckSubType: checkSub(enums.CheckSubTypeWillMail)}}},
		{"unknown method", SubmitInput{FacilityID: f.facility, Month: june, Amount: decimal.NewFromInt(10), Method: "wire"}},
		{"card without nonce", SubmitInput{FacilityID: f.facility, Month: june, Amount: decimal.NewFromInt(10), Method: enums.PaymentMethodCreditCard}},
		{"check without sub-type", SubmitInput{FacilityID: f.facility, Month: june, Amount: decimal.NewFromInt(10), Method: enums.PaymentMethodCheckSubmit}},
		{"sub-type on card", SubmitInput{FacilityID: f.facility, Month: june, Amount: decimal.NewFromInt(10), Method: enums.PaymentMethodSavedCard, Data: PaymentData{SavedCardID: "ccof:1", CheckSubType: checkSub(enums.CheckSubTypeWillMail)}}},
		{"trip from another month", SubmitInput{FacilityID: f.facility, Month: june, Amount: decimal.NewFromInt(10), Method: enums.PaymentMethodCheckSubmit, TripIDs: []uuid.UUID{julyTrip.ID}, Data: PaymentData{CheckSubType: checkSub(enums.CheckSubTypeWillMail)}}},
		{"unknown trip", SubmitInput{FacilityID: f.facility, Month: june, Amount: decimal.NewFromInt(10), Method: enums.PaymentMethodCheckSubmit, TripIDs: []uuid.UUID{uuid.New()}, Data: PaymentData{CheckSubType: checkSub(enums.CheckSubTypeWillMail)}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.processor.SubmitPayment(f.ctx(), tc.input)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}

	_, err := f.processor.SubmitPayment(f.ctx(), SubmitInput{
		FacilityID: otherFacility,
		Month:      june,
		Amount:     decimal.NewFromInt(10),
		Method:     enums.PaymentMethodCheckSubmit,
		Data:       PaymentData{CheckSubType: checkSub(enums.CheckSubTypeWillMail)},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	assert.Zero(t, f.gateway.chargeCount())
}

func TestBankTransferDisabled(t *testing.T) {
	f := newFixture(t)
	processor, err := NewService(ServiceParams{
		Ledger:   f.ledger,
		Trips:    f.trips,
		Invoices: f.invoices,
		Gateway:  f.gateway,
		Tx:       f.client,
		Outbox:   outbox.NewService(outbox.NewRepository(f.client.DB()), nil),
	})
	require.NoError(t, err)

	_, err = processor.SubmitPayment(f.ctx(), SubmitInput{
		FacilityID: f.facility,
		Month:      june,
		Amount:     decimal.NewFromInt(10),
		Method:     enums.PaymentMethodBankTransfer,
		Data:       PaymentData{BankSourceID: "bauth:1"},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
