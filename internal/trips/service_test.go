package trips

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jasskhinda/facility-billing/internal/access"
	"github.com/jasskhinda/facility-billing/internal/fares"
	"github.com/jasskhinda/facility-billing/pkg/db"
	"github.com/jasskhinda/facility-billing/pkg/db/dbtest"
	"github.com/jasskhinda/facility-billing/pkg/db/models"
	"github.com/jasskhinda/facility-billing/pkg/enums"
	pkgerrors "github.com/jasskhinda/facility-billing/pkg/errors"
	"github.com/jasskhinda/facility-billing/pkg/outbox"
)

type fixture struct {
	client *db.Client
	repo   Repository
	svc    Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client := dbtest.Open(t)

	holidays, err := fares.NewFederalCalendar(nil)
	require.NoError(t, err)
	area, err := fares.NewServiceArea("franklin", map[string]float64{"delaware": 10})
	require.NoError(t, err)
	require.NoError(t, area.LoadBoundaries([]byte(`{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"county":"delaware"},"geometry":{"type":"Polygon","coordinates":[[[-83.2,40.1],[-82.8,40.1],[-82.8,40.4],[-83.2,40.4],[-83.2,40.1]]]}}
	]}`)))
	calc, err := fares.NewCalculator(fares.DefaultRates(), holidays, area, time.UTC)
	require.NoError(t, err)

	repo := NewRepository(client.DB())
	svc, err := NewService(ServiceParams{
		Repo:       repo,
		Tx:         client,
		Calculator: calc,
		Outbox:     outbox.NewService(outbox.NewRepository(client.DB()), nil),
		Location:   time.UTC,
		Now:        func() time.Time { return time.Date(2025, time.June, 12, 9, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return fixture{client: client, repo: repo, svc: svc}
}

func adminCtx() context.Context {
	return access.WithActor(context.Background(), access.Actor{ID: "admin-1", Role: enums.ActorRoleAdmin})
}

func seedTrip(t *testing.T, repo Repository, mutate func(*models.Trip)) *models.Trip {
	t.Helper()
	trip := &models.Trip{
		FacilityID:     uuid.New(),
		ClientID:       uuid.New(),
		ClientKind:     enums.ClientKindManaged,
		PickupAt:       time.Date(2025, time.June, 11, 10, 0, 0, 0, time.UTC),
		DistanceMiles:  decimal.NewFromInt(10),
		Wheelchair:     enums.WheelchairOwn,
		ClientCategory: enums.ClientCategoryFacility,
		Status:         enums.TripStatusCompleted,
	}
	if mutate != nil {
		mutate(trip)
	}
	require.NoError(t, repo.Create(context.Background(), trip))
	return trip
}

func TestPriceTripFreezesOnce(t *testing.T) {
	f := newFixture(t)
	trip := seedTrip(t, f.repo, nil)

	priced, err := f.svc.PriceTrip(adminCtx(), trip.ID)
	require.NoError(t, err)
	require.True(t, priced.IsPriced())
	assert.True(t, priced.Price.Decimal.Equal(decimal.NewFromInt(80)))
	require.NotNil(t, priced.PricedAt)

	breakdown, err := fares.ParseBreakdown(priced.PriceBreakdown)
	require.NoError(t, err)
	assert.True(t, breakdown.Total.Equal(priced.Price.Decimal))

	_, err = f.svc.PriceTrip(adminCtx(), trip.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	var events []models.OutboxEvent
	require.NoError(t, f.client.DB().Where("event_type = ?", enums.EventTripPriced).Find(&events).Error)
	assert.Len(t, events, 1)
}

func TestPriceTripConcurrentCallsFreezeOnce(t *testing.T) {
	f := newFixture(t)
	trip := seedTrip(t, f.repo, nil)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.PriceTrip(adminCtx(), trip.ID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), err)
	}
	assert.Equal(t, 1, succeeded)
}

func TestPriceTripResolvesCountyFromCoordinates(t *testing.T) {
	f := newFixture(t)
	lat, lng := 40.25, -83.0
	trip := seedTrip(t, f.repo, func(tr *models.Trip) {
		tr.DestinationLat = &lat
		tr.DestinationLng = &lng
	})

	priced, err := f.svc.PriceTrip(adminCtx(), trip.ID)
	require.NoError(t, err)
	require.NotNil(t, priced.DestinationCounty)
	assert.Equal(t, "delaware", *priced.DestinationCounty)
	assert.True(t, priced.Price.Decimal.Equal(decimal.NewFromInt(120)))
}

func TestPriceTripRejections(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.PriceTrip(adminCtx(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	heavy := 410.0
	tooHeavy := seedTrip(t, f.repo, func(tr *models.Trip) { tr.ClientWeight = &heavy })
	_, err = f.svc.PriceTrip(adminCtx(), tooHeavy.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	reloaded, err := f.repo.FindByID(context.Background(), tooHeavy.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsPriced())

	cancelled := seedTrip(t, f.repo, func(tr *models.Trip) { tr.Status = enums.TripStatusCancelled })
	_, err = f.svc.PriceTrip(adminCtx(), cancelled.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	other := seedTrip(t, f.repo, nil)
	outsider := access.WithActor(context.Background(), access.Actor{ID: "u1", Role: enums.ActorRoleFacility, FacilityIDs: []uuid.UUID{uuid.New()}})
	_, err = f.svc.PriceTrip(outsider, other.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestQuoteDoesNotWrite(t *testing.T) {
	f := newFixture(t)

	b, err := f.svc.Quote(context.Background(), QuoteInput{
		Input: fares.Input{
			DistanceMiles: decimal.NewNullDecimal(decimal.NewFromInt(5)),
			PickupAt:      time.Date(2025, time.June, 11, 14, 0, 0, 0, time.UTC),
			Wheelchair:    enums.WheelchairRental,
		},
		Destination: &Coordinates{Lat: 40.2, Lng: -83.1},
	})
	require.NoError(t, err)
	assert.True(t, b.Total.Equal(decimal.NewFromInt(130)), "total %s", b.Total)

	var count int64
	require.NoError(t, f.client.DB().Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestListBillableFiltersByWindowStatusAndPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	facility := uuid.New()

	inWindow := seedTrip(t, f.repo, func(tr *models.Trip) { tr.FacilityID = facility })
	seedTrip(t, f.repo, func(tr *models.Trip) {
		tr.FacilityID = facility
		tr.PickupAt = time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)
	})
	seedTrip(t, f.repo, func(tr *models.Trip) {
		tr.FacilityID = facility
		tr.Status = enums.TripStatusConfirmed
	})
	unpriced := seedTrip(t, f.repo, func(tr *models.Trip) { tr.FacilityID = facility })

	for _, id := range []uuid.UUID{inWindow.ID} {
		_, err := f.svc.PriceTrip(adminCtx(), id)
		require.NoError(t, err)
	}

	trips, err := f.repo.ListBillable(ctx, BillableQuery{
		FacilityID: facility,
		Start:      time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC),
		Statuses:   []enums.TripStatus{enums.TripStatusCompleted},
	})
	require.NoError(t, err)
	require.Len(t, trips, 1)
	assert.Equal(t, inWindow.ID, trips[0].ID)
	assert.NotEqual(t, unpriced.ID, trips[0].ID)
}
