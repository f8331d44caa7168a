package trips

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/jasskhinda/facility-billing/internal/access"
	"github.com/jasskhinda/facility-billing/internal/fares"
	"github.com/jasskhinda/facility-billing/pkg/db/models"
	"github.com/jasskhinda/facility-billing/pkg/enums"
	pkgerrors "github.com/jasskhinda/facility-billing/pkg/errors"
	"github.com/jasskhinda/facility-billing/pkg/logger"
	"github.com/jasskhinda/facility-billing/pkg/outbox"
	"github.com/jasskhinda/facility-billing/pkg/outbox/payloads"
	"github.com/jasskhinda/facility-billing/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Coordinates is an optional point used to resolve a county.
type Coordinates struct {
	Lat float64
	Lng float64
}

// QuoteInput is a fare input whose counties may be resolved from coordinates.
type QuoteInput struct {
	fares.Input
	Pickup      *Coordinates
	Destination *Coordinates
}

// Service prices trips.
type Service interface {
	Quote(ctx context.Context, input QuoteInput) (fares.Breakdown, error)
	PriceTrip(ctx context.Context, tripID uuid.UUID) (*models.Trip, error)
}

type ServiceParams struct {
	Repo       Repository
	Tx         txRunner
	Calculator *fares.Calculator
	Outbox     outbox.Emitter
	Logger     *logger.Logger
	Location   *time.Location
	Now        func() time.Time
}

type service struct {
	repo   Repository
	tx     txRunner
	calc   *fares.Calculator
	outbox outbox.Emitter
	logg   *logger.Logger
	loc    *time.Location
	now    func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Tx == nil {
		return nil, errors.New("tx runner is required")
	}
	if params.Calculator == nil {
		return nil, errors.New("calculator is required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox is required")
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:   params.Repo,
		tx:     params.Tx,
		calc:   params.Calculator,
		outbox: params.Outbox,
		logg:   params.Logger,
		loc:    loc,
		now:    now,
	}, nil
}

func (s *service) Quote(ctx context.Context, input QuoteInput) (fares.Breakdown, error) {
	in := input.Input
	in.PickupCounty = s.resolveCounty(in.PickupCounty, input.Pickup)
	in.DestinationCounty = s.resolveCounty(in.DestinationCounty, input.Destination)
	return s.calc.Calculate(in)
}

func (s *service) PriceTrip(ctx context.Context, tripID uuid.UUID) (*models.Trip, error) {
	if tripID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "trip id required")
	}
	trip, err := s.repo.FindByID(ctx, tripID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load trip")
	}
	if trip == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "trip not found")
	}
	if err := access.AuthorizeFacility(ctx, trip.FacilityID); err != nil {
		return nil, err
	}
	if trip.IsPriced() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "trip price already frozen").
			WithDetails(map[string]any{"trip_id": trip.ID, "price": trip.Price.Decimal.StringFixed(2)})
	}
	if trip.Status == enums.TripStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cancelled trips are not priced")
	}

	in := InputFromTrip(trip)
	in.PickupCounty = s.resolveCounty(in.PickupCounty, coords(trip.PickupLat, trip.PickupLng))
	in.DestinationCounty = s.resolveCounty(in.DestinationCounty, coords(trip.DestinationLat, trip.DestinationLng))

	breakdown, err := s.calc.Calculate(in)
	if err != nil {
		return nil, err
	}
	raw, err := breakdown.Marshal()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode fare breakdown")
	}
	pricedAt := s.now().UTC()
	month := types.MonthOf(trip.PickupAt, s.loc)

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		won, err := s.repo.WithTx(tx).FreezePrice(ctx, FreezeInput{
			TripID:            trip.ID,
			Price:             breakdown.Total,
			Breakdown:         raw,
			PricedAt:          pricedAt,
			PickupCounty:      in.PickupCounty,
			DestinationCounty: in.DestinationCounty,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "freeze trip price")
		}
		if !won {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "trip price already frozen")
		}
		actor, _ := access.ActorFrom(ctx)
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTripPriced,
			AggregateType: enums.AggregateTrip,
			AggregateID:   trip.ID,
			Actor:         actor.Ref(),
			Data: payloads.TripPricedEvent{
				BillingPeriod: payloads.BillingPeriod{FacilityID: trip.FacilityID, Month: month.String()},
				TripID:        trip.ID,
				Price:         breakdown.Total,
				PricedAt:      pricedAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithBillingPeriod(ctx, trip.FacilityID.String(), month.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{"trip_id": trip.ID.String(), "price": breakdown.Total.StringFixed(2)})
		s.logg.Info(logCtx, "trip price frozen")
	}

	priced, err := s.repo.FindByID(ctx, trip.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload trip")
	}
	return priced, nil
}

func (s *service) resolveCounty(county string, point *Coordinates) string {
	if county != "" || point == nil {
		return county
	}
	if resolved, ok := s.calc.Area().ResolveCounty(point.Lat, point.Lng); ok {
		return resolved
	}
	return county
}

// InputFromTrip maps a stored trip onto calculator input.
func InputFromTrip(trip *models.Trip) fares.Input {
	in := fares.Input{
		DistanceMiles:        decimal.NewNullDecimal(trip.DistanceMiles),
		PickupAt:             trip.PickupAt,
		Wheelchair:           trip.Wheelchair,
		RoundTrip:            trip.RoundTrip,
		AdditionalPassengers: trip.AdditionalPassengers,
		ClientWeight:         trip.ClientWeight,
		ClientCategory:       trip.ClientCategory,
	}
	if trip.PickupCounty != nil {
		in.PickupCounty = *trip.PickupCounty
	}
	if trip.DestinationCounty != nil {
		in.DestinationCounty = *trip.DestinationCounty
	}
	return in
}

func coords(lat, lng *float64) *Coordinates {
	if lat == nil || lng == nil {
		return nil
	}
	return &Coordinates{Lat: *lat, Lng: *lng}
}
