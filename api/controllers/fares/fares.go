package fares

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jasskhinda/facility-billing/api/responses"
	"github.com/jasskhinda/facility-billing/api/validators"
	faresvc "github.com/jasskhinda/facility-billing/internal/fares"
	"github.com/jasskhinda/facility-billing/internal/trips"
	"github.com/jasskhinda/facility-billing/pkg/db/models"
	"github.com/jasskhinda/facility-billing/pkg/enums"
	pkgerrors "github.com/jasskhinda/facility-billing/pkg/errors"
	"github.com/jasskhinda/facility-billing/pkg/logger"
)

type TripPricer interface {
	Quote(ctx context.Context, input trips.QuoteInput) (faresvc.Breakdown, error)
	PriceTrip(ctx context.Context, tripID uuid.UUID) (*models.Trip, error)
}

type coordinatesRequest struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

type quoteRequest struct {
	DistanceMiles        decimal.NullDecimal `json:"distance_miles"`
	PickupAt             time.Time           `json:"pickup_at" validate:"required"`
	Wheelchair           string              `json:"wheelchair" validate:"omitempty,oneof=none own rental"`
	RoundTrip            bool                `json:"round_trip"`
	AdditionalPassengers int                 `json:"additional_passengers" validate:"gte=0,lte=10"`
	ClientWeight         *float64            `json:"client_weight" validate:"omitempty,gt=0"`
	ClientCategory       string              `json:"client_category" validate:"omitempty,oneof=facility individual"`
	PickupCounty         string              `json:"pickup_county" validate:"max=64"`
	DestinationCounty    string              `json:"destination_county" validate:"max=64"`
	Pickup               *coordinatesRequest `json:"pickup"`
	Destination          *coordinatesRequest `json:"destination"`
}

func (q quoteRequest) toInput() trips.QuoteInput {
	input := trips.QuoteInput{
		Input: faresvc.Input{
			DistanceMiles:        q.DistanceMiles,
			PickupAt:             q.PickupAt,
			Wheelchair:           enums.WheelchairNone,
			RoundTrip:            q.RoundTrip,
			AdditionalPassengers: q.AdditionalPassengers,
			ClientWeight:         q.ClientWeight,
			ClientCategory:       enums.ClientCategoryFacility,
			PickupCounty:         strings.TrimSpace(q.PickupCounty),
			DestinationCounty:    strings.TrimSpace(q.DestinationCounty),
		},
	}
	if q.Wheelchair != "" {
		input.Wheelchair = enums.WheelchairOption(q.Wheelchair)
	}
	if q.ClientCategory != "" {
		input.ClientCategory = enums.ClientCategory(q.ClientCategory)
	}
	if q.Pickup != nil {
		input.Pickup = &trips.Coordinates{Lat: q.Pickup.Lat, Lng: q.Pickup.Lng}
	}
	if q.Destination != nil {
		input.Destination = &trips.Coordinates{Lat: q.Destination.Lat, Lng: q.Destination.Lng}
	}
	return input
}

// FareQuote prices a prospective trip without persisting anything.
func FareQuote(svc TripPricer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fare service unavailable"))
			return
		}
		var body quoteRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		breakdown, err := svc.Quote(ctx, body.toInput())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, breakdown)
	}
}

type pricedTripResponse struct {
	TripID    uuid.UUID          `json:"trip_id"`
	Price     decimal.Decimal    `json:"price"`
	PricedAt  *time.Time         `json:"priced_at,omitempty"`
	Breakdown *faresvc.Breakdown `json:"breakdown,omitempty"`
}

// PriceTrip freezes the fare on a booked trip. Repeat calls return the
// stored price.
func PriceTrip(svc TripPricer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fare service unavailable"))
			return
		}
		tripID, err := validators.ParseUUIDParam(r, "tripId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		trip, err := svc.PriceTrip(ctx, tripID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		payload := pricedTripResponse{TripID: trip.ID, Price: trip.Price.Decimal, PricedAt: trip.PricedAt}
		if len(trip.PriceBreakdown) > 0 {
			var breakdown faresvc.Breakdown
			if err := json.Unmarshal(trip.PriceBreakdown, &breakdown); err == nil {
				payload.Breakdown = &breakdown
			} else if logg != nil {
				logg.Warn(logg.WithField(ctx, "trip_id", trip.ID.String()), "stored fare breakdown unreadable")
			}
		}
		responses.WriteSuccess(w, payload)
	}
}
