package fares

import (
	"fmt"
	"strings"

	"github.com/jasskhinda/facility-billing/pkg/config"
	"github.com/shopspring/decimal"
)

const (
	BariatricWeightLbs = 300
	MaxWeightLbs       = 400
	OffHoursEndHour    = 8
	OffHoursStartHour  = 20
)

// Rates is the rate card applied by the calculator.
type Rates struct {
	BaseOneWay             decimal.Decimal
	BaseRoundTrip          decimal.Decimal
	BariatricOneWay        decimal.Decimal
	BariatricRoundTrip     decimal.Decimal
	PerMile                decimal.Decimal
	IndividualDiscountPct  decimal.Decimal
	WeekendPremium         decimal.Decimal
	OffHoursPremium        decimal.Decimal
	WheelchairRentalFee    decimal.Decimal
	HolidaySurcharge       decimal.Decimal
	DeadMileRate           decimal.Decimal
	AdditionalPassengerFee decimal.Decimal
}

// DefaultRates returns the published rate card.
func DefaultRates() Rates {
	return Rates{
		BaseOneWay:             decimal.NewFromInt(50),
		BaseRoundTrip:          decimal.NewFromInt(100),
		BariatricOneWay:        decimal.NewFromInt(150),
		BariatricRoundTrip:     decimal.NewFromInt(300),
		PerMile:                decimal.NewFromInt(3),
		IndividualDiscountPct:  decimal.NewFromInt(10),
		WeekendPremium:         decimal.NewFromInt(40),
		OffHoursPremium:        decimal.NewFromInt(40),
		WheelchairRentalFee:    decimal.NewFromInt(25),
		HolidaySurcharge:       decimal.NewFromInt(100),
		DeadMileRate:           decimal.NewFromInt(4),
		AdditionalPassengerFee: decimal.Zero,
	}
}

// RatesFromConfig maps the fare section of the service config.
func RatesFromConfig(cfg config.FareConfig) (Rates, error) {
	r := Rates{
		BaseOneWay:             cfg.BaseOneWay,
		BaseRoundTrip:          cfg.BaseRoundTrip,
		BariatricOneWay:        cfg.BariatricOneWay,
		BariatricRoundTrip:     cfg.BariatricRoundTrip,
		PerMile:                cfg.PerMile,
		IndividualDiscountPct:  cfg.IndividualDiscountPct,
		WeekendPremium:         cfg.WeekendPremium,
		OffHoursPremium:        cfg.OffHoursPremium,
		WheelchairRentalFee:    cfg.WheelchairRentalFee,
		HolidaySurcharge:       cfg.HolidaySurcharge,
		DeadMileRate:           cfg.DeadMileRate,
		AdditionalPassengerFee: cfg.AdditionalPassengerFee,
	}
	return r, r.Validate()
}

// Validate rejects negative rates and discounts outside 0..100.
func (r Rates) Validate() error {
	fields := map[string]decimal.Decimal{
		"base_one_way":             r.BaseOneWay,
		"base_round_trip":          r.BaseRoundTrip,
		"bariatric_one_way":        r.BariatricOneWay,
		"bariatric_round_trip":     r.BariatricRoundTrip,
		"per_mile":                 r.PerMile,
		"weekend_premium":          r.WeekendPremium,
		"off_hours_premium":        r.OffHoursPremium,
		"wheelchair_rental_fee":    r.WheelchairRentalFee,
		"holiday_surcharge":        r.HolidaySurcharge,
		"dead_mile_rate":           r.DeadMileRate,
		"additional_passenger_fee": r.AdditionalPassengerFee,
	}
	bad := []string{}
	for name, value := range fields {
		if value.IsNegative() {
			bad = append(bad, name)
		}
	}
	if len(bad) > 0 {
		return fmt.Errorf("negative fare rates: %s", strings.Join(bad, ", "))
	}
	if r.IndividualDiscountPct.IsNegative() || r.IndividualDiscountPct.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("individual discount must be between 0 and 100, got %s", r.IndividualDiscountPct)
	}
	return nil
}
