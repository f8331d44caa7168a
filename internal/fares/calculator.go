package fares

import (
	"fmt"
	"time"

	"github.com/jasskhinda/facility-billing/pkg/enums"
	pkgerrors "github.com/jasskhinda/facility-billing/pkg/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Input carries the trip attributes the fare depends on.
type Input struct {
	DistanceMiles        decimal.NullDecimal
	PickupAt             time.Time
	Wheelchair           enums.WheelchairOption
	RoundTrip            bool
	AdditionalPassengers int
	ClientWeight         *float64
	ClientCategory       enums.ClientCategory
	PickupCounty         string
	DestinationCounty    string
}

// Calculator prices trips. It holds no mutable state and is safe for
// concurrent use.
type Calculator struct {
	rates    Rates
	holidays HolidayCalendar
	area     *ServiceArea
	loc      *time.Location
}

func NewCalculator(rates Rates, holidays HolidayCalendar, area *ServiceArea, loc *time.Location) (*Calculator, error) {
	if err := rates.Validate(); err != nil {
		return nil, err
	}
	if holidays == nil {
		return nil, fmt.Errorf("holiday calendar required")
	}
	if area == nil {
		return nil, fmt.Errorf("service area required")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Calculator{
		rates:    rates,
		holidays: holidays,
		area:     area,
		loc:      loc,
	}, nil
}

// Area exposes the service area for county resolution.
func (c *Calculator) Area() *ServiceArea {
	return c.area
}

// Calculate prices a trip. The base fare and mileage are discounted for
// individual clients; premiums added afterwards never are.
func (c *Calculator) Calculate(in Input) (Breakdown, error) {
	in, err := c.normalize(in)
	if err != nil {
		return Breakdown{}, err
	}

	local := in.PickupAt.In(c.loc)
	lines := make([]Line, 0, 10)
	add := func(code, label string, kind enums.BreakdownLineKind, amount decimal.Decimal) {
		lines = append(lines, Line{Code: code, Label: label, Kind: kind, Amount: amount.Round(2)})
	}

	bariatric := in.ClientWeight != nil && *in.ClientWeight >= BariatricWeightLbs
	switch {
	case bariatric && in.RoundTrip:
		add("bariatric_base", "Bariatric base fare (round trip)", enums.BreakdownLineBase, c.rates.BariatricRoundTrip)
	case bariatric:
		add("bariatric_base", "Bariatric base fare (one way)", enums.BreakdownLineBase, c.rates.BariatricOneWay)
	case in.RoundTrip:
		add("base", "Base fare (round trip)", enums.BreakdownLineBase, c.rates.BaseRoundTrip)
	default:
		add("base", "Base fare (one way)", enums.BreakdownLineBase, c.rates.BaseOneWay)
	}

	miles := in.DistanceMiles.Decimal
	add("mileage", fmt.Sprintf("Mileage (%s mi @ $%s)", miles.String(), c.rates.PerMile.StringFixed(2)),
		enums.BreakdownLineBase, miles.Mul(c.rates.PerMile))

	if in.ClientCategory == enums.ClientCategoryIndividual && c.rates.IndividualDiscountPct.IsPositive() {
		subtotal := decimal.Zero
		for _, line := range lines {
			subtotal = subtotal.Add(line.Amount)
		}
		discount := subtotal.Mul(c.rates.IndividualDiscountPct).Div(hundred)
		add("individual_discount", fmt.Sprintf("Individual client discount (%s%%)", c.rates.IndividualDiscountPct.String()),
			enums.BreakdownLineDiscount, discount.Neg())
	}

	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		add("weekend", "Weekend premium", enums.BreakdownLinePremium, c.rates.WeekendPremium)
	}
	if h := local.Hour(); h <= OffHoursEndHour || h >= OffHoursStartHour {
		add("off_hours", "Off-hours premium", enums.BreakdownLinePremium, c.rates.OffHoursPremium)
	}
	if in.Wheelchair == enums.WheelchairRental {
		add("wheelchair_rental", "Wheelchair rental", enums.BreakdownLinePremium, c.rates.WheelchairRentalFee)
	}

	seen := map[string]bool{}
	for _, county := range []string{in.PickupCounty, in.DestinationCounty} {
		if county == "" || county == c.area.Primary() || seen[county] {
			continue
		}
		seen[county] = true
		miles, _ := c.area.DeadMiles(county)
		if miles.IsZero() {
			continue
		}
		add("dead_mileage_"+county, fmt.Sprintf("Dead mileage, %s county (%s mi)", county, miles.String()),
			enums.BreakdownLinePremium, miles.Mul(c.rates.DeadMileRate))
	}

	holiday, isHoliday := c.holidays.HolidayName(local)
	if isHoliday {
		add("holiday", "Holiday surcharge ("+holiday+")", enums.BreakdownLinePremium, c.rates.HolidaySurcharge)
	}

	if in.AdditionalPassengers > 0 && c.rates.AdditionalPassengerFee.IsPositive() {
		add("additional_passengers", fmt.Sprintf("Additional passengers (%d)", in.AdditionalPassengers),
			enums.BreakdownLinePremium, c.rates.AdditionalPassengerFee.Mul(decimal.NewFromInt(int64(in.AdditionalPassengers))))
	}

	b := Breakdown{Lines: lines, Currency: CurrencyUSD, TimeZone: c.loc.String()}
	if isHoliday {
		b.Holiday = holiday
	}
	b.Total = b.ItemsTotal()
	b.Lines = append(b.Lines, Line{Code: "total", Label: "Total", Kind: enums.BreakdownLineTotal, Amount: b.Total})
	return b, nil
}

func (c *Calculator) normalize(in Input) (Input, error) {
	problems := map[string]string{}

	switch {
	case !in.DistanceMiles.Valid:
		problems["distance_miles"] = "is required"
	case in.DistanceMiles.Decimal.IsNegative():
		problems["distance_miles"] = "must not be negative"
	}
	if in.PickupAt.IsZero() {
		problems["pickup_at"] = "is required"
	}
	if in.AdditionalPassengers < 0 {
		problems["additional_passengers"] = "must not be negative"
	}
	if in.ClientWeight != nil {
		switch w := *in.ClientWeight; {
		case w < 0:
			problems["client_weight"] = "must not be negative"
		case w >= MaxWeightLbs:
			problems["client_weight"] = fmt.Sprintf("clients of %d lbs or more cannot be transported", MaxWeightLbs)
		}
	}

	if in.Wheelchair == "" {
		in.Wheelchair = enums.WheelchairNone
	} else if !in.Wheelchair.IsValid() {
		problems["wheelchair"] = "must be one of none, own, rental"
	}
	if in.ClientCategory == "" {
		in.ClientCategory = enums.ClientCategoryFacility
	} else if !in.ClientCategory.IsValid() {
		problems["client_category"] = "must be facility or individual"
	}

	in.PickupCounty = NormalizeCounty(in.PickupCounty)
	in.DestinationCounty = NormalizeCounty(in.DestinationCounty)
	if _, ok := c.area.DeadMiles(in.PickupCounty); !ok {
		problems["pickup_county"] = "is outside the service area"
	}
	if _, ok := c.area.DeadMiles(in.DestinationCounty); !ok {
		problems["destination_county"] = "is outside the service area"
	}

	if len(problems) > 0 {
		return in, pkgerrors.New(pkgerrors.CodeValidation, "invalid fare input").WithDetails(problems)
	}
	return in, nil
}
