package fares

import (
	"testing"
	"time"

	"github.com/jasskhinda/facility-billing/pkg/enums"
	pkgerrors "github.com/jasskhinda/facility-billing/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCalculator(t *testing.T) *Calculator {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	holidays, err := NewFederalCalendar(nil)
	require.NoError(t, err)
	area, err := NewServiceArea("Franklin", map[string]float64{"delaware": 10, "licking": 12})
	require.NoError(t, err)
	calc, err := NewCalculator(DefaultRates(), holidays, area, loc)
	require.NoError(t, err)
	return calc
}

func pickup(t *testing.T, value string) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	ts, err := time.ParseInLocation("2006-01-02 15:04", value, loc)
	require.NoError(t, err)
	return ts
}

func weight(v float64) *float64 { return &v }

func TestCalculateScenarios(t *testing.T) {
	calc := newTestCalculator(t)

	tests := []struct {
		name  string
		input Input
		total string
	}{
		{
			name: "weekday facility trip with own wheelchair",
			input: Input{
				DistanceMiles:  decimal.NewNullDecimal(decimal.NewFromInt(10)),
				PickupAt:       pickup(t, "2025-06-11 10:00"),
				Wheelchair:     enums.WheelchairOwn,
				ClientCategory: enums.ClientCategoryFacility,
			},
			total: "80",
		},
		{
			name: "same trip on independence day",
			input: Input{
				DistanceMiles:  decimal.NewNullDecimal(decimal.NewFromInt(10)),
				PickupAt:       pickup(t, "2025-07-04 10:00"),
				Wheelchair:     enums.WheelchairOwn,
				ClientCategory: enums.ClientCategoryFacility,
			},
			total: "180",
		},
		{
			name: "rental wheelchair on weekday daytime",
			input: Input{
				DistanceMiles:  decimal.NewNullDecimal(decimal.NewFromInt(5)),
				PickupAt:       pickup(t, "2025-06-11 14:00"),
				Wheelchair:     enums.WheelchairRental,
				ClientCategory: enums.ClientCategoryFacility,
			},
			total: "90",
		},
		{
			name: "round trip",
			input: Input{
				DistanceMiles: decimal.NewNullDecimal(decimal.NewFromInt(10)),
				PickupAt:      pickup(t, "2025-06-11 10:00"),
				RoundTrip:     true,
			},
			total: "130",
		},
		{
			name: "destination outside primary county adds dead mileage",
			input: Input{
				DistanceMiles:     decimal.NewNullDecimal(decimal.NewFromInt(10)),
				PickupAt:          pickup(t, "2025-06-11 10:00"),
				PickupCounty:      "Franklin County",
				DestinationCounty: "Delaware",
			},
			total: "120",
		},
		{
			name: "both legs in the same outside county charge once",
			input: Input{
				DistanceMiles:     decimal.NewNullDecimal(decimal.NewFromInt(10)),
				PickupAt:          pickup(t, "2025-06-11 10:00"),
				PickupCounty:      "licking",
				DestinationCounty: "licking",
			},
			total: "128",
		},
		{
			name: "fractional mileage rounds to cents",
			input: Input{
				DistanceMiles: decimal.NewNullDecimal(decimal.RequireFromString("3.333")),
				PickupAt:      pickup(t, "2025-06-11 10:00"),
			},
			total: "60",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := calc.Calculate(tt.input)
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.total).Equal(b.Total), "total %s", b.Total)
			last := b.Lines[len(b.Lines)-1]
			assert.Equal(t, enums.BreakdownLineTotal, last.Kind)
			assert.True(t, last.Amount.Equal(b.Total))
		})
	}
}

func TestCalculateWeightBoundaries(t *testing.T) {
	calc := newTestCalculator(t)
	base := Input{DistanceMiles: decimal.NewNullDecimal(decimal.NewFromInt(10)), PickupAt: pickup(t, "2025-06-11 10:00")}

	in := base
	in.ClientWeight = weight(299)
	b, err := calc.Calculate(in)
	require.NoError(t, err)
	assert.Equal(t, "base", b.Lines[0].Code)
	assert.True(t, b.Total.Equal(decimal.NewFromInt(80)))

	in.ClientWeight = weight(300)
	b, err = calc.Calculate(in)
	require.NoError(t, err)
	assert.Equal(t, "bariatric_base", b.Lines[0].Code)
	assert.True(t, b.Total.Equal(decimal.NewFromInt(180)))

	in.ClientWeight = weight(400)
	b, err = calc.Calculate(in)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Empty(t, b.Lines)
	assert.True(t, b.Total.IsZero())
}

func TestDiscountAppliesBeforePremiums(t *testing.T) {
	calc := newTestCalculator(t)

	b, err := calc.Calculate(Input{
		DistanceMiles:  decimal.NewNullDecimal(decimal.NewFromInt(10)),
		PickupAt:       pickup(t, "2025-06-14 10:00"),
		ClientCategory: enums.ClientCategoryIndividual,
	})
	require.NoError(t, err)

	// (50 + 30) * 0.9 + 40 weekend premium
	assert.True(t, b.Total.Equal(decimal.NewFromInt(112)), "total %s", b.Total)

	var discount, weekend Line
	for _, line := range b.Lines {
		switch line.Code {
		case "individual_discount":
			discount = line
		case "weekend":
			weekend = line
		}
	}
	assert.Equal(t, enums.BreakdownLineDiscount, discount.Kind)
	assert.True(t, discount.Amount.Equal(decimal.NewFromInt(-8)))
	assert.True(t, weekend.Amount.Equal(decimal.NewFromInt(40)))
}

func TestFacilityClientsAreNeverDiscounted(t *testing.T) {
	calc := newTestCalculator(t)
	b, err := calc.Calculate(Input{DistanceMiles: decimal.NewNullDecimal(decimal.NewFromInt(10)), PickupAt: pickup(t, "2025-06-11 10:00")})
	require.NoError(t, err)
	for _, line := range b.Lines {
		assert.NotEqual(t, enums.BreakdownLineDiscount, line.Kind)
	}
}

func TestOffHoursBoundaries(t *testing.T) {
	calc := newTestCalculator(t)
	tests := []struct {
		at      string
		premium bool
	}{
		{"2025-06-11 08:59", true},
		{"2025-06-11 09:00", false},
		{"2025-06-11 19:59", false},
		{"2025-06-11 20:00", true},
		{"2025-06-11 00:30", true},
	}
	for _, tt := range tests {
		t.Run(tt.at, func(t *testing.T) {
			b, err := calc.Calculate(Input{DistanceMiles: decimal.NewNullDecimal(decimal.NewFromInt(1)), PickupAt: pickup(t, tt.at)})
			require.NoError(t, err)
			assert.Equal(t, tt.premium, hasLine(b, "off_hours"))
		})
	}
}

func TestCalendarChecksUseBillingTimeZone(t *testing.T) {
	calc := newTestCalculator(t)

	// 02:00 UTC on July 5th is 22:00 on July 4th in New York.
	b, err := calc.Calculate(Input{
		DistanceMiles: decimal.NewNullDecimal(decimal.NewFromInt(10)),
		PickupAt:      time.Date(2025, time.July, 5, 2, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.True(t, hasLine(b, "holiday"))
	assert.True(t, hasLine(b, "off_hours"))
	assert.Equal(t, "Independence Day", b.Holiday)
	assert.True(t, b.Total.Equal(decimal.NewFromInt(220)))
}

func TestCalculateRejectsInvalidInput(t *testing.T) {
	calc := newTestCalculator(t)
	valid := Input{DistanceMiles: decimal.NewNullDecimal(decimal.NewFromInt(10)), PickupAt: pickup(t, "2025-06-11 10:00")}

	tests := []struct {
		name   string
		mutate func(*Input)
		field  string
	}{
		{"missing distance", func(in *Input) { in.DistanceMiles = decimal.NullDecimal{} }, "distance_miles"},
		{"negative distance", func(in *Input) { in.DistanceMiles = decimal.NewNullDecimal(decimal.NewFromInt(-3)) }, "distance_miles"},
		{"missing pickup time", func(in *Input) { in.PickupAt = time.Time{} }, "pickup_at"},
		{"negative weight", func(in *Input) { in.ClientWeight = weight(-1) }, "client_weight"},
		{"negative passengers", func(in *Input) { in.AdditionalPassengers = -1 }, "additional_passengers"},
		{"unknown wheelchair", func(in *Input) { in.Wheelchair = "borrowed" }, "wheelchair"},
		{"unknown category", func(in *Input) { in.ClientCategory = "vip" }, "client_category"},
		{"unserved county", func(in *Input) { in.DestinationCounty = "cuyahoga" }, "destination_county"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := calc.Calculate(in)
			require.Error(t, err)
			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
			details, ok := typed.Details().(map[string]string)
			require.True(t, ok)
			assert.Contains(t, details, tt.field)
		})
	}
}

func TestZeroDistanceChargesBaseOnly(t *testing.T) {
	calc := newTestCalculator(t)
	b, err := calc.Calculate(Input{
		DistanceMiles: decimal.NewNullDecimal(decimal.Zero),
		PickupAt:      pickup(t, "2025-06-11 10:00"),
	})
	require.NoError(t, err)
	assert.True(t, b.Total.Equal(decimal.NewFromInt(50)), "total %s", b.Total)
	assert.True(t, b.Lines[1].Amount.IsZero())
}

func TestAdditionalPassengerFee(t *testing.T) {
	holidays, err := NewFederalCalendar(nil)
	require.NoError(t, err)
	area, err := NewServiceArea("franklin", nil)
	require.NoError(t, err)
	rates := DefaultRates()
	rates.AdditionalPassengerFee = decimal.RequireFromString("7.50")
	calc, err := NewCalculator(rates, holidays, area, time.UTC)
	require.NoError(t, err)

	b, err := calc.Calculate(Input{
		DistanceMiles:        decimal.NewNullDecimal(decimal.NewFromInt(10)),
		PickupAt:             time.Date(2025, time.June, 11, 12, 0, 0, 0, time.UTC),
		AdditionalPassengers: 2,
	})
	require.NoError(t, err)
	assert.True(t, b.Total.Equal(decimal.NewFromInt(95)), "total %s", b.Total)
}

func TestCalculateIsDeterministicAndRoundTrips(t *testing.T) {
	calc := newTestCalculator(t)
	in := Input{
		DistanceMiles:     decimal.NewNullDecimal(decimal.RequireFromString("12.7")),
		PickupAt:          pickup(t, "2025-11-27 21:15"),
		Wheelchair:        enums.WheelchairRental,
		RoundTrip:         true,
		ClientWeight:      weight(320),
		ClientCategory:    enums.ClientCategoryIndividual,
		DestinationCounty: "licking",
	}

	first, err := calc.Calculate(in)
	require.NoError(t, err)
	second, err := calc.Calculate(in)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	raw, err := first.Marshal()
	require.NoError(t, err)
	decoded, err := ParseBreakdown(raw)
	require.NoError(t, err)
	assert.True(t, decoded.Total.Equal(first.Total))
	assert.Len(t, decoded.Lines, len(first.Lines))
	assert.Equal(t, "Thanksgiving Day", decoded.Holiday)
}

func TestParseBreakdownRejectsTamperedTotal(t *testing.T) {
	_, err := ParseBreakdown([]byte(`{"lines":[{"code":"base","kind":"base","amount":"50"},{"code":"total","kind":"total","amount":"60"}],"total":"60"}`))
	require.Error(t, err)
}

func TestRatesValidate(t *testing.T) {
	rates := DefaultRates()
	rates.PerMile = decimal.NewFromInt(-1)
	require.Error(t, rates.Validate())

	rates = DefaultRates()
	rates.IndividualDiscountPct = decimal.NewFromInt(120)
	require.Error(t, rates.Validate())

	require.NoError(t, DefaultRates().Validate())
}

func hasLine(b Breakdown, code string) bool {
	for _, line := range b.Lines {
		if line.Code == code {
			return true
		}
	}
	return false
}
