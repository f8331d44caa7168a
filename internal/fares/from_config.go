package fares

import (
	"fmt"

	"github.com/jasskhinda/facility-billing/pkg/config"
)

// NewFromConfig wires the calculator from the fare and billing sections.
func NewFromConfig(fare config.FareConfig, billing config.BillingConfig) (*Calculator, error) {
	rates, err := RatesFromConfig(fare)
	if err != nil {
		return nil, err
	}
	holidays, err := NewFederalCalendar(fare.HolidayExtraDates)
	if err != nil {
		return nil, err
	}
	area, err := NewServiceArea(fare.PrimaryCounty, fare.DeadMiles)
	if err != nil {
		return nil, err
	}
	if fare.ServiceAreaPath != "" {
		if err := area.LoadBoundariesFile(fare.ServiceAreaPath); err != nil {
			return nil, fmt.Errorf("load service area: %w", err)
		}
	}
	loc, err := billing.Location()
	if err != nil {
		return nil, err
	}
	return NewCalculator(rates, holidays, area, loc)
}
