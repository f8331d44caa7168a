package enums

import "fmt"

// WheelchairOption is the wheelchair selection recorded on a trip.
type WheelchairOption string

const (
	WheelchairNone   WheelchairOption = "none"
	WheelchairOwn    WheelchairOption = "own"
	WheelchairRental WheelchairOption = "rental"
)

var validWheelchairOptions = []WheelchairOption{
	WheelchairNone,
	WheelchairOwn,
	WheelchairRental,
}

// String implements fmt.Stringer.
func (w WheelchairOption) String() string {
	return string(w)
}

// IsValid reports whether the value is a known WheelchairOption.
func (w WheelchairOption) IsValid() bool {
	for _, candidate := range validWheelchairOptions {
		if candidate == w {
			return true
		}
	}
	return false
}

// ParseWheelchairOption converts raw input into a WheelchairOption.
func ParseWheelchairOption(value string) (WheelchairOption, error) {
	for _, candidate := range validWheelchairOptions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wheelchair option %q", value)
}
