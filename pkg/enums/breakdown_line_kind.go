package enums

import "fmt"

// BreakdownLineKind tags each line of a fare breakdown.
type BreakdownLineKind string

const (
	BreakdownLineBase     BreakdownLineKind = "base"
	BreakdownLinePremium  BreakdownLineKind = "premium"
	BreakdownLineDiscount BreakdownLineKind = "discount"
	BreakdownLineTotal    BreakdownLineKind = "total"
)

var validBreakdownLineKinds = []BreakdownLineKind{
	BreakdownLineBase,
	BreakdownLinePremium,
	BreakdownLineDiscount,
	BreakdownLineTotal,
}

// String implements fmt.Stringer.
func (b BreakdownLineKind) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BreakdownLineKind.
func (b BreakdownLineKind) IsValid() bool {
	for _, candidate := range validBreakdownLineKinds {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseBreakdownLineKind converts raw input into a BreakdownLineKind.
func ParseBreakdownLineKind(value string) (BreakdownLineKind, error) {
	for _, candidate := range validBreakdownLineKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid breakdown line kind %q", value)
}
