package fares

import (
	"encoding/json"
	"fmt"

	"github.com/jasskhinda/facility-billing/pkg/enums"
	"github.com/shopspring/decimal"
)

const CurrencyUSD = "USD"

// Line is one itemized row of a fare.
type Line struct {
	Code   string                  `json:"code"`
	Label  string                  `json:"label"`
	Kind   enums.BreakdownLineKind `json:"kind"`
	Amount decimal.Decimal         `json:"amount"`
}

// Breakdown is the frozen, itemized price of a trip. The last line is always
// the total.
type Breakdown struct {
	Lines    []Line          `json:"lines"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`
	TimeZone string          `json:"time_zone"`
	Holiday  string          `json:"holiday,omitempty"`
}

// Marshal encodes the breakdown for storage.
func (b Breakdown) Marshal() ([]byte, error) {
	return json.Marshal(b)
}

// ParseBreakdown decodes a stored breakdown and checks that its lines still
// add up to the recorded total.
func ParseBreakdown(data []byte) (Breakdown, error) {
	var b Breakdown
	if err := json.Unmarshal(data, &b); err != nil {
		return Breakdown{}, fmt.Errorf("decode fare breakdown: %w", err)
	}
	if sum := b.ItemsTotal(); !sum.Equal(b.Total) {
		return Breakdown{}, fmt.Errorf("fare breakdown lines sum to %s, total is %s", sum.StringFixed(2), b.Total.StringFixed(2))
	}
	return b, nil
}

// ItemsTotal sums every non-total line.
func (b Breakdown) ItemsTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, line := range b.Lines {
		if line.Kind == enums.BreakdownLineTotal {
			continue
		}
		sum = sum.Add(line.Amount)
	}
	return sum
}

// Items returns the lines without the trailing total.
func (b Breakdown) Items() []Line {
	out := make([]Line, 0, len(b.Lines))
	for _, line := range b.Lines {
		if line.Kind != enums.BreakdownLineTotal {
			out = append(out, line)
		}
	}
	return out
}
