// Package money holds the rounding policy shared by every monetary computation
// in the order pipeline.
package money

import "github.com/shopspring/decimal"

const (
	// Places is the number of fractional digits exposed for amounts.
	Places = 2
	// SharePlaces is the precision used for proportional shares.
	SharePlaces = 8
)

// Round rounds d to two fractional digits, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Share returns part/whole with SharePlaces digits, rounded half up.
// A zero whole yields zero.
func Share(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.DivRound(whole, SharePlaces)
}

// NonNegative clamps negative amounts to zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Sum adds all amounts.
func Sum(amounts []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
