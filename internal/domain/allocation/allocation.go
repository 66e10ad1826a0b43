// Package allocation splits an order-level discount across line items in
// proportion to each line's share of the subtotal.
package allocation

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/money"
)

// Result is the outcome of Allocate. LineDiscounts and LineTotals follow
// the input order.
type Result struct {
	// Discount is the aggregate discount clamped to [0, subtotal].
	Discount      decimal.Decimal
	LineDiscounts []decimal.Decimal
	LineTotals    []decimal.Decimal
}

// Total is the order total: the sum of the rounded line totals.
func (r Result) Total() decimal.Decimal {
	return money.Sum(r.LineTotals)
}

// AllocatedDiscount is the sum of the rounded line discounts. It may differ
// from Discount by a few cents because every line is rounded on its own.
func (r Result) AllocatedDiscount() decimal.Decimal {
	return money.Sum(r.LineDiscounts)
}

// Allocate caps discount at subtotal and apportions it over lineTotals.
// Each line receives round2(capped * round8(line/subtotal)), never more
// than the line itself; a zero subtotal gives every line a zero share.
func Allocate(subtotal, discount decimal.Decimal, lineTotals []decimal.Decimal) Result {
	capped := money.NonNegative(discount)
	if capped.GreaterThan(subtotal) {
		capped = money.NonNegative(subtotal)
	}

	res := Result{
		Discount:      capped,
		LineDiscounts: make([]decimal.Decimal, len(lineTotals)),
		LineTotals:    make([]decimal.Decimal, len(lineTotals)),
	}
	for i, lt := range lineTotals {
		share := money.Share(lt, subtotal)
		lineDiscount := money.Round(capped.Mul(share))
		if lineDiscount.GreaterThan(lt) {
			lineDiscount = money.NonNegative(lt)
		}
		res.LineDiscounts[i] = lineDiscount
		res.LineTotals[i] = money.Round(lt.Sub(lineDiscount))
	}
	return res
}
