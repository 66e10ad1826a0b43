package discount

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/auth"
)

// Chain runs rules in ascending priority. It is immutable after NewChain and
// safe for concurrent use as long as the rules are.
type Chain struct {
	rules []Rule
}

// NewChain orders rules by priority, keeping the given order for ties.
func NewChain(rules ...Rule) *Chain {
	sorted := slices.Clone(rules)
	slices.SortStableFunc(sorted, func(a, b Rule) int {
		return cmp.Compare(a.Priority(), b.Priority())
	})
	return &Chain{rules: sorted}
}

// Rules returns the rule names in evaluation order.
func (ch *Chain) Rules() []string {
	names := make([]string, len(ch.rules))
	for i, r := range ch.rules {
		names[i] = r.Name()
	}
	return names
}

// Evaluate returns the aggregate discount for an order. A non-positive
// subtotal yields zero without running any rule. The result is never
// negative but may exceed the subtotal.
func (ch *Chain) Evaluate(role auth.Role, subtotal decimal.Decimal, lineTotals []decimal.Decimal) decimal.Decimal {
	if subtotal.Sign() <= 0 {
		return decimal.Zero
	}

	c := NewContext(role, subtotal, lineTotals)
	for _, r := range ch.rules {
		if r.Apply(c) == Stop {
			break
		}
	}
	return c.Total()
}
