package discount

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/auth"
)

// Signal tells the chain whether to run the next rule.
type Signal int

const (
	Continue Signal = iota
	Stop
)

func (s Signal) String() string {
	if s == Stop {
		return "stop"
	}
	return "continue"
}

// Rule is one step of the discount chain. Apply may only add to the context.
type Rule interface {
	Name() string
	Priority() int
	Apply(c *Context) Signal
}

// Priorities of the built-in rules.
const (
	PriorityPremiumUser    = 1
	PriorityHighValueOrder = 2
	PriorityHighLineItem   = 3
)

var (
	_ Rule = (*PremiumUserRate)(nil)
	_ Rule = (*HighValueOrderRate)(nil)
	_ Rule = (*HighLineItemFlatAmount)(nil)
)

// PremiumUserRate grants a percentage of the subtotal to premium users.
type PremiumUserRate struct {
	Rate decimal.Decimal
}

func (r *PremiumUserRate) Name() string  { return "premium_user_rate" }
func (r *PremiumUserRate) Priority() int { return PriorityPremiumUser }

func (r *PremiumUserRate) Apply(c *Context) Signal {
	if c.Role() == auth.RolePremiumUser {
		c.Add(c.Subtotal().Mul(r.Rate))
	}
	return Continue
}

// HighValueOrderRate grants a percentage of the subtotal when the subtotal
// is strictly above Threshold.
type HighValueOrderRate struct {
	Threshold decimal.Decimal
	Rate      decimal.Decimal
}

func (r *HighValueOrderRate) Name() string  { return "high_value_order_rate" }
func (r *HighValueOrderRate) Priority() int { return PriorityHighValueOrder }

func (r *HighValueOrderRate) Apply(c *Context) Signal {
	if c.Subtotal().GreaterThan(r.Threshold) {
		c.Add(c.Subtotal().Mul(r.Rate))
	}
	return Continue
}

// HighLineItemFlatAmount grants Amount once per line whose total is strictly
// above Threshold.
type HighLineItemFlatAmount struct {
	Threshold decimal.Decimal
	Amount    decimal.Decimal
}

func (r *HighLineItemFlatAmount) Name() string  { return "high_line_item_flat_amount" }
func (r *HighLineItemFlatAmount) Priority() int { return PriorityHighLineItem }

func (r *HighLineItemFlatAmount) Apply(c *Context) Signal {
	for _, lt := range c.LineTotals() {
		if lt.GreaterThan(r.Threshold) {
			c.Add(r.Amount)
		}
	}
	return Continue
}
