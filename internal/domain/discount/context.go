// Package discount evaluates the ordered chain of discount rules applied to an
// order before allocation.
package discount

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/auth"
)

// Context is the accumulator passed through the chain. Role, subtotal and
// line totals are read-only; only the running total changes, and only
// upwards.
type Context struct {
	role       auth.Role
	subtotal   decimal.Decimal
	lineTotals []decimal.Decimal
	total      decimal.Decimal
}

// NewContext creates a Context for one chain evaluation.
func NewContext(role auth.Role, subtotal decimal.Decimal, lineTotals []decimal.Decimal) *Context {
	return &Context{
		role:       role,
		subtotal:   subtotal,
		lineTotals: lineTotals,
		total:      decimal.Zero,
	}
}

func (c *Context) Role() auth.Role           { return c.role }
func (c *Context) Subtotal() decimal.Decimal { return c.subtotal }
func (c *Context) Total() decimal.Decimal    { return c.total }

// LineTotals returns the per-line totals in input order. Rules must not
// modify the returned slice.
func (c *Context) LineTotals() []decimal.Decimal { return c.lineTotals }

// Add accumulates a contribution. Zero and negative amounts are ignored.
func (c *Context) Add(amount decimal.Decimal) {
	if amount.Sign() <= 0 {
		return
	}
	c.total = c.total.Add(amount)
}
