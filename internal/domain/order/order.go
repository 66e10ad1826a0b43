package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/inventory"
)

// Order is a placed order. It is never mutated after creation.
type Order struct {
	ID        string
	UserID    string
	Lines     []Line
	Subtotal  decimal.Decimal
	Discount  decimal.Decimal
	Total     decimal.Decimal
	CreatedAt time.Time
}

// Line is one persisted order line. UnitPrice is captured at reservation
// time; Total is the line total after its share of the discount.
type Line struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
	Discount  decimal.Decimal
	Total     decimal.Decimal
}

// ProductIDs returns the distinct product ids of the order in line order.
func (o *Order) ProductIDs() []string {
	seen := make(map[string]struct{}, len(o.Lines))
	ids := make([]string, 0, len(o.Lines))
	for _, l := range o.Lines {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		ids = append(ids, l.ProductID)
	}
	return ids
}

// Item is a requested order line.
type Item struct {
	ProductID string
	Quantity  int
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
}

// Tx exposes the stores taking part in one order placement.
type Tx interface {
	Inventory() inventory.Store
	Orders() Repository
}

// TxManager runs fn in a single storage transaction, committing when fn
// returns nil and rolling back otherwise.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Publisher announces committed orders to other systems.
type Publisher interface {
	OrderPlaced(ctx context.Context, o *Order) error
}
