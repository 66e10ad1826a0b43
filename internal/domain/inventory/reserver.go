// Package inventory implements stock reservation: the single point where
// inventory is decremented and the authoritative unit price is read.
package inventory

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/product"
)

// Store is the transactional view of the product table used during
// reservation. FindActive must lock the row (or otherwise serialize access)
// until the surrounding transaction ends.
type Store interface {
	FindActive(ctx context.Context, id string) (*product.Product, error)
	UpdateQuantity(ctx context.Context, id string, quantity int) error
}

// Reserver decrements stock within a caller-provided transaction.
type Reserver struct {
	store Store
}

// NewReserver returns a Reserver operating on store.
func NewReserver(store Store) *Reserver {
	return &Reserver{store: store}
}

// Reserve validates availability of quantity units of productID, decrements
// the stored quantity and returns the product's current unit price.
func (r *Reserver) Reserve(ctx context.Context, productID string, quantity int) (decimal.Decimal, error) {
	if quantity < 1 {
		return decimal.Zero, &InvalidQuantityError{ProductID: productID, Quantity: quantity}
	}

	p, err := r.store.FindActive(ctx, productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return decimal.Zero, &ProductNotFoundError{ProductID: productID}
		}
		return decimal.Zero, errors.Wrapf(err, "find product %s", productID)
	}

	if quantity > p.Quantity {
		return decimal.Zero, &InsufficientStockError{
			ProductID: p.ID,
			Name:      p.Name,
			Requested: quantity,
			Available: p.Quantity,
		}
	}

	if err := r.store.UpdateQuantity(ctx, p.ID, p.Quantity-quantity); err != nil {
		return decimal.Zero, errors.Wrapf(err, "update quantity of %s", productID)
	}

	return p.Price, nil
}
