package inventory

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-orders/internal/domain/product"
)

// ErrConflict is returned by stores when a concurrent transaction prevented
// the reservation from completing. Callers may retry the unit of work.
var ErrConflict = errors.New("concurrent stock update conflict")

// InvalidQuantityError indicates a reservation for fewer than one unit.
type InvalidQuantityError struct {
	ProductID string
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be at least 1 for product %s, got %d", e.ProductID, e.Quantity)
}

// ProductNotFoundError indicates an unknown or deleted product.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product with id %s not found", e.ProductID)
}

// Unwrap makes errors.Is(err, product.ErrNotFound) hold.
func (e *ProductNotFoundError) Unwrap() error {
	return product.ErrNotFound
}

// InsufficientStockError indicates the requested quantity exceeds what is
// available.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product: %s", e.Name)
}
