package order

import (
	"github.com/go-faster/errors"

	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/inventory"
	"github.com/xenking/kart-orders/internal/domain/product"
)

var (
	// ErrEmptyItems is returned for orders without lines.
	ErrEmptyItems = errors.New("items required")
	// ErrMissingUser is returned when the caller identity has no user id.
	ErrMissingUser = errors.New("user id required")
	// ErrNotFound is returned for unknown orders or orders of another user.
	ErrNotFound = errors.New("order not found")
)

// Kind classifies placement failures.
type Kind string

const (
	KindInvalidArgument   Kind = "invalid_argument"
	KindNotFound          Kind = "not_found"
	KindInsufficientStock Kind = "insufficient_stock"
	KindConflict          Kind = "conflict"
	KindInternal          Kind = "internal"
)

// Classify maps an error returned by Service to its Kind.
func Classify(err error) Kind {
	var (
		iqErr *inventory.InvalidQuantityError
		isErr *inventory.InsufficientStockError
	)
	switch {
	case errors.Is(err, ErrEmptyItems),
		errors.Is(err, ErrMissingUser),
		errors.Is(err, auth.ErrInvalidRole),
		errors.As(err, &iqErr):
		return KindInvalidArgument
	case errors.Is(err, product.ErrNotFound), errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.As(err, &isErr):
		return KindInsufficientStock
	case errors.Is(err, inventory.ErrConflict):
		return KindConflict
	default:
		return KindInternal
	}
}
