package product

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist or has
// been deleted.
var ErrNotFound = errors.New("product not found")

// ErrInvalid is returned for product records that cannot be stored.
var ErrInvalid = errors.New("invalid product")

// maxPrice is the exclusive upper bound of a price: ten integer digits.
var maxPrice = decimal.New(1, 10)

// Product is an inventory record. Quantity never goes negative and deleted
// products cannot be reserved against.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Quantity    int
	Deleted     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate checks a product submitted for creation or update: name and
// description are required, the price is positive with at most two decimal
// places and ten integer digits, and the quantity is not negative.
func (p *Product) Validate() error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return errors.Wrap(ErrInvalid, "name is required")
	case strings.TrimSpace(p.Description) == "":
		return errors.Wrap(ErrInvalid, "description is required")
	case !p.Price.IsPositive():
		return errors.Wrap(ErrInvalid, "price must be greater than zero")
	case !p.Price.Equal(p.Price.Round(2)) || p.Price.GreaterThanOrEqual(maxPrice):
		return errors.Wrap(ErrInvalid, "price must be a valid monetary amount")
	case p.Quantity < 0:
		return errors.Wrap(ErrInvalid, "quantity cannot be negative")
	}
	return nil
}

// Repository defines catalog reads of active products.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
}

// Writer creates or replaces product records.
type Writer interface {
	Upsert(ctx context.Context, p *Product) error
}

// Cache is a read-side cache of product records. Entries must be
// invalidated after every committed stock mutation.
type Cache interface {
	Get(ctx context.Context, id string) (*Product, bool, error)
	Set(ctx context.Context, p *Product) error
	Invalidate(ctx context.Context, ids ...string) error
}
