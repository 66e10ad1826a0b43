package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-orders/internal/domain/inventory"
	"github.com/xenking/kart-orders/internal/domain/product"
)

const (
	productColumns = `id, name, description, price, quantity, deleted, created_at, updated_at`

	getActiveProductSQL = `SELECT ` + productColumns + `
		FROM products WHERE id = $1 AND NOT deleted`

	lockActiveProductSQL = getActiveProductSQL + ` FOR UPDATE`

	updateQuantitySQL = `UPDATE products SET quantity = $2, updated_at = now()
		WHERE id = $1 AND NOT deleted`

	upsertProductSQL = `INSERT INTO products (id, name, description, price, quantity)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			quantity = EXCLUDED.quantity,
			updated_at = now()`

	listActiveIDsSQL = `SELECT id FROM products WHERE NOT deleted ORDER BY id`

	restockSQL = `UPDATE products SET quantity = quantity + $2, updated_at = now()
		WHERE id = $1 AND NOT deleted`
)

var (
	_ product.Repository = (*ProductRepository)(nil)
	_ inventory.Store    = (*ProductRepository)(nil)
)

// ProductRepository reads and mutates the products table. Bound to a
// transaction, FindActive holds the row lock until commit or rollback.
type ProductRepository struct {
	q querier
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{q: pool}
}

// GetByID returns an active product without locking it.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	return r.getOne(ctx, getActiveProductSQL, id)
}

// FindActive returns an active product and locks its row.
func (r *ProductRepository) FindActive(ctx context.Context, id string) (*product.Product, error) {
	return r.getOne(ctx, lockActiveProductSQL, id)
}

// UpdateQuantity stores the new quantity of an active product.
func (r *ProductRepository) UpdateQuantity(ctx context.Context, id string, quantity int) error {
	tag, err := r.q.Exec(ctx, updateQuantitySQL, id, quantity)
	if err != nil {
		return errors.Wrapf(mapError(err), "update quantity of %q", id)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Upsert creates or replaces a product record.
func (r *ProductRepository) Upsert(ctx context.Context, p *product.Product) error {
	if _, err := r.q.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Description, p.Price, p.Quantity); err != nil {
		return errors.Wrapf(err, "upsert product %q", p.ID)
	}
	return nil
}

// ListActiveIDs returns the ids of all active products.
func (r *ProductRepository) ListActiveIDs(ctx context.Context) ([]string, error) {
	rows, err := r.q.Query(ctx, listActiveIDsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list product ids")
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *ProductRepository) getOne(ctx context.Context, sql, id string) (*product.Product, error) {
	rows, err := r.q.Query(ctx, sql, id)
	if err != nil {
		return nil, errors.Wrapf(mapError(err), "get product %q", id)
	}
	p, err := collectOne(rows, scanProduct, product.ErrNotFound)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &p.Quantity,
		&p.Deleted, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}
