package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-orders/internal/domain/inventory"
	"github.com/xenking/kart-orders/internal/domain/product"
)

const (
	getActiveProductSQL = `SELECT id, name, description, price, quantity, deleted, created_at, updated_at
		FROM products WHERE id = ? AND deleted = 0`

	updateQuantitySQL = `UPDATE products SET quantity = ?, updated_at = ? WHERE id = ? AND deleted = 0`

	upsertProductSQL = `INSERT INTO products (id, name, description, price, quantity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			price = excluded.price,
			quantity = excluded.quantity,
			updated_at = excluded.updated_at`
)

var (
	_ product.Repository = (*ProductRepository)(nil)
	_ inventory.Store    = (*ProductRepository)(nil)
)

// ProductRepository reads and mutates the products table.
type ProductRepository struct {
	q querier
}

// NewProductRepository returns a ProductRepository on db.
func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{q: db}
}

// GetByID returns an active product.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	var (
		p                    product.Product
		createdAt, updatedAt int64
	)
	err := r.q.QueryRowContext(ctx, getActiveProductSQL, id).Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &p.Quantity, &p.Deleted, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, product.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(mapError(err), "get product %q", id)
	}
	p.CreatedAt = time.Unix(0, createdAt).UTC()
	p.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &p, nil
}

// FindActive returns an active product. The single connection of the pool
// keeps the row stable until the surrounding transaction ends.
func (r *ProductRepository) FindActive(ctx context.Context, id string) (*product.Product, error) {
	return r.GetByID(ctx, id)
}

// UpdateQuantity stores the new quantity of an active product.
func (r *ProductRepository) UpdateQuantity(ctx context.Context, id string, quantity int) error {
	res, err := r.q.ExecContext(ctx, updateQuantitySQL, quantity, time.Now().UnixNano(), id)
	if err != nil {
		return errors.Wrapf(mapError(err), "update quantity of %q", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Upsert creates or replaces a product record.
func (r *ProductRepository) Upsert(ctx context.Context, p *product.Product) error {
	now := time.Now().UnixNano()
	if _, err := r.q.ExecContext(ctx, upsertProductSQL,
		p.ID, p.Name, p.Description, p.Price.String(), p.Quantity, now, now,
	); err != nil {
		return errors.Wrapf(err, "upsert product %q", p.ID)
	}
	return nil
}
