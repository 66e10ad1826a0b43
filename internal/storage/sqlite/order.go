package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-orders/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders (id, user_id, subtotal, discount_total, total, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	insertOrderLineSQL = `INSERT INTO order_lines
		(order_id, position, product_id, quantity, unit_price, discount_applied, total_price)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	getOrderSQL = `SELECT id, user_id, subtotal, discount_total, total, created_at
		FROM orders WHERE id = ?`

	getOrderLinesSQL = `SELECT product_id, quantity, unit_price, discount_applied, total_price
		FROM order_lines WHERE order_id = ? ORDER BY position`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository on SQLite.
type OrderRepository struct {
	q querier
}

// NewOrderRepository returns an OrderRepository on db.
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{q: db}
}

// Create persists the order header and its lines.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	if _, err := r.q.ExecContext(ctx, insertOrderSQL,
		o.ID, o.UserID, o.Subtotal.String(), o.Discount.String(), o.Total.String(), o.CreatedAt.UnixNano(),
	); err != nil {
		return errors.Wrapf(mapError(err), "insert order %q", o.ID)
	}

	for i, l := range o.Lines {
		if _, err := r.q.ExecContext(ctx, insertOrderLineSQL,
			o.ID, i, l.ProductID, l.Quantity, l.UnitPrice.String(), l.Discount.String(), l.Total.String(),
		); err != nil {
			return errors.Wrapf(mapError(err), "insert line %d of order %q", i, o.ID)
		}
	}
	return nil
}

// GetByID returns the order with its lines.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	var (
		o         order.Order
		createdAt int64
	)
	err := r.q.QueryRowContext(ctx, getOrderSQL, id).Scan(
		&o.ID, &o.UserID, &o.Subtotal, &o.Discount, &o.Total, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	o.CreatedAt = time.Unix(0, createdAt).UTC()

	rows, err := r.q.QueryContext(ctx, getOrderLinesSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get lines of order %q", id)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var l order.Line
		if err := rows.Scan(&l.ProductID, &l.Quantity, &l.UnitPrice, &l.Discount, &l.Total); err != nil {
			return nil, errors.Wrapf(err, "scan line of order %q", id)
		}
		o.Lines = append(o.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "iterate lines of order %q", id)
	}
	return &o, nil
}
