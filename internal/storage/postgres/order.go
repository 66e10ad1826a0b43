package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-orders/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders (id, user_id, subtotal, discount_total, total, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	insertOrderLineSQL = `INSERT INTO order_lines
		(order_id, position, product_id, quantity, unit_price, discount_applied, total_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	getOrderSQL = `SELECT id, user_id, subtotal, discount_total, total, created_at
		FROM orders WHERE id = $1`

	getOrderLinesSQL = `SELECT product_id, quantity, unit_price, discount_applied, total_price
		FROM order_lines WHERE order_id = $1 ORDER BY position`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	q querier
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{q: pool}
}

// Create persists the order header and its lines. Lines keep their order
// through the position column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	if _, err := r.q.Exec(ctx, insertOrderSQL,
		o.ID, o.UserID, o.Subtotal, o.Discount, o.Total, o.CreatedAt,
	); err != nil {
		return errors.Wrapf(mapError(err), "insert order %q", o.ID)
	}

	b := &pgx.Batch{}
	for i, l := range o.Lines {
		b.Queue(insertOrderLineSQL, o.ID, i, l.ProductID, l.Quantity, l.UnitPrice, l.Discount, l.Total)
	}
	if err := r.q.SendBatch(ctx, b).Close(); err != nil {
		return errors.Wrapf(mapError(err), "insert lines of order %q", o.ID)
	}
	return nil
}

// GetByID returns the order with its lines.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.q.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	o, err := collectOne(rows, scanOrder, order.ErrNotFound)
	if err != nil {
		return nil, err
	}

	rows, err = r.q.Query(ctx, getOrderLinesSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get lines of order %q", id)
	}
	o.Lines, err = pgx.CollectRows(rows, scanOrderLine)
	if err != nil {
		return nil, errors.Wrapf(err, "scan lines of order %q", id)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(&o.ID, &o.UserID, &o.Subtotal, &o.Discount, &o.Total, &o.CreatedAt)
	o.CreatedAt = o.CreatedAt.UTC()
	return o, err
}

func scanOrderLine(row pgx.CollectableRow) (order.Line, error) {
	var l order.Line
	err := row.Scan(&l.ProductID, &l.Quantity, &l.UnitPrice, &l.Discount, &l.Total)
	return l, err
}
