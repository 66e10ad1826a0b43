package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/domain/inventory"
	"github.com/xenking/kart-orders/internal/domain/order"
)

var _ order.TxManager = (*Store)(nil)

// Store runs order placements in READ COMMITTED transactions. Products are
// locked with SELECT ... FOR UPDATE, so concurrent placements touching the
// same product serialize on the row.
type Store struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLockTimeout bounds how long a transaction waits for a product row
// lock. Expiry surfaces as inventory.ErrConflict.
func WithLockTimeout(d time.Duration) StoreOption {
	return func(s *Store) { s.lockTimeout = d }
}

// NewStore creates a Store on pool.
func NewStore(pool *pgxpool.Pool, opts ...StoreOption) *Store {
	s := &Store{pool: pool}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type tx struct {
	products *ProductRepository
	orders   *OrderRepository
}

func (t *tx) Inventory() inventory.Store { return t.products }
func (t *tx) Orders() order.Repository   { return t.orders }

// WithinTx runs fn in a transaction. The transaction is rolled back on every
// path that does not commit.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return errors.Wrap(mapError(err), "begin")
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if err := pgTx.Rollback(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			zctx.From(ctx).Warn("Rollback failed", zap.Error(err))
		}
	}()

	if s.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = %d", s.lockTimeout.Milliseconds())
		if _, err := pgTx.Exec(ctx, stmt); err != nil {
			return errors.Wrap(err, "set lock timeout")
		}
	}

	if err := fn(ctx, &tx{
		products: &ProductRepository{q: pgTx},
		orders:   &OrderRepository{q: pgTx},
	}); err != nil {
		return err
	}

	if err := pgTx.Commit(ctx); err != nil {
		return errors.Wrap(mapError(err), "commit")
	}
	committed = true
	return nil
}

// Restock adds the given increments to active products in one transaction
// and returns the number of products updated.
func (s *Store) Restock(ctx context.Context, increments map[string]int) (int, error) {
	var updated int
	err := pgx.BeginFunc(ctx, s.pool, func(pgTx pgx.Tx) error {
		b := &pgx.Batch{}
		for id, delta := range increments {
			b.Queue(restockSQL, id, delta).Exec(func(tag pgconn.CommandTag) error {
				updated += int(tag.RowsAffected())
				return nil
			})
		}
		return pgTx.SendBatch(ctx, b).Close()
	})
	if err != nil {
		return 0, errors.Wrap(mapError(err), "restock")
	}
	return updated, nil
}
