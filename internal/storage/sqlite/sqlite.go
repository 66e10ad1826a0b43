// Package sqlite implements the order pipeline stores on an embedded SQLite
// database. The pool holds a single connection, so transactions are
// serialized and reservations cannot interleave.
package sqlite

import (
	"context"
	"database/sql"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/xenking/kart-orders/internal/domain/inventory"
	"github.com/xenking/kart-orders/internal/domain/order"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY,
	name        TEXT    NOT NULL,
	description TEXT    NOT NULL DEFAULT '',
	price       TEXT    NOT NULL,
	quantity    INTEGER NOT NULL CHECK (quantity >= 0),
	deleted     INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
	id             TEXT PRIMARY KEY,
	user_id        TEXT    NOT NULL,
	subtotal       TEXT    NOT NULL,
	discount_total TEXT    NOT NULL,
	total          TEXT    NOT NULL,
	created_at     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS order_lines (
	order_id         TEXT    NOT NULL REFERENCES orders (id) ON DELETE CASCADE,
	position         INTEGER NOT NULL,
	product_id       TEXT    NOT NULL REFERENCES products (id),
	quantity         INTEGER NOT NULL CHECK (quantity > 0),
	unit_price       TEXT    NOT NULL,
	discount_applied TEXT    NOT NULL,
	total_price      TEXT    NOT NULL,
	PRIMARY KEY (order_id, position)
);

CREATE TABLE IF NOT EXISTS api_keys (
	id       TEXT PRIMARY KEY,
	key_hash TEXT    NOT NULL UNIQUE,
	name     TEXT    NOT NULL,
	user_id  TEXT    NOT NULL,
	role     TEXT    NOT NULL,
	active   INTEGER NOT NULL DEFAULT 1
);
`

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens the database at path, enables WAL and foreign keys and applies
// the schema.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(err, "%s", pragma)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "apply schema")
	}
	return db, nil
}

var _ order.TxManager = (*Store)(nil)

// Store runs order placements in SQLite transactions.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store on db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

type tx struct {
	products *ProductRepository
	orders   *OrderRepository
}

func (t *tx) Inventory() inventory.Store { return t.products }
func (t *tx) Orders() order.Repository   { return t.orders }

// WithinTx runs fn in a transaction, rolling back unless it commits.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(mapError(err), "begin")
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if err := sqlTx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			zctx.From(ctx).Warn("Rollback failed", zap.Error(err))
		}
	}()

	if err := fn(ctx, &tx{
		products: &ProductRepository{q: sqlTx},
		orders:   &OrderRepository{q: sqlTx},
	}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return errors.Wrap(mapError(err), "commit")
	}
	committed = true
	return nil
}

// mapError translates busy and locked database errors into
// inventory.ErrConflict.
func mapError(err error) error {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return errors.Wrapf(inventory.ErrConflict, "%s", sqliteErr.Error())
		}
	}
	return err
}
