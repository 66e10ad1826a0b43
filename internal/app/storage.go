package app

import (
	"context"
	"database/sql"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/internal/domain/product"
	"github.com/xenking/kart-orders/internal/storage/postgres"
	"github.com/xenking/kart-orders/internal/storage/sqlite"
	"github.com/xenking/kart-orders/pkg/health"
)

// storage bundles the stores of one driver.
type storage struct {
	txm      order.TxManager
	orders   order.Repository
	products product.Repository
	catalog  product.Writer
	apikeys  auth.Repository
	ping     health.CheckFunc
	close    func()
}

func openStorage(ctx context.Context, lg *zap.Logger, cfg StorageConfig) (*storage, error) {
	switch cfg.Driver {
	case DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "run migrations")
		}
		lg.Info("Using PostgreSQL store", zap.Duration("lock_timeout", cfg.LockTimeout))
		return &storage{
			txm:      postgres.NewStore(pool, postgres.WithLockTimeout(cfg.LockTimeout)),
			orders:   postgres.NewOrderRepository(pool),
			products: postgres.NewProductRepository(pool),
			catalog:  postgres.NewProductRepository(pool),
			apikeys:  postgres.NewAPIKeyRepository(pool),
			ping:     health.PingCheck(pool),
			close:    pool.Close,
		}, nil
	case DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.File)
		if err != nil {
			return nil, errors.Wrap(err, "open sqlite")
		}
		lg.Info("Using SQLite store", zap.String("path", cfg.File))
		return &storage{
			txm:      sqlite.NewStore(db),
			orders:   sqlite.NewOrderRepository(db),
			products: sqlite.NewProductRepository(db),
			catalog:  sqlite.NewProductRepository(db),
			apikeys:  sqlite.NewAPIKeyRepository(db),
			ping:     func(ctx context.Context) error { return db.PingContext(ctx) },
			close:    closeDB(lg, db),
		}, nil
	default:
		return nil, errors.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func closeDB(lg *zap.Logger, db *sql.DB) func() {
	return func() {
		if err := db.Close(); err != nil {
			lg.Warn("Close sqlite", zap.Error(err))
		}
	}
}
