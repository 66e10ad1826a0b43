// Command seed-db loads products and API keys from a YAML seed file.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/app"
	"github.com/xenking/kart-orders/internal/storage/postgres"
	"github.com/xenking/kart-orders/internal/storage/redis"
	"github.com/xenking/kart-orders/internal/storage/sqlite"
)

func main() {
	var (
		driver       string
		databaseURL  string
		sqliteFile   string
		seedFile     string
		apiKeyPepper string
		redisAddr    string
	)

	flag.StringVar(&driver, "driver", app.DriverPostgres, "storage driver: postgres or sqlite")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&sqliteFile, "sqlite-file", "kart.db", "SQLite database file")
	flag.StringVar(&seedFile, "seed-file", "db/seed/seed.yaml", "path to the YAML seed file")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or KART_API_KEY_PEPPER env)")
	flag.StringVar(&redisAddr, "redis-addr", "", "Redis address of the product cache to invalidate (or KART_REDIS_ADDR env)")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("KART_API_KEY_PEPPER")
	}
	if redisAddr == "" {
		redisAddr = os.Getenv("KART_REDIS_ADDR")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = zctx.Base(ctx, lg)

	seed, err := LoadSeed(seedFile)
	if err != nil {
		lg.Fatal("Load seed file", zap.Error(err))
	}

	target, closeFn, err := openTarget(ctx, driver, databaseURL, sqliteFile)
	if err != nil {
		lg.Fatal("Open database", zap.Error(err))
	}
	defer closeFn()

	if redisAddr != "" {
		client, err := redis.NewClient(ctx, redis.Config{Addr: redisAddr, Password: os.Getenv("KART_REDIS_PASSWORD")})
		if err != nil {
			lg.Fatal("Connect redis", zap.Error(err))
		}
		defer func() { _ = client.Close() }()
		target = target.WithCache(redis.NewProductCache(client, 0))
	}

	if err := Apply(ctx, lg, target, seed, []byte(apiKeyPepper)); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed",
		zap.Int("products", len(seed.Products)),
		zap.Int("api_keys", len(seed.APIKeys)),
	)
}

func openTarget(ctx context.Context, driver, databaseURL, sqliteFile string) (Target, func(), error) {
	switch driver {
	case app.DriverPostgres:
		if databaseURL == "" {
			return Target{}, nil, errors.New("database URL is required: set --database-url or DATABASE_URL")
		}
		pool, err := postgres.NewPool(ctx, databaseURL)
		if err != nil {
			return Target{}, nil, errors.Wrap(err, "connect to database")
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return Target{}, nil, errors.Wrap(err, "run migrations")
		}
		return Target{
			Products: postgres.NewProductRepository(pool),
			APIKeys:  postgres.NewAPIKeyRepository(pool),
		}, pool.Close, nil
	case app.DriverSQLite:
		db, err := sqlite.Open(ctx, sqliteFile)
		if err != nil {
			return Target{}, nil, err
		}
		return Target{
			Products: sqlite.NewProductRepository(db),
			APIKeys:  sqlite.NewAPIKeyRepository(db),
		}, func() { _ = db.Close() }, nil
	default:
		return Target{}, nil, errors.Errorf("unknown driver %q", driver)
	}
}
