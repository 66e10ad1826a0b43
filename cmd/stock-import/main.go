// Command stock-import applies gzip restock feeds to the product catalog.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/restock"
	"github.com/xenking/kart-orders/internal/storage/postgres"
	"github.com/xenking/kart-orders/internal/storage/redis"
)

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
		redisAddr   string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing restock feeds")
	flag.StringVar(&pattern, "pattern", "restock*.gz", "feed file glob inside data-dir")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&redisAddr, "redis-addr", "", "Redis address of the product cache to invalidate (or KART_REDIS_ADDR env)")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if redisAddr == "" {
		redisAddr = os.Getenv("KART_REDIS_ADDR")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = zctx.Base(ctx, lg)

	if err := run(ctx, lg, filepath.Join(dataDir, pattern), databaseURL, redisAddr); err != nil {
		lg.Fatal("Stock import failed", zap.Error(err))
	}
}

func run(ctx context.Context, lg *zap.Logger, glob, databaseURL, redisAddr string) error {
	paths, err := filepath.Glob(glob)
	if err != nil {
		return errors.Wrap(err, "glob feeds")
	}
	if len(paths) == 0 {
		return errors.Errorf("no feeds match %s", glob)
	}
	lg.Info("Importing feeds", zap.Strings("files", paths))

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	var opts []restock.Option
	if redisAddr != "" {
		client, err := redis.NewClient(ctx, redis.Config{Addr: redisAddr, Password: os.Getenv("KART_REDIS_PASSWORD")})
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func() { _ = client.Close() }()
		opts = append(opts, restock.WithCache(redis.NewProductCache(client, 0)))
	}

	stats, err := restock.Import(ctx, postgres.NewProductRepository(pool), postgres.NewStore(pool), paths, opts...)
	if err != nil {
		return err
	}

	lg.Info("Stock import completed",
		zap.Int64("lines", stats.Lines),
		zap.Int64("malformed", stats.Malformed),
		zap.Int64("unknown", stats.Unknown),
		zap.Int("products", stats.Products),
		zap.Int("updated", stats.Updated),
	)
	return nil
}
