// Package app wires the order API server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-orders/internal/domain/discount"
	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/internal/domain/product"
	"github.com/xenking/kart-orders/internal/handler"
	"github.com/xenking/kart-orders/internal/messaging/kafka"
	"github.com/xenking/kart-orders/internal/storage/redis"
	"github.com/xenking/kart-orders/pkg/health"
	"github.com/xenking/kart-orders/pkg/httpmiddleware"
)

const healthInterval = 10 * time.Second

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage.Driver),
	)

	chain, err := discount.NewChainFromConfig(cfg.Discount)
	if err != nil {
		return errors.Wrap(err, "discount rules")
	}
	lg.Info("Discount rules loaded", zap.Strings("rules", chain.Rules()))

	st, err := openStorage(ctx, lg, cfg.Storage)
	if err != nil {
		return err
	}
	defer st.close()

	healthSvc := health.New()
	healthSvc.AddReadinessCheck(cfg.Storage.Driver, 5*time.Second, st.ping)
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	opts := []order.Option{
		order.WithRetry(cfg.Retry),
		order.WithTracerProvider(m.TracerProvider()),
		order.WithMeterProvider(m.MeterProvider()),
	}
	products := st.products
	catalog := st.catalog

	if cfg.Redis.Addr != "" {
		client, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func() { _ = client.Close() }()

		redisCache := redis.NewProductCache(client, cfg.Redis.TTL)
		cache := product.NewRepeatingCache(redisCache, cfg.Redis.InvalidateRepeat)
		products = product.NewCachedRepository(products, cache)
		catalog = product.NewInvalidatingWriter(catalog, cache)
		opts = append(opts, order.WithProductCache(cache))
		healthSvc.AddReadinessCheck("redis", time.Second, health.PingCheck(redisCache))
		lg.Info("Product cache enabled",
			zap.String("redis", cfg.Redis.Addr),
			zap.Duration("ttl", cfg.Redis.TTL),
			zap.Duration("invalidate_repeat", cfg.Redis.InvalidateRepeat),
		)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers)
		if err != nil {
			return errors.Wrap(err, "connect kafka")
		}
		publisher := kafka.NewPublisher(producer, cfg.Kafka.Topic)
		defer func() {
			if err := publisher.Close(); err != nil {
				lg.Warn("Close kafka publisher", zap.Error(err))
			}
		}()
		opts = append(opts, order.WithPublisher(publisher))
		lg.Info("Order events enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	orderService, err := order.NewService(st.txm, st.orders, chain, opts...)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	if cfg.APIKeyPepper == "" {
		lg.Warn("API key pepper is empty, keys are hashed without a secret")
	}
	authn := handler.NewAuthenticator(st.apikeys, []byte(cfg.APIKeyPepper))
	limiter := httpmiddleware.NewLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	handler.NewHandler(orderService, products, catalog).Register(mux,
		authn.Middleware(),
		httpmiddleware.RateLimit(limiter, handler.PrincipalKey),
	)
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.Instrument("kart-api", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
		),
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return healthSvc.Run(gCtx, healthInterval)
	})
	g.Go(func() error {
		limiter.Run(gCtx)
		return nil
	})
	g.Go(func() error {
		// Graceful shutdown: wait for cancellation, drain, then stop.
		<-gCtx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	g.Go(func() error {
		healthSvc.SetReady(true)
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}
