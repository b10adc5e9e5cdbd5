package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/alex-user-go/travelaz/internal/catalog"
	"github.com/alex-user-go/travelaz/internal/comparison"
	"github.com/alex-user-go/travelaz/internal/config"
	"github.com/alex-user-go/travelaz/internal/currency"
	"github.com/alex-user-go/travelaz/internal/handler"
	"github.com/alex-user-go/travelaz/internal/logger"
	"github.com/alex-user-go/travelaz/internal/middleware"
	"github.com/alex-user-go/travelaz/internal/obs"
	"github.com/alex-user-go/travelaz/internal/providers"
	"github.com/alex-user-go/travelaz/internal/search"
	"github.com/alex-user-go/travelaz/internal/search/cache"
	"github.com/alex-user-go/travelaz/internal/search/ratelimit"
)

// Run initializes and runs the application.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := obs.NewMetrics(reg)

	store, closeStore, err := openCatalog(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	images, err := catalog.NewImageResolver(cfg.CloudinaryCloud, cfg.CloudinaryKey, cfg.CloudinarySecret)
	if err != nil {
		return fmt.Errorf("cloudinary: %w", err)
	}

	// Exchange rates: one fetch at startup, then periodic refresh
	rates := currency.NewService(cfg.RatesBaseCurrency, currency.NewHTTPFetcher(cfg.RatesAPIURL, cfg.RatesTimeout), metrics, log)
	if _, err := rates.Refresh(ctx); err != nil {
		log.Warn("starting with fallback exchange rates", "error", err)
	}
	if cfg.RatesRefreshInterval > 0 {
		go rates.Run(ctx, cfg.RatesRefreshInterval)
	}

	// Initialize deal sources (HTTP scraping endpoints)
	registry, err := providers.NewHTTPRegistry(cfg.ScraperBaseURL, cfg.Providers, cfg.ProviderTimeout)
	if err != nil {
		return fmt.Errorf("providers: %w", err)
	}
	aggregator := search.NewAggregator(registry, rates, cfg.AggregationTimeout, metrics, log)

	backing, closeBacking, err := openBacking(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeBacking()

	resultCache, err := cache.NewCache(cfg.CacheTTL, cfg.CacheCapacity, backing, log)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer resultCache.Close()

	searchService := search.NewService(aggregator, resultCache, metrics, log)

	comparisons := comparison.NewManager(store, searchService, rates, cfg.SessionIdleTTL, metrics, log)
	defer comparisons.Shutdown()

	limiter := ratelimit.New(cfg.RateLimitRequests, cfg.RateLimitWindow)
	defer limiter.Close()

	h := handler.New(handler.Deps{
		Catalog:         store,
		Images:          images,
		Search:          searchService,
		Comparisons:     comparisons,
		Currency:        rates,
		RateLimiter:     limiter,
		Metrics:         metrics,
		Logger:          log,
		DefaultCurrency: cfg.DefaultCurrency,
	})

	r := chi.NewRouter()
	r.Use(middleware.Logging(log))
	r.Use(middleware.Metrics(metrics))
	r.Use(chimw.Recoverer)
	r.Get("/healthz", obs.HealthHandler(log))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	h.Register(r)

	// Long enough for an aggregation and a blocking snapshot wait
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.AggregationTimeout + 70*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server",
			"addr", srv.Addr,
			"catalog", cfg.CatalogDriver,
			"providers", cfg.Providers,
			"redis", cfg.RedisAddr != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	// Graceful shutdown
	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", "error", err)
		return err
	}

	log.Info("server stopped")
	return nil
}

// newLogger builds the stdout logger and, when enabled, fans records out to
// Fluent Bit as well.
func newLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	stdout := logger.NewHandler(logger.Options{Writer: os.Stdout, Level: level, Format: cfg.LogFormat})

	if !cfg.FluentBitEnabled {
		return slog.New(stdout).With("app", cfg.AppName), func() {}, nil
	}

	fluentLevel, err := logger.ParseLevel(cfg.FluentBitLogLevel)
	if err != nil {
		return nil, nil, err
	}
	client, err := logger.NewFluentClient(cfg.FluentBitHost, cfg.FluentBitPort, cfg.AppName)
	if err != nil {
		return nil, nil, err
	}

	h := logger.NewFanout(stdout, logger.NewFluentHandler(client, fluentLevel))
	closeFn := func() {
		if err := client.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "closing fluent client: %v\n", err)
		}
	}
	return slog.New(h).With("app", cfg.AppName), closeFn, nil
}

// openCatalog connects the configured catalog store.
func openCatalog(ctx context.Context, cfg *config.Config, log *slog.Logger) (catalog.Store, func(), error) {
	switch cfg.CatalogDriver {
	case "postgres":
		pool, err := catalog.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		store, err := catalog.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		log.Info("catalog connected", "driver", "postgres")
		return store, pool.Close, nil

	case "mongo":
		client, err := catalog.NewMongoClient(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		coll := client.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection)
		log.Info("catalog connected", "driver", "mongo", "database", cfg.MongoDatabase, "collection", cfg.MongoCollection)
		return catalog.NewMongoStore(coll), func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(ctx)
		}, nil
	}

	store, err := catalog.LoadSeedFile(cfg.CatalogSeedFile)
	if err != nil {
		return nil, nil, err
	}
	log.Info("catalog loaded", "driver", "memory", "seed", cfg.CatalogSeedFile)
	return store, func() {}, nil
}

// openBacking connects the optional Redis tier of the result cache.
func openBacking(ctx context.Context, cfg *config.Config, log *slog.Logger) (cache.Backing, func(), error) {
	if cfg.RedisAddr == "" {
		return nil, func() {}, nil
	}

	client, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, nil, err
	}
	log.Info("result cache backed by redis", "addr", cfg.RedisAddr)
	return cache.NewRedisStore(client, cfg.AppName+":"), func() { _ = client.Close() }, nil
}
