// Package app wires configuration into the store, fetcher, services and
// router shared by the server and CLI binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cartlens/backend/config"
	httpDelivery "github.com/cartlens/backend/internal/delivery/http"
	"github.com/cartlens/backend/internal/domain"
	"github.com/cartlens/backend/internal/infrastructure/cache"
	"github.com/cartlens/backend/internal/infrastructure/fetcher"
	"github.com/cartlens/backend/internal/infrastructure/htmldoc"
	"github.com/cartlens/backend/internal/infrastructure/metrics"
	"github.com/cartlens/backend/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

// Store is a product repository that holds resources
type Store interface {
	domain.ProductRepository
	Close() error
}

// App holds the wired dependencies
type App struct {
	Config   *config.Config
	Store    Store
	Fetcher  *fetcher.Client
	Profiles *usecase.ProfileRegistry
	Metrics  *metrics.Metrics
	Scrape   *usecase.ScrapeService
	Products *usecase.ProductService
}

// New builds the dependency graph from cfg
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	st, err := initStore(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}

	pageFetcher := fetcher.NewClient(fetcher.Config{
		Timeout:      cfg.Scrape.FetchTimeout,
		MaxRetries:   cfg.Scrape.MaxRetries,
		UserAgent:    cfg.Scrape.UserAgent,
		MaxBodyBytes: cfg.Scrape.MaxBodyBytes,
		PerHostRPS:   cfg.Scrape.PerHostRPS,
		PerHostBurst: cfg.Scrape.PerHostBurst,
	})
	profiles := usecase.NewDefaultProfileRegistry(cfg.Profiles...)
	m := metrics.New()

	scrapeService := usecase.NewScrapeService(
		st,
		pageFetcher,
		htmldoc.NewParser(),
		profiles,
		m,
		usecase.ScrapeServiceConfig{
			CacheEnabled:    cfg.Cache.Enabled,
			FetchTimeout:    cfg.Scrape.FetchTimeout,
			MaxConcurrency:  cfg.Scrape.MaxConcurrency,
			PersistFailures: cfg.Scrape.PersistFailures,
		},
	)

	zap.L().Info("app: initialized",
		zap.Bool("cache_enabled", cfg.Cache.Enabled),
		zap.String("cache_type", cfg.Cache.Type),
		zap.Duration("cache_ttl", cfg.Cache.TTL),
		zap.Int("max_concurrency", cfg.Scrape.MaxConcurrency),
		zap.Strings("profiles", profiles.Names()),
	)

	return &App{
		Config:   cfg,
		Store:    st,
		Fetcher:  pageFetcher,
		Profiles: profiles,
		Metrics:  m,
		Scrape:   scrapeService,
		Products: usecase.NewProductService(st),
	}, nil
}

// initStore opens the configured product store. The product endpoints need
// a store even when read-through caching is off, so memory is the fallback.
func initStore(ctx context.Context, cfg config.CacheConfig) (Store, error) {
	if cfg.Type != "sqlite" {
		return cache.NewMemoryCache(cfg.TTL), nil
	}

	st, err := cache.NewSQLite(cfg.SQLitePath, cfg.TTL)
	if err != nil {
		return nil, eris.Wrap(err, "open sqlite store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate sqlite store")
	}
	return st, nil
}

// Close releases resources held by the app
func (a *App) Close() {
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			zap.L().Warn("app: close store", zap.Error(err))
		}
	}
}

// Serve runs the HTTP API until ctx is cancelled, then shuts down gracefully
func (a *App) Serve(ctx context.Context, port string) error {
	if port == "" {
		port = a.Config.Server.Port
	}

	handler := httpDelivery.NewHandler(a.Scrape, a.Products)
	router := httpDelivery.SetupRouter(a.Config, handler, a.Metrics)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("environment", a.Config.Server.Environment),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return eris.Wrap(err, "server listen")
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server shutdown")
	}
	return nil
}
