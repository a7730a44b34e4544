package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/pockets-ledger-go/internal/config"
	"github.com/boddenberg/pockets-ledger-go/internal/handler"
	"github.com/boddenberg/pockets-ledger-go/internal/infra/cache"
	"github.com/boddenberg/pockets-ledger-go/internal/infra/client"
	"github.com/boddenberg/pockets-ledger-go/internal/infra/observability"
	"github.com/boddenberg/pockets-ledger-go/internal/infra/resilience"
	"github.com/boddenberg/pockets-ledger-go/internal/infra/supabase"
	"github.com/boddenberg/pockets-ledger-go/internal/port"
	"github.com/boddenberg/pockets-ledger-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel, "pockets-ledger")
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("price_cache_ttl", cfg.PriceCacheTTL),
		zap.Duration("price_rate_limit_window", cfg.PriceRateLimitWindow),
		zap.String("price_cache_file", cfg.PriceCacheFile),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Bool("quote_api_enabled", cfg.QuoteAPIURL != ""),
	)
	for _, problem := range cfg.Validate() {
		logger.Warn("configuration problem", zap.String("problem", problem))
	}

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "pockets-ledger")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	sources := []port.PriceSource{
		client.NewEODHDClient(cfg.EODHDAPIKey,
			client.WithBaseURL(cfg.EODHDAPIURL),
			client.WithHTTPClient(httpClient),
			client.WithRateLimit(cfg.UpstreamRPS),
			client.WithResilience(resilienceCfg),
		),
	}
	if cfg.QuoteAPIURL != "" {
		sources = append(sources, client.NewQuoteAPIClient(cfg.QuoteAPIURL,
			client.WithHTTPClient(httpClient),
			client.WithRateLimit(cfg.UpstreamRPS),
			client.WithResilience(resilienceCfg),
		))
	}
	prices := client.NewFallbackPriceSource(logger, sources...)

	// --- Cache ---
	priceCache := cache.NewPriceCache(cfg.PriceCacheTTL, cfg.PriceCacheFile, logger)
	defer priceCache.Close()

	// --- Services ---
	var ledger *service.Ledger
	if cfg.SupabaseURL != "" && cfg.SupabaseServiceKey != "" {
		logger.Info("using Supabase as ledger store", zap.String("supabase_url", cfg.SupabaseURL))
		store := supabase.NewClient(
			httpClient,
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("supabase"),
			resilienceCfg,
			logger,
		)
		ledger = service.NewLedger(service.LedgerDeps{
			Store:          store,
			Prices:         prices,
			PriceCache:     priceCache,
			RateLimits:     store,
			RateLimit:      cfg.PriceRateLimitWindow,
			MaxConcurrency: cfg.MaxConcurrency,
			Metrics:        metrics,
			Logger:         logger,
		})
	} else {
		logger.Warn("ledger: Supabase not configured, ledger routes unavailable")
	}

	// --- Router ---
	router := handler.NewRouter(ledger, []byte(cfg.SupabaseJWTSecret), metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
