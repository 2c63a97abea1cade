package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/invoice-insights-bfa/internal/config"
	"github.com/boddenberg/invoice-insights-bfa/internal/domain"
	"github.com/boddenberg/invoice-insights-bfa/internal/handler"
	"github.com/boddenberg/invoice-insights-bfa/internal/infra/cache"
	"github.com/boddenberg/invoice-insights-bfa/internal/infra/cache/rediscache"
	"github.com/boddenberg/invoice-insights-bfa/internal/infra/observability"
	"github.com/boddenberg/invoice-insights-bfa/internal/infra/postgres"
	"github.com/boddenberg/invoice-insights-bfa/internal/infra/resilience"
	"github.com/boddenberg/invoice-insights-bfa/internal/infra/supabase"
	"github.com/boddenberg/invoice-insights-bfa/internal/port"
	"github.com/boddenberg/invoice-insights-bfa/internal/service"

	"go.uber.org/zap"
)

const (
	serviceName  = "invoice-insights-bfa"
	jwtAccessTTL = 15 * time.Minute
)

func main() {
	// --- Config (.env is optional, for local development) ---
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("record_source", cfg.RecordSource),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Bool("demo_fallback", cfg.DemoFallback),
		zap.Int("forecast_periods", cfg.ForecastPeriods),
		zap.Bool("auth_enabled", cfg.JWTSecret != ""),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, serviceName)
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

	startCtx, cancelStart := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelStart()

	var checks []handler.HealthCheck

	// --- Record store ---
	var fetcher port.RecordFetcher
	switch cfg.RecordSource {
	case config.SourcePostgres:
		logger.Info("using Postgres as record store")
		db, err := postgres.Open(startCtx, cfg.DatabaseURL, postgres.PoolConfig{
			MaxOpenConns:    cfg.MaxConcurrency,
			MaxIdleConns:    cfg.MaxConcurrency / 2,
			ConnMaxLifetime: 30 * time.Minute,
		})
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		defer db.Close()

		store := postgres.NewStore(db, resilience.NewGuard("postgres", resilienceCfg, logger), logger)
		fetcher = store
		checks = append(checks, handler.HealthCheck{Name: "postgres", Pinger: store})
	default:
		logger.Info("using Supabase as record store", zap.String("supabase_url", cfg.SupabaseURL))
		httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
		client := supabase.NewClient(
			httpClient,
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			resilience.NewGuard("supabase", resilienceCfg, logger),
			logger,
		)
		fetcher = client
		checks = append(checks, handler.HealthCheck{Name: "supabase", Pinger: client})
	}

	// --- Cache ---
	var analyticsCache port.AnalyticsCache
	switch cfg.CacheBackend {
	case config.CacheRedis:
		rdb, err := rediscache.NewClient(startCtx, rediscache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()

		rc := rediscache.New(rdb, cfg.CacheTTL, logger)
		analyticsCache = rc
		checks = append(checks, handler.HealthCheck{Name: "redis", Pinger: rc})
		logger.Info("analytics cache backed by redis", zap.String("addr", cfg.RedisAddr))
	default:
		analyticsCache = cache.New[*domain.AnalyticsResult](cfg.CacheTTL)
		logger.Info("analytics cache in memory")
	}

	// --- Services ---
	analyticsSvc := service.NewAnalyticsService(
		fetcher,
		analyticsCache,
		metrics,
		logger,
		service.WithDemoFallback(cfg.DemoFallback),
		service.WithForecastPeriods(cfg.ForecastPeriods),
	)

	var authSvc *service.AuthService
	if cfg.JWTSecret != "" {
		authSvc = service.NewAuthService(cfg.JWTSecret, jwtAccessTTL, logger)
		logger.Info("auth enabled for /v1 routes")
	} else {
		logger.Warn("JWT_SECRET not set, /v1 routes are unauthenticated")
	}

	// --- Router ---
	router := handler.NewRouter(analyticsSvc, authSvc, metrics, checks, logger)

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
