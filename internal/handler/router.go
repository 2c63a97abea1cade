package handler

import (
	"net/http"
	"time"

	"github.com/boddenberg/invoice-insights-bfa/internal/infra/observability"
	"github.com/boddenberg/invoice-insights-bfa/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// RouterOption configures NewRouter.
type RouterOption func(*routerConfig)

type routerConfig struct {
	now func() time.Time
}

// WithRouterClock sets the clock used to resolve relative periods such as 30d.
func WithRouterClock(now func() time.Time) RouterOption {
	return func(c *routerConfig) { c.now = now }
}

// NewRouter creates the HTTP router with all routes and middleware.
// authSvc may be nil, in which case /v1 routes are served without token checks.
func NewRouter(
	svc *service.AnalyticsService,
	authSvc *service.AuthService,
	metrics *observability.Metrics,
	checks []HealthCheck,
	logger *zap.Logger,
	opts ...RouterOption,
) http.Handler {
	cfg := routerConfig{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.TracingMiddleware)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(checks, logger))
	r.Get("/readyz", readyzHandler(checks, logger))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		if authSvc != nil {
			r.Use(JWTAuthMiddleware(authSvc, logger))
		}

		// =============================================
		// 📊 Analytics
		// GET /v1/accounts/{accountId}/analytics
		// GET /v1/accounts/{accountId}/analytics/export.csv
		// =============================================
		r.Get("/accounts/{accountId}/analytics", getAnalyticsHandler(svc, cfg.now, logger))
		r.Get("/accounts/{accountId}/analytics/export.csv", exportAnalyticsCSVHandler(svc, cfg.now, logger))

		// =============================================
		// 🧹 Cache
		// DELETE /v1/analytics/cache
		// =============================================
		r.Delete("/analytics/cache", clearCacheHandler(svc, logger))

		// =============================================
		// 📈 Service metrics
		// GET /v1/metrics/analytics
		// =============================================
		r.Get("/metrics/analytics", analyticsMetricsHandler(metrics))
	})

	return r
}
