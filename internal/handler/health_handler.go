package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/invoice-insights-bfa/internal/domain"
	"github.com/boddenberg/invoice-insights-bfa/internal/port"

	"go.uber.org/zap"
)

const pingTimeout = 2 * time.Second

// HealthCheck names a backend checked by /healthz and /readyz.
type HealthCheck struct {
	Name   string
	Pinger port.Pinger
}

func runChecks(ctx context.Context, checks []HealthCheck, logger *zap.Logger) domain.HealthStatus {
	now := time.Now().Format(time.RFC3339)
	services := []domain.ServiceHealth{
		{Name: "bfa-api", Status: "healthy", LastChecked: now},
	}

	overall := "healthy"
	for _, c := range checks {
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		start := time.Now()
		err := c.Pinger.Ping(pctx)
		cancel()

		status := "healthy"
		if err != nil {
			logger.Warn("health check failed", zap.String("dependency", c.Name), zap.Error(err))
			status = "unhealthy"
			overall = "degraded"
		}
		services = append(services, domain.ServiceHealth{
			Name:        c.Name,
			Status:      status,
			LatencyMs:   time.Since(start).Milliseconds(),
			LastChecked: now,
		})
	}

	return domain.HealthStatus{Status: overall, Services: services}
}

// healthzHandler always answers 200 and reports dependency state in the body.
func healthzHandler(checks []HealthCheck, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, runChecks(r.Context(), checks, logger))
	}
}

// readyzHandler answers 503 while any dependency is unreachable.
func readyzHandler(checks []HealthCheck, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := runChecks(r.Context(), checks, logger)
		if health.Status != "healthy" {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
