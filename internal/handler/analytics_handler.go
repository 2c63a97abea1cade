package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/boddenberg/invoice-insights-bfa/internal/domain"
	"github.com/boddenberg/invoice-insights-bfa/internal/infra/observability"
	"github.com/boddenberg/invoice-insights-bfa/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Analytics
// ============================================================

const defaultPeriod = "30d"

var periodDays = map[string]int{
	"7d":  7,
	"30d": 30,
	"90d": 90,
}

// parseWindow reads start/end (YYYY-MM-DD) or falls back to a period ending today.
func parseWindow(r *http.Request, now time.Time) (domain.Window, error) {
	q := r.URL.Query()
	startParam, endParam := q.Get("start"), q.Get("end")

	if startParam != "" || endParam != "" {
		if startParam == "" || endParam == "" {
			return domain.Window{}, &domain.ErrValidation{Field: "window", Message: "start and end must be given together"}
		}
		start, err := time.Parse(domain.DateLayout, startParam)
		if err != nil {
			return domain.Window{}, &domain.ErrValidation{Field: "start", Message: "expected YYYY-MM-DD"}
		}
		end, err := time.Parse(domain.DateLayout, endParam)
		if err != nil {
			return domain.Window{}, &domain.ErrValidation{Field: "end", Message: "expected YYYY-MM-DD"}
		}
		return domain.NewWindow(start, end), nil
	}

	period := q.Get("period")
	if period == "" {
		period = defaultPeriod
	}
	end := domain.TruncateDay(now, time.UTC)
	if period == "12m" {
		return domain.NewWindow(end.AddDate(-1, 0, 1), end), nil
	}
	days, ok := periodDays[period]
	if !ok {
		return domain.Window{}, &domain.ErrValidation{Field: "period", Message: "must be one of 7d, 30d, 90d, 12m"}
	}
	return domain.NewWindow(end.AddDate(0, 0, -(days-1)), end), nil
}

func parsePeriods(r *http.Request) (int, error) {
	v := r.URL.Query().Get("periods")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, &domain.ErrValidation{Field: "periods", Message: "must be a non-negative integer"}
	}
	return n, nil
}

// authorizeAccount rejects tokens issued for a different account.
func authorizeAccount(r *http.Request, accountID string) error {
	if sub := AccountIDFromContext(r.Context()); sub != "" && sub != accountID {
		return &domain.ErrForbidden{Action: "read analytics of another account"}
	}
	return nil
}

func getAnalyticsHandler(svc *service.AnalyticsService, now func() time.Time, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts/{accountId}/analytics")
		defer span.End()

		accountID := chi.URLParam(r, "accountId")
		if err := authorizeAccount(r, accountID); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		window, err := parseWindow(r, now())
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		periods, err := parsePeriods(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		res, err := svc.GetAnalytics(ctx, accountID, window, periods)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func exportAnalyticsCSVHandler(svc *service.AnalyticsService, now func() time.Time, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts/{accountId}/analytics/export.csv")
		defer span.End()

		accountID := chi.URLParam(r, "accountId")
		if err := authorizeAccount(r, accountID); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		window, err := parseWindow(r, now())
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		res, err := svc.GetAnalytics(ctx, accountID, window, 0)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="revenue-`+window.Start.Format(domain.DateLayout)+`-`+window.End.Format(domain.DateLayout)+`.csv"`)
		w.WriteHeader(http.StatusOK)
		if err := service.WriteCSV(w, res); err != nil {
			logger.Error("csv export failed mid-stream", zap.String("account_id", accountID), zap.Error(err))
		}
	}
}

func clearCacheHandler(svc *service.AnalyticsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/analytics/cache")
		defer span.End()

		if err := svc.ClearCache(ctx); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "analytics cache cleared"})
	}
}

func analyticsMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetAnalyticsSnapshot())
	}
}
