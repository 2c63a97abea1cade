package handler_test

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/invoice-insights-bfa/internal/domain"
	"github.com/boddenberg/invoice-insights-bfa/internal/handler"
	"github.com/boddenberg/invoice-insights-bfa/internal/infra/cache"
	"github.com/boddenberg/invoice-insights-bfa/internal/infra/observability"
	"github.com/boddenberg/invoice-insights-bfa/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

type stubFetcher struct {
	records []domain.InvoiceRecord
	err     error
}

func (s *stubFetcher) FetchInvoices(context.Context, string, domain.Window) ([]domain.InvoiceRecord, error) {
	return s.records, s.err
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func sampleRecords() []domain.InvoiceRecord {
	return []domain.InvoiceRecord{
		{ID: "1", CreatedAt: time.Date(2024, time.March, 2, 10, 0, 0, 0, time.UTC), Amount: decimal.NewFromInt(1000), Status: domain.StatusPaid, ClientName: "Acme"},
		{ID: "2", CreatedAt: time.Date(2024, time.March, 3, 10, 0, 0, 0, time.UTC), Amount: decimal.NewFromInt(400), Status: domain.StatusSent, ClientName: "Zed"},
	}
}

type fixture struct {
	router  http.Handler
	metrics *observability.Metrics
	auth    *service.AuthService
}

func newFixture(t *testing.T, f *stubFetcher, withAuth bool, checks ...handler.HealthCheck) fixture {
	t.Helper()
	metrics := observability.NewMetrics()
	clock := func() time.Time { return fixedNow }
	svc := service.NewAnalyticsService(f, cache.New[*domain.AnalyticsResult](time.Minute), metrics, zap.NewNop(),
		service.WithClock(clock), service.WithDemoFallback(false))

	var auth *service.AuthService
	if withAuth {
		auth = service.NewAuthService("test-secret", time.Hour, zap.NewNop())
	}
	return fixture{
		router:  handler.NewRouter(svc, auth, metrics, checks, zap.NewNop(), handler.WithRouterClock(clock)),
		metrics: metrics,
		auth:    auth,
	}
}

func (fx fixture) do(t *testing.T, method, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// --- Operational endpoints ---

func TestOperationalEndpoints(t *testing.T) {
	fx := newFixture(t, &stubFetcher{}, false)

	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/ping"} {
		t.Run(path, func(t *testing.T) {
			rec := fx.do(t, http.MethodGet, path, "")
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestHealth_UnreachableDependency(t *testing.T) {
	fx := newFixture(t, &stubFetcher{}, false,
		handler.HealthCheck{Name: "supabase", Pinger: stubPinger{}},
		handler.HealthCheck{Name: "redis", Pinger: stubPinger{err: errors.New("connection refused")}},
	)

	rec := fx.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var health domain.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "degraded", health.Status)
	require.Len(t, health.Services, 3)
	assert.Equal(t, "healthy", health.Services[1].Status)
	assert.Equal(t, "unhealthy", health.Services[2].Status)

	rec = fx.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// --- Analytics ---

func TestGetAnalytics_ExplicitWindow(t *testing.T) {
	fx := newFixture(t, &stubFetcher{records: sampleRecords()}, false)

	rec := fx.do(t, http.MethodGet, "/v1/accounts/acc-1/analytics?start=2024-03-01&end=2024-03-14&periods=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var res domain.AnalyticsResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "acc-1", res.AccountID)
	assert.Equal(t, domain.SourceLive, res.Source)
	assert.Equal(t, "2024-03-01", res.Period.From)
	assert.Len(t, res.RevenueChart, 14)
	assert.Len(t, res.RevenueForecast, 5)
	assert.Equal(t, 2, res.Overview.TotalInvoices)

	rec = fx.do(t, http.MethodGet, "/metrics", "")
	assert.Contains(t, rec.Body.String(), "bfa_requests_total")
}

func TestGetAnalytics_PeriodDefaults(t *testing.T) {
	fx := newFixture(t, &stubFetcher{records: sampleRecords()}, false)

	tests := []struct {
		query string
		from  string
		days  int
	}{
		{"", "2024-02-15", 30},
		{"?period=7d", "2024-03-09", 7},
		{"?period=90d", "2023-12-17", 90},
		{"?period=12m", "2023-03-16", 366},
	}
	for _, tt := range tests {
		t.Run("period"+tt.query, func(t *testing.T) {
			rec := fx.do(t, http.MethodGet, "/v1/accounts/acc-1/analytics"+tt.query, "")
			require.Equal(t, http.StatusOK, rec.Code)

			var res domain.AnalyticsResult
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
			assert.Equal(t, tt.from, res.Period.From)
			assert.Equal(t, "2024-03-15", res.Period.To)
			assert.Equal(t, tt.days, res.Period.Days)
		})
	}
}

func TestGetAnalytics_BadQuery(t *testing.T) {
	fx := newFixture(t, &stubFetcher{}, false)

	tests := []struct {
		name  string
		query string
		field string
	}{
		{"unknown period", "?period=2w", "period"},
		{"start without end", "?start=2024-03-01", "window"},
		{"bad start", "?start=03/01/2024&end=2024-03-10", "start"},
		{"bad end", "?start=2024-03-01&end=soon", "end"},
		{"reversed", "?start=2024-03-10&end=2024-03-01", "window"},
		{"negative periods", "?periods=-1", "periods"},
		{"huge periods", "?periods=5000", "periods"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := fx.do(t, http.MethodGet, "/v1/accounts/acc-1/analytics"+tt.query, "")
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.field, decodeError(t, rec)["field"])
		})
	}
}

func TestGetAnalytics_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"store down", &domain.ErrExternalService{Service: "supabase/invoices", Err: errors.New("503")}, http.StatusBadGateway},
		{"breaker open", &domain.ErrExternalService{Service: "supabase/invoices", Err: &domain.ErrCircuitOpen{Service: "supabase"}}, http.StatusServiceUnavailable},
		{"timeout", &domain.ErrExternalService{Service: "postgres/invoices", Err: &domain.ErrTimeout{Operation: "postgres"}}, http.StatusGatewayTimeout},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, &stubFetcher{err: tt.err}, false)
			rec := fx.do(t, http.MethodGet, "/v1/accounts/acc-1/analytics", "")
			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, decodeError(t, rec)["error"])
		})
	}
}

func TestGetAnalytics_InvalidStoredRecordIsBadGateway(t *testing.T) {
	bad := sampleRecords()
	bad[0].Amount = decimal.NewFromInt(-10)
	fx := newFixture(t, &stubFetcher{records: bad}, false)

	rec := fx.do(t, http.MethodGet, "/v1/accounts/acc-1/analytics", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	body := decodeError(t, rec)
	assert.Empty(t, body["field"])
	assert.NotContains(t, body["error"], "records[")
}

// --- Auth ---

func TestAuth(t *testing.T) {
	fx := newFixture(t, &stubFetcher{records: sampleRecords()}, true)

	own, err := fx.auth.IssueAccessToken("acc-1")
	require.NoError(t, err)
	other, err := fx.auth.IssueAccessToken("acc-2")
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"garbage token", "abc", http.StatusUnauthorized},
		{"other account", other, http.StatusForbidden},
		{"own account", own, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := fx.do(t, http.MethodGet, "/v1/accounts/acc-1/analytics", tt.token)
			assert.Equal(t, tt.status, rec.Code)
		})
	}

	// Operational endpoints stay public.
	assert.Equal(t, http.StatusOK, fx.do(t, http.MethodGet, "/healthz", "").Code)
}

func TestAuth_RejectsNonBearerScheme(t *testing.T) {
	fx := newFixture(t, &stubFetcher{}, true)

	req := httptest.NewRequest(http.MethodGet, "/v1/metrics/analytics", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// --- Export, cache and metrics ---

func TestExportCSV(t *testing.T) {
	fx := newFixture(t, &stubFetcher{records: sampleRecords()}, false)

	rec := fx.do(t, http.MethodGet, "/v1/accounts/acc-1/analytics/export.csv?start=2024-03-01&end=2024-03-03", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "revenue-2024-03-01-2024-03-03.csv")

	rows, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, service.CSVHeader, rows[0])
	assert.Equal(t, []string{"2024-03-02", "1000.00", "1", "aggregated"}, rows[2])
}

// failsAfterFirst serves records once, then errors like an upstream outage.
type failsAfterFirst struct {
	records []domain.InvoiceRecord
	calls   int
}

func (f *failsAfterFirst) FetchInvoices(context.Context, string, domain.Window) ([]domain.InvoiceRecord, error) {
	f.calls++
	if f.calls > 1 {
		return nil, &domain.ErrExternalService{Service: "supabase", Err: errors.New("connection reset")}
	}
	return f.records, nil
}

func TestExportCSV_FetchesOnceWhenCacheExpired(t *testing.T) {
	f := &failsAfterFirst{records: sampleRecords()}
	clock := func() time.Time { return fixedNow }
	// Zero TTL: every lookup misses, so a second computation would hit the failing upstream.
	svc := service.NewAnalyticsService(f, cache.New[*domain.AnalyticsResult](0), observability.NewMetrics(), zap.NewNop(),
		service.WithClock(clock), service.WithDemoFallback(false))
	router := handler.NewRouter(svc, nil, observability.NewMetrics(), nil, zap.NewNop(), handler.WithRouterClock(clock))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/accounts/acc-1/analytics/export.csv?start=2024-03-01&end=2024-03-03", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.calls)

	rows, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"2024-03-03", "400.00", "1", "aggregated"}, rows[3])
}

func TestExportCSV_ErrorIsJSON(t *testing.T) {
	fx := newFixture(t, &stubFetcher{}, false)

	rec := fx.do(t, http.MethodGet, "/v1/accounts/acc-1/analytics/export.csv?period=1y", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestClearCacheAndMetrics(t *testing.T) {
	fx := newFixture(t, &stubFetcher{records: sampleRecords()}, false)

	require.Equal(t, http.StatusOK, fx.do(t, http.MethodGet, "/v1/accounts/acc-1/analytics", "").Code)
	require.Equal(t, http.StatusOK, fx.do(t, http.MethodGet, "/v1/accounts/acc-1/analytics", "").Code)

	rec := fx.do(t, http.MethodDelete, "/v1/analytics/cache", "")
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, http.StatusOK, fx.do(t, http.MethodGet, "/v1/accounts/acc-1/analytics", "").Code)

	rec = fx.do(t, http.MethodGet, "/v1/metrics/analytics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap domain.AnalyticsMetrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, int64(3), snap.TotalRequests)
	assert.Equal(t, int64(2), snap.LiveComputations)
	assert.InDelta(t, 1.0/3.0, snap.CacheHitRate, 1e-9)
}
