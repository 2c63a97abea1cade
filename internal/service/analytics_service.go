// Package service orchestrates the analytics pipeline: cache lookup, record fetch,
// aggregation, forecasting, churn scoring and insight composition.
package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/boddenberg/invoice-insights-bfa/internal/analytics"
	"github.com/boddenberg/invoice-insights-bfa/internal/domain"
	"github.com/boddenberg/invoice-insights-bfa/internal/infra/observability"
	"github.com/boddenberg/invoice-insights-bfa/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("service/analytics")

// MaxForecastPeriods bounds the forecast horizon a caller may request.
const MaxForecastPeriods = 365

// AnalyticsService computes dashboard analytics for one account and window.
type AnalyticsService struct {
	fetcher        port.RecordFetcher
	cache          port.AnalyticsCache
	metrics        *observability.Metrics
	logger         *zap.Logger
	demoFallback   bool
	defaultPeriods int
	now            func() time.Time
}

// Option configures an AnalyticsService.
type Option func(*AnalyticsService)

// WithDemoFallback switches empty accounts to synthetic demo records.
func WithDemoFallback(enabled bool) Option {
	return func(s *AnalyticsService) { s.demoFallback = enabled }
}

// WithForecastPeriods sets the horizon used when the caller does not pick one.
func WithForecastPeriods(n int) Option {
	return func(s *AnalyticsService) { s.defaultPeriods = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *AnalyticsService) { s.now = now }
}

// NewAnalyticsService creates the analytics service with all dependencies injected.
func NewAnalyticsService(
	fetcher port.RecordFetcher,
	cache port.AnalyticsCache,
	metrics *observability.Metrics,
	logger *zap.Logger,
	opts ...Option,
) *AnalyticsService {
	s := &AnalyticsService{
		fetcher:        fetcher,
		cache:          cache,
		metrics:        metrics,
		logger:         logger,
		defaultPeriods: 30,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultPeriods is the forecast horizon used when none is requested.
func (s *AnalyticsService) DefaultPeriods() int {
	return s.defaultPeriods
}

// GetAnalytics returns the analytics for the account and window, served from cache when
// a result for the same key is still fresh. periods <= 0 uses the default horizon.
func (s *AnalyticsService) GetAnalytics(ctx context.Context, accountID string, window domain.Window, periods int) (*domain.AnalyticsResult, error) {
	// Bail out early if the caller already cancelled.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "AnalyticsService.GetAnalytics")
	defer span.End()
	span.SetAttributes(
		attribute.String("account.id", accountID),
		attribute.String("window", window.String()),
	)

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("analytics", time.Since(start))
	}()

	if accountID == "" {
		return nil, &domain.ErrValidation{Field: "accountId", Message: "required"}
	}
	if periods <= 0 {
		periods = s.defaultPeriods
	}
	if periods > MaxForecastPeriods {
		return nil, &domain.ErrValidation{Field: "periods", Message: fmt.Sprintf("must not exceed %d", MaxForecastPeriods)}
	}
	if err := analytics.Validate(nil, window); err != nil {
		return nil, err
	}
	window = domain.NewWindow(window.Start, window.End)

	key := fmt.Sprintf("%s:p%d", domain.NewCacheKey(accountID, window), periods)
	res, hit, err := s.cache.GetOrCompute(ctx, key, func(ctx context.Context) (*domain.AnalyticsResult, error) {
		return s.compute(ctx, accountID, window, periods)
	})
	if err != nil {
		s.metrics.IncrRequest("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "analytics failed")
		return nil, err
	}

	if hit {
		s.metrics.IncrCacheHit(observability.AnalyticsCache)
	} else {
		s.metrics.IncrCacheMiss(observability.AnalyticsCache)
	}
	s.metrics.IncrRequest("success")
	span.SetAttributes(attribute.Bool("cache.hit", hit), attribute.String("result.source", string(res.Source)))
	return res, nil
}

// fetchWindow widens the requested window so the trend metrics see the current and
// previous calendar months.
func fetchWindow(window domain.Window, now time.Time) domain.Window {
	loc := window.Start.Location()
	today := domain.TruncateDay(now, loc)
	prevMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, -1, 0)

	out := window
	if prevMonth.Before(out.Start) {
		out.Start = prevMonth
	}
	if today.After(out.End) {
		out.End = today
	}
	return out
}

func (s *AnalyticsService) compute(ctx context.Context, accountID string, window domain.Window, periods int) (*domain.AnalyticsResult, error) {
	ctx, span := tracer.Start(ctx, "AnalyticsService.compute")
	defer span.End()

	now := s.now()
	fw := fetchWindow(window, now)

	records, err := s.fetcher.FetchInvoices(ctx, accountID, fw)
	if err != nil {
		s.logger.Error("failed to fetch invoices",
			zap.String("account_id", accountID),
			zap.String("window", fw.String()),
			zap.Error(err),
		)
		s.metrics.IncrExternalError("store")
		return nil, fmt.Errorf("invoice fetch: %w", err)
	}
	s.metrics.ObserveRecordsFetched(len(records))

	source := domain.SourceLive
	if len(records) == 0 && s.demoFallback {
		records = analytics.DemoRecords(accountID, fw)
		source = domain.SourceDemo
		s.logger.Info("no invoices found, serving demo analytics",
			zap.String("account_id", accountID),
			zap.Int("demo_records", len(records)),
		)
	}

	agg, err := analytics.Aggregate(records, window, now)
	if err != nil {
		var verr *domain.ErrValidation
		if errors.As(err, &verr) {
			// The window was validated up front, so this is bad stored data.
			s.logger.Error("store returned invalid invoices",
				zap.String("account_id", accountID),
				zap.String("field", verr.Field),
				zap.String("reason", verr.Message),
			)
			s.metrics.IncrExternalError("store")
			return nil, &domain.ErrExternalService{Service: "store/records", Err: err}
		}
		return nil, fmt.Errorf("aggregate: %w", err)
	}

	var (
		forecast []domain.RevenueForecast
		seasonal []domain.SeasonalTrend
		churn    []domain.ChurnRiskClient
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		_, span := tracer.Start(gCtx, "Forecaster")
		defer span.End()

		f, err := analytics.Forecast(agg.TimeSeries, periods)
		if err != nil {
			return fmt.Errorf("forecast: %w", err)
		}
		st, err := analytics.SeasonalTrends(agg.TimeSeries)
		if err != nil {
			return fmt.Errorf("seasonal trends: %w", err)
		}
		forecast, seasonal = f, st
		return nil
	})

	g.Go(func() error {
		_, span := tracer.Start(gCtx, "ChurnScorer")
		defer span.End()

		churn = analytics.ScoreChurnRisk(agg.ClientAnalytics, now)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	composed := analytics.ComposeInsights(agg.Overview, forecast, churn)
	s.metrics.IncrComputation(source)

	s.logger.Debug("analytics computed",
		zap.String("account_id", accountID),
		zap.String("window", window.String()),
		zap.String("source", string(source)),
		zap.Int("records", len(records)),
	)

	return &domain.AnalyticsResult{
		ResultID:  uuid.NewString(),
		AccountID: accountID,
		Period: &domain.AnalyticsPeriod{
			From: window.Start.Format(domain.DateLayout),
			To:   window.End.Format(domain.DateLayout),
			Days: window.Days(),
		},
		Overview:          agg.Overview,
		Metrics:           agg.TrendMetrics,
		RevenueChart:      agg.TimeSeries,
		ClientAnalytics:   agg.ClientAnalytics,
		CategoryBreakdown: agg.CategoryBreakdown,
		RevenueForecast:   forecast,
		ChurnRisks:        churn,
		SeasonalTrends:    seasonal,
		Insights:          composed.Insights,
		BusinessHealth:    composed.BusinessHealth,
		Source:            source,
		ComputedAt:        now,
	}, nil
}

// ClearCache drops every cached result.
func (s *AnalyticsService) ClearCache(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "AnalyticsService.ClearCache")
	defer span.End()

	if err := s.cache.Clear(ctx); err != nil {
		s.logger.Error("failed to clear analytics cache", zap.Error(err))
		return fmt.Errorf("clear cache: %w", err)
	}
	s.logger.Info("analytics cache cleared")
	return nil
}

// CSVHeader is the first row of the revenue export.
var CSVHeader = []string{"date", "revenue", "invoiceCount", "status"}

// ExportCSV writes the daily revenue series of the window as CSV.
func (s *AnalyticsService) ExportCSV(ctx context.Context, accountID string, window domain.Window, w io.Writer) error {
	ctx, span := tracer.Start(ctx, "AnalyticsService.ExportCSV")
	defer span.End()

	res, err := s.GetAnalytics(ctx, accountID, window, 0)
	if err != nil {
		return err
	}
	return WriteCSV(w, res)
}

// WriteCSV formats the revenue chart of an already computed result.
func WriteCSV(w io.Writer, res *domain.AnalyticsResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, p := range res.RevenueChart {
		row := []string{
			p.Date,
			strconv.FormatFloat(p.Revenue, 'f', 2, 64),
			strconv.Itoa(p.InvoiceCount),
			"aggregated",
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
