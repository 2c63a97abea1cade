// Package analytics is the invoice analytics and forecasting engine.
//
// Every function in this package is a pure computation over an in-memory record set.
// Nothing here performs I/O, keeps state between calls or mutates its inputs; the
// orchestration (fetching, caching, fan-out) lives in the service layer.
package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/boddenberg/invoice-insights-bfa/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	// MaxWindowDays bounds the dense time series a single request can ask for.
	MaxWindowDays = 3660

	topClientLimit = 10
)

var (
	smallProjectLimit  = decimal.NewFromInt(1000)
	mediumProjectLimit = decimal.NewFromInt(5000)

	categoryPalette = []string{"#3B82F6", "#10B981", "#F59E0B", "#EF4444", "#8B5CF6", "#06B6D4"}
)

// Aggregation is the Aggregator output consumed by the forecaster, churn scorer and
// insight composer.
type Aggregation struct {
	Window            domain.Window
	Overview          domain.OverviewMetrics
	TrendMetrics      []domain.TrendMetric
	TimeSeries        []domain.TimeSeriesPoint
	ClientAnalytics   []domain.ClientAnalytic
	CategoryBreakdown []domain.CategoryBreakdown
}

// Validate rejects malformed windows and records before anything is computed.
func Validate(records []domain.InvoiceRecord, window domain.Window) error {
	if window.Start.IsZero() || window.End.IsZero() {
		return &domain.ErrValidation{Field: "window", Message: "start and end are required"}
	}
	loc := window.Start.Location()
	if domain.TruncateDay(window.End, loc).Before(domain.TruncateDay(window.Start, loc)) {
		return &domain.ErrValidation{Field: "window", Message: "end must not precede start"}
	}
	if window.Days() > MaxWindowDays {
		return &domain.ErrValidation{Field: "window", Message: fmt.Sprintf("must not exceed %d days", MaxWindowDays)}
	}
	for i, r := range records {
		if r.CreatedAt.IsZero() {
			return &domain.ErrValidation{Field: fmt.Sprintf("records[%d].createdAt", i), Message: "required"}
		}
		if r.Amount.IsNegative() {
			return &domain.ErrValidation{Field: fmt.Sprintf("records[%d].amount", i), Message: "must not be negative"}
		}
		if !r.Status.Valid() {
			return &domain.ErrValidation{Field: fmt.Sprintf("records[%d].status", i), Message: fmt.Sprintf("unknown status %q", r.Status)}
		}
	}
	return nil
}

// Aggregate turns raw records into overview metrics, month-over-month trend metrics, a
// dense daily series, client analytics and a size breakdown.
//
// Overview, series, clients and categories only see records whose creation day falls in
// the window. Trend metrics compare the calendar month of now with the month before it
// over every supplied record, so callers should fetch enough history to cover both.
func Aggregate(records []domain.InvoiceRecord, window domain.Window, now time.Time) (*Aggregation, error) {
	if err := Validate(records, window); err != nil {
		return nil, err
	}

	loc := window.Start.Location()
	window = domain.NewWindow(window.Start, window.End)
	now = now.In(loc)

	inWindow := make([]domain.InvoiceRecord, 0, len(records))
	for _, r := range records {
		if window.Contains(r.CreatedAt) {
			inWindow = append(inWindow, r)
		}
	}

	return &Aggregation{
		Window:            window,
		Overview:          buildOverview(inWindow, now),
		TrendMetrics:      buildTrendMetrics(records, now),
		TimeSeries:        buildTimeSeries(inWindow, window),
		ClientAnalytics:   buildClientAnalytics(inWindow, now),
		CategoryBreakdown: buildCategoryBreakdown(inWindow),
	}, nil
}

func buildOverview(records []domain.InvoiceRecord, now time.Time) domain.OverviewMetrics {
	var paid, outstanding, monthly decimal.Decimal
	paidCount := 0

	for _, r := range records {
		switch {
		case r.Status == domain.StatusPaid:
			paid = paid.Add(r.Amount)
			paidCount++
		case r.Status.Pending():
			outstanding = outstanding.Add(r.Amount)
		}
		if sameMonth(r.CreatedAt.In(now.Location()), now) {
			monthly = monthly.Add(r.Amount)
		}
	}

	ov := domain.OverviewMetrics{
		TotalRevenue:      paid.InexactFloat64(),
		TotalInvoices:     len(records),
		OutstandingAmount: outstanding.InexactFloat64(),
		MonthlyRecurring:  monthly.InexactFloat64(),
	}
	if len(records) > 0 {
		ov.AverageInvoiceValue = paid.Div(decimal.NewFromInt(int64(len(records)))).InexactFloat64()
		ov.CollectionRate = round2(float64(paidCount) / float64(len(records)) * 100)
	}
	return ov
}

type monthStats struct {
	paid      decimal.Decimal
	count     int
	paidCount int
}

func (m monthStats) averageValue() float64 {
	if m.count == 0 {
		return 0
	}
	return m.paid.Div(decimal.NewFromInt(int64(m.count))).InexactFloat64()
}

func (m monthStats) collectionRate() float64 {
	if m.count == 0 {
		return 0
	}
	return round2(float64(m.paidCount) / float64(m.count) * 100)
}

func buildTrendMetrics(records []domain.InvoiceRecord, now time.Time) []domain.TrendMetric {
	loc := now.Location()
	currentStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	previousStart := currentStart.AddDate(0, -1, 0)

	var current, previous monthStats
	for _, r := range records {
		created := r.CreatedAt.In(loc)
		var m *monthStats
		switch {
		case sameMonth(created, currentStart):
			m = &current
		case sameMonth(created, previousStart):
			m = &previous
		default:
			continue
		}
		m.count++
		if r.Status == domain.StatusPaid {
			m.paid = m.paid.Add(r.Amount)
			m.paidCount++
		}
	}

	return []domain.TrendMetric{
		newTrendMetric("revenue", "Revenue", current.paid.InexactFloat64(), previous.paid.InexactFloat64(), domain.FormatCurrency),
		newTrendMetric("invoices", "Invoices", float64(current.count), float64(previous.count), domain.FormatNumber),
		newTrendMetric("average_value", "Average Invoice Value", current.averageValue(), previous.averageValue(), domain.FormatCurrency),
		newTrendMetric("collection_rate", "Collection Rate", current.collectionRate(), previous.collectionRate(), domain.FormatPercentage),
	}
}

func newTrendMetric(id, name string, current, previous float64, format domain.ValueFormat) domain.TrendMetric {
	change := current - previous
	pct := 0.0
	if previous != 0 {
		pct = round2(change / previous * 100)
	}
	trend := domain.TrendNeutral
	switch {
	case change > 0:
		trend = domain.TrendUp
	case change < 0:
		trend = domain.TrendDown
	}
	return domain.TrendMetric{
		ID:            id,
		Name:          name,
		Current:       current,
		Previous:      previous,
		Change:        change,
		ChangePercent: pct,
		Trend:         trend,
		Format:        format,
	}
}

// buildTimeSeries emits one point per calendar day of the window, including empty days.
func buildTimeSeries(records []domain.InvoiceRecord, window domain.Window) []domain.TimeSeriesPoint {
	loc := window.Start.Location()
	days := window.Days()

	points := make([]domain.TimeSeriesPoint, days)
	revenue := make([]decimal.Decimal, days)
	index := make(map[string]int, days)
	for i := range points {
		date := window.Start.AddDate(0, 0, i).Format(domain.DateLayout)
		points[i].Date = date
		index[date] = i
	}

	for _, r := range records {
		i, ok := index[r.CreatedAt.In(loc).Format(domain.DateLayout)]
		if !ok {
			continue
		}
		revenue[i] = revenue[i].Add(r.Amount)
		p := &points[i]
		p.InvoiceCount++
		switch {
		case r.Status == domain.StatusPaid:
			p.PaidCount++
		case r.Status == domain.StatusOverdue:
			p.OverdueCount++
		default:
			p.PendingCount++
		}
	}

	for i := range points {
		points[i].Revenue = revenue[i].InexactFloat64()
	}
	return points
}

type clientAccumulator struct {
	name       string
	revenue    decimal.Decimal
	count      int
	overdue    int
	dates      []time.Time
	payDays    float64
	payRecords int
}

func buildClientAnalytics(records []domain.InvoiceRecord, now time.Time) []domain.ClientAnalytic {
	byName := make(map[string]*clientAccumulator)
	ordered := make([]*clientAccumulator, 0)

	for _, r := range records {
		acc, ok := byName[r.ClientName]
		if !ok {
			acc = &clientAccumulator{name: r.ClientName}
			byName[r.ClientName] = acc
			ordered = append(ordered, acc)
		}
		acc.revenue = acc.revenue.Add(r.Amount)
		acc.count++
		acc.dates = append(acc.dates, r.CreatedAt)
		if r.Status == domain.StatusOverdue {
			acc.overdue++
		}
		if days, ok := daysToPay(r, now); ok {
			acc.payDays += days
			acc.payRecords++
		}
	}

	// Stable sort keeps first-seen order for equal revenue.
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].revenue.GreaterThan(ordered[j].revenue)
	})
	if len(ordered) > topClientLimit {
		ordered = ordered[:topClientLimit]
	}

	out := make([]domain.ClientAnalytic, 0, len(ordered))
	for _, acc := range ordered {
		sort.Slice(acc.dates, func(i, j int) bool { return acc.dates[i].Before(acc.dates[j]) })

		avgDays := 0.0
		if acc.payRecords > 0 {
			avgDays = round2(acc.payDays / float64(acc.payRecords))
		}

		out = append(out, domain.ClientAnalytic{
			ClientName:            acc.name,
			TotalRevenue:          acc.revenue.InexactFloat64(),
			InvoiceCount:          acc.count,
			AverageInvoiceValue:   acc.revenue.Div(decimal.NewFromInt(int64(acc.count))).InexactFloat64(),
			LastInvoiceDate:       acc.dates[len(acc.dates)-1],
			PaymentHistory:        paymentTier(avgDays, acc.overdue, acc.count),
			AverageDaysToPay:      avgDays,
			AverageInvoiceGapDays: averageGapDays(acc.dates),
			OverdueCount:          acc.overdue,
		})
	}
	return out
}

// daysToPay is creation to payment for paid invoices. Unpaid invoices past due count the
// days outstanding so far; other unpaid invoices are not measured yet.
func daysToPay(r domain.InvoiceRecord, now time.Time) (float64, bool) {
	switch {
	case r.PaidAt != nil:
		return math.Max(0, r.PaidAt.Sub(r.CreatedAt).Hours()/24), true
	case r.Status == domain.StatusPaid:
		return 0, false
	case r.Status == domain.StatusOverdue, r.DueDate != nil && r.DueDate.Before(now):
		return math.Max(0, now.Sub(r.CreatedAt).Hours()/24), true
	}
	return 0, false
}

// averageGapDays expects dates sorted ascending.
func averageGapDays(dates []time.Time) float64 {
	if len(dates) < 2 {
		return 0
	}
	span := dates[len(dates)-1].Sub(dates[0]).Hours() / 24
	return round2(span / float64(len(dates)-1))
}

func paymentTier(daysToPay float64, overdue, count int) domain.PaymentTier {
	if count > 0 && float64(overdue)/float64(count) >= 0.5 {
		return domain.PaymentPoor
	}
	switch {
	case daysToPay <= 15 && overdue == 0:
		return domain.PaymentExcellent
	case daysToPay <= 30:
		return domain.PaymentGood
	case daysToPay <= 45:
		return domain.PaymentFair
	default:
		return domain.PaymentPoor
	}
}

// CategoryFor buckets an invoice amount by project size.
func CategoryFor(amount decimal.Decimal) string {
	switch {
	case amount.LessThanOrEqual(smallProjectLimit):
		return "Small Projects"
	case amount.LessThanOrEqual(mediumProjectLimit):
		return "Medium Projects"
	default:
		return "Large Projects"
	}
}

var categoryOrder = []string{"Small Projects", "Medium Projects", "Large Projects"}

func buildCategoryBreakdown(records []domain.InvoiceRecord) []domain.CategoryBreakdown {
	revenue := make(map[string]decimal.Decimal, len(categoryOrder))
	counts := make(map[string]int, len(categoryOrder))
	var total decimal.Decimal

	for _, r := range records {
		c := CategoryFor(r.Amount)
		revenue[c] = revenue[c].Add(r.Amount)
		counts[c]++
		total = total.Add(r.Amount)
	}

	out := make([]domain.CategoryBreakdown, 0, len(categoryOrder))
	for _, c := range categoryOrder {
		if counts[c] == 0 {
			continue
		}
		pct := 0.0
		if total.IsPositive() {
			pct = round2(revenue[c].Div(total).InexactFloat64() * 100)
		}
		out = append(out, domain.CategoryBreakdown{
			Category:   c,
			Revenue:    revenue[c].InexactFloat64(),
			Percentage: pct,
			Count:      counts[c],
			Color:      categoryPalette[len(out)%len(categoryPalette)],
		})
	}
	return out
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
