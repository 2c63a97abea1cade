package domain

import "time"

// ============================================================
// Historical aggregates
// ============================================================

// OverviewMetrics summarises the invoices inside the requested window.
type OverviewMetrics struct {
	TotalRevenue        float64 `json:"totalRevenue"`
	TotalInvoices       int     `json:"totalInvoices"`
	AverageInvoiceValue float64 `json:"averageInvoiceValue"`
	CollectionRate      float64 `json:"collectionRate"`
	OutstandingAmount   float64 `json:"outstandingAmount"`
	MonthlyRecurring    float64 `json:"monthlyRecurring"`
}

// TrendDirection is the sign of a month-over-month change.
type TrendDirection string

const (
	TrendUp      TrendDirection = "up"
	TrendDown    TrendDirection = "down"
	TrendNeutral TrendDirection = "neutral"
)

// ValueFormat tells consumers how to render a metric value.
type ValueFormat string

const (
	FormatCurrency   ValueFormat = "currency"
	FormatNumber     ValueFormat = "number"
	FormatPercentage ValueFormat = "percentage"
)

// TrendMetric compares the current calendar month with the previous one.
type TrendMetric struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Current       float64        `json:"current"`
	Previous      float64        `json:"previous"`
	Change        float64        `json:"change"`
	ChangePercent float64        `json:"changePercent"`
	Trend         TrendDirection `json:"trend"`
	Format        ValueFormat    `json:"format"`
}

// TimeSeriesPoint is one calendar-day bucket of the revenue chart.
type TimeSeriesPoint struct {
	Date         string  `json:"date"` // YYYY-MM-DD
	Revenue      float64 `json:"revenue"`
	InvoiceCount int     `json:"invoiceCount"`
	PaidCount    int     `json:"paidCount"`
	PendingCount int     `json:"pendingCount"`
	OverdueCount int     `json:"overdueCount"`
}

// PaymentTier is a qualitative grade of a client's payment behaviour.
type PaymentTier string

const (
	PaymentExcellent PaymentTier = "excellent"
	PaymentGood      PaymentTier = "good"
	PaymentFair      PaymentTier = "fair"
	PaymentPoor      PaymentTier = "poor"
)

// ClientAnalytic aggregates the invoices of one client, keyed by display name.
type ClientAnalytic struct {
	ClientName            string      `json:"clientName"`
	TotalRevenue          float64     `json:"totalRevenue"`
	InvoiceCount          int         `json:"invoiceCount"`
	AverageInvoiceValue   float64     `json:"averageInvoiceValue"`
	LastInvoiceDate       time.Time   `json:"lastInvoiceDate"`
	PaymentHistory        PaymentTier `json:"paymentHistory"`
	AverageDaysToPay      float64     `json:"averageDaysToPay"`
	AverageInvoiceGapDays float64     `json:"averageInvoiceGapDays"`
	OverdueCount          int         `json:"overdueCount"`
}

// CategoryBreakdown is revenue bucketed by invoice size.
type CategoryBreakdown struct {
	Category   string  `json:"category"`
	Revenue    float64 `json:"revenue"`
	Percentage float64 `json:"percentage"`
	Count      int     `json:"count"`
	Color      string  `json:"color"`
}

// ============================================================
// Predictions
// ============================================================

// ForecastTrend is the direction of the fitted revenue line.
type ForecastTrend string

const (
	ForecastIncreasing ForecastTrend = "increasing"
	ForecastDecreasing ForecastTrend = "decreasing"
	ForecastStable     ForecastTrend = "stable"
)

// RevenueForecast is the predicted revenue for one future day.
type RevenueForecast struct {
	Period           string        `json:"period"` // YYYY-MM-DD
	PredictedRevenue float64       `json:"predictedRevenue"`
	Confidence       float64       `json:"confidence"`
	Trend            ForecastTrend `json:"trend"`
	SeasonalFactor   float64       `json:"seasonalFactor"`
}

// RiskLevel buckets a churn risk score at fixed cut points.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ChurnRiskClient is the churn estimate for one client.
type ChurnRiskClient struct {
	ClientName          string    `json:"clientName"`
	RiskScore           float64   `json:"riskScore"`
	RiskLevel           RiskLevel `json:"riskLevel"`
	LastInvoiceDate     time.Time `json:"lastInvoiceDate"`
	AveragePaymentDelay float64   `json:"averagePaymentDelay"`
	TotalRevenue        float64   `json:"totalRevenue"`
	RecommendedActions  []string  `json:"recommendedActions"`
}

// SeasonClass classifies a month against the overall mean.
type SeasonClass string

const (
	SeasonPeak      SeasonClass = "peak"
	SeasonValley    SeasonClass = "valley"
	SeasonGrowing   SeasonClass = "growing"
	SeasonDeclining SeasonClass = "declining"
)

// SeasonalTrend is the revenue profile of one calendar month.
type SeasonalTrend struct {
	Period         string      `json:"period"` // YYYY-MM
	Revenue        float64     `json:"revenue"`
	InvoiceCount   int         `json:"invoiceCount"`
	AverageValue   float64     `json:"averageValue"`
	SeasonalIndex  float64     `json:"seasonalIndex"`
	Classification SeasonClass `json:"classification"`
}

// ============================================================
// Insights
// ============================================================

// InsightType categorises a predictive insight.
type InsightType string

const (
	InsightOpportunity    InsightType = "opportunity"
	InsightRisk           InsightType = "risk"
	InsightRecommendation InsightType = "recommendation"
)

// Impact is a fixed per-rule severity tier.
type Impact string

const (
	ImpactHigh   Impact = "high"
	ImpactMedium Impact = "medium"
	ImpactLow    Impact = "low"
)

// PredictiveInsight is a rule-derived, human-readable finding.
type PredictiveInsight struct {
	ID          string      `json:"id"`
	Type        InsightType `json:"type"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Impact      Impact      `json:"impact"`
	Actionable  bool        `json:"actionable"`
}

// BusinessHealth is the overall score with its supporting summaries.
type BusinessHealth struct {
	Score           float64  `json:"score"`
	RiskFactors     []string `json:"riskFactors"`
	Opportunities   []string `json:"opportunities"`
	Recommendations []string `json:"recommendations"`
}

// ============================================================
// Composite result
// ============================================================

// ResultSource tells whether a result was computed from stored or synthetic records.
type ResultSource string

const (
	SourceLive ResultSource = "live"
	SourceDemo ResultSource = "demo"
)

// AnalyticsResult is the full dashboard payload for one account and window.
type AnalyticsResult struct {
	ResultID          string              `json:"resultId"`
	AccountID         string              `json:"accountId"`
	Period            *AnalyticsPeriod    `json:"period"`
	Overview          OverviewMetrics     `json:"overview"`
	Metrics           []TrendMetric       `json:"metrics"`
	RevenueChart      []TimeSeriesPoint   `json:"revenueChart"`
	ClientAnalytics   []ClientAnalytic    `json:"clientAnalytics"`
	CategoryBreakdown []CategoryBreakdown `json:"categoryBreakdown"`
	RevenueForecast   []RevenueForecast   `json:"revenueForecast"`
	ChurnRisks        []ChurnRiskClient   `json:"churnRisks"`
	SeasonalTrends    []SeasonalTrend     `json:"seasonalTrends"`
	Insights          []PredictiveInsight `json:"insights"`
	BusinessHealth    BusinessHealth      `json:"businessHealth"`
	Source            ResultSource        `json:"source"`
	ComputedAt        time.Time           `json:"computedAt"`
}

// AnalyticsPeriod echoes the window the result was computed for.
type AnalyticsPeriod struct {
	From string `json:"from"`
	To   string `json:"to"`
	Days int    `json:"days"`
}

// CacheKey identifies a cached AnalyticsResult.
type CacheKey struct {
	AccountID string
	Start     string
	End       string
}

// CacheKeyPrefix namespaces analytics entries in shared cache backends.
const CacheKeyPrefix = "analytics:"

// NewCacheKey builds the key for an account and window.
func NewCacheKey(accountID string, w Window) CacheKey {
	return CacheKey{AccountID: accountID, Start: w.Start.Format(DateLayout), End: w.End.Format(DateLayout)}
}

func (k CacheKey) String() string {
	return CacheKeyPrefix + k.AccountID + ":" + k.Start + ":" + k.End
}
