package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/boddenberg/invoice-insights-bfa/internal/domain"
)

// Score weights add up to 100.
const (
	recencyWeight   = 40.0
	delayWeight     = 30.0
	lowRevenueScore = 20.0
	midRevenueScore = 10.0
	frequencyScore  = 10.0

	defaultInvoiceGapDays = 30.0
	delayScaleDays        = 30.0

	lowRevenueLimit  = 1000.0
	midRevenueLimit  = 5000.0
	lowFrequencyMax  = 3
	overdueGapFactor = 1.5
	slowPayerDays    = 14.0
)

// Recommended actions, emitted in this order when their rule fires.
const (
	ActionReachOut    = "Reach out: overdue for next invoice"
	ActionReviewTerms = "Review payment terms"
	ActionUpsell      = "Consider upselling"
)

// RiskLevelFor maps a score to its level at the fixed 25/50/75 cut points.
func RiskLevelFor(score float64) domain.RiskLevel {
	switch {
	case score >= 75:
		return domain.RiskCritical
	case score >= 50:
		return domain.RiskHigh
	case score >= 25:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// ScoreChurnRisk scores every client and returns them by risk score, highest first.
// now anchors the recency signal.
func ScoreChurnRisk(clients []domain.ClientAnalytic, now time.Time) []domain.ChurnRiskClient {
	out := make([]domain.ChurnRiskClient, 0, len(clients))
	for _, c := range clients {
		out = append(out, scoreClient(c, now))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RiskScore > out[j].RiskScore
	})
	return out
}

func scoreClient(c domain.ClientAnalytic, now time.Time) domain.ChurnRiskClient {
	gap := c.AverageInvoiceGapDays
	if gap <= 0 {
		gap = defaultInvoiceGapDays
	}
	daysSince := math.Max(0, now.Sub(c.LastInvoiceDate).Hours()/24)
	delay := math.Max(0, c.AverageDaysToPay)

	score := math.Min(recencyWeight, daysSince/gap*recencyWeight)
	score += math.Min(delayWeight, delay/delayScaleDays*delayWeight)
	switch {
	case c.TotalRevenue < lowRevenueLimit:
		score += lowRevenueScore
	case c.TotalRevenue < midRevenueLimit:
		score += midRevenueScore
	}
	if c.InvoiceCount < lowFrequencyMax {
		score += frequencyScore
	}
	score = math.Round(math.Min(100, math.Max(0, score))*10) / 10

	actions := make([]string, 0, 3)
	if daysSince > overdueGapFactor*gap {
		actions = append(actions, ActionReachOut)
	}
	if delay > slowPayerDays {
		actions = append(actions, ActionReviewTerms)
	}
	if c.TotalRevenue < lowRevenueLimit {
		actions = append(actions, ActionUpsell)
	}

	return domain.ChurnRiskClient{
		ClientName:          c.ClientName,
		RiskScore:           score,
		RiskLevel:           RiskLevelFor(score),
		LastInvoiceDate:     c.LastInvoiceDate,
		AveragePaymentDelay: delay,
		TotalRevenue:        c.TotalRevenue,
		RecommendedActions:  actions,
	}
}
