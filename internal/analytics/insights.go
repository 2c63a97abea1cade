package analytics

import (
	"math"

	"github.com/boddenberg/invoice-insights-bfa/internal/domain"
)

const (
	maxInsights = 4

	collectionWeight = 50.0
	revenueWeight    = 30.0
	healthBaseline   = 20.0

	// revenueReference is the total revenue at which the scale factor saturates.
	revenueReference = 10000.0

	lowCollectionRate    = 70.0
	strongCollectionRate = 90.0
)

// Composition is the InsightComposer output.
type Composition struct {
	Insights       []domain.PredictiveInsight
	BusinessHealth domain.BusinessHealth
}

// HealthScore blends collection rate and revenue scale on top of a flat baseline.
func HealthScore(ov domain.OverviewMetrics) float64 {
	collection := math.Min(100, math.Max(0, ov.CollectionRate)) / 100 * collectionWeight
	scale := math.Min(1, math.Max(0, ov.TotalRevenue)/revenueReference) * revenueWeight
	return round2(math.Min(100, math.Max(0, collection+scale+healthBaseline)))
}

// ComposeInsights summarises already computed structures into ranked insights and a
// business health score. Rules and their impact tiers are fixed.
func ComposeInsights(ov domain.OverviewMetrics, forecast []domain.RevenueForecast, churn []domain.ChurnRiskClient) Composition {
	insights := make([]domain.PredictiveInsight, 0, maxInsights)
	health := domain.BusinessHealth{
		Score:           HealthScore(ov),
		RiskFactors:     make([]string, 0),
		Opportunities:   make([]string, 0),
		Recommendations: make([]string, 0),
	}

	if len(forecast) > 0 {
		switch forecast[0].Trend {
		case domain.ForecastIncreasing:
			insights = append(insights, domain.PredictiveInsight{
				ID:          "revenue-growth",
				Type:        domain.InsightOpportunity,
				Title:       "Revenue is trending up",
				Description: "The revenue forecast points upward. Plan capacity and consider raising rates for new work.",
				Impact:      domain.ImpactHigh,
				Actionable:  true,
			})
			health.Opportunities = append(health.Opportunities, "Revenue forecast is increasing")
		case domain.ForecastDecreasing:
			health.RiskFactors = append(health.RiskFactors, "Revenue forecast is decreasing")
			health.Recommendations = append(health.Recommendations, "Review pricing and pipeline to reverse the revenue decline")
		}
	}

	atRisk := 0
	for _, c := range churn {
		if c.RiskLevel == domain.RiskHigh || c.RiskLevel == domain.RiskCritical {
			atRisk++
		}
	}
	if atRisk > 0 {
		insights = append(insights, domain.PredictiveInsight{
			ID:          "client-churn",
			Type:        domain.InsightRisk,
			Title:       "Clients at risk of churning",
			Description: "Some clients show high churn risk based on invoice recency, payment delay and lifetime value.",
			Impact:      domain.ImpactHigh,
			Actionable:  true,
		})
		health.RiskFactors = append(health.RiskFactors, "Clients with high churn risk")
		health.Recommendations = append(health.Recommendations, "Contact at-risk clients before their next billing cycle")
	}

	if ov.TotalInvoices > 0 && ov.CollectionRate < lowCollectionRate {
		insights = append(insights, domain.PredictiveInsight{
			ID:          "collection-rate",
			Type:        domain.InsightRisk,
			Title:       "Low collection rate",
			Description: "Less than 70% of invoices in this period are paid.",
			Impact:      domain.ImpactMedium,
			Actionable:  true,
		})
		health.RiskFactors = append(health.RiskFactors, "Low collection rate")
		health.Recommendations = append(health.Recommendations, "Tighten payment terms and send reminders earlier")
	} else if ov.CollectionRate >= strongCollectionRate {
		health.Opportunities = append(health.Opportunities, "Strong collection rate")
	}

	insights = append(insights, domain.PredictiveInsight{
		ID:          "follow-up-automation",
		Type:        domain.InsightRecommendation,
		Title:       "Automate invoice follow-ups",
		Description: "Automatic reminders for sent and overdue invoices shorten the time to payment.",
		Impact:      domain.ImpactMedium,
		Actionable:  true,
	})
	health.Recommendations = append(health.Recommendations, "Automate invoice follow-ups")

	if len(insights) > maxInsights {
		insights = insights[:maxInsights]
	}
	return Composition{Insights: insights, BusinessHealth: health}
}
