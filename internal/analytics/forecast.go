package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/boddenberg/invoice-insights-bfa/internal/domain"
)

const (
	baseConfidence = 85.0
	confidenceStep = 2.0
	minConfidence  = 50.0

	// seasonCycle is the length of the repeating factor vector. The series is dense
	// and daily, so index mod 7 is a day-of-week class.
	seasonCycle = 7

	// slopeEpsilon absorbs float noise when fitting a flat series.
	slopeEpsilon = 1e-9

	peakIndex   = 1.2
	valleyIndex = 0.8
)

// Regression is an ordinary least-squares fit of revenue against series index.
type Regression struct {
	Slope     float64
	Intercept float64
}

// Trend labels the direction of the fitted line.
func (r Regression) Trend() domain.ForecastTrend {
	switch {
	case r.Slope > slopeEpsilon:
		return domain.ForecastIncreasing
	case r.Slope < -slopeEpsilon:
		return domain.ForecastDecreasing
	default:
		return domain.ForecastStable
	}
}

// At evaluates the fitted line at index x.
func (r Regression) At(x float64) float64 {
	return r.Slope*x + r.Intercept
}

// FitTrend regresses revenue on index 0..n-1. A single point yields a flat line through
// it (slope 0, intercept = mean); an empty series cannot be fitted and returns false.
func FitTrend(series []domain.TimeSeriesPoint) (Regression, bool) {
	n := len(series)
	switch n {
	case 0:
		return Regression{}, false
	case 1:
		return Regression{Intercept: series[0].Revenue}, true
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, p := range series {
		x := float64(i)
		sumX += x
		sumY += p.Revenue
		sumXY += x * p.Revenue
		sumXX += x * x
	}
	fn := float64(n)
	// n >= 2 with distinct indices keeps the denominator positive.
	denom := fn*sumXX - sumX*sumX
	slope := (fn*sumXY - sumX*sumY) / denom
	return Regression{
		Slope:     slope,
		Intercept: (sumY - slope*sumX) / fn,
	}, true
}

// SeasonalFactors returns the 7-slot multiplier vector: the mean revenue of each slot
// divided by the overall mean. All factors are 1 when the overall mean is 0, and an
// unobserved slot keeps a factor of 1.
func SeasonalFactors(series []domain.TimeSeriesPoint) [seasonCycle]float64 {
	var factors [seasonCycle]float64
	for i := range factors {
		factors[i] = 1
	}
	if len(series) == 0 {
		return factors
	}

	var total float64
	var sums [seasonCycle]float64
	var counts [seasonCycle]int
	for i, p := range series {
		total += p.Revenue
		sums[i%seasonCycle] += p.Revenue
		counts[i%seasonCycle]++
	}
	mean := total / float64(len(series))
	if mean == 0 {
		return factors
	}
	for k := range factors {
		if counts[k] > 0 {
			factors[k] = (sums[k] / float64(counts[k])) / mean
		}
	}
	return factors
}

// ConfidenceAt is the fixed decay schedule for the i-th period ahead (0-based).
// It is a bounded percentage, not a statistical interval.
func ConfidenceAt(i int) float64 {
	return math.Max(minConfidence, baseConfidence-confidenceStep*float64(i))
}

// Forecast projects daily revenue for the given number of periods past the end of the
// series. The series must be the dense, ascending output of Aggregate.
func Forecast(series []domain.TimeSeriesPoint, periods int) ([]domain.RevenueForecast, error) {
	out := make([]domain.RevenueForecast, 0, max(periods, 0))
	reg, ok := FitTrend(series)
	if !ok || periods <= 0 {
		return out, nil
	}

	last, err := time.Parse(domain.DateLayout, series[len(series)-1].Date)
	if err != nil {
		return nil, &domain.ErrValidation{Field: "series.date", Message: err.Error()}
	}

	factors := SeasonalFactors(series)
	trend := reg.Trend()
	n := len(series)

	for i := 0; i < periods; i++ {
		futureIndex := n + i
		factor := factors[futureIndex%seasonCycle]
		out = append(out, domain.RevenueForecast{
			Period:           last.AddDate(0, 0, i+1).Format(domain.DateLayout),
			PredictedRevenue: round2(math.Max(0, reg.At(float64(futureIndex))*factor)),
			Confidence:       ConfidenceAt(i),
			Trend:            trend,
			SeasonalFactor:   round2(factor),
		})
	}
	return out, nil
}

type monthBucket struct {
	revenue  float64
	invoices int
	days     int
}

// SeasonalTrends groups the series by calendar month and classifies each month by its
// mean daily revenue relative to the overall mean daily revenue. Months are returned in
// ascending order.
func SeasonalTrends(series []domain.TimeSeriesPoint) ([]domain.SeasonalTrend, error) {
	buckets := make(map[string]*monthBucket)
	var total float64

	for _, p := range series {
		d, err := time.Parse(domain.DateLayout, p.Date)
		if err != nil {
			return nil, &domain.ErrValidation{Field: "series.date", Message: err.Error()}
		}
		key := d.Format("2006-01")
		b, ok := buckets[key]
		if !ok {
			b = &monthBucket{}
			buckets[key] = b
		}
		b.revenue += p.Revenue
		b.invoices += p.InvoiceCount
		b.days++
		total += p.Revenue
	}

	months := make([]string, 0, len(buckets))
	for k := range buckets {
		months = append(months, k)
	}
	sort.Strings(months)

	overallMean := 0.0
	if len(series) > 0 {
		overallMean = total / float64(len(series))
	}

	out := make([]domain.SeasonalTrend, 0, len(months))
	for _, m := range months {
		b := buckets[m]
		index := 1.0
		if overallMean != 0 {
			index = round2((b.revenue / float64(b.days)) / overallMean)
		}
		avg := 0.0
		if b.invoices > 0 {
			avg = b.revenue / float64(b.invoices)
		}
		out = append(out, domain.SeasonalTrend{
			Period:         m,
			Revenue:        b.revenue,
			InvoiceCount:   b.invoices,
			AverageValue:   round2(avg),
			SeasonalIndex:  index,
			Classification: classifySeason(index),
		})
	}
	return out, nil
}

func classifySeason(index float64) domain.SeasonClass {
	switch {
	case index >= peakIndex:
		return domain.SeasonPeak
	case index <= valleyIndex:
		return domain.SeasonValley
	case index > 1:
		return domain.SeasonGrowing
	default:
		return domain.SeasonDeclining
	}
}

// String implements fmt.Stringer for log fields.
func (r Regression) String() string {
	return fmt.Sprintf("y = %.4fx + %.4f", r.Slope, r.Intercept)
}
