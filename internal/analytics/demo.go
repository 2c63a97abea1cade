package analytics

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/boddenberg/invoice-insights-bfa/internal/domain"

	"github.com/shopspring/decimal"
)

var demoClients = []string{
	"Acme Studio",
	"Blue Harbor Cafe",
	"Northwind Traders",
	"Greenleaf Dental",
	"Summit Legal",
	"Pixel Forge",
}

// DemoRecords generates a synthetic invoice set covering the window. The output is a
// pure function of accountID and window so repeated calls agree, and it satisfies the
// same invariants as stored records so it can run through Aggregate unchanged.
func DemoRecords(accountID string, window domain.Window) []domain.InvoiceRecord {
	h := fnv.New64a()
	h.Write([]byte(accountID + "|" + window.String()))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	loc := window.Start.Location()
	start := domain.TruncateDay(window.Start, loc)
	days := window.Days()
	end := start.AddDate(0, 0, days)

	records := make([]domain.InvoiceRecord, 0, days)
	for d := 0; d < days; d++ {
		day := start.AddDate(0, 0, d)
		// Weekends are quieter, which gives the weekday factors something to find.
		perDay := rng.Intn(3)
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			perDay = rng.Intn(2)
		}
		for k := 0; k < perDay; k++ {
			created := day.Add(time.Duration(9+rng.Intn(9)) * time.Hour)
			cents := int64(20000 + rng.Intn(780000))
			r := domain.InvoiceRecord{
				ID:         fmt.Sprintf("demo-%s-%d", day.Format("20060102"), k),
				CreatedAt:  created,
				Amount:     decimal.New(cents, -2),
				ClientName: demoClients[rng.Intn(len(demoClients))],
			}
			due := created.AddDate(0, 0, 30)
			r.DueDate = &due

			age := end.Sub(created).Hours() / 24
			roll := rng.Float64()
			switch {
			case age > 45 && roll < 0.85, age > 20 && roll < 0.5:
				paid := created.AddDate(0, 0, 5+rng.Intn(35))
				if paid.After(end) {
					paid = end
				}
				r.Status = domain.StatusPaid
				r.PaidAt = &paid
			case age > 30:
				r.Status = domain.StatusOverdue
			case roll < 0.9:
				r.Status = domain.StatusSent
			default:
				r.Status = domain.StatusDraft
			}
			records = append(records, r)
		}
	}
	return records
}
