package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/boddenberg/invoice-insights-bfa/internal/domain"
	"github.com/boddenberg/invoice-insights-bfa/internal/infra/resilience"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// pageSize bounds a single PostgREST response; larger windows are paged.
const pageSize = 1000

// supabaseInvoice maps the invoices table columns.
type supabaseInvoice struct {
	ID         string          `json:"id"`
	AccountID  string          `json:"account_id"`
	CreatedAt  time.Time       `json:"created_at"`
	Amount     decimal.Decimal `json:"amount"`
	Status     string          `json:"status"`
	ClientName string          `json:"client_name"`
	DueDate    *flexTime       `json:"due_date"`
	PaidAt     *flexTime       `json:"paid_at"`
}

// flexTime accepts both date and timestamptz columns.
type flexTime time.Time

func (f *flexTime) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", domain.DateLayout} {
		if t, err := time.Parse(layout, raw); err == nil {
			*f = flexTime(t)
			return nil
		}
	}
	return fmt.Errorf("unrecognised time %q", raw)
}

func (f *flexTime) ptr() *time.Time {
	if f == nil {
		return nil
	}
	t := time.Time(*f)
	return &t
}

func (s supabaseInvoice) toDomain() domain.InvoiceRecord {
	return domain.InvoiceRecord{
		ID:         s.ID,
		CreatedAt:  s.CreatedAt,
		Amount:     s.Amount,
		Status:     domain.InvoiceStatus(s.Status),
		ClientName: s.ClientName,
		DueDate:    s.DueDate.ptr(),
		PaidAt:     s.PaidAt.ptr(),
	}
}

// FetchInvoices returns every invoice of the account created on a day inside the window.
// Implements port.RecordFetcher.
func (c *Client) FetchInvoices(ctx context.Context, accountID string, window domain.Window) ([]domain.InvoiceRecord, error) {
	ctx, span := tracer.Start(ctx, "Supabase.FetchInvoices")
	defer span.End()
	span.SetAttributes(
		attribute.String("account.id", accountID),
		attribute.String("window", window.String()),
	)

	loc := window.Start.Location()
	from := domain.TruncateDay(window.Start, loc)
	until := domain.TruncateDay(window.End.In(loc), loc).AddDate(0, 0, 1)

	records := make([]domain.InvoiceRecord, 0)
	for offset := 0; ; offset += pageSize {
		q := url.Values{}
		q.Set("select", "id,account_id,created_at,amount,status,client_name,due_date,paid_at")
		q.Set("account_id", "eq."+accountID)
		q.Add("created_at", "gte."+from.Format(time.RFC3339))
		q.Add("created_at", "lt."+until.Format(time.RFC3339))
		q.Set("order", "created_at.asc,id.asc")
		q.Set("limit", fmt.Sprint(pageSize))
		q.Set("offset", fmt.Sprint(offset))
		path := "invoices?" + q.Encode()

		var page []supabaseInvoice
		err := c.guard.Do(ctx, func(ctx context.Context) error {
			body, err := c.doRequest(ctx, path)
			if err != nil {
				return err
			}
			page = page[:0]
			if len(body) == 0 {
				return nil
			}
			if err := json.Unmarshal(body, &page); err != nil {
				return resilience.Permanent(fmt.Errorf("failed to decode invoices: %w", err))
			}
			return nil
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "fetch invoices failed")
			c.logger.Error("supabase: fetch invoices failed",
				zap.String("account_id", accountID),
				zap.Int("offset", offset),
				zap.Error(err),
			)
			return nil, &domain.ErrExternalService{Service: "supabase/invoices", Err: err}
		}

		for _, inv := range page {
			records = append(records, inv.toDomain())
		}
		if len(page) < pageSize {
			break
		}
	}

	span.SetAttributes(attribute.Int("invoices.count", len(records)))
	return records, nil
}
