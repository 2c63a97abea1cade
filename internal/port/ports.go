// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the analytics service
// from the concrete stores and caches it runs against.
package port

import (
	"context"

	"github.com/boddenberg/invoice-insights-bfa/internal/domain"
)

// RecordFetcher retrieves the raw invoices of an account created inside a window.
// Implemented by the Supabase and Postgres adapters.
type RecordFetcher interface {
	FetchInvoices(ctx context.Context, accountID string, window domain.Window) ([]domain.InvoiceRecord, error)
}

// AnalyticsCache memoizes computed results. The boolean reports a cache hit.
// Implementations must not store a result when fn fails.
type AnalyticsCache interface {
	GetOrCompute(ctx context.Context, key string, fn func(context.Context) (*domain.AnalyticsResult, error)) (*domain.AnalyticsResult, bool, error)
	Clear(ctx context.Context) error
}

// Pinger is implemented by backends that can report their reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
