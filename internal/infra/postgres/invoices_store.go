// Package postgres reads invoice records straight from a Postgres database, for
// deployments that do not go through the Supabase REST layer.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/boddenberg/invoice-insights-bfa/internal/domain"
	"github.com/boddenberg/invoice-insights-bfa/internal/infra/resilience"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("postgres")

const selectInvoices = `
SELECT id, created_at, COALESCE(amount, 0) AS amount, status,
       COALESCE(client_name, '') AS client_name, due_date, paid_at
FROM invoices
WHERE account_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at ASC, id ASC`

// Store implements port.RecordFetcher on top of sqlx.
type Store struct {
	db     *sqlx.DB
	guard  *resilience.Guard
	logger *zap.Logger
}

// PoolConfig sizes the connection pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to dsn with the lib/pq driver and verifies the connection.
func Open(ctx context.Context, dsn string, pool PoolConfig) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	return db, nil
}

// NewStore creates a Store.
func NewStore(db *sqlx.DB, guard *resilience.Guard, logger *zap.Logger) *Store {
	return &Store{db: db, guard: guard, logger: logger}
}

// Nullable scan targets keep rows readable on schemas without NOT NULL constraints.
type invoiceRow struct {
	ID         string              `db:"id"`
	CreatedAt  time.Time           `db:"created_at"`
	Amount     decimal.NullDecimal `db:"amount"`
	Status     string              `db:"status"`
	ClientName sql.NullString      `db:"client_name"`
	DueDate    *time.Time          `db:"due_date"`
	PaidAt     *time.Time          `db:"paid_at"`
}

// toDomain maps a row to a record. A missing amount counts as zero.
func (r invoiceRow) toDomain() domain.InvoiceRecord {
	amount := decimal.Zero
	if r.Amount.Valid {
		amount = r.Amount.Decimal
	}
	return domain.InvoiceRecord{
		ID:         r.ID,
		CreatedAt:  r.CreatedAt,
		Amount:     amount,
		Status:     domain.InvoiceStatus(strings.ToLower(r.Status)),
		ClientName: r.ClientName.String,
		DueDate:    r.DueDate,
		PaidAt:     r.PaidAt,
	}
}

// FetchInvoices returns every invoice of the account created on a day inside the window.
func (s *Store) FetchInvoices(ctx context.Context, accountID string, window domain.Window) ([]domain.InvoiceRecord, error) {
	ctx, span := tracer.Start(ctx, "Postgres.FetchInvoices")
	defer span.End()
	span.SetAttributes(
		attribute.String("account.id", accountID),
		attribute.String("window", window.String()),
	)

	loc := window.Start.Location()
	from := domain.TruncateDay(window.Start, loc)
	until := domain.TruncateDay(window.End.In(loc), loc).AddDate(0, 0, 1)

	var rows []invoiceRow
	err := s.guard.Do(ctx, func(ctx context.Context) error {
		rows = rows[:0]
		err := s.db.SelectContext(ctx, &rows, selectInvoices, accountID, from, until)
		if err != nil && !retryable(err) {
			return resilience.Permanent(err)
		}
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch invoices failed")
		s.logger.Error("postgres: fetch invoices failed",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
		return nil, &domain.ErrExternalService{Service: "postgres/invoices", Err: err}
	}

	records := make([]domain.InvoiceRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.toDomain())
	}
	span.SetAttributes(attribute.Int("invoices.count", len(records)))
	return records, nil
}

// Ping checks the connection, for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// retryable reports whether a query error is transient: connection-level failures and
// the SQLSTATE classes below. Scan and conversion errors are permanent.
func retryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code.Class() {
	case "08", // connection_exception
		"40", // transaction_rollback
		"53", // insufficient_resources
		"57": // operator_intervention
		return true
	}
	return false
}
