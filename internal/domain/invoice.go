package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is the lifecycle state of an invoice as stored by the invoicing app.
type InvoiceStatus string

const (
	StatusDraft   InvoiceStatus = "draft"
	StatusSent    InvoiceStatus = "sent"
	StatusPaid    InvoiceStatus = "paid"
	StatusOverdue InvoiceStatus = "overdue"
)

// Valid reports whether s is one of the known statuses.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusPaid, StatusOverdue:
		return true
	}
	return false
}

// Pending reports whether the invoice still awaits payment without being overdue.
func (s InvoiceStatus) Pending() bool {
	return s == StatusDraft || s == StatusSent
}

// InvoiceRecord is a raw invoice as read from the document store. Read-only for the engine.
type InvoiceRecord struct {
	ID         string          `json:"id"`
	CreatedAt  time.Time       `json:"createdAt"`
	Amount     decimal.Decimal `json:"amount"`
	Status     InvoiceStatus   `json:"status"`
	ClientName string          `json:"clientName"`
	DueDate    *time.Time      `json:"dueDate,omitempty"`
	PaidAt     *time.Time      `json:"paidAt,omitempty"`
}

// Window is an inclusive range of calendar days. Days are evaluated in Start's location.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// DateLayout is the calendar-day layout used for keys, labels and query params.
const DateLayout = "2006-01-02"

// NewWindow truncates start and end to calendar days in start's location.
func NewWindow(start, end time.Time) Window {
	loc := start.Location()
	return Window{Start: TruncateDay(start, loc), End: TruncateDay(end.In(loc), loc)}
}

// Days returns the number of calendar days covered by the window, or 0 if End precedes Start.
func (w Window) Days() int {
	loc := w.Start.Location()
	s := TruncateDay(w.Start, loc)
	e := TruncateDay(w.End.In(loc), loc)
	if e.Before(s) {
		return 0
	}
	n := 0
	for d := s; !d.After(e); d = d.AddDate(0, 0, 1) {
		n++
	}
	return n
}

// Contains reports whether t falls on a calendar day inside the window.
func (w Window) Contains(t time.Time) bool {
	loc := w.Start.Location()
	d := TruncateDay(t.In(loc), loc)
	return !d.Before(TruncateDay(w.Start, loc)) && !d.After(TruncateDay(w.End.In(loc), loc))
}

// String renders the window as "start..end".
func (w Window) String() string {
	return w.Start.Format(DateLayout) + ".." + w.End.Format(DateLayout)
}

// TruncateDay returns midnight of t's calendar day in loc.
func TruncateDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
