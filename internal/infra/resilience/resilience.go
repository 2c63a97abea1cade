// Package resilience provides fault-tolerance patterns for the record stores:
// retry with exponential backoff, circuit breaker, and bulkhead.
package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/boddenberg/invoice-insights-bfa/internal/domain"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Config holds resilience parameters.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. RetryWithBackoff returns the wrapped error
// immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// RetryWithBackoff executes fn with exponential backoff + jitter.
// It respects context cancellation and stops on errors marked Permanent.
func RetryWithBackoff(ctx context.Context, cfg Config, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}

		if attempt < cfg.MaxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * cfg.InitialBackoff
			wait := backoff
			if half := int64(backoff / 2); half > 0 {
				wait += time.Duration(rand.Int63n(half))
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	return lastErr
}

// NewCircuitBreaker creates a circuit breaker with sensible defaults and logs state changes.
func NewCircuitBreaker(name string, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,                // half-open: allow 3 requests
		Interval:    30 * time.Second, // closed: reset counters every 30s
		Timeout:     10 * time.Second, // open -> half-open after 10s
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

// Bulkhead limits concurrent access to a resource.
type Bulkhead struct {
	sem chan struct{}
}

// NewBulkhead creates a bulkhead with the given max concurrency.
func NewBulkhead(maxConcurrency int) *Bulkhead {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Bulkhead{sem: make(chan struct{}, maxConcurrency)}
}

// Acquire blocks until a slot is available or context is cancelled.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	select {
	case b.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot.
func (b *Bulkhead) Release() {
	<-b.sem
}

// Guard runs store calls behind a bulkhead slot, a circuit breaker and retries.
type Guard struct {
	name     string
	cfg      Config
	cb       *gobreaker.CircuitBreaker
	bulkhead *Bulkhead
}

// NewGuard builds a Guard whose breaker and error values carry name.
func NewGuard(name string, cfg Config, logger *zap.Logger) *Guard {
	return &Guard{
		name:     name,
		cfg:      cfg,
		cb:       NewCircuitBreaker(name, logger),
		bulkhead: NewBulkhead(cfg.MaxConcurrency),
	}
}

// Do executes fn. An open breaker yields *domain.ErrCircuitOpen and an expired context
// yields *domain.ErrTimeout; any other failure is returned as fn reported it.
// Errors marked Permanent are not retried and do not count against the breaker.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.bulkhead.Acquire(ctx); err != nil {
		return &domain.ErrTimeout{Operation: g.name + ": waiting for a free slot"}
	}
	defer g.bulkhead.Release()

	var permanent error
	_, err := g.cb.Execute(func() (any, error) {
		err := RetryWithBackoff(ctx, g.cfg, func() error {
			err := fn(ctx)
			var perm *permanentError
			if errors.As(err, &perm) {
				permanent = perm.err
				return nil
			}
			return err
		})
		return nil, err
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return &domain.ErrCircuitOpen{Service: g.name}
	case errors.Is(err, context.DeadlineExceeded):
		return &domain.ErrTimeout{Operation: g.name}
	case err != nil:
		return err
	}
	return permanent
}

// State exposes the breaker state for health reporting.
func (g *Guard) State() gobreaker.State {
	return g.cb.State()
}
