// Package cache provides an in-memory TTL cache for computed analytics results.
// Entries expire lazily on lookup; there is no background sweep.
package cache

import (
	"context"
	"sync"
	"time"
)

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

// Option configures an InMemory cache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// InMemory is a thread-safe in-memory cache with TTL.
type InMemory[T any] struct {
	mu    sync.RWMutex
	items map[string]entry[T]
	ttl   time.Duration
	now   func() time.Time
}

// New creates a new in-memory cache with the given TTL.
func New[T any](ttl time.Duration, opts ...Option) *InMemory[T] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &InMemory[T]{
		items: make(map[string]entry[T]),
		ttl:   ttl,
		now:   o.now,
	}
}

// Get retrieves a value from the cache. Returns false if not found or expired.
// Expired entries are dropped.
func (c *InMemory[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		var zero T
		return zero, false
	}
	if !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have refreshed it.
		if cur, ok := c.items[key]; ok && !c.now().Before(cur.expiresAt) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		var zero T
		return zero, false
	}
	return e.value, true
}

// Set stores a value in the cache with the configured TTL.
func (c *InMemory[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = entry[T]{
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	}
}

// GetOrCompute returns the cached value for key, or runs fn and stores its result.
// The boolean reports a cache hit. Errors from fn are returned and nothing is stored.
// Two concurrent misses on the same key both run fn; the last write wins.
func (c *InMemory[T]) GetOrCompute(ctx context.Context, key string, fn func(context.Context) (T, error)) (T, bool, error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}
	v, err := fn(ctx)
	if err != nil {
		var zero T
		return zero, false, err
	}
	c.Set(key, v)
	return v, false, nil
}

// Clear drops every entry.
func (c *InMemory[T]) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]entry[T])
	return nil
}

// Len returns the number of stored entries, expired or not.
func (c *InMemory[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
