package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/invoice-insights-bfa/internal/infra/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)}
}

func TestCache_SetAndGet(t *testing.T) {
	c := cache.New[string](5 * time.Minute)

	c.Set("key1", "value1")
	val, ok := c.Get("key1")
	require.True(t, ok)
	assert.Equal(t, "value1", val)
}

func TestCache_GetMiss(t *testing.T) {
	c := cache.New[string](5 * time.Minute)

	_, ok := c.Get("nonexistent")
	assert.False(t, ok)
}

func TestCache_Expiration(t *testing.T) {
	clock := newClock()
	c := cache.New[string](5*time.Minute, cache.WithClock(clock.Now))

	c.Set("key1", "value1")
	clock.Advance(5*time.Minute - time.Second)
	_, ok := c.Get("key1")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get("key1")
	assert.False(t, ok)
	assert.Zero(t, c.Len(), "expired entry should be dropped on lookup")
}

func TestCache_GetOrCompute(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	c := cache.New[int](time.Minute, cache.WithClock(clock.Now))

	calls := 0
	compute := func(context.Context) (int, error) {
		calls++
		return 42, nil
	}

	v, hit, err := c.GetOrCompute(ctx, "k", compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 42, v)

	v, hit, err = c.GetOrCompute(ctx, "k", compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)

	clock.Advance(time.Minute)
	_, hit, err = c.GetOrCompute(ctx, "k", compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, calls)
}

func TestCache_GetOrComputeDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	c := cache.New[int](time.Minute)
	boom := errors.New("store down")

	_, _, err := c.GetOrCompute(ctx, "k", func(context.Context) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, c.Len())

	v, hit, err := c.GetOrCompute(ctx, "k", func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 7, v)
}

func TestCache_Clear(t *testing.T) {
	c := cache.New[string](time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")

	require.NoError(t, c.Clear(context.Background()))
	assert.Zero(t, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := cache.New[int](time.Minute)
	var computed atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := []string{"a", "b", "c"}[i%3]
			v, _, err := c.GetOrCompute(ctx, key, func(context.Context) (int, error) {
				computed.Add(1)
				return len(key), nil
			})
			assert.NoError(t, err)
			assert.Equal(t, 1, v)
			if i%10 == 0 {
				_ = c.Clear(ctx)
			}
		}(i)
	}
	wg.Wait()

	assert.GreaterOrEqual(t, computed.Load(), int32(3))
}
