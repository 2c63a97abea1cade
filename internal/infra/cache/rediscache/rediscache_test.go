package rediscache_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/boddenberg/invoice-insights-bfa/internal/domain"
	"github.com/boddenberg/invoice-insights-bfa/internal/infra/cache/rediscache"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// unreachable points at a closed port so every command fails fast.
func unreachable(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestCache_DegradesToComputeWhenRedisIsDown(t *testing.T) {
	c := rediscache.New(unreachable(t), time.Minute, zap.NewNop())
	want := &domain.AnalyticsResult{AccountID: "acc-1", Source: domain.SourceLive}

	calls := 0
	got, hit, err := c.GetOrCompute(context.Background(), "analytics:acc-1:a:b", func(context.Context) (*domain.AnalyticsResult, error) {
		calls++
		return want, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Same(t, want, got)
	assert.Equal(t, 1, calls)
}

func TestCache_PropagatesComputeError(t *testing.T) {
	c := rediscache.New(unreachable(t), time.Minute, zap.NewNop())
	boom := errors.New("store down")

	_, _, err := c.GetOrCompute(context.Background(), "analytics:k", func(context.Context) (*domain.AnalyticsResult, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestCache_ClearReportsBackendFailure(t *testing.T) {
	c := rediscache.New(unreachable(t), time.Minute, zap.NewNop())

	err := c.Clear(context.Background())
	var ext *domain.ErrExternalService
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, "redis/scan", ext.Service)
	assert.Error(t, c.Ping(context.Background()))
}

// TestCache_LiveRoundTrip runs against a real server when REDIS_ADDR is set.
func TestCache_LiveRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	client, err := rediscache.NewClient(ctx, rediscache.Options{Addr: addr})
	require.NoError(t, err)
	defer client.Close()

	c := rediscache.New(client, time.Minute, zap.NewNop())
	require.NoError(t, c.Clear(ctx))

	key := domain.CacheKey{AccountID: "acc-live", Start: "2024-01-01", End: "2024-01-31"}.String()
	compute := func(context.Context) (*domain.AnalyticsResult, error) {
		return &domain.AnalyticsResult{AccountID: "acc-live", Source: domain.SourceDemo}, nil
	}

	_, hit, err := c.GetOrCompute(ctx, key, compute)
	require.NoError(t, err)
	assert.False(t, hit)

	got, hit, err := c.GetOrCompute(ctx, key, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "acc-live", got.AccountID)
	assert.Equal(t, domain.SourceDemo, got.Source)

	require.NoError(t, c.Clear(ctx))
	_, hit, err = c.GetOrCompute(ctx, key, compute)
	require.NoError(t, err)
	assert.False(t, hit)
}
