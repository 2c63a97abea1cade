package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/boddenberg/invoice-insights-bfa/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithSupabase(t *testing.T) {
	t.Setenv("SUPABASE_URL", "https://example.supabase.co/")
	t.Setenv("SUPABASE_SERVICE_ROLE_KEY", "service")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, config.CacheMemory, cfg.CacheBackend)
	assert.Equal(t, config.SourceSupabase, cfg.RecordSource)
	assert.Equal(t, "https://example.supabase.co", cfg.SupabaseURL)
	assert.Equal(t, 30, cfg.ForecastPeriods)
	assert.True(t, cfg.DemoFallback)
	assert.Empty(t, cfg.JWTSecret)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RECORD_SOURCE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/invoices?sslmode=disable")
	t.Setenv("CACHE_BACKEND", "REDIS")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("DEMO_FALLBACK", "false")
	t.Setenv("FORECAST_PERIODS", "14")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, config.SourcePostgres, cfg.RecordSource)
	assert.Equal(t, config.CacheRedis, cfg.CacheBackend)
	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
	assert.False(t, cfg.DemoFallback)
	assert.Equal(t, 14, cfg.ForecastPeriods)
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("# local\nSUPABASE_URL=https://file.supabase.co\nSUPABASE_SERVICE_ROLE_KEY=from-file\nPORT=9090\n"), 0o600))
	t.Setenv("PORT", "7070")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://file.supabase.co", cfg.SupabaseURL)
	assert.Equal(t, 7070, cfg.Port, "environment wins over .env")
}

func TestLoad_MissingDotEnvIsIgnored(t *testing.T) {
	t.Setenv("SUPABASE_URL", "https://example.supabase.co")
	t.Setenv("SUPABASE_SERVICE_ROLE_KEY", "service")

	_, err := config.Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	base := func() config.Config {
		return config.Config{
			Port:            8080,
			CacheTTL:        time.Minute,
			CacheBackend:    config.CacheMemory,
			RecordSource:    config.SourcePostgres,
			DatabaseURL:     "postgres://localhost/db",
			ForecastPeriods: 30,
		}
	}

	ok := base()
	assert.NoError(t, ok.Validate())

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"bad source", func(c *config.Config) { c.RecordSource = "mysql" }},
		{"postgres without dsn", func(c *config.Config) { c.DatabaseURL = "" }},
		{"supabase without url", func(c *config.Config) { c.RecordSource = config.SourceSupabase }},
		{"bad cache", func(c *config.Config) { c.CacheBackend = "memcached" }},
		{"redis without addr", func(c *config.Config) { c.CacheBackend = config.CacheRedis }},
		{"zero ttl", func(c *config.Config) { c.CacheTTL = 0 }},
		{"forecast too long", func(c *config.Config) { c.ForecastPeriods = 400 }},
		{"bad port", func(c *config.Config) { c.Port = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
