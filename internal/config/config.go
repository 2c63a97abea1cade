// Package config loads application configuration with viper.
// Precedence: environment variables, then an optional .env file, then defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Record sources.
const (
	SourceSupabase = "supabase"
	SourcePostgres = "postgres"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config holds all application configuration.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL      time.Duration
	CacheBackend  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Record store
	RecordSource       string
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string
	DatabaseURL        string

	// Observability
	OTLPEndpoint string

	// JWT / Auth. Empty disables token checks.
	JWTSecret string

	// Analytics
	DemoFallback    bool
	ForecastPeriods int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_TIMEOUT", 10*time.Second)
	v.SetDefault("MAX_RETRIES", 3)
	v.SetDefault("INITIAL_BACKOFF", 100*time.Millisecond)
	v.SetDefault("MAX_CONCURRENCY", 50)
	v.SetDefault("CACHE_TTL", 5*time.Minute)
	v.SetDefault("CACHE_BACKEND", CacheMemory)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("RECORD_SOURCE", SourceSupabase)
	v.SetDefault("SUPABASE_URL", "")
	v.SetDefault("SUPABASE_ANON_KEY", "")
	v.SetDefault("SUPABASE_SERVICE_ROLE_KEY", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("DEMO_FALLBACK", true)
	v.SetDefault("FORECAST_PERIODS", 30)
}

// Load reads configuration. envFile may be empty; a missing file is not an error.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("read %s: %w", envFile, err)
			}
		}
	}

	cfg := &Config{
		Port:     v.GetInt("PORT"),
		LogLevel: v.GetString("LOG_LEVEL"),

		HTTPTimeout: v.GetDuration("HTTP_TIMEOUT"),

		MaxRetries:     v.GetInt("MAX_RETRIES"),
		InitialBackoff: v.GetDuration("INITIAL_BACKOFF"),
		MaxConcurrency: v.GetInt("MAX_CONCURRENCY"),

		CacheTTL:      v.GetDuration("CACHE_TTL"),
		CacheBackend:  strings.ToLower(v.GetString("CACHE_BACKEND")),
		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),

		RecordSource:       strings.ToLower(v.GetString("RECORD_SOURCE")),
		SupabaseURL:        strings.TrimRight(v.GetString("SUPABASE_URL"), "/"),
		SupabaseAnonKey:    v.GetString("SUPABASE_ANON_KEY"),
		SupabaseServiceKey: v.GetString("SUPABASE_SERVICE_ROLE_KEY"),
		DatabaseURL:        v.GetString("DATABASE_URL"),

		OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),

		JWTSecret: v.GetString("JWT_SECRET"),

		DemoFallback:    v.GetBool("DEMO_FALLBACK"),
		ForecastPeriods: v.GetInt("FORECAST_PERIODS"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be 1-65535, got %d", c.Port))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, errors.New("CACHE_TTL must be positive"))
	}
	if c.ForecastPeriods < 1 || c.ForecastPeriods > 365 {
		errs = append(errs, fmt.Errorf("FORECAST_PERIODS must be 1-365, got %d", c.ForecastPeriods))
	}

	switch c.CacheBackend {
	case CacheMemory:
	case CacheRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required when CACHE_BACKEND=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("CACHE_BACKEND must be %q or %q, got %q", CacheMemory, CacheRedis, c.CacheBackend))
	}

	switch c.RecordSource {
	case SourceSupabase:
		if c.SupabaseURL == "" || c.SupabaseServiceKey == "" {
			errs = append(errs, errors.New("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY are required when RECORD_SOURCE=supabase"))
		}
	case SourcePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when RECORD_SOURCE=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("RECORD_SOURCE must be %q or %q, got %q", SourceSupabase, SourcePostgres, c.RecordSource))
	}

	return errors.Join(errs...)
}
