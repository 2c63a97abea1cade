// Package supabase provides a client for Supabase (PostgREST).
// Used as the default data backend for invoice records.
package supabase

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/boddenberg/invoice-insights-bfa/internal/infra/resilience"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("supabase")

// Client wraps HTTP calls to Supabase PostgREST API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	serviceRoleKey string
	guard          *resilience.Guard
	logger         *zap.Logger
}

// NewClient creates a Supabase client.
func NewClient(httpClient *http.Client, baseURL, apiKey, serviceRoleKey string, guard *resilience.Guard, logger *zap.Logger) *Client {
	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		apiKey:         apiKey,
		serviceRoleKey: serviceRoleKey,
		guard:          guard,
		logger:         logger,
	}
}

// statusError is a non-2xx PostgREST response.
type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("supabase returned status %d: %s", e.Status, e.Body)
}

// doRequest executes an authenticated GET against PostgREST. A 4xx response is marked
// permanent so the guard does not retry it.
func (c *Client) doRequest(ctx context.Context, path string) ([]byte, error) {
	url := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.logger.Error("supabase: failed to create request",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, resilience.Permanent(err)
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.serviceRoleKey))
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: request failed",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("supabase: failed to read response body",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil // no data
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("supabase: non-2xx response",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		serr := &statusError{Status: resp.StatusCode, Body: string(body)}
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, resilience.Permanent(serr)
		}
		return nil, serr
	}

	c.logger.Debug("supabase: request OK",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)

	return body, nil
}

// Ping checks that PostgREST answers, for readiness checks.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.doRequest(ctx, "invoices?select=id&limit=1")
	return err
}
