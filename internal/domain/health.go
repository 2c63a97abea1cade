package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// AnalyticsMetrics is returned by GET /v1/metrics/analytics.
type AnalyticsMetrics struct {
	TotalRequests    int64   `json:"totalRequests"`
	ErrorRate        float64 `json:"errorRate"`
	CacheHitRate     float64 `json:"cacheHitRate"`
	LiveComputations int64   `json:"liveComputations"`
	DemoComputations int64   `json:"demoComputations"`
	StoreErrors      int64   `json:"storeErrors"`
	Period           string  `json:"period"`
}

// SuccessResponse wraps a successful command response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
