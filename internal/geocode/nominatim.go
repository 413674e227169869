package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"tabflow/internal/config"
	"tabflow/internal/infrastructure"
)

// maxErrorBody bounds the response body quoted in errors
const maxErrorBody = 512

// NominatimResolver calls the reverse endpoint of a Nominatim server. Calls
// are spaced by the configured interval, as required by the public
// server's usage policy.
type NominatimResolver struct {
	baseURL   string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
	metrics   *infrastructure.BusinessMetrics
	logger    *slog.Logger
}

// NominatimOption configures a NominatimResolver
type NominatimOption func(*NominatimResolver)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(client *http.Client) NominatimOption {
	return func(r *NominatimResolver) {
		r.client = client
	}
}

// WithMetrics records every request in m
func WithMetrics(m *infrastructure.BusinessMetrics) NominatimOption {
	return func(r *NominatimResolver) {
		r.metrics = m
	}
}

// NewNominatimResolver creates a resolver from configuration. A zero
// interval disables rate limiting.
func NewNominatimResolver(cfg config.GeocoderConfig, opts ...NominatimOption) (*NominatimResolver, error) {
	if strings.TrimSpace(cfg.UserAgent) == "" {
		return nil, fmt.Errorf("geocoder user agent is required")
	}
	base := cfg.BaseURL
	if base == "" {
		base = config.DefaultNominatimURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid geocoder base URL: %w", err)
	}

	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultHTTPTimeout
	}

	r := &NominatimResolver{
		baseURL:   strings.TrimRight(base, "/"),
		userAgent: cfg.UserAgent,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: rate.NewLimiter(limit, 1),
		logger:  infrastructure.WithComponent(nil, "geocode"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

type reverseResponse struct {
	Address map[string]string `json:"address"`
	Error   string            `json:"error"`
}

// Resolve implements Resolver
func (r *NominatimResolver) Resolve(ctx context.Context, lat, lon string) (Address, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	addr, err := r.reverse(ctx, lat, lon)
	infrastructure.RecordGeocodeRequest(ctx, r.metrics, err == nil)
	if err != nil {
		r.logger.WarnContext(ctx, "reverse_geocode_failed",
			slog.String("lat", lat),
			slog.String("lon", lon),
			slog.String("error", err.Error()))
		return nil, err
	}
	return addr, nil
}

func (r *NominatimResolver) reverse(ctx context.Context, lat, lon string) (Address, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", lat)
	q.Set("lon", lon)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reverse geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("reverse geocoding returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode reverse geocoding response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("reverse geocoding (%s, %s): %s", lat, lon, out.Error)
	}

	r.logger.DebugContext(ctx, "reverse_geocoded",
		slog.String("lat", lat),
		slog.String("lon", lon),
		slog.Duration("duration", time.Since(start)))

	return Address(out.Address), nil
}
