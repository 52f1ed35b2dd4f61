package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/UnknownOlympus/magma/internal/models"
	"golang.org/x/time/rate"
)

const (
	// NominatimBaseURL is the public Nominatim search endpoint.
	NominatimBaseURL = "https://nominatim.openstreetmap.org/search"
	// DefaultUserAgent identifies the application to remote services.
	DefaultUserAgent = "MAGMA/1.0"

	defaultTimeout = 10 * time.Second
)

// NominatimProvider implements the Provider interface using OpenStreetMap's Nominatim API.
// This is a free geocoding service with usage limits (1 request/second for fair use),
// so every lookup waits on a limiter before the request is sent.
type NominatimProvider struct {
	client  HTTPClient    // HTTP client for making requests
	baseURL string        // Base URL for the Nominatim API
	log     *slog.Logger  // Logger for logging operations
	limiter *rate.Limiter // Keeps at least one second between calls
	// userAgent is required by Nominatim usage policy
	userAgent string
}

// HTTPClient defines the interface for making HTTP requests.
// This allows for easy mocking in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// nominatimResponse represents the JSON response from Nominatim API.
type nominatimResponse struct {
	Lat string `json:"lat"` // Latitude as string
	Lon string `json:"lon"` // Longitude as string
}

// NewNominatimLimiter returns the limiter enforcing the Nominatim usage policy.
func NewNominatimLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(time.Second), 1)
}

// NewNominatimProvider creates a new Nominatim geocoding provider.
// Uses the public Nominatim API endpoint by default.
func NewNominatimProvider(log *slog.Logger) *NominatimProvider {
	return NewNominatimProviderWithClient(newHTTPClient(defaultTimeout), NewNominatimLimiter(), log)
}

// NewNominatimProviderWithClient creates a Nominatim provider with a custom HTTP client and limiter.
// Useful for testing with mocked HTTP clients.
func NewNominatimProviderWithClient(client HTTPClient, limiter *rate.Limiter, log *slog.Logger) *NominatimProvider {
	return &NominatimProvider{
		client:    client,
		baseURL:   NominatimBaseURL,
		log:       log,
		limiter:   limiter,
		userAgent: DefaultUserAgent,
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// Geocode resolves a place name to coordinates with a single best-match lookup.
// An empty result set yields ErrNotFound; transport and HTTP errors wrap ErrLookupFailed.
func (np *NominatimProvider) Geocode(ctx context.Context, place string) (*models.Coordinate, error) {
	np.log.DebugContext(ctx, "Geocoding using Nominatim", "place", place)

	if err := np.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %w", ErrLookupFailed, err)
	}

	reqURL, err := url.Parse(np.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	query := reqURL.Query()
	query.Set("q", place)
	query.Set("format", "json")
	query.Set("limit", "1") // Only need the top result
	reqURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", np.userAgent)

	resp, err := np.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to execute geocoding request: %w", ErrLookupFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %w", ErrLookupFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		np.log.ErrorContext(ctx, "Nominatim API error", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("%w: nominatim API returned status %d", ErrLookupFailed, resp.StatusCode)
	}

	var results []nominatimResponse
	if err = json.Unmarshal(body, &results); err != nil {
		np.log.ErrorContext(ctx, "Failed to parse Nominatim response", "error", err, "body", string(body))
		return nil, fmt.Errorf("%w: failed to decode nominatim response: %w", ErrLookupFailed, err)
	}

	if len(results) == 0 {
		return nil, ErrNotFound
	}

	np.log.DebugContext(ctx, "Nominatim found result", "lat", results[0].Lat, "lon", results[0].Lon)

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid latitude: %s", ErrInvalidCoords, results[0].Lat)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid longitude: %s", ErrInvalidCoords, results[0].Lon)
	}

	coords, err := models.NewCoordinate(lat, lon)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCoords, err)
	}

	return &coords, nil
}
