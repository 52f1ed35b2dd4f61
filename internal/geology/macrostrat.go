// Package geology fetches geological-unit records for a coordinate from the Macrostrat API.
package geology

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/UnknownOlympus/magma/internal/models"
)

// MacrostratBaseURL is the Macrostrat v2 API root.
const MacrostratBaseURL = "https://macrostrat.org/api/v2"

const (
	unitsPath      = "/geologic_units/map"
	defaultTimeout = 15 * time.Second
	userAgent      = "MAGMA/1.0"
)

// HTTPClient defines the interface for making HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client queries the geology data service.
type Client struct {
	client  HTTPClient
	baseURL string
	log     *slog.Logger
}

// NewClient returns a Client with a default HTTP client. An empty baseURL selects MacrostratBaseURL.
func NewClient(baseURL string, timeout time.Duration, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return NewClientWithHTTP(&http.Client{Timeout: timeout}, baseURL, log)
}

// NewClientWithHTTP returns a Client using the given HTTP client.
func NewClientWithHTTP(client HTTPClient, baseURL string, log *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = MacrostratBaseURL
	}

	return &Client{client: client, baseURL: strings.TrimRight(baseURL, "/"), log: log}
}

// Fetch returns the units covering the coordinate.
// It never fails: transport, status and decoding errors are logged and yield an empty dataset,
// because downstream narrative generation must always have something to describe.
func (c *Client) Fetch(ctx context.Context, coord models.Coordinate) models.Dataset {
	dataset, err := c.FetchDataset(ctx, coord)
	if err != nil {
		c.log.WarnContext(ctx, "Geology fetch failed, using empty dataset",
			"lat", coord.Latitude, "lng", coord.Longitude, "error", err)
		return models.Dataset{}
	}

	return dataset
}

// FetchDataset is Fetch with the failure reported. Callers that must tell a failed fetch
// apart from an empty result (the cache layer) use this form.
func (c *Client) FetchDataset(ctx context.Context, coord models.Coordinate) (models.Dataset, error) {
	reqURL, err := url.Parse(c.baseURL + unitsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	query := reqURL.Query()
	query.Set("lat", strconv.FormatFloat(coord.Latitude, 'f', -1, 64))
	query.Set("lng", strconv.FormatFloat(coord.Longitude, 'f', -1, 64))
	reqURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute geology request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geology API returned status %d: %s", resp.StatusCode, string(body))
	}

	var envelope models.DatasetEnvelope
	if err = json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode geology response: %w", err)
	}

	c.log.DebugContext(ctx, "Geology units received", "count", len(envelope.Success.Data))

	if envelope.Success.Data == nil {
		return models.Dataset{}, nil
	}

	return envelope.Success.Data, nil
}
