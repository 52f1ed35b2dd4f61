package geocoding

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"googlemaps.github.io/maps"
)

// ProviderType represents the type of geocoding provider.
type ProviderType string

const (
	// ProviderTypeGoogle represents Google Maps geocoding provider.
	ProviderTypeGoogle ProviderType = "google"
	// ProviderTypeNominatim represents OpenStreetMap Nominatim geocoding provider.
	ProviderTypeNominatim ProviderType = "nominatim"
)

// ProviderConfig holds configuration for creating a geocoding provider.
type ProviderConfig struct {
	Type      ProviderType  // Type of provider to create
	APIKey    string        // API key (used by Google provider)
	BaseURL   string        // Override of the Nominatim search endpoint
	UserAgent string        // User-Agent sent to Nominatim
	Timeout   time.Duration // HTTP timeout for Nominatim requests
	Logger    *slog.Logger  // Logger for the provider
}

// NewProvider creates a geocoding provider based on the provided configuration.
//
// Supported provider types:
// - "nominatim": OpenStreetMap Nominatim API (free, no API key required)
// - "google": Google Maps Geocoding API (requires API key)
//
// Returns an error if the provider type is unsupported or if provider creation fails.
func NewProvider(config ProviderConfig) (Provider, error) {
	switch config.Type {
	case ProviderTypeGoogle:
		return newGoogleProvider(config)
	case ProviderTypeNominatim:
		return newNominatimProvider(config), nil
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", config.Type)
	}
}

// newGoogleProvider creates a Google Maps geocoding provider.
func newGoogleProvider(config ProviderConfig) (Provider, error) {
	if config.APIKey == "" {
		return nil, errors.New("API key is required for Google provider")
	}

	// One request per second, the same spacing the Nominatim provider keeps.
	client, err := maps.NewClient(maps.WithAPIKey(config.APIKey), maps.WithRateLimit(1))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google Maps client: %w", err)
	}

	return NewGoogleProvider(client, config.Logger), nil
}

// newNominatimProvider creates a Nominatim geocoding provider.
func newNominatimProvider(config ProviderConfig) Provider {
	provider := NewNominatimProvider(config.Logger)
	if config.BaseURL != "" {
		provider.baseURL = config.BaseURL
	}
	if config.UserAgent != "" {
		provider.userAgent = config.UserAgent
	}
	if config.Timeout > 0 {
		provider.client = newHTTPClient(config.Timeout)
	}

	return provider
}
