package geocoding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/UnknownOlympus/magma/internal/models"
	"googlemaps.github.io/maps"
)

// GoogleProvider is a struct that holds the client for Google Maps API
// and a logger for logging purposes.
type GoogleProvider struct {
	client GoogleAPIClient // client is the Google Maps API client
	log    *slog.Logger    // log is the logger for logging operations
}

// GoogleAPIClient is the subset of *maps.Client used by the provider.
type GoogleAPIClient interface {
	Geocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
}

// NewGoogleProvider initializes a new GoogleProvider with the given client and logger.
func NewGoogleProvider(client GoogleAPIClient, log *slog.Logger) *GoogleProvider {
	return &GoogleProvider{client: client, log: log}
}

// Geocode resolves a place name using the Google Maps Geocoding API.
// The first result is taken as the best match.
func (gp *GoogleProvider) Geocode(ctx context.Context, place string) (*models.Coordinate, error) {
	gp.log.DebugContext(ctx, "Geocoding using Google Maps", "place", place)

	req := maps.GeocodingRequest{Address: place}
	geocodeResponse, err := gp.client.Geocode(ctx, &req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to geocode place: %w", ErrLookupFailed, err)
	}

	if len(geocodeResponse) == 0 {
		return nil, ErrNotFound
	}
	location := geocodeResponse[0].Geometry.Location

	coords, err := models.NewCoordinate(location.Lat, location.Lng)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCoords, err)
	}

	return &coords, nil
}
