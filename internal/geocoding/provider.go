package geocoding

import (
	"context"
	"errors"

	"github.com/UnknownOlympus/magma/internal/models"
)

// Provider is an interface that defines a method for resolving a place name.
// The Geocode method takes a context and a place name as input,
// and returns the best matching coordinate.
//
// Implementations return ErrNotFound when the service has no match for the place,
// and an error wrapping ErrLookupFailed on transport or HTTP failures.
type Provider interface {
	Geocode(ctx context.Context, place string) (*models.Coordinate, error)
}

// Common errors shared by all providers.
var (
	ErrNotFound      = errors.New("no match for place")
	ErrLookupFailed  = errors.New("geocoding lookup failed")
	ErrInvalidCoords = errors.New("geocoding service returned invalid coordinates")
)
