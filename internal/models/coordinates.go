package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidCoordinate is returned when a latitude or longitude is outside its valid range.
var ErrInvalidCoordinate = errors.New("coordinate out of range")

const (
	maxLatitude  = 90
	maxLongitude = 180
)

// Coordinate represents a geographical point defined by its latitude and longitude.
type Coordinate struct {
	Latitude  float64 `json:"lat"` // Latitude of the point, [-90, 90].
	Longitude float64 `json:"lon"` // Longitude of the point, [-180, 180].
}

// NewCoordinate validates the bounds and returns a Coordinate.
func NewCoordinate(lat, lon float64) (Coordinate, error) {
	c := Coordinate{Latitude: lat, Longitude: lon}
	if err := c.Validate(); err != nil {
		return Coordinate{}, err
	}

	return c, nil
}

// Validate reports whether both components are finite and inside their ranges.
func (c Coordinate) Validate() error {
	// NaN fails every comparison, so it is rejected by the negated range checks.
	if !(c.Latitude >= -maxLatitude && c.Latitude <= maxLatitude) {
		return fmt.Errorf("%w: latitude %v", ErrInvalidCoordinate, c.Latitude)
	}
	if !(c.Longitude >= -maxLongitude && c.Longitude <= maxLongitude) {
		return fmt.Errorf("%w: longitude %v", ErrInvalidCoordinate, c.Longitude)
	}

	return nil
}

// Location returns the human readable description handed to the narrative generator,
// e.g. "Latitude: 40.0, Longitude: -75.25".
func (c Coordinate) Location() string {
	return "Latitude: " + formatFloat(c.Latitude) + ", Longitude: " + formatFloat(c.Longitude)
}

// Key returns the cache key used for geology lookups of this point.
func (c Coordinate) Key() string {
	return formatFloat(c.Latitude) + "," + formatFloat(c.Longitude)
}

// formatFloat prints the shortest representation, keeping a ".0" on integral values.
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEIN") {
		s += ".0"
	}

	return s
}
