// Package server exposes the pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/UnknownOlympus/magma/internal/geocoding"
	"github.com/UnknownOlympus/magma/internal/models"
	"github.com/UnknownOlympus/magma/internal/narrative"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/semaphore"
)

const requestIDHeader = "X-Request-ID"

// describeFailure is reported next to the fallback text when no narrative was produced.
const describeFailure = "Unable to generate description"

// GeologyService resolves places and looks up geological units.
type GeologyService interface {
	Resolve(ctx context.Context, place string) (*models.Coordinate, error)
	Lookup(ctx context.Context, coord models.Coordinate) models.Dataset
}

// Describer produces narratives. Implementations are not required to be safe for
// concurrent use; the server runs at most one Describe at a time.
type Describer interface {
	Describe(ctx context.Context, location string, dataset models.Dataset) narrative.Result
}

// Pinger is a dependency checked by /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the HTTP handlers.
type Server struct {
	log       *slog.Logger
	geology   GeologyService
	describer Describer
	gatherer  prometheus.Gatherer
	generate  *semaphore.Weighted
	pingers   []Pinger
}

// New returns a Server. A nil describer disables POST /api/description.
func New(log *slog.Logger, geology GeologyService, describer Describer, gatherer prometheus.Gatherer) *Server {
	return &Server{
		log:       log,
		geology:   geology,
		describer: describer,
		gatherer:  gatherer,
		generate:  semaphore.NewWeighted(1),
	}
}

// WithHealthCheck makes /healthz fail while p cannot be reached.
func (s *Server) WithHealthCheck(p Pinger) *Server {
	s.pingers = append(s.pingers, p)
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/geology/{lat}/{lng}", s.handleGeology)
	mux.HandleFunc("GET /api/geocode", s.handleGeocode)
	if s.describer != nil {
		mux.HandleFunc("POST /api/description", s.handleDescription)
	}
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return s.withRequestID(mux)
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.DebugContext(r.Context(), "Request served",
			"request_id", id, "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, body := http.StatusOK, "OK"
	for _, p := range s.pingers {
		if err := p.Ping(r.Context()); err != nil {
			s.log.ErrorContext(r.Context(), "Health check failed", "error", err)
			status, body = http.StatusServiceUnavailable, "Cache ping failed"
			break
		}
	}

	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		s.log.ErrorContext(r.Context(), "failed to write reply", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleGeology(w http.ResponseWriter, r *http.Request) {
	coord, err := parseCoordinate(r.PathValue("lat"), r.PathValue("lng"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, s.geology.Lookup(r.Context(), coord).Envelope())
}

func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	place := strings.TrimSpace(r.URL.Query().Get("q"))
	if place == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query parameter q is required"})
		return
	}

	coord, err := s.geology.Resolve(r.Context(), place)
	if err != nil || coord == nil {
		if err != nil && !errors.Is(err, geocoding.ErrNotFound) {
			s.log.WarnContext(r.Context(), "Place lookup failed", "place", place, "error", err)
		}
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "location not found"})
		return
	}

	writeJSON(w, http.StatusOK, coord)
}

type descriptionRequest struct {
	Lat            *float64                `json:"lat"`
	Lng            *float64                `json:"lng"`
	GeologicalData *models.DatasetEnvelope `json:"geological_data"`
}

type descriptionResponse struct {
	Success     bool   `json:"success"`
	Description string `json:"description"`
	Error       string `json:"error,omitempty"`
}

// handleDescription always answers 200: failures carry the fallback text and success=false.
func (s *Server) handleDescription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	failed := descriptionResponse{Description: narrative.FallbackText, Error: describeFailure}

	var req descriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.log.WarnContext(ctx, "Invalid description request", "error", err)
		writeJSON(w, http.StatusOK, failed)
		return
	}
	if req.Lat == nil || req.Lng == nil || req.GeologicalData == nil {
		s.log.WarnContext(ctx, "Description request is missing fields")
		writeJSON(w, http.StatusOK, failed)
		return
	}

	coord, err := models.NewCoordinate(*req.Lat, *req.Lng)
	if err != nil {
		s.log.WarnContext(ctx, "Invalid description request", "error", err)
		writeJSON(w, http.StatusOK, failed)
		return
	}

	if err = s.generate.Acquire(ctx, 1); err != nil {
		s.log.WarnContext(ctx, "Request abandoned while waiting for the model", "error", err)
		writeJSON(w, http.StatusOK, failed)
		return
	}
	result := s.describe(ctx, coord.Location(), req.GeologicalData.Success.Data)

	if result.Fallback {
		failed.Description = result.Text
		writeJSON(w, http.StatusOK, failed)
		return
	}

	writeJSON(w, http.StatusOK, descriptionResponse{Success: true, Description: result.Text})
}

// describe runs one generation under the held model permit and always returns it.
func (s *Server) describe(ctx context.Context, location string, dataset models.Dataset) narrative.Result {
	defer s.generate.Release(1)

	return s.describer.Describe(ctx, location, dataset)
}

func parseCoordinate(lat, lng string) (models.Coordinate, error) {
	latitude, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return models.Coordinate{}, errors.New("latitude must be a number")
	}
	longitude, err := strconv.ParseFloat(lng, 64)
	if err != nil {
		return models.Coordinate{}, errors.New("longitude must be a number")
	}

	return models.NewCoordinate(latitude, longitude)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
