package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/UnknownOlympus/magma/internal/geocoding"
	"github.com/UnknownOlympus/magma/internal/metrics"
	"github.com/UnknownOlympus/magma/internal/models"
	"github.com/UnknownOlympus/magma/internal/narrative"
	"github.com/UnknownOlympus/magma/internal/server"
	"github.com/UnknownOlympus/magma/test/mocks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newHandler(t *testing.T) (http.Handler, *mocks.GeologyService, *mocks.Describer) {
	t.Helper()

	geology := mocks.NewGeologyService(t)
	describer := mocks.NewDescriber(t)
	reg := prometheus.NewRegistry()
	metrics.NewMetrics(reg)

	return server.New(slog.Default(), geology, describer, reg).Handler(), geology, describer
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGeology(t *testing.T) {
	t.Run("returns the envelope", func(t *testing.T) {
		h, geology, _ := newHandler(t)
		name := "Shale Unit A"

		geology.On("Lookup", mock.Anything, models.Coordinate{Latitude: 40, Longitude: -75.5}).
			Return(models.Dataset{{Name: &name, Lithology: "shale"}}).Once()

		rec := do(h, http.MethodGet, "/api/geology/40.0/-75.5", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"success":{"data":[{"name":"Shale Unit A","lith":"shale"}]}}`, rec.Body.String())
	})

	t.Run("empty dataset is an empty array", func(t *testing.T) {
		h, geology, _ := newHandler(t)

		geology.On("Lookup", mock.Anything, mock.Anything).Return(nil).Once()

		rec := do(h, http.MethodGet, "/api/geology/0/0", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"success":{"data":[]}}`, rec.Body.String())
	})

	t.Run("bad coordinates", func(t *testing.T) {
		h, geology, _ := newHandler(t)

		for _, target := range []string{"/api/geology/north/10", "/api/geology/10/east", "/api/geology/91/0"} {
			rec := do(h, http.MethodGet, target, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		}
		geology.AssertNotCalled(t, "Lookup", mock.Anything, mock.Anything)
	})
}

func TestGeocode(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		h, geology, _ := newHandler(t)

		geology.On("Resolve", mock.Anything, "Grand Canyon").
			Return(&models.Coordinate{Latitude: 36.1, Longitude: -112.1}, nil).Once()

		rec := do(h, http.MethodGet, "/api/geocode?q=Grand+Canyon", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"lat":36.1,"lon":-112.1}`, rec.Body.String())
	})

	t.Run("not found and failures are both 404", func(t *testing.T) {
		h, geology, _ := newHandler(t)

		geology.On("Resolve", mock.Anything, "Atlantis").Return(nil, geocoding.ErrNotFound).Once()
		geology.On("Resolve", mock.Anything, "Nowhere").Return(nil, geocoding.ErrLookupFailed).Once()

		assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/geocode?q=Atlantis", "").Code)
		assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/geocode?q=Nowhere", "").Code)
	})

	t.Run("missing query", func(t *testing.T) {
		h, _, _ := newHandler(t)

		assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/api/geocode?q=%20", "").Code)
	})
}

func TestDescription(t *testing.T) {
	t.Run("generated narrative", func(t *testing.T) {
		h, _, describer := newHandler(t)

		describer.On("Describe", mock.Anything, "Latitude: 40.0, Longitude: -75.0", mock.MatchedBy(func(d models.Dataset) bool {
			return len(d) == 1 && d[0].Lithology == "shale"
		})).Return(narrative.Result{Text: "A marine shale sequence."}).Once()

		rec := do(h, http.MethodPost, "/api/description",
			`{"lat":40.0,"lng":-75.0,"geological_data":{"success":{"data":[{"name":"A","lith":"shale"}]}}}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"success":true,"description":"A marine shale sequence."}`, rec.Body.String())
	})

	t.Run("fallback narrative", func(t *testing.T) {
		h, _, describer := newHandler(t)

		describer.On("Describe", mock.Anything, mock.Anything, mock.Anything).
			Return(narrative.Result{Text: narrative.FallbackText, Fallback: true, Err: errors.New("boom")}).Once()

		rec := do(h, http.MethodPost, "/api/description", `{"lat":1,"lng":2,"geological_data":{}}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "Basic geological information is available above.", body["description"])
		assert.Equal(t, "Unable to generate description", body["error"])
	})

	t.Run("malformed requests still answer 200", func(t *testing.T) {
		h, _, describer := newHandler(t)

		for _, payload := range []string{
			`not json`,
			`{"lat":1,"lng":2}`,
			`{"lng":2,"geological_data":{}}`,
			`{"lat":100,"lng":2,"geological_data":{}}`,
		} {
			rec := do(h, http.MethodPost, "/api/description", payload)

			assert.Equal(t, http.StatusOK, rec.Code, payload)
			body := decodeBody(t, rec)
			assert.Equal(t, false, body["success"], payload)
			assert.Equal(t, narrative.FallbackText, body["description"], payload)
		}
		describer.AssertNotCalled(t, "Describe", mock.Anything, mock.Anything, mock.Anything)
	})
}

// slowDescriber records how many Describe calls overlap.
type slowDescriber struct {
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (d *slowDescriber) Describe(_ context.Context, _ string, _ models.Dataset) narrative.Result {
	n := d.active.Add(1)
	for {
		seen := d.maxSeen.Load()
		if n <= seen || d.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	d.active.Add(-1)

	return narrative.Result{Text: "ok"}
}

// panicOnceDescriber panics on its first call and describes normally afterwards.
type panicOnceDescriber struct {
	calls atomic.Int32
}

func (d *panicOnceDescriber) Describe(_ context.Context, _ string, _ models.Dataset) narrative.Result {
	if d.calls.Add(1) == 1 {
		panic("generation crashed")
	}

	return narrative.Result{Text: "recovered"}
}

func TestDescription_PanicReleasesModel(t *testing.T) {
	describer := &panicOnceDescriber{}
	h := server.New(slog.Default(), mocks.NewGeologyService(t), describer, prometheus.NewRegistry()).Handler()
	body := `{"lat":1,"lng":2,"geological_data":{}}`

	assert.Panics(t, func() {
		do(h, http.MethodPost, "/api/description", body)
	})

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- do(h, http.MethodPost, "/api/description", body)
	}()

	select {
	case rec := <-done:
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"success":true,"description":"recovered"}`, rec.Body.String())
	case <-time.After(2 * time.Second):
		t.Fatal("second request blocked on the model permit")
	}
}

func TestDescription_Serialized(t *testing.T) {
	describer := &slowDescriber{}
	h := server.New(slog.Default(), mocks.NewGeologyService(t), describer, prometheus.NewRegistry()).Handler()

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := do(h, http.MethodPost, "/api/description", `{"lat":1,"lng":2,"geological_data":{}}`)
			assert.Equal(t, http.StatusOK, rec.Code)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), describer.maxSeen.Load())
}

func TestDescription_Disabled(t *testing.T) {
	h := server.New(slog.Default(), mocks.NewGeologyService(t), nil, prometheus.NewRegistry()).Handler()

	rec := do(h, http.MethodPost, "/api/description", `{}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	h, _, _ := newHandler(t)

	rec := do(h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "magma_active_generations")
}

func TestRequestID(t *testing.T) {
	h, _, _ := newHandler(t)
	id := "7b6f5a0e-2f0a-4d1f-9a53-4c1b8e1f2a3b"

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", id)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, id, rec.Header().Get("X-Request-ID"))
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealth_Dependencies(t *testing.T) {
	healthy := server.New(slog.Default(), mocks.NewGeologyService(t), nil, prometheus.NewRegistry()).
		WithHealthCheck(pingFunc(func(context.Context) error { return nil })).
		Handler()
	down := server.New(slog.Default(), mocks.NewGeologyService(t), nil, prometheus.NewRegistry()).
		WithHealthCheck(pingFunc(func(context.Context) error { return assert.AnError })).
		Handler()

	assert.Equal(t, http.StatusOK, do(healthy, http.MethodGet, "/healthz", "").Code)

	rec := do(down, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Cache ping failed", rec.Body.String())
}
