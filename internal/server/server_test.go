package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/photocopy/geocoder/internal/health"
	"github.com/photocopy/geocoder/internal/metrics"
	"github.com/photocopy/geocoder/internal/model"
	"github.com/photocopy/geocoder/internal/service"
	"github.com/photocopy/geocoder/internal/storage/geoindex"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type testEnv struct {
	handler http.Handler
	tiered  *service.TieredGeocodingService
}

func newTestEnv(t *testing.T, withIndex bool) testEnv {
	t.Helper()

	dir := t.TempDir()
	if withIndex {
		w := geoindex.NewWriter(geoindex.WriterConfig{Precision: 3})
		require.NoError(t, w.Add(geoindex.Place{Name: "Brussels", State: "Brussels-Capital", CountryCode: "BE", CountryName: "Belgium",
			Latitude: 50.8503, Longitude: 4.3517, PlaceType: model.PlaceTypeCapital}))
		require.NoError(t, w.Add(geoindex.Place{Name: "Paris", CountryCode: "FR", CountryName: "France",
			Latitude: 48.8566, Longitude: 2.3522, PlaceType: model.PlaceTypeCapital}))
		_, err := w.WriteFiles(filepath.Join(dir, geoindex.IndexFileName), filepath.Join(dir, geoindex.DataFileName))
		require.NoError(t, err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg, "test")
	logger := zap.NewNop()

	tiered := service.NewTieredGeocodingService(&service.TieredGeocodingConfig{DataPath: dir}, m, logger)
	geocoder := service.NewBoundaryAwareGeocodingService(nil, tiered, m, logger)
	_ = geocoder.Initialize(context.Background())

	batch := service.NewBatchGeocoder(&service.BatchConfig{MaxWorkers: 2, MaxBatchSize: 3}, geocoder, m, logger)
	checker := health.NewHealthChecker(&health.HealthCheckConfig{InstanceID: "test"}, tiered, nil, m, logger)
	checker.RunChecks()

	t.Cleanup(func() {
		_ = batch.Stop(time.Second)
		_ = geocoder.Close()
	})

	srv := NewServer(&Config{Addr: ":0", Gatherer: reg}, Deps{
		Geocoder:   geocoder,
		Stats:      tiered,
		Boundaries: geocoder,
		Batch:      batch,
		Health:     checker,
	}, logger)
	return testEnv{handler: srv.Handler(), tiered: tiered}
}

func (e testEnv) do(t *testing.T, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestReverse(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodGet, "/v1/reverse?lat=50.85&lon=4.35", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	var loc model.LocationData
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&loc))
	assert.Equal(t, "Brussels", loc.Place)
	assert.Equal(t, "Belgium", loc.Country)
	assert.Equal(t, model.PlaceTypeCapital, loc.PlaceType)
	assert.Nil(t, loc.Population)
}

func TestReverse_Errors(t *testing.T) {
	env := newTestEnv(t, true)

	tests := []struct {
		name   string
		target string
		status int
		code   string
	}{
		{"missing lon", "/v1/reverse?lat=50", http.StatusBadRequest, "invalid_argument"},
		{"not a number", "/v1/reverse?lat=abc&lon=1", http.StatusBadRequest, "invalid_argument"},
		{"out of range", "/v1/reverse?lat=95&lon=1", http.StatusBadRequest, "invalid_coordinate"},
		{"open ocean", "/v1/reverse?lat=30&lon=-40", http.StatusNotFound, "no_match"},
		{"unknown route", "/v1/forward", http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tt.target, nil)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).ErrorCode)
		})
	}

	rec := env.do(t, http.MethodDelete, "/v1/reverse", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestReverse_DisabledGeocoder(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodGet, "/v1/reverse?lat=50.85&lon=4.35", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "not_initialized", resp.ErrorCode)
	assert.Equal(t, "disabled", resp.Details["state"])

	// Disabled is a served mode, so the process stays ready.
	rec = env.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBatch(t *testing.T) {
	env := newTestEnv(t, true)

	body := []byte(`{"coordinates":[{"lat":48.86,"lon":2.35},{"lat":100,"lon":0},{"lat":50.85,"lon":4.35}]}`)
	rec := env.do(t, http.MethodPost, "/v1/reverse/batch", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp BatchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Results, 3)
	require.NotNil(t, resp.Results[0].Location)
	assert.Equal(t, "Paris", resp.Results[0].Location.Place)
	assert.Nil(t, resp.Results[1].Location)
	assert.NotEmpty(t, resp.Results[1].Error)
	require.NotNil(t, resp.Results[2].Location)
	assert.Equal(t, "Brussels", resp.Results[2].Location.Place)
}

func TestBatch_Errors(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodPost, "/v1/reverse/batch", []byte(`{"coordinates":[`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/reverse/batch", []byte(`{"points":[]}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/reverse/batch", []byte(`{"coordinates":[]}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_argument", decodeError(t, rec).ErrorCode)

	four := `{"coordinates":[{"lat":1,"lon":1},{"lat":1,"lon":1},{"lat":1,"lon":1},{"lat":1,"lon":1}]}`
	rec = env.do(t, http.MethodPost, "/v1/reverse/batch", []byte(four))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "batch_too_large", decodeError(t, rec).ErrorCode)
}

func TestStatsAndMetrics(t *testing.T) {
	env := newTestEnv(t, true)
	env.do(t, http.MethodGet, "/v1/reverse?lat=50.85&lon=4.35", nil)

	rec := env.do(t, http.MethodGet, "/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats StatsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, "ready", stats.Geocoder.State)
	assert.Equal(t, uint32(2), stats.Geocoder.Locations)
	assert.Equal(t, 1, stats.Geocoder.Cache.EntryCount)
	assert.False(t, stats.Boundaries)

	rec = env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "photocopy_geocoder_lookups_total"))

	rec = env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnmatchedRoutesGetMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	srv := NewServer(&Config{Addr: ":0"}, Deps{}, zap.New(core))

	tests := []struct {
		name   string
		method string
		target string
		status int
	}{
		{"not found", http.MethodGet, "/v2/nothing", http.StatusNotFound},
		{"method not allowed", http.MethodPut, "/v1/stats", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, nil))

			assert.Equal(t, tt.status, rec.Code)
			id := rec.Header().Get(RequestIDHeader)
			require.NotEmpty(t, id)
			assert.Equal(t, id, decodeError(t, rec).RequestID)

			entries := logs.FilterMessage("HTTP request").FilterField(zap.String("path", tt.target)).All()
			require.Len(t, entries, 1)
			assert.Equal(t, int64(tt.status), entries[0].ContextMap()["status"])
		})
	}
}
