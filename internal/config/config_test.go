package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  instance_id: geo-1
  http_port: 8181
  read_timeout: 5s
geocoder:
  data_path: /srv/geo
  boundary_file: /srv/geo/countries.geojson
  max_distance_km: 50
  cities_only: true
  boundary_aware: false
cache:
  max_memory_bytes: 1048576
result_cache:
  enabled: true
  addr: redis:6379
  ttl: 1h
logging:
  level: debug
  format: console
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "geo-1", cfg.Server.InstanceID)
	assert.Equal(t, 8181, cfg.Server.HTTPPort)
	assert.Equal(t, 9090, cfg.Server.GRPCPort)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "/srv/geo", cfg.Geocoder.DataPath)
	assert.Equal(t, "geo.geoindex", cfg.Geocoder.IndexFile)
	assert.Equal(t, 50.0, cfg.Geocoder.MaxDistanceKm)
	assert.Equal(t, 15.0, cfg.Geocoder.PriorityThresholdKm)
	assert.True(t, cfg.Geocoder.CitiesOnly)
	assert.False(t, *cfg.Geocoder.BoundaryAware)
	assert.True(t, *cfg.Geocoder.SearchDefaultLocations)
	assert.Equal(t, int64(1048576), cfg.Cache.MaxMemoryBytes)
	assert.True(t, cfg.ResultCache.Enabled)
	assert.Equal(t, "redis:6379", cfg.ResultCache.Addr)
	assert.Equal(t, time.Hour, cfg.ResultCache.TTL)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "server: [unclosed"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "server:\n  http_port: 70000\n"))
	assert.ErrorContains(t, err, "http_port")

	_, err = LoadConfig(writeConfig(t, "geocoder:\n  max_distance_km: -1\n"))
	assert.ErrorContains(t, err, "max_distance_km")

	_, err = LoadConfig(writeConfig(t, "logging:\n  level: loud\n"))
	assert.ErrorContains(t, err, "logging.level")
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.NotEmpty(t, cfg.Server.InstanceID)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, int64(64<<20), cfg.Cache.MaxMemoryBytes)
	assert.Equal(t, 30.0, cfg.Geocoder.MaxDistanceKm)
	assert.True(t, *cfg.Geocoder.BoundaryAware)
	assert.False(t, cfg.ResultCache.Enabled)
	assert.Equal(t, 1000, cfg.Batch.MaxBatchSize)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("GEOCODER_DATA_PATH", "/data/geo")
	t.Setenv("GEOCODER_HTTP_PORT", "9000")
	t.Setenv("GEOCODER_CITIES_ONLY", "true")
	t.Setenv("GEOCODER_CACHE_MAX_MEMORY_BYTES", "2048")
	t.Setenv("GEOCODER_LOG_LEVEL", "warn")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnvOverrides())
	assert.Equal(t, "/data/geo", cfg.Geocoder.DataPath)
	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.True(t, cfg.Geocoder.CitiesOnly)
	assert.Equal(t, int64(2048), cfg.Cache.MaxMemoryBytes)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestApplyEnvOverrides_Invalid(t *testing.T) {
	t.Setenv("GEOCODER_HTTP_PORT", "eighty")
	err := Default().ApplyEnvOverrides()
	assert.ErrorContains(t, err, "GEOCODER_HTTP_PORT")

	t.Setenv("GEOCODER_HTTP_PORT", "9090")
	err = Default().ApplyEnvOverrides()
	assert.ErrorContains(t, err, "grpc_port")
}

func TestApplyEnvOverrides_NonFiniteDistance(t *testing.T) {
	for _, v := range []string{"NaN", "+Inf", "-Inf", "0"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("GEOCODER_MAX_DISTANCE_KM", v)
			err := Default().ApplyEnvOverrides()
			assert.ErrorContains(t, err, "max_distance_km")
		})
	}
}
