package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "GEOCODER_"

// ServerConfig holds server configuration
type ServerConfig struct {
	InstanceID      string        `yaml:"instance_id"`
	Host            string        `yaml:"host"`
	HTTPPort        int           `yaml:"http_port"`
	GRPCPort        int           `yaml:"grpc_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// GeocoderConfig holds index location and search configuration
type GeocoderConfig struct {
	DataPath               string  `yaml:"data_path"`
	IndexFile              string  `yaml:"index_file"`
	DataFile               string  `yaml:"data_file"`
	BoundaryFile           string  `yaml:"boundary_file"`
	SearchDefaultLocations *bool   `yaml:"search_default_locations"`
	MaxDistanceKm          float64 `yaml:"max_distance_km"`
	PriorityThresholdKm    float64 `yaml:"priority_threshold_km"`
	CitiesOnly             bool    `yaml:"cities_only"`
	BoundaryAware          *bool   `yaml:"boundary_aware"`
}

// CacheConfig holds cell cache configuration
type CacheConfig struct {
	MaxMemoryBytes int64 `yaml:"max_memory_bytes"`
}

// ResultCacheConfig holds the shared Redis result cache configuration
type ResultCacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// BatchConfig holds batch lookup configuration
type BatchConfig struct {
	MaxWorkers   int `yaml:"max_workers"`
	QueueSize    int `yaml:"queue_size"`
	MaxBatchSize int `yaml:"max_batch_size"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config represents the complete geocoder configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Geocoder    GeocoderConfig    `yaml:"geocoder"`
	Cache       CacheConfig       `yaml:"cache"`
	ResultCache ResultCacheConfig `yaml:"result_cache"`
	Batch       BatchConfig       `yaml:"batch"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// LoadConfig loads configuration from a file
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Config{Metrics: MetricsConfig{Enabled: true}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := Config{Metrics: MetricsConfig{Enabled: true}}
	setDefaults(&cfg)
	return &cfg
}

func setDefaults(cfg *Config) {
	if cfg.Server.InstanceID == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.Server.InstanceID = host
		} else {
			cfg.Server.InstanceID = "geocoder"
		}
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.GRPCPort == 0 {
		cfg.Server.GRPCPort = 9090
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}

	if cfg.Geocoder.IndexFile == "" {
		cfg.Geocoder.IndexFile = "geo.geoindex"
	}
	if cfg.Geocoder.DataFile == "" {
		cfg.Geocoder.DataFile = "geo.geodata"
	}
	if cfg.Geocoder.SearchDefaultLocations == nil {
		cfg.Geocoder.SearchDefaultLocations = boolPtr(true)
	}
	if cfg.Geocoder.MaxDistanceKm == 0 {
		cfg.Geocoder.MaxDistanceKm = 30
	}
	if cfg.Geocoder.PriorityThresholdKm == 0 {
		cfg.Geocoder.PriorityThresholdKm = 15
	}
	if cfg.Geocoder.BoundaryAware == nil {
		cfg.Geocoder.BoundaryAware = boolPtr(true)
	}

	if cfg.Cache.MaxMemoryBytes == 0 {
		cfg.Cache.MaxMemoryBytes = 64 << 20
	}

	if cfg.ResultCache.Addr == "" {
		cfg.ResultCache.Addr = "localhost:6379"
	}
	if cfg.ResultCache.TTL == 0 {
		cfg.ResultCache.TTL = 24 * time.Hour
	}

	if cfg.Batch.MaxWorkers == 0 {
		cfg.Batch.MaxWorkers = 8
	}
	if cfg.Batch.QueueSize == 0 {
		cfg.Batch.QueueSize = 256
	}
	if cfg.Batch.MaxBatchSize == 0 {
		cfg.Batch.MaxBatchSize = 1000
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port must be between 1 and 65535")
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port must be between 0 and 65535")
	}
	if c.Server.GRPCPort != 0 && c.Server.GRPCPort == c.Server.HTTPPort {
		return fmt.Errorf("server.grpc_port must differ from server.http_port")
	}
	if !positiveFinite(c.Geocoder.MaxDistanceKm) {
		return fmt.Errorf("geocoder.max_distance_km must be a positive finite number")
	}
	if !positiveFinite(c.Geocoder.PriorityThresholdKm) {
		return fmt.Errorf("geocoder.priority_threshold_km must be a positive finite number")
	}
	if c.Cache.MaxMemoryBytes < 0 {
		return fmt.Errorf("cache.max_memory_bytes must not be negative")
	}
	if c.Batch.MaxWorkers < 1 || c.Batch.MaxBatchSize < 1 {
		return fmt.Errorf("batch.max_workers and batch.max_batch_size must be at least 1")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console")
	}
	return nil
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

// ApplyEnvOverrides applies GEOCODER_* environment variables on top of the
// loaded configuration and revalidates it
func (c *Config) ApplyEnvOverrides() error {
	overrides := []struct {
		name  string
		apply func(string) error
	}{
		{"INSTANCE_ID", setString(&c.Server.InstanceID)},
		{"HTTP_PORT", setInt(&c.Server.HTTPPort)},
		{"GRPC_PORT", setInt(&c.Server.GRPCPort)},
		{"DATA_PATH", setString(&c.Geocoder.DataPath)},
		{"BOUNDARY_FILE", setString(&c.Geocoder.BoundaryFile)},
		{"MAX_DISTANCE_KM", setFloat(&c.Geocoder.MaxDistanceKm)},
		{"CITIES_ONLY", setBool(&c.Geocoder.CitiesOnly)},
		{"CACHE_MAX_MEMORY_BYTES", setInt64(&c.Cache.MaxMemoryBytes)},
		{"REDIS_ENABLED", setBool(&c.ResultCache.Enabled)},
		{"REDIS_ADDR", setString(&c.ResultCache.Addr)},
		{"REDIS_PASSWORD", setString(&c.ResultCache.Password)},
		{"LOG_LEVEL", setString(&c.Logging.Level)},
		{"LOG_FORMAT", setString(&c.Logging.Format)},
	}

	for _, o := range overrides {
		v, ok := os.LookupEnv(EnvPrefix + o.name)
		if !ok {
			continue
		}
		if err := o.apply(strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, o.name, err)
		}
	}
	return c.Validate()
}

func setString(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}

func setInt(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func setInt64(dst *int64) func(string) error {
	return func(v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func setFloat(dst *float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst = f
		return nil
	}
}

func setBool(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func boolPtr(b bool) *bool {
	return &b
}
