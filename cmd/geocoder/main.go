package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/photocopy/geocoder/internal/config"
	"github.com/photocopy/geocoder/internal/health"
	"github.com/photocopy/geocoder/internal/metrics"
	"github.com/photocopy/geocoder/internal/server"
	"github.com/photocopy/geocoder/internal/service"
	"github.com/photocopy/geocoder/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded",
		zap.String("instance_id", cfg.Server.InstanceID),
		zap.Int("http_port", cfg.Server.HTTPPort),
		zap.Int("grpc_port", cfg.Server.GRPCPort),
		zap.String("data_path", cfg.Geocoder.DataPath),
		zap.Bool("boundary_aware", *cfg.Geocoder.BoundaryAware))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics(reg, cfg.Server.InstanceID)
	}

	tiered := service.NewTieredGeocodingService(&service.TieredGeocodingConfig{
		DataPath:               cfg.Geocoder.DataPath,
		IndexFileName:          cfg.Geocoder.IndexFile,
		DataFileName:           cfg.Geocoder.DataFile,
		SearchDefaultLocations: *cfg.Geocoder.SearchDefaultLocations,
		MaxDistanceKm:          cfg.Geocoder.MaxDistanceKm,
		PriorityThresholdKm:    cfg.Geocoder.PriorityThresholdKm,
		CitiesOnly:             cfg.Geocoder.CitiesOnly,
		CacheMemoryBytes:       cfg.Cache.MaxMemoryBytes,
	}, m, logger)

	var (
		geocoder   server.Geocoder = tiered
		boundaries server.BoundaryReporter
		initialize = tiered.Initialize
	)
	if *cfg.Geocoder.BoundaryAware {
		aware := service.NewBoundaryAwareGeocodingService(&service.BoundaryAwareConfig{
			BoundaryFile: cfg.Geocoder.BoundaryFile,
		}, tiered, m, logger)
		geocoder, boundaries, initialize = aware, aware, aware.Initialize
		defer aware.Close()
	} else {
		defer tiered.Close()
	}

	if cfg.ResultCache.Enabled {
		rc, err := newResultCache(cfg.ResultCache, logger)
		if err != nil {
			logger.Warn("Result cache unavailable, continuing without it", zap.Error(err))
		} else {
			defer rc.Close()
			tiered.SetResultCache(rc)
			if aware, ok := geocoder.(*service.BoundaryAwareGeocodingService); ok {
				aware.SetResultCache(rc)
			}
		}
	}

	batch := service.NewBatchGeocoder(&service.BatchConfig{
		MaxWorkers:   cfg.Batch.MaxWorkers,
		QueueSize:    cfg.Batch.QueueSize,
		MaxBatchSize: cfg.Batch.MaxBatchSize,
	}, geocoder, m, logger)

	grpcHealth := grpchealth.NewServer()
	checker := health.NewHealthChecker(&health.HealthCheckConfig{InstanceID: cfg.Server.InstanceID}, tiered, grpcHealth, m, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go checker.Start(ctx, 10*time.Second)

	// The index loads in the background; lookups return 503 until it is ready.
	go func() {
		start := time.Now()
		if err := initialize(ctx); err != nil {
			logger.Warn("Geocoder running without index", zap.Error(err))
		} else {
			logger.Info("Geocoder ready", zap.Duration("startup", time.Since(start)))
		}
		checker.RunChecks()
	}()

	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		gatherer = reg
	}
	httpServer := server.NewServer(&server.Config{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		MetricsPath:  cfg.Metrics.Path,
		Gatherer:     gatherer,
	}, server.Deps{
		Geocoder:   geocoder,
		Stats:      tiered,
		Boundaries: boundaries,
		Batch:      batch,
		Health:     checker,
	}, logger)

	errCh := make(chan error, 2)
	go func() { errCh <- httpServer.Start() }()

	var grpcServer *grpc.Server
	if cfg.Server.GRPCPort != 0 {
		grpcServer = grpc.NewServer()
		healthpb.RegisterHealthServer(grpcServer, grpcHealth)

		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort)
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			logger.Fatal("Failed to listen", zap.String("addr", addr), zap.Error(err))
		}
		logger.Info("Starting gRPC health server", zap.String("addr", addr))
		go func() { errCh <- grpcServer.Serve(listener) }()
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutting down gracefully...")
	case err := <-errCh:
		if err != nil {
			logger.Error("Server failed", zap.Error(err))
		}
	}

	checker.SetDraining()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if grpcServer != nil {
		grpcHealth.Shutdown()
		grpcServer.GracefulStop()
	}
	if err := batch.Stop(cfg.Server.ShutdownTimeout); err != nil {
		logger.Warn("Batch workers did not stop in time", zap.Error(err))
	}
}

// loadConfig reads CONFIG_PATH (default ./config.yaml), falling back to
// defaults when the file does not exist, then applies GEOCODER_* overrides
func loadConfig() (*config.Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	var cfg *config.Config
	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default()
	} else {
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newResultCache(cfg config.ResultCacheConfig, logger *zap.Logger) (*store.RedisResultCache, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := store.NewRedisClient(ctx, &store.RedisConfig{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Result cache connected", zap.String("addr", cfg.Addr), zap.Duration("ttl", cfg.TTL))
	return store.NewRedisResultCache(client, cfg.TTL, logger), nil
}

// initLogger initializes the zap logger
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
