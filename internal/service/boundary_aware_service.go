package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/photocopy/geocoder/internal/boundary"
	"github.com/photocopy/geocoder/internal/geo"
	"github.com/photocopy/geocoder/internal/metrics"
	"github.com/photocopy/geocoder/internal/model"
	"github.com/photocopy/geocoder/internal/storage/geoindex"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Boundary fallback reasons
const (
	FallbackNoBoundaries = "no_boundaries"
	FallbackNoCountry    = "no_country"
	FallbackNoLocalMatch = "no_local_match"
)

// BoundaryAwareConfig holds boundary-aware geocoding configuration
type BoundaryAwareConfig struct {
	// BoundaryFile is a GeoJSON FeatureCollection of country polygons. When
	// empty, boundary.DefaultFileName is looked up next to the index files.
	BoundaryFile string
}

// BoundaryAwareGeocodingService refines tiered lookups with the country that
// contains the query point, so a place across a nearby border does not win
// over a slightly farther place in the right country.
type BoundaryAwareGeocodingService struct {
	config  *BoundaryAwareConfig
	tiered  *TieredGeocodingService
	logger  *zap.Logger
	metrics *metrics.Metrics

	resultCache ResultCache

	mu         sync.RWMutex
	boundaries *boundary.Index

	initMu  sync.Mutex
	attempt *initRun
}

// initRun is one Initialize attempt shared by every concurrent caller
type initRun struct {
	done chan struct{}
	err  error
}

// NewBoundaryAwareGeocodingService wraps a tiered service
func NewBoundaryAwareGeocodingService(
	cfg *BoundaryAwareConfig,
	tiered *TieredGeocodingService,
	m *metrics.Metrics,
	logger *zap.Logger,
) *BoundaryAwareGeocodingService {
	if cfg == nil {
		cfg = &BoundaryAwareConfig{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BoundaryAwareGeocodingService{
		config:  cfg,
		tiered:  tiered,
		logger:  logger,
		metrics: m,
	}
}

// SetResultCache installs a shared result cache. Call before serving.
func (s *BoundaryAwareGeocodingService) SetResultCache(rc ResultCache) {
	s.resultCache = rc
}

// Initialize loads the spatial index and the country boundaries concurrently.
// Boundary problems are logged and leave the service answering without
// country refinement; only index errors are returned. It runs once;
// concurrent and later callers get the outcome of that run. A canceled
// context lets a later call retry.
func (s *BoundaryAwareGeocodingService) Initialize(ctx context.Context) error {
	s.initMu.Lock()
	run := s.attempt
	if run != nil {
		s.initMu.Unlock()
		select {
		case <-run.done:
			return run.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	run = &initRun{done: make(chan struct{})}
	s.attempt = run
	s.initMu.Unlock()

	run.err = s.initialize(ctx)
	if ctx.Err() != nil && stderrors.Is(run.err, ctx.Err()) {
		s.initMu.Lock()
		s.attempt = nil
		s.initMu.Unlock()
	}
	close(run.done)
	return run.err
}

func (s *BoundaryAwareGeocodingService) initialize(ctx context.Context) error {
	var index *boundary.Index

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.tiered.Initialize(gctx)
	})
	if s.config.BoundaryFile != "" {
		g.Go(func() error {
			index = s.loadBoundaries(s.config.BoundaryFile)
			return nil
		})
	}
	err := g.Wait()

	if index == nil && s.config.BoundaryFile == "" {
		if dir := s.tiered.DataDir(); dir != "" {
			index = s.loadBoundaries(filepath.Join(dir, boundary.DefaultFileName))
		}
	}

	if index != nil {
		s.SetBoundaries(index)
	}
	return err
}

func (s *BoundaryAwareGeocodingService) loadBoundaries(path string) *boundary.Index {
	if _, err := os.Stat(path); err != nil {
		s.logger.Info("Country boundaries not available, border refinement disabled",
			zap.String("path", path))
		return nil
	}

	start := time.Now()
	countries, err := boundary.LoadGeoJSON(path)
	if err != nil {
		s.logger.Warn("Failed to load country boundaries, border refinement disabled",
			zap.String("path", path),
			zap.Error(err))
		return nil
	}
	s.logger.Info("Country boundaries loaded",
		zap.String("path", path),
		zap.Int("countries", len(countries)),
		zap.Duration("duration", time.Since(start)))
	return boundary.NewIndex(countries)
}

// SetBoundaries replaces the boundary index
func (s *BoundaryAwareGeocodingService) SetBoundaries(index *boundary.Index) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boundaries = index
}

// ResultCachePrefix extends the tiered prefix with the loaded boundary set
func (s *BoundaryAwareGeocodingService) ResultCachePrefix() string {
	s.mu.RLock()
	countries := 0
	if s.boundaries != nil {
		countries = s.boundaries.Len()
	}
	s.mu.RUnlock()
	return fmt.Sprintf("boundary:%s:%d", strings.TrimPrefix(s.tiered.ResultCachePrefix(), "tiered:"), countries)
}

// HasBoundaries reports whether country refinement is active
func (s *BoundaryAwareGeocodingService) HasBoundaries() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.boundaries != nil && s.boundaries.Len() > 0
}

// DetectCountry returns the country containing the point, or nil
func (s *BoundaryAwareGeocodingService) DetectCountry(lat, lon float64) *geo.CountryBoundary {
	s.mu.RLock()
	idx := s.boundaries
	s.mu.RUnlock()
	return idx.FindCountry(lat, lon)
}

// State returns the state of the underlying tiered service
func (s *BoundaryAwareGeocodingService) State() model.ServiceState {
	return s.tiered.State()
}

// Tiered returns the underlying tiered service
func (s *BoundaryAwareGeocodingService) Tiered() *TieredGeocodingService {
	return s.tiered
}

// ReverseGeocode resolves the point with country refinement. It returns nil
// when the service is not ready or nothing is in range, and never panics.
func (s *BoundaryAwareGeocodingService) ReverseGeocode(ctx context.Context, lat, lon float64) (result *model.LocationData) {
	start := time.Now()
	defer recoverLookup(s.logger, lat, lon, &result)

	if s.tiered.State() != model.StateReady {
		s.metrics.RecordLookup(metrics.OutcomeDisabled, time.Since(start).Seconds())
		return nil
	}

	result = cachedLookup(ctx, s.resultCache, s.ResultCachePrefix(), lat, lon, s.metrics, s.logger, func() *model.LocationData {
		return s.resolve(lat, lon)
	})
	recordOutcome(s.metrics, result, start)
	return result
}

func (s *BoundaryAwareGeocodingService) resolve(lat, lon float64) *model.LocationData {
	cfg := s.tiered.config

	if !s.HasBoundaries() {
		s.metrics.RecordBoundaryFallback(FallbackNoBoundaries)
		return s.global(lat, lon)
	}
	country := s.DetectCountry(lat, lon)
	if country == nil {
		s.metrics.RecordBoundaryFallback(FallbackNoCountry)
		return s.global(lat, lon)
	}

	city, cityOK := s.tiered.FindNearest(lat, lon, cfg.MaxDistanceKm, true, country.Code)
	var district geoindex.Match
	districtOK := false
	if !cfg.CitiesOnly {
		district, districtOK = s.tiered.FindNearest(lat, lon, cfg.MaxDistanceKm, false, country.Code)
	}

	switch {
	case !cityOK && districtOK:
		return toLocationData(district)
	case cityOK && (!districtOK || district.Entry.PlaceType.IsCityLevel()):
		return toLocationData(city)
	case cityOK:
		result := toLocationData(city)
		result.District = district.Entry.Name
		return result
	}

	s.metrics.RecordBoundaryFallback(FallbackNoLocalMatch)
	result := s.global(lat, lon)
	if result != nil && !strings.EqualFold(result.CountryCode, country.Code) {
		fields := []zap.Field{
			zap.Float64("lat", lat),
			zap.Float64("lon", lon),
			zap.String("detected_country", country.Code),
			zap.String("match_country", result.CountryCode),
			zap.String("place", result.Place),
		}
		if d := country.DistanceToBorderKm(lat, lon); d >= 0 {
			fields = append(fields, zap.Float64("distance_to_border_km", d))
		}
		s.logger.Info("Border area: nearest place lies in another country", fields...)
	}
	return result
}

func (s *BoundaryAwareGeocodingService) global(lat, lon float64) *model.LocationData {
	cfg := s.tiered.config
	m, ok := s.tiered.FindNearest(lat, lon, cfg.MaxDistanceKm, cfg.CitiesOnly, "")
	if !ok {
		return nil
	}
	return toLocationData(m)
}

// Close closes the underlying tiered service
func (s *BoundaryAwareGeocodingService) Close() error {
	return s.tiered.Close()
}
