package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/photocopy/geocoder/internal/boundary"
	"github.com/photocopy/geocoder/internal/errors"
	"github.com/photocopy/geocoder/internal/geo"
	"github.com/photocopy/geocoder/internal/metrics"
	"github.com/photocopy/geocoder/internal/model"
	"github.com/photocopy/geocoder/internal/storage/geoindex"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultMaxDistanceKm       = 30.0
	DefaultPriorityThresholdKm = 15.0
)

// TieredGeocodingConfig holds tiered geocoding configuration
type TieredGeocodingConfig struct {
	// DataPath is a directory, or a file inside the directory, holding the
	// index pair. It is searched before the default locations.
	DataPath               string
	IndexFileName          string
	DataFileName           string
	SearchDefaultLocations bool
	MaxDistanceKm          float64
	PriorityThresholdKm    float64
	CitiesOnly             bool
	CacheMemoryBytes       int64
}

func (c *TieredGeocodingConfig) setDefaults() {
	if c.IndexFileName == "" {
		c.IndexFileName = geoindex.IndexFileName
	}
	if c.DataFileName == "" {
		c.DataFileName = geoindex.DataFileName
	}
	if !(c.MaxDistanceKm > 0) || math.IsInf(c.MaxDistanceKm, 1) {
		c.MaxDistanceKm = DefaultMaxDistanceKm
	}
	if !(c.PriorityThresholdKm > 0) || math.IsInf(c.PriorityThresholdKm, 1) {
		c.PriorityThresholdKm = DefaultPriorityThresholdKm
	}
}

// TieredGeocodingService answers reverse geocoding queries from the resident
// spatial index, the cell cache and the memory-mapped data file.
type TieredGeocodingService struct {
	config      *TieredGeocodingConfig
	logger      *zap.Logger
	metrics     *metrics.Metrics
	cache       *CellCache
	resultCache ResultCache
	loads       singleflight.Group

	mu       sync.RWMutex
	state    model.ServiceState
	initDone chan struct{}
	initErr  error
	dataDir  string
	index    *geoindex.SpatialIndex
	loader   *geoindex.CellLoader

	// fingerprint identifies the loaded build and result-shaping settings
	fingerprint string
}

// ServiceStats describes a running geocoder
type ServiceStats struct {
	State     string     `json:"state"`
	DataDir   string     `json:"data_dir,omitempty"`
	IndexFile string     `json:"index_file,omitempty"`
	Cells     int        `json:"cells"`
	Locations uint32     `json:"locations"`
	Countries int        `json:"countries"`
	BuiltAt   *time.Time `json:"built_at,omitempty"`
	Cache     CacheStats `json:"cache"`
}

// NewTieredGeocodingService creates an uninitialized service
func NewTieredGeocodingService(cfg *TieredGeocodingConfig, m *metrics.Metrics, logger *zap.Logger) *TieredGeocodingService {
	cfg.setDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TieredGeocodingService{
		config:  cfg,
		logger:  logger,
		metrics: m,
		cache:   NewCellCache(&CellCacheConfig{MaxMemoryBytes: cfg.CacheMemoryBytes}, m, logger),
		state:   model.StateUninitialized,
	}
}

// SetResultCache installs a shared result cache. Call before serving.
func (s *TieredGeocodingService) SetResultCache(rc ResultCache) {
	s.resultCache = rc
}

// Initialize locates and loads the index pair. It runs once; concurrent and
// later callers get the outcome of that run. Missing or corrupt files leave
// the service Disabled and the returned error says why. A canceled context
// returns the service to Uninitialized so a later call can retry.
func (s *TieredGeocodingService) Initialize(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case model.StateReady, model.StateDisabled:
		err := s.initErr
		s.mu.Unlock()
		return err
	case model.StateInitializing:
		done := s.initDone
		s.mu.Unlock()
		select {
		case <-done:
			s.mu.RLock()
			defer s.mu.RUnlock()
			return s.initErr
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.state = model.StateInitializing
	s.initDone = make(chan struct{})
	done := s.initDone
	s.mu.Unlock()
	s.metrics.SetServiceState(int32(model.StateInitializing))

	start := time.Now()
	dir, index, loader, err := s.load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	defer close(done)

	s.initErr = err
	switch {
	case err == nil:
		s.dataDir, s.index, s.loader = dir, index, loader
		s.state = model.StateReady
		hdr := index.Header()
		s.fingerprint = indexFingerprint(hdr, s.config)
		s.logger.Info("Geocoding index loaded",
			zap.String("dir", dir),
			zap.Int("cells", index.CellCount()),
			zap.Uint32("locations", hdr.LocationCount),
			zap.Int("countries", len(index.Countries())),
			zap.Int("precision", index.Precision()),
			zap.Time("built_at", time.Unix(hdr.BuildTimestamp, 0)),
			zap.Duration("duration", time.Since(start)))
	case ctx.Err() != nil && stderrors.Is(err, ctx.Err()):
		s.state = model.StateUninitialized
		s.logger.Info("Geocoding index load canceled", zap.Error(err))
	case errors.GetCode(err) == errors.ErrCodeDataNotFound:
		s.state = model.StateDisabled
		s.logger.Warn("Geocoding index not found, reverse geocoding disabled",
			zap.Any("searched", err.(*errors.GeoError).Details["searched"]))
	default:
		s.state = model.StateDisabled
		s.logger.Error("Geocoding index unusable, reverse geocoding disabled", zap.Error(err))
	}
	s.metrics.SetServiceState(int32(s.state))
	return err
}

func (s *TieredGeocodingService) load(ctx context.Context) (string, *geoindex.SpatialIndex, *geoindex.CellLoader, error) {
	dirs := CandidateDirectories(s.config.DataPath, s.config.SearchDefaultLocations)
	dir, ok := LocateDataFiles(dirs, s.config.IndexFileName, s.config.DataFileName)
	if !ok {
		return "", nil, nil, errors.DataNotFound(
			fmt.Sprintf("no directory holds both %s and %s", s.config.IndexFileName, s.config.DataFileName), dirs)
	}

	index, err := geoindex.LoadSpatialIndex(ctx, filepath.Join(dir, s.config.IndexFileName))
	if err != nil {
		return "", nil, nil, err
	}
	loader, err := geoindex.OpenCellLoader(filepath.Join(dir, s.config.DataFileName),
		index.Header().DataFileSize, index.Countries())
	if err != nil {
		return "", nil, nil, err
	}
	return dir, index, loader, nil
}

// State returns the current lifecycle state
func (s *TieredGeocodingService) State() model.ServiceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// DataDir returns the directory the index was loaded from
func (s *TieredGeocodingService) DataDir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dataDir
}

// FindNearest searches the query cell and its neighbours and returns the
// best candidate by the priority rule. countryFilter limits matches to one
// ISO code when non-empty.
func (s *TieredGeocodingService) FindNearest(lat, lon, maxDistanceKm float64, citiesOnly bool, countryFilter string) (geoindex.Match, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state != model.StateReady || !validCoordinate(lat, lon) {
		return geoindex.Match{}, false
	}

	cells, err := geo.GetCellAndNeighbors(geo.Encode(lat, lon, s.index.Precision()))
	if err != nil {
		return geoindex.Match{}, false
	}

	var best geoindex.Match
	found := false
	for _, hash := range cells {
		cell := s.cell(hash)
		if cell == nil {
			continue
		}
		m, ok := cell.FindNearest(lat, lon, maxDistanceKm, citiesOnly, countryFilter)
		if !ok {
			continue
		}
		if !found || IsBetterCandidate(m, best, s.config.PriorityThresholdKm) {
			best = m
			found = true
		}
	}
	return best, found
}

// cell returns a decoded cell, or nil when the cell is empty or unreadable.
// Callers hold s.mu for reading.
func (s *TieredGeocodingService) cell(hash string) *geoindex.GeoCell {
	entry, ok := s.index.TryGetCell(hash)
	if !ok {
		return nil
	}
	if cell, ok := s.cache.TryGet(hash); ok {
		return cell
	}

	v, err, _ := s.loads.Do(hash, func() (interface{}, error) {
		start := time.Now()
		cell, err := s.loader.LoadCell(entry, hash)
		s.metrics.RecordCellLoad(time.Since(start).Seconds(), err)
		if err != nil {
			return nil, err
		}
		s.cache.Put(cell)
		return cell, nil
	})
	if err != nil {
		s.logger.Warn("Skipping unreadable cell",
			zap.String("geohash", hash),
			zap.Error(err))
		return nil
	}
	return v.(*geoindex.GeoCell)
}

// IsBetterCandidate reports whether candidate should replace current. Within
// the priority threshold the more significant place type wins, then the
// closer one. A candidate inside the threshold beats one outside it. Beyond
// the threshold only distance counts.
func IsBetterCandidate(candidate, current geoindex.Match, priorityThresholdKm float64) bool {
	candidateNear := candidate.DistanceKm <= priorityThresholdKm
	currentNear := current.DistanceKm <= priorityThresholdKm

	switch {
	case candidateNear && currentNear:
		if candidate.Entry.PlaceType != current.Entry.PlaceType {
			return candidate.Entry.PlaceType > current.Entry.PlaceType
		}
		return candidate.DistanceKm < current.DistanceKm
	case candidateNear != currentNear:
		return candidateNear
	default:
		return candidate.DistanceKm < current.DistanceKm
	}
}

// ReverseGeocode returns the best place near the point, or nil when the
// service is not ready or nothing lies within range. It never panics.
func (s *TieredGeocodingService) ReverseGeocode(ctx context.Context, lat, lon float64) (result *model.LocationData) {
	start := time.Now()
	defer recoverLookup(s.logger, lat, lon, &result)

	if s.State() != model.StateReady {
		s.metrics.RecordLookup(metrics.OutcomeDisabled, time.Since(start).Seconds())
		return nil
	}

	result = cachedLookup(ctx, s.resultCache, s.ResultCachePrefix(), lat, lon, s.metrics, s.logger, func() *model.LocationData {
		m, ok := s.FindNearest(lat, lon, s.config.MaxDistanceKm, s.config.CitiesOnly, "")
		if !ok {
			return nil
		}
		return toLocationData(m)
	})
	recordOutcome(s.metrics, result, start)
	return result
}

// ResultCachePrefix namespaces shared result cache keys by index build and
// search settings, so instances that differ in either never share entries.
func (s *TieredGeocodingService) ResultCachePrefix() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return "tiered:" + s.fingerprint
}

func indexFingerprint(hdr geoindex.Header, cfg *TieredGeocodingConfig) string {
	h := xxhash.New()
	fmt.Fprintf(h, "%d:%d:%d:%d:%d:%g:%g:%t",
		hdr.BuildTimestamp, hdr.DataFileSize, hdr.CellCount, hdr.LocationCount, hdr.Precision,
		cfg.MaxDistanceKm, cfg.PriorityThresholdKm, cfg.CitiesOnly)
	return strconv.FormatUint(h.Sum64(), 16)
}

// Stats returns index and cache statistics
func (s *TieredGeocodingService) Stats() ServiceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := ServiceStats{
		State:   s.state.String(),
		DataDir: s.dataDir,
		Cache:   s.cache.Stats(),
	}
	if s.index != nil {
		hdr := s.index.Header()
		built := time.Unix(hdr.BuildTimestamp, 0).UTC()
		stats.IndexFile = s.index.Path()
		stats.Cells = s.index.CellCount()
		stats.Locations = hdr.LocationCount
		stats.Countries = len(s.index.Countries())
		stats.BuiltAt = &built
	}
	return stats
}

// CacheStats returns cell cache statistics
func (s *TieredGeocodingService) CacheStats() CacheStats {
	return s.cache.Stats()
}

// Close releases the data file mapping and clears the cache. The service
// is Disabled afterwards.
func (s *TieredGeocodingService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.loader != nil {
		err = s.loader.Close()
	}
	s.loader, s.index = nil, nil
	s.cache.Clear()
	if s.state == model.StateReady || s.state == model.StateUninitialized {
		s.state = model.StateDisabled
		s.initErr = errors.NotInitialized("closed")
	}
	s.metrics.SetServiceState(int32(s.state))
	return err
}

func toLocationData(m geoindex.Match) *model.LocationData {
	e := m.Entry
	return &model.LocationData{
		Place:       e.Name,
		State:       e.State,
		Country:     boundary.CountryName(e.CountryCode, e.Country),
		CountryCode: e.CountryCode,
		PlaceType:   e.PlaceType,
		Latitude:    e.Latitude,
		Longitude:   e.Longitude,
		DistanceKm:  m.DistanceKm,
	}
}

func validCoordinate(lat, lon float64) bool {
	return !math.IsNaN(lat) && !math.IsNaN(lon) && lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

func recordOutcome(m *metrics.Metrics, result *model.LocationData, start time.Time) {
	outcome := metrics.OutcomeMatch
	if result == nil {
		outcome = metrics.OutcomeNoMatch
	}
	m.RecordLookup(outcome, time.Since(start).Seconds())
}

func recoverLookup(logger *zap.Logger, lat, lon float64, result **model.LocationData) {
	if r := recover(); r != nil {
		logger.Error("Reverse geocoding panic recovered",
			zap.Float64("lat", lat),
			zap.Float64("lon", lon),
			zap.Any("panic", r))
		*result = nil
	}
}
