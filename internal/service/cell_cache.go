package service

import (
	"container/list"
	"sync"

	"github.com/photocopy/geocoder/internal/metrics"
	"github.com/photocopy/geocoder/internal/storage/geoindex"
	"go.uber.org/zap"
)

// DefaultCacheMemoryBytes is the cell cache budget used when none is configured
const DefaultCacheMemoryBytes = 64 * 1024 * 1024

// CellCache is an LRU cache of decoded cells bounded by estimated memory.
// All operations run under one mutex; callers decode cells outside it.
type CellCache struct {
	config  *CellCacheConfig
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu          sync.Mutex
	lru         *list.List
	items       map[string]*list.Element
	currentSize int64
	hits        uint64
	misses      uint64
	evictions   uint64
}

// CellCacheConfig holds cell cache configuration
type CellCacheConfig struct {
	MaxMemoryBytes int64
}

// CacheStats represents cell cache statistics
type CacheStats struct {
	SizeBytes    int64   `json:"size_bytes"`
	MaxBytes     int64   `json:"max_bytes"`
	EntryCount   int     `json:"entry_count"`
	Hits         uint64  `json:"hits"`
	Misses       uint64  `json:"misses"`
	Evictions    uint64  `json:"evictions"`
	UsagePercent float64 `json:"usage_percent"`
}

// HitRate returns hits over lookups as a percentage
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// NewCellCache creates a new cell cache
func NewCellCache(cfg *CellCacheConfig, m *metrics.Metrics, logger *zap.Logger) *CellCache {
	if cfg.MaxMemoryBytes <= 0 {
		cfg.MaxMemoryBytes = DefaultCacheMemoryBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CellCache{
		config:  cfg,
		logger:  logger,
		metrics: m,
		lru:     list.New(),
		items:   make(map[string]*list.Element),
	}
}

// TryGet returns a cached cell and marks it most recently used
func (c *CellCache) TryGet(geohash string) (*geoindex.GeoCell, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, found := c.items[geohash]
	if !found {
		c.misses++
		c.metrics.RecordCacheMiss()
		return nil, false
	}

	c.lru.MoveToFront(elem)
	c.hits++
	c.metrics.RecordCacheHit()
	return elem.Value.(*geoindex.GeoCell), true
}

// Put adds or replaces a cell, then evicts least recently used cells until
// the memory budget holds. A cell larger than the whole budget is evicted
// straight away.
func (c *CellCache) Put(cell *geoindex.GeoCell) {
	if cell == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, found := c.items[cell.Geohash]; found {
		old := elem.Value.(*geoindex.GeoCell)
		c.currentSize += cell.EstimatedMemoryBytes - old.EstimatedMemoryBytes
		elem.Value = cell
		c.lru.MoveToFront(elem)
	} else {
		c.items[cell.Geohash] = c.lru.PushFront(cell)
		c.currentSize += cell.EstimatedMemoryBytes
	}

	for c.currentSize > c.config.MaxMemoryBytes && c.lru.Len() > 0 {
		c.evictOldest()
	}
	c.metrics.UpdateCacheSize(c.currentSize, int64(c.lru.Len()))
}

// Remove drops a cell from the cache
func (c *CellCache) Remove(geohash string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, found := c.items[geohash]; found {
		c.removeElement(elem)
		c.metrics.UpdateCacheSize(c.currentSize, int64(c.lru.Len()))
	}
}

// Clear drops every cell. Counters are kept.
func (c *CellCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Init()
	c.items = make(map[string]*list.Element)
	c.currentSize = 0
	c.metrics.UpdateCacheSize(0, 0)
}

// Len returns the number of cached cells
func (c *CellCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Keys returns cached geohashes, most recently used first
func (c *CellCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, c.lru.Len())
	for e := c.lru.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(*geoindex.GeoCell).Geohash)
	}
	return keys
}

// Stats returns cache statistics
func (c *CellCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CacheStats{
		SizeBytes:    c.currentSize,
		MaxBytes:     c.config.MaxMemoryBytes,
		EntryCount:   c.lru.Len(),
		Hits:         c.hits,
		Misses:       c.misses,
		Evictions:    c.evictions,
		UsagePercent: float64(c.currentSize) / float64(c.config.MaxMemoryBytes) * 100,
	}
}

func (c *CellCache) evictOldest() {
	elem := c.lru.Back()
	if elem == nil {
		return
	}
	cell := c.removeElement(elem)
	c.evictions++
	c.metrics.RecordCacheEviction()

	c.logger.Debug("Evicted cell",
		zap.String("geohash", cell.Geohash),
		zap.Int64("bytes", cell.EstimatedMemoryBytes),
		zap.Int64("cache_bytes", c.currentSize))
}

func (c *CellCache) removeElement(elem *list.Element) *geoindex.GeoCell {
	cell := c.lru.Remove(elem).(*geoindex.GeoCell)
	delete(c.items, cell.Geohash)
	c.currentSize -= cell.EstimatedMemoryBytes
	return cell
}
