package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "photocopy"

// Lookup outcomes
const (
	OutcomeMatch    = "match"
	OutcomeNoMatch  = "no_match"
	OutcomeDisabled = "disabled"
)

// Metrics holds all Prometheus metrics for the geocoder.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Cell cache metrics
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	CacheEvictionsTotal prometheus.Counter
	CacheSizeBytes      prometheus.Gauge
	CacheEntriesTotal   prometheus.Gauge

	// Cell loading metrics
	CellLoadsTotal        prometheus.Counter
	CellLoadFailuresTotal prometheus.Counter
	CellLoadDuration      prometheus.Histogram

	// Lookup metrics
	LookupsTotal           *prometheus.CounterVec
	LookupDuration         prometheus.Histogram
	BoundaryFallbacksTotal *prometheus.CounterVec
	ResultCacheTotal       *prometheus.CounterVec
	BatchSize              prometheus.Histogram
	ServiceState           prometheus.Gauge

	// System metrics
	MemoryUsageBytes prometheus.Gauge
	GoroutinesTotal  prometheus.Gauge
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer, instance string) *Metrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"instance_id": instance}

	return &Metrics{
		CacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "cell_cache",
			Name:        "hits_total",
			Help:        "Total number of cell cache hits",
			ConstLabels: labels,
		}),
		CacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "cell_cache",
			Name:        "misses_total",
			Help:        "Total number of cell cache misses",
			ConstLabels: labels,
		}),
		CacheEvictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "cell_cache",
			Name:        "evictions_total",
			Help:        "Total number of cells evicted to stay within the memory budget",
			ConstLabels: labels,
		}),
		CacheSizeBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "cell_cache",
			Name:        "size_bytes",
			Help:        "Estimated memory held by cached cells",
			ConstLabels: labels,
		}),
		CacheEntriesTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "cell_cache",
			Name:        "entries",
			Help:        "Number of cached cells",
			ConstLabels: labels,
		}),

		CellLoadsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "geodata",
			Name:        "cell_loads_total",
			Help:        "Total number of cells decoded from the data file",
			ConstLabels: labels,
		}),
		CellLoadFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "geodata",
			Name:        "cell_load_failures_total",
			Help:        "Total number of cells skipped because they failed to decode",
			ConstLabels: labels,
		}),
		CellLoadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "geodata",
			Name:        "cell_load_duration_seconds",
			Help:        "Histogram of cell read and decompression durations",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.00005, 2, 12), // 50us to ~100ms
		}),

		LookupsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "geocoder",
			Name:        "lookups_total",
			Help:        "Total number of reverse geocoding lookups by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),
		LookupDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "geocoder",
			Name:        "lookup_duration_seconds",
			Help:        "Histogram of reverse geocoding lookup durations",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		BoundaryFallbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "geocoder",
			Name:        "boundary_fallbacks_total",
			Help:        "Lookups that fell back to the unfiltered search, by reason",
			ConstLabels: labels,
		}, []string{"reason"}),
		ResultCacheTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "result_cache",
			Name:        "requests_total",
			Help:        "Shared result cache requests by result",
			ConstLabels: labels,
		}, []string{"result"}),
		BatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "geocoder",
			Name:        "batch_size",
			Help:        "Histogram of batch lookup sizes",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1, 4, 7), // 1 to 4096
		}),
		ServiceState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "geocoder",
			Name:        "state",
			Help:        "Geocoder state: 0 uninitialized, 1 initializing, 2 ready, 3 disabled",
			ConstLabels: labels,
		}),

		MemoryUsageBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "system",
			Name:        "memory_usage_bytes",
			Help:        "Current heap usage in bytes",
			ConstLabels: labels,
		}),
		GoroutinesTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "system",
			Name:        "goroutines_total",
			Help:        "Current number of goroutines",
			ConstLabels: labels,
		}),
	}
}

// RecordCacheHit records a cell cache hit
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

// RecordCacheMiss records a cell cache miss
func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.CacheMissesTotal.Inc()
}

// RecordCacheEviction records a cell cache eviction
func (m *Metrics) RecordCacheEviction() {
	if m == nil {
		return
	}
	m.CacheEvictionsTotal.Inc()
}

// UpdateCacheSize updates cache size metrics
func (m *Metrics) UpdateCacheSize(bytes int64, entries int64) {
	if m == nil {
		return
	}
	m.CacheSizeBytes.Set(float64(bytes))
	m.CacheEntriesTotal.Set(float64(entries))
}

// RecordCellLoad records a cell decode attempt
func (m *Metrics) RecordCellLoad(duration float64, err error) {
	if m == nil {
		return
	}
	m.CellLoadsTotal.Inc()
	m.CellLoadDuration.Observe(duration)
	if err != nil {
		m.CellLoadFailuresTotal.Inc()
	}
}

// RecordLookup records a reverse geocoding lookup
func (m *Metrics) RecordLookup(outcome string, duration float64) {
	if m == nil {
		return
	}
	m.LookupsTotal.WithLabelValues(outcome).Inc()
	m.LookupDuration.Observe(duration)
}

// RecordBoundaryFallback records a fallback to the unfiltered search
func (m *Metrics) RecordBoundaryFallback(reason string) {
	if m == nil {
		return
	}
	m.BoundaryFallbacksTotal.WithLabelValues(reason).Inc()
}

// RecordResultCache records a shared result cache request
func (m *Metrics) RecordResultCache(result string) {
	if m == nil {
		return
	}
	m.ResultCacheTotal.WithLabelValues(result).Inc()
}

// RecordBatch records the size of a batch lookup
func (m *Metrics) RecordBatch(size int) {
	if m == nil {
		return
	}
	m.BatchSize.Observe(float64(size))
}

// SetServiceState publishes the geocoder state
func (m *Metrics) SetServiceState(state int32) {
	if m == nil {
		return
	}
	m.ServiceState.Set(float64(state))
}

// UpdateSystemStats updates system-level statistics
func (m *Metrics) UpdateSystemStats(memoryUsage int64, goroutines int) {
	if m == nil {
		return
	}
	m.MemoryUsageBytes.Set(float64(memoryUsage))
	m.GoroutinesTotal.Set(float64(goroutines))
}
