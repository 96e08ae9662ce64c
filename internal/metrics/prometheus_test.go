package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordCacheHit()
	m.RecordCacheHit()
	m.RecordCacheMiss()
	m.RecordCacheEviction()
	m.UpdateCacheSize(2048, 3)
	m.RecordCellLoad(0.001, nil)
	m.RecordCellLoad(0.002, errors.New("corrupt"))
	m.RecordLookup(OutcomeMatch, 0.01)
	m.RecordLookup(OutcomeNoMatch, 0.01)
	m.RecordBoundaryFallback("no_country")
	m.SetServiceState(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheHitsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheEvictionsTotal))
	assert.Equal(t, 2048.0, testutil.ToFloat64(m.CacheSizeBytes))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CacheEntriesTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CellLoadsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CellLoadFailuresTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LookupsTotal.WithLabelValues(OutcomeMatch)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BoundaryFallbacksTotal.WithLabelValues("no_country")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ServiceState))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordCacheHit()
		m.RecordCacheMiss()
		m.RecordCacheEviction()
		m.UpdateCacheSize(1, 1)
		m.RecordCellLoad(1, nil)
		m.RecordLookup(OutcomeDisabled, 1)
		m.RecordBoundaryFallback("x")
		m.RecordResultCache("hit")
		m.RecordBatch(3)
		m.SetServiceState(3)
		m.UpdateSystemStats(1, 1)
	})
}
