package service

import (
	"context"
	"fmt"

	"github.com/photocopy/geocoder/internal/metrics"
	"github.com/photocopy/geocoder/internal/model"
	"go.uber.org/zap"
)

// ResultCache stores reverse geocoding results shared across instances.
// Get returns (nil, nil) on a miss.
type ResultCache interface {
	Get(ctx context.Context, key string) (*model.LocationData, error)
	Set(ctx context.Context, key string, value *model.LocationData) error
}

// ResultCacheKey returns the cache key for a query. Coordinates are rounded
// to four decimals, about 11 m at the equator.
func ResultCacheKey(prefix string, lat, lon float64) string {
	return fmt.Sprintf("revgeo:%s:%.4f:%.4f", prefix, lat, lon)
}

// cachedLookup consults rc before running lookup and stores matches after.
// Cache failures are logged and otherwise ignored.
func cachedLookup(
	ctx context.Context,
	rc ResultCache,
	prefix string,
	lat, lon float64,
	m *metrics.Metrics,
	logger *zap.Logger,
	lookup func() *model.LocationData,
) *model.LocationData {
	if rc == nil {
		return lookup()
	}

	key := ResultCacheKey(prefix, lat, lon)
	cached, err := rc.Get(ctx, key)
	switch {
	case err != nil:
		m.RecordResultCache("error")
		logger.Debug("Result cache read failed", zap.String("key", key), zap.Error(err))
	case cached != nil:
		m.RecordResultCache("hit")
		return cached
	default:
		m.RecordResultCache("miss")
	}

	result := lookup()
	if result != nil {
		if err := rc.Set(ctx, key, result); err != nil {
			logger.Debug("Result cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return result
}
