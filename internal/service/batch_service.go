package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/photocopy/geocoder/internal/errors"
	"github.com/photocopy/geocoder/internal/metrics"
	"github.com/photocopy/geocoder/internal/model"
	"github.com/photocopy/geocoder/internal/util/workerpool"
	"github.com/photocopy/geocoder/internal/validation"
	"go.uber.org/zap"
)

// Geocoder resolves a single coordinate
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) *model.LocationData
}

// BatchConfig holds batch geocoding configuration
type BatchConfig struct {
	MaxWorkers   int
	QueueSize    int
	MaxBatchSize int
}

// BatchItem is one coordinate of a batch request
type BatchItem struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// BatchResult is the outcome for one item. Location is nil when nothing
// matched or the item failed; Error carries the failure.
type BatchResult struct {
	TaskID   string              `json:"task_id"`
	Index    int                 `json:"index"`
	Location *model.LocationData `json:"location,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// BatchGeocoder fans a batch of coordinates out over a worker pool
type BatchGeocoder struct {
	config   *BatchConfig
	geocoder Geocoder
	pool     *workerpool.Pool
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewBatchGeocoder creates a batch geocoder and starts its workers
func NewBatchGeocoder(cfg *BatchConfig, geocoder Geocoder, m *metrics.Metrics, logger *zap.Logger) *BatchGeocoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 1000
	}
	return &BatchGeocoder{
		config:   cfg,
		geocoder: geocoder,
		pool: workerpool.New(&workerpool.Config{
			Name:       "batch-geocoder",
			MaxWorkers: cfg.MaxWorkers,
			QueueSize:  cfg.QueueSize,
			Logger:     logger,
		}),
		metrics: m,
		logger:  logger,
	}
}

// Geocode resolves every item and returns results in input order. Invalid
// coordinates produce a per-item error; the batch itself fails only when it
// is empty or too large.
func (b *BatchGeocoder) Geocode(ctx context.Context, items []BatchItem) ([]BatchResult, error) {
	if err := validation.ValidateBatch(len(items), b.config.MaxBatchSize); err != nil {
		return nil, err
	}

	start := time.Now()
	results := make([]BatchResult, len(items))
	var wg sync.WaitGroup

	for i, item := range items {
		results[i] = BatchResult{TaskID: uuid.NewString(), Index: i}
		if err := validation.ValidateCoordinate(item.Latitude, item.Longitude); err != nil {
			results[i].Error = err.Error()
			continue
		}

		i, item := i, item
		wg.Add(1)
		err := b.pool.SubmitWithContext(ctx, workerpool.Task{
			ID:      results[i].TaskID,
			Context: ctx,
			Fn: func(ctx context.Context) error {
				results[i].Location = b.geocoder.ReverseGeocode(ctx, item.Latitude, item.Longitude)
				return nil
			},
			Done: func(err error) {
				if err != nil {
					results[i].Error = err.Error()
				}
				wg.Done()
			},
		})
		if err != nil {
			wg.Done()
			results[i].Error = err.Error()
		}
	}
	wg.Wait()

	b.metrics.RecordBatch(len(items))
	b.logger.Debug("Batch geocoded",
		zap.Int("items", len(items)),
		zap.Duration("duration", time.Since(start)))

	if err := ctx.Err(); err != nil {
		return results, errors.InternalError("batch interrupted", err)
	}
	return results, nil
}

// MaxBatchSize returns the configured batch limit
func (b *BatchGeocoder) MaxBatchSize() int {
	return b.config.MaxBatchSize
}

// Stats returns worker pool statistics
func (b *BatchGeocoder) Stats() workerpool.Stats {
	return b.pool.Stats()
}

// Stop stops the worker pool
func (b *BatchGeocoder) Stop(timeout time.Duration) error {
	return b.pool.Stop(timeout)
}
