package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/photocopy/geocoder/internal/metrics"
	"github.com/photocopy/geocoder/internal/model"
	"github.com/photocopy/geocoder/internal/service"
	"go.uber.org/zap"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported for the geocoder
const ServiceName = "photocopy.geocoder"

// Check statuses
const (
	CheckHealthy  = "healthy"
	CheckWarning  = "warning"
	CheckCritical = "critical"
)

// Source exposes the geocoder state the checker reports on
type Source interface {
	State() model.ServiceState
	CacheStats() service.CacheStats
}

// HealthChecker periodically evaluates the geocoder and publishes liveness
// and readiness over HTTP and the gRPC health protocol
type HealthChecker struct {
	instanceID string
	source     Source
	grpc       *grpchealth.Server
	metrics    *metrics.Metrics
	logger     *zap.Logger

	mu          sync.RWMutex
	lastCheck   time.Time
	status      model.NodeStatus
	state       model.ServiceState
	snapshot    model.HealthMetrics
	checks      map[string]CheckResult
	readinessOK bool
	draining    bool
}

// CheckResult represents the result of a health check
type CheckResult struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthCheckConfig holds configuration for health checks
type HealthCheckConfig struct {
	InstanceID string
	Interval   time.Duration
}

// NewHealthChecker creates a health checker. grpcServer may be nil.
func NewHealthChecker(cfg *HealthCheckConfig, source Source, grpcServer *grpchealth.Server, m *metrics.Metrics, logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthChecker{
		instanceID: cfg.InstanceID,
		source:     source,
		grpc:       grpcServer,
		metrics:    m,
		logger:     logger,
		status:     model.NodeStatusDegraded,
		checks:     make(map[string]CheckResult),
	}
}

// Start runs checks every interval until ctx is done
func (h *HealthChecker) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.RunChecks()
	for {
		select {
		case <-ticker.C:
			h.RunChecks()
		case <-ctx.Done():
			h.logger.Info("Health checker stopped")
			return
		}
	}
}

// RunChecks evaluates all checks once and publishes the outcome
func (h *HealthChecker) RunChecks() {
	state := h.source.State()
	cache := h.source.CacheStats()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	goroutines := runtime.NumGoroutine()
	h.metrics.UpdateSystemStats(int64(mem.HeapAlloc), goroutines)

	results := []CheckResult{
		checkGeocoderState(state),
		checkCellCache(cache),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastCheck = time.Now()
	h.state = state
	h.snapshot = model.HealthMetrics{
		CacheUsagePercent: cache.UsagePercent,
		CacheHitRate:      cache.HitRate(),
		CachedCells:       cache.EntryCount,
		HeapAllocBytes:    mem.HeapAlloc,
		Goroutines:        goroutines,
	}

	healthy := true
	for _, r := range results {
		h.checks[r.Name] = r
		if r.Status != CheckHealthy {
			healthy = false
		}
	}

	switch {
	case healthy:
		h.status = model.NodeStatusHealthy
	case state == model.StateReady || state == model.StateDisabled:
		h.status = model.NodeStatusDegraded
	default:
		h.status = model.NodeStatusUnhealthy
	}

	// A disabled geocoder still answers every request, just without places.
	h.readinessOK = !h.draining && (state == model.StateReady || state == model.StateDisabled)
	h.publishLocked()

	h.logger.Debug("Health check completed",
		zap.String("status", string(h.status)),
		zap.String("state", state.String()),
		zap.Bool("readiness", h.readinessOK))
}

func checkGeocoderState(state model.ServiceState) CheckResult {
	r := CheckResult{Name: "geocoder", Timestamp: time.Now()}
	switch state {
	case model.StateReady:
		r.Status, r.Message = CheckHealthy, "index loaded"
	case model.StateDisabled:
		r.Status, r.Message = CheckWarning, "index unavailable, lookups return no place"
	default:
		r.Status, r.Message = CheckCritical, fmt.Sprintf("geocoder is %s", state)
	}
	return r
}

func checkCellCache(stats service.CacheStats) CheckResult {
	r := CheckResult{Name: "cell_cache", Status: CheckHealthy, Timestamp: time.Now()}
	r.Message = fmt.Sprintf("%d cells, %.1f%% of budget, %.1f%% hit rate",
		stats.EntryCount, stats.UsagePercent, stats.HitRate())
	if stats.UsagePercent > 100 {
		r.Status = CheckWarning
	}
	return r
}

func (h *HealthChecker) publishLocked() {
	if h.grpc == nil {
		return
	}
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if h.readinessOK {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.grpc.SetServingStatus("", status)
	h.grpc.SetServingStatus(ServiceName, status)
}

// IsLive reports whether the process is responsive
func (h *HealthChecker) IsLive() bool {
	return true
}

// IsReady reports whether the process should receive traffic
func (h *HealthChecker) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.readinessOK
}

// SetDraining marks the process as shutting down so readiness turns false
func (h *HealthChecker) SetDraining() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.draining = true
	h.readinessOK = false
	h.publishLocked()
}

// GetStatus returns the last evaluated health status
func (h *HealthChecker) GetStatus() model.HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return model.HealthStatus{
		InstanceID: h.instanceID,
		Status:     h.status,
		State:      h.state.String(),
		Timestamp:  h.lastCheck.Unix(),
		Metrics:    h.snapshot,
	}
}

// GetChecks returns a copy of the last check results
func (h *HealthChecker) GetChecks() map[string]CheckResult {
	h.mu.RLock()
	defer h.mu.RUnlock()
	checks := make(map[string]CheckResult, len(h.checks))
	for k, v := range h.checks {
		checks[k] = v
	}
	return checks
}

// LivenessHandler handles HTTP liveness probe requests
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	status := h.GetStatus()
	writeProbe(w, http.StatusOK, map[string]interface{}{
		"healthy": true,
		"status":  status.Status,
		"state":   status.State,
	})
}

// ReadinessHandler handles HTTP readiness probe requests
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ready := h.IsReady()
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	writeProbe(w, code, map[string]interface{}{
		"ready":  ready,
		"status": h.GetStatus(),
		"checks": h.GetChecks(),
	})
}

func writeProbe(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
