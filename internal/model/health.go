package model

// ServiceState is the lifecycle state of a geocoding service
type ServiceState int32

const (
	StateUninitialized ServiceState = iota
	StateInitializing
	StateReady
	// StateDisabled means initialization finished without usable data.
	// Lookups return no result.
	StateDisabled
)

func (s ServiceState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// HealthStatus represents the health state of the geocoder process
type HealthStatus struct {
	InstanceID string        `json:"instance_id"`
	Status     NodeStatus    `json:"status"`
	State      string        `json:"state"`
	Timestamp  int64         `json:"timestamp"`
	Metrics    HealthMetrics `json:"metrics"`
}

// NodeStatus defines the operational status of the process
type NodeStatus string

const (
	NodeStatusHealthy   NodeStatus = "healthy"
	NodeStatusDegraded  NodeStatus = "degraded"
	NodeStatusUnhealthy NodeStatus = "unhealthy"
)

// HealthMetrics contains various health metrics
type HealthMetrics struct {
	CacheUsagePercent float64 `json:"cache_usage_percent"`
	CacheHitRate      float64 `json:"cache_hit_rate"`
	CachedCells       int     `json:"cached_cells"`
	HeapAllocBytes    uint64  `json:"heap_alloc_bytes"`
	Goroutines        int     `json:"goroutines"`
}
