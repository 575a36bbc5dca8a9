package telemetry

import (
	"sync"
	"time"
)

// IngestMetrics is a snapshot of pipeline counters since process start.
type IngestMetrics struct {
	ReportsReceived     int64     `json:"reports_received"`
	ReportsUpdated      int64     `json:"reports_updated"`
	ReportsAcknowledged int64     `json:"reports_acknowledged"`
	ReportsRejected     int64     `json:"reports_rejected"`
	LostUpdates         int64     `json:"lost_updates"`
	VolumeAnomalies     int64     `json:"volume_anomalies"`
	LastProcessedAt     time.Time `json:"last_processed_at"`
}

// MetricsTracker guards the counters for concurrent request handlers.
type MetricsTracker struct {
	mu      sync.Mutex
	metrics IngestMetrics
}

func NewMetricsTracker() *MetricsTracker {
	return &MetricsTracker{}
}

func (t *MetricsTracker) Update(fn func(m *IngestMetrics)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.metrics)
}

func (t *MetricsTracker) Snapshot() IngestMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.metrics
}
