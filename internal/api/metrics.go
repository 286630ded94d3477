package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-devserver/internal/worker"
)

// Health status values.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
	HealthStopping = "stopping"
)

// HealthReport is the /health response.
type HealthReport struct {
	Status        string         `json:"status"`
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Worker        WorkerMetrics  `json:"worker"`
	Clients       ClientMetrics  `json:"clients"`
	MQTT          *MQTTMetrics   `json:"mqtt,omitempty"`
	Runtime       RuntimeMetrics `json:"runtime"`
}

// WorkerMetrics contains worker statistics.
type WorkerMetrics struct {
	Adapter           string  `json:"adapter"`
	State             string  `json:"state"`
	QueueDepth        int     `json:"queue_depth"`
	IntervalSeconds   float64 `json:"interval_seconds"`
	TasksProcessed    uint64  `json:"tasks_processed"`
	TasksFailed       uint64  `json:"tasks_failed"`
	MessagesPublished uint64  `json:"messages_published"`
}

// ClientMetrics contains client listener statistics.
type ClientMetrics struct {
	Addr       string `json:"addr"`
	Connected  int    `json:"connected"`
	Broadcasts uint64 `json:"broadcasts"`
}

// MQTTMetrics contains MQTT relay statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// handleHealth reports worker, client and runtime state. It answers 503
// once the worker has stopped taking tasks.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	ws := s.worker.Stats()
	cs := s.clients.Stats()

	report := HealthReport{
		Status:        HealthOK,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Worker: WorkerMetrics{
			Adapter:           ws.Adapter,
			State:             ws.State,
			QueueDepth:        ws.QueueDepth,
			IntervalSeconds:   ws.Interval.Seconds(),
			TasksProcessed:    ws.TasksProcessed,
			TasksFailed:       ws.TasksFailed,
			MessagesPublished: ws.MessagesPublished,
		},
		Clients: ClientMetrics{
			Addr:       cs.Addr,
			Connected:  cs.Clients,
			Broadcasts: cs.Broadcasts,
		},
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
	}

	if s.mqtt != nil {
		report.MQTT = &MQTTMetrics{Connected: s.mqtt.IsConnected()}
		if !report.MQTT.Connected {
			report.Status = HealthDegraded
		}
	}

	status := http.StatusOK
	if ws.State != worker.StateRunning.String() {
		report.Status = HealthStopping
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, report)
}
