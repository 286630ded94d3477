// Package metrics declares the Prometheus collectors exported by devserver.
//
// Collectors are registered with the default registry at package init via
// promauto and served by Handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "devserver"

// Task kinds used as the "kind" label.
const (
	KindCapability   = "capability"
	KindMethods      = "methods"
	KindInterval     = "interval"
	KindPrint        = "print"
	KindPlot         = "plot"
	KindSpecial      = "special"
	KindUnrecognized = "unrecognized"
	KindIgnored      = "ignored"
)

// Transports used as the "transport" label.
const (
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"
)

// Worker metrics
var (
	// TasksTotal counts tasks taken off the queue by kind.
	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Tasks processed by the worker, by kind",
		},
		[]string{"kind"},
	)

	// TaskErrorsTotal counts tasks whose device call failed or panicked.
	TaskErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_errors_total",
			Help:      "Tasks that failed inside the device adapter, by kind",
		},
		[]string{"kind"},
	)

	// TaskDuration tracks time spent executing a task.
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Task execution time in seconds, by kind",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"kind"},
	)

	// QueueDepth is the number of tasks waiting for the worker.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Tasks waiting in the worker queue",
		},
	)

	// StatusMessagesTotal counts status messages published, by kind.
	StatusMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_messages_total",
			Help:      "Status messages published by the worker, by kind",
		},
		[]string{"kind"},
	)
)

// Updater metrics
var (
	// UpdateIntervalSeconds is the current refresh interval.
	UpdateIntervalSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "update_interval_seconds",
			Help:      "Current periodic refresh interval in seconds",
		},
	)

	// UpdaterTicksTotal counts UPDATE tasks submitted by the updater.
	UpdaterTicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updater_ticks_total",
			Help:      "UPDATE tasks submitted by the periodic updater",
		},
	)
)

// Client metrics
var (
	// ClientsConnected is the number of live client sessions.
	ClientsConnected = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clients_connected",
			Help:      "Live client sessions, by transport",
		},
		[]string{"transport"},
	)

	// ClientsTotal counts accepted client sessions.
	ClientsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clients_total",
			Help:      "Client sessions accepted, by transport",
		},
		[]string{"transport"},
	)

	// ClientsEvictedTotal counts sessions killed because their send buffer was full.
	ClientsEvictedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clients_evicted_total",
			Help:      "Client sessions killed because they could not keep up",
		},
	)

	// BroadcastsTotal counts status messages fanned out to clients.
	BroadcastsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Status messages fanned out to connected clients",
		},
	)

	// BytesSentTotal counts framed bytes written to clients.
	BytesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Bytes written to clients, by transport",
		},
		[]string{"transport"},
	)

	// LinesReceivedTotal counts task lines received from clients.
	LinesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_received_total",
			Help:      "Task lines received from clients, by transport",
		},
		[]string{"transport"},
	)
)

// MQTT relay metrics
var (
	// RelayPublishedTotal counts status messages published to MQTT.
	RelayPublishedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_published_total",
			Help:      "Status messages published to the MQTT broker",
		},
	)

	// RelayDroppedTotal counts status messages dropped because the relay queue was full.
	RelayDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_dropped_total",
			Help:      "Status messages dropped because the MQTT relay queue was full",
		},
	)

	// RelayErrorsTotal counts failed MQTT publishes.
	RelayErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_errors_total",
			Help:      "Failed MQTT publishes",
		},
	)

	// RelayCommandsTotal counts task lines received on the MQTT command topic.
	RelayCommandsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_commands_total",
			Help:      "Task lines received on the MQTT command topic",
		},
	)
)

// Config metrics
var (
	// ConfigReloadsTotal counts config file reloads by result (ok/error).
	ConfigReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Config file reloads, by result",
		},
		[]string{"result"},
	)
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
