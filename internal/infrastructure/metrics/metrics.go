// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Request counters
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailagent",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Request duration histogram
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mailagent",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"method", "endpoint"},
	)

	// Inbound webhook deliveries by verification result
	InboundEmailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailagent",
			Subsystem: "http",
			Name:      "inbound_emails_total",
			Help:      "Inbound email webhook deliveries",
		},
		[]string{"status"},
	)

	// Response runs by mode and outcome
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailagent",
			Subsystem: "agent",
			Name:      "runs_total",
			Help:      "Response runs by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	// Run duration histogram
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mailagent",
			Subsystem: "agent",
			Name:      "run_duration_seconds",
			Help:      "Response run duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"mode"},
	)

	// Cycles spent per run
	RunCycles = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mailagent",
			Subsystem: "agent",
			Name:      "run_cycles",
			Help:      "Response cycles spent per run",
			Buckets:   []float64{1, 2, 3, 5, 8, 10, 15, 20},
		},
		[]string{"mode"},
	)

	// Tool call counters
	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailagent",
			Subsystem: "agent",
			Name:      "tool_calls_total",
			Help:      "Total tool invocations",
		},
		[]string{"tool_name", "status"},
	)

	// Tool duration histogram
	ToolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mailagent",
			Subsystem: "agent",
			Name:      "tool_duration_seconds",
			Help:      "Tool execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"tool_name"},
	)

	// Queue depth gauge
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mailagent",
			Subsystem: "worker",
			Name:      "queue_depth",
			Help:      "Pending inbound email jobs",
		},
	)

	// Background jobs counter
	BackgroundJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailagent",
			Subsystem: "worker",
			Name:      "background_jobs_total",
			Help:      "Total background jobs processed",
		},
		[]string{"status"},
	)

	// DB query duration
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mailagent",
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"query_type"},
	)
)

// RecordRequest records an HTTP request.
func RecordRequest(method, endpoint, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(method, endpoint).Observe(durationSec)
}

// RecordInboundEmail records an inbound webhook delivery.
func RecordInboundEmail(status string) {
	InboundEmailsTotal.WithLabelValues(status).Inc()
}

// RecordRun records a finished response run.
func RecordRun(mode, outcome string, cycles int, duration time.Duration) {
	RunsTotal.WithLabelValues(mode, outcome).Inc()
	RunDuration.WithLabelValues(mode).Observe(duration.Seconds())
	RunCycles.WithLabelValues(mode).Observe(float64(cycles))
}

// RecordToolCall records a tool invocation.
func RecordToolCall(toolName, status string, durationSec float64) {
	ToolCallsTotal.WithLabelValues(toolName, status).Inc()
	ToolDuration.WithLabelValues(toolName).Observe(durationSec)
}

// SetQueueDepth sets the current queue depth.
func SetQueueDepth(depth int) {
	QueueDepth.Set(float64(depth))
}

// RecordBackgroundJob records a background job execution.
func RecordBackgroundJob(status string) {
	BackgroundJobsTotal.WithLabelValues(status).Inc()
}

// RecordDBQuery records a database query.
func RecordDBQuery(queryType string, durationSec float64) {
	DBQueryDuration.WithLabelValues(queryType).Observe(durationSec)
}
