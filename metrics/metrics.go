// Package metrics holds the process's prometheus collectors, registered
// once at startup and shared by every package that instruments itself: a
// single struct of promauto-registered collectors plus a package var every
// caller reaches into directly.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/clipcut/clipcut-api/config"
)

// ClipcutMetrics is the full set of collectors for the clip pipeline
// service: HTTP surface, scheduler/queue, pipeline stage durations, and the
// blob store and event bus it depends on.
type ClipcutMetrics struct {
	Version *prometheus.CounterVec

	HTTPRequestsInFlight   prometheus.Gauge
	HTTPRequestDurationSec *prometheus.HistogramVec

	JobsSubmitted *prometheus.CounterVec
	JobsFinished  *prometheus.CounterVec
	JobsInFlight  prometheus.Gauge
	QueueDepth    *prometheus.GaugeVec
	JobDurationSec *prometheus.HistogramVec
	RetryCount    *prometheus.CounterVec

	PipelineStageDurationSec *prometheus.HistogramVec

	EventBusSubscribers prometheus.Gauge
	EventBusDropped     prometheus.Counter

	BlobBytesWritten prometheus.Counter
	BlobBytesRead    prometheus.Counter
}

func NewMetrics() *ClipcutMetrics {
	m := &ClipcutMetrics{
		Version: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "version",
			Help: "Current version running, incremented once on app startup.",
		}, []string{"app", "version"}),

		HTTPRequestsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Count of HTTP requests currently being handled.",
		}),
		HTTPRequestDurationSec: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latency of HTTP requests by route and status code.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"route", "method", "status_code"}),

		JobsSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "jobs_submitted_total",
			Help: "Number of jobs submitted, by priority class.",
		}, []string{"priority_class"}),
		JobsFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "jobs_finished_total",
			Help: "Number of jobs reaching a terminal state, by status and error kind.",
		}, []string{"status", "kind"}),
		JobsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "jobs_in_flight",
			Help: "Count of jobs currently RUNNING.",
		}),
		QueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Count of PENDING jobs waiting for a worker slot, by priority class.",
		}, []string{"priority_class"}),
		JobDurationSec: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Wall-clock time from a job's first RUNNING transition to its terminal state.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"status"}),
		RetryCount: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "job_retries_total",
			Help: "Number of retried job attempts, by error kind.",
		}, []string{"kind"}),

		PipelineStageDurationSec: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Time spent in each media pipeline stage.",
			Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"stage"}),

		EventBusSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "event_bus_subscribers",
			Help: "Count of currently-subscribed event streams across all jobs.",
		}),
		EventBusDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "event_bus_dropped_total",
			Help: "Count of progress events dropped because a subscriber's queue was full.",
		}),

		BlobBytesWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "blob_bytes_written_total",
			Help: "Total bytes written to the blob store.",
		}),
		BlobBytesRead: promauto.NewCounter(prometheus.CounterOpts{
			Name: "blob_bytes_read_total",
			Help: "Total bytes read from the blob store.",
		}),
	}

	m.Version.WithLabelValues("clipcut-api", config.Version).Inc()
	return m
}

// Metrics is the process-wide collector set.
var Metrics = NewMetrics()
