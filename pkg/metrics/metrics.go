package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Job metrics
	JobTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "malscan_job_total",
			Help: "Total jobs by status",
		},
		[]string{"status"}, // queued, scanning, done, failed
	)

	StageLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "malscan_stage_latency_seconds",
			Help:    "Stage execution latency",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage", "status"},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "malscan_queue_depth",
			Help: "Number of pending jobs in queue",
		},
	)

	WorkerActiveJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "malscan_worker_active_jobs",
			Help: "Currently processing jobs",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "malscan_api_requests_total",
			Help: "Total number of API requests by method, path and status",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "malscan_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(JobTotal)
	prometheus.MustRegister(StageLatency)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(WorkerActiveJobs)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
