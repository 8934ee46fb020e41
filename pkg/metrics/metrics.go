package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operation status label values
const (
	StatusSuccess        = "success"
	StatusError          = "error"
	StatusNotImplemented = "not_implemented"
	StatusSkipped        = "skipped"
)

var (
	// Dispatcher metrics
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satellite_operations_total",
			Help: "Total number of processed operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "satellite_operation_duration_seconds",
			Help:    "Synchronous operation processing time in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Availability check metrics
	AvailabilityChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satellite_availability_checks_total",
			Help: "Total number of resolved availability checks by result (status or unavailable reason)",
		},
		[]string{"result"},
	)

	// Receptor metrics
	ReceptorFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satellite_receptor_frames_total",
			Help: "Total number of response frames consumed by message type and handling result",
		},
		[]string{"kind", "result"},
	)

	ReceptorPendingRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "satellite_receptor_pending_requests",
			Help: "Number of directives awaiting a terminal response",
		},
	)

	ReceptorRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satellite_receptor_requests_total",
			Help: "Total number of receptor controller HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)

	ReceptorRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "satellite_receptor_request_duration_seconds",
			Help:    "Receptor controller HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Inventory (Sources API) metrics
	InventoryRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satellite_inventory_requests_total",
			Help: "Total number of Sources API requests by method and status",
		},
		[]string{"method", "status"},
	)
)

func init() {
	prometheus.MustRegister(OperationsTotal)
	prometheus.MustRegister(OperationDuration)
	prometheus.MustRegister(AvailabilityChecksTotal)
	prometheus.MustRegister(ReceptorFramesTotal)
	prometheus.MustRegister(ReceptorPendingRequests)
	prometheus.MustRegister(ReceptorRequestsTotal)
	prometheus.MustRegister(ReceptorRequestDuration)
	prometheus.MustRegister(InventoryRequestsTotal)
}

// RecordOperation counts one processed operation and marks the time it
// finished for /live
func RecordOperation(operation, status string) {
	OperationsTotal.WithLabelValues(operation, status).Inc()
	registry.markOperation()
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewServeMux returns a mux serving /metrics, /health, /ready and /live
func NewServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", HealthHandler())
	mux.HandleFunc("/ready", ReadyHandler())
	mux.HandleFunc("/live", LivenessHandler())
	return mux
}
