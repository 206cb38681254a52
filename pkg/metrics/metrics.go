package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Command channel metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lightos_api_requests_total",
			Help: "Total number of cluster API requests by command and status code",
		},
		[]string{"command", "code"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lightos_api_request_duration_seconds",
			Help:    "Cluster API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	EndpointFailovers = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lightos_api_endpoint_failovers_total",
			Help: "Total number of times a cluster API endpoint was skipped for the next one",
		},
	)

	// Lifecycle metrics
	VolumesCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lightos_volumes_created_total",
			Help: "Total number of volumes created",
		},
	)

	VolumesDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lightos_volumes_deleted_total",
			Help: "Total number of volumes deleted",
		},
	)

	SnapshotsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lightos_snapshots_created_total",
			Help: "Total number of snapshots created",
		},
	)

	SnapshotsDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lightos_snapshots_deleted_total",
			Help: "Total number of snapshots deleted",
		},
	)

	CompensatingDeletes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lightos_compensating_deletes_total",
			Help: "Total number of best-effort deletes issued to clean up a failed multi-step operation",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(EndpointFailovers)
	prometheus.MustRegister(VolumesCreated)
	prometheus.MustRegister(VolumesDeleted)
	prometheus.MustRegister(SnapshotsCreated)
	prometheus.MustRegister(SnapshotsDeleted)
	prometheus.MustRegister(CompensatingDeletes)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
