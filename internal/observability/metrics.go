package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// ReconcileRows counts remote rows by entity kind and merge outcome
	// (inserted, updated, orphaned, expired).
	ReconcileRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedcache_reconcile_rows_total",
			Help: "Remote rows merged into the local store, by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	// SweepDeleted counts rows removed by the expiry sweeper, by table.
	SweepDeleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedcache_sweep_deleted_total",
			Help: "Rows removed by the story expiry sweeper.",
		},
		[]string{"table"},
	)

	// RemoteRequests counts remote fetches by resource and result (ok|error).
	RemoteRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedcache_remote_requests_total",
			Help: "Requests to the remote feed service.",
		},
		[]string{"resource", "result"},
	)

	// RemoteLatency observes remote fetch duration in seconds.
	RemoteLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feedcache_remote_request_duration_seconds",
			Help:    "Duration of requests to the remote feed service.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"resource"},
	)
)

func init() {
	prometheus.MustRegister(ReconcileRows, SweepDeleted, RemoteRequests, RemoteLatency)
}
