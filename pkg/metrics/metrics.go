package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Optimistic update engine metrics
	UpdateConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nlcache_update_conflicts_total",
			Help: "Total number of version conflicts hit by the optimistic update engine",
		},
	)

	UpdateRetriesExhaustedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nlcache_update_retries_exhausted_total",
			Help: "Total number of record mutations abandoned after exhausting conflict retries",
		},
	)

	UpdateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nlcache_update_duration_seconds",
			Help:    "Duration of read-mutate-write cycles including conflict retries",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Node cleanup worker metrics
	CleanupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlcache_cleanups_total",
			Help: "Total number of local volume cleanups by result",
		},
		[]string{"result"},
	)

	// Controller reconciler metrics
	ReconcileCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nlcache_reconcile_cycles_total",
			Help: "Total number of reconciliation cycles",
		},
	)

	ReconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nlcache_reconcile_duration_seconds",
			Help:    "Duration of reconciliation cycles in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RecordsPrunedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlcache_records_pruned_total",
			Help: "Total number of volume state records deleted, by reason (complete or ttl)",
		},
		[]string{"reason"},
	)

	NodesDecommissionedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nlcache_nodes_decommissioned_total",
			Help: "Total number of pending nodes marked decommissioned by the reconciler",
		},
	)

	PendingCleanups = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nlcache_pending_cleanups",
			Help: "Number of volume state records currently in the cleanup phase",
		},
	)
)

func init() {
	prometheus.MustRegister(UpdateConflictsTotal)
	prometheus.MustRegister(UpdateRetriesExhaustedTotal)
	prometheus.MustRegister(UpdateDuration)
	prometheus.MustRegister(CleanupsTotal)
	prometheus.MustRegister(ReconcileCyclesTotal)
	prometheus.MustRegister(ReconcileDuration)
	prometheus.MustRegister(RecordsPrunedTotal)
	prometheus.MustRegister(NodesDecommissionedTotal)
	prometheus.MustRegister(PendingCleanups)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Cleanup result label values
const (
	ResultCompleted = "completed"
	ResultFailed    = "failed"
)

// Prune reason label values
const (
	PruneComplete = "complete"
	PruneTTL      = "ttl"
)
