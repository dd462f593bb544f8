package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sync implements the reconciler's metrics hook on prometheus. It is
// constructed against an explicit registerer and injected, so nothing
// in the sync path touches package-global state.
type Sync struct {
	batches       prometheus.Counter
	records       *prometheus.CounterVec
	conflicts     prometheus.Counter
	commitSeconds prometheus.Histogram
}

// NewSync registers the sync collectors on reg.
func NewSync(reg prometheus.Registerer) *Sync {
	return &Sync{
		batches: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "attendsync_sync_batches_total",
			Help: "Sync batches processed.",
		}),
		records: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "attendsync_sync_records_total",
			Help: "Sync records by outcome.",
		}, []string{"outcome"}),
		conflicts: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "attendsync_sync_conflicts_total",
			Help: "Ledger entries overwritten by a later sync.",
		}),
		commitSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "attendsync_commit_duration_seconds",
			Help:    "Per-record ledger commit latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// ObserveBatch records one finished batch.
func (m *Sync) ObserveBatch(total, synced, failed int) {
	m.batches.Inc()
	m.records.WithLabelValues("synced").Add(float64(synced))
	m.records.WithLabelValues("failed").Add(float64(failed))
}

// ObserveCommit records one per-record commit attempt.
func (m *Sync) ObserveCommit(d time.Duration, updated bool) {
	m.commitSeconds.Observe(d.Seconds())
	if updated {
		m.conflicts.Inc()
	}
}
