// Package metrics exposes the engine's Prometheus instrumentation.
//
// All collectors live on a private registry so that tests can run many
// engines in one process without double-registration panics. The
// handler is mounted on the private (read-write) listener only.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's collectors. A nil *Metrics is valid and
// records nothing, so components don't need to care whether
// instrumentation is wired up.
type Metrics struct {
	registry *prometheus.Registry

	commits          *prometheus.CounterVec
	commitFailures   prometheus.Counter
	subscribers      prometheus.Gauge
	overflows        prometheus.Counter
	snapshotSeq      prometheus.Gauge
	snapshotDuration prometheus.Histogram
}

// New creates and registers all engine collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swec_commits_total",
			Help: "Committed mutations by kind.",
		}, []string{"kind"}),
		commitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swec_commit_failures_total",
			Help: "Mutations rejected because the journal could not be written.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "swec_subscribers_active",
			Help: "Currently connected live-update subscribers.",
		}),
		overflows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swec_subscriber_overflows_total",
			Help: "Subscribers disconnected because their queue filled up.",
		}),
		snapshotSeq: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "swec_snapshot_sequence",
			Help: "Sequence number covered by the latest snapshot.",
		}),
		snapshotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "swec_snapshot_duration_seconds",
			Help:    "Time spent writing snapshots.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	m.registry.MustRegister(
		m.commits,
		m.commitFailures,
		m.subscribers,
		m.overflows,
		m.snapshotSeq,
		m.snapshotDuration,
	)
	return m
}

// Handler returns the Prometheus scrape handler for the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CommitOK records a committed mutation of the given kind.
func (m *Metrics) CommitOK(kind string) {
	if m != nil {
		m.commits.WithLabelValues(kind).Inc()
	}
}

// CommitFailed records a mutation rejected by the journal.
func (m *Metrics) CommitFailed() {
	if m != nil {
		m.commitFailures.Inc()
	}
}

// SubscriberAdded records a new active subscriber.
func (m *Metrics) SubscriberAdded() {
	if m != nil {
		m.subscribers.Inc()
	}
}

// SubscriberRemoved records a subscriber leaving, for any reason.
func (m *Metrics) SubscriberRemoved() {
	if m != nil {
		m.subscribers.Dec()
	}
}

// Overflow records a subscriber disconnected for being too slow.
func (m *Metrics) Overflow() {
	if m != nil {
		m.overflows.Inc()
	}
}

// SnapshotDone records a completed snapshot.
func (m *Metrics) SnapshotDone(seq uint64, d time.Duration) {
	if m != nil {
		m.snapshotSeq.Set(float64(seq))
		m.snapshotDuration.Observe(d.Seconds())
	}
}
