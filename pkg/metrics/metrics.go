// Package metrics instruments the validator core with Prometheus
// collectors. The teacher hand-rolls a Prometheus exposition format in
// pkg/metrics/prometheus.go without a client library; that is itself
// evidence the corpus wants Prometheus metrics, so here we use the real
// github.com/prometheus/client_golang registry instead of reproducing the
// hand-rolled formatter (see DESIGN.md).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the full set of collectors the consensus engine reports.
type Metrics struct {
	Registry *prometheus.Registry

	VotesCast          *prometheus.CounterVec
	ProposalsAbstained prometheus.Counter
	BlocksCommitted    prometheus.Counter
	LockConflicts      prometheus.Counter
	ExecutionDuration  prometheus.Histogram
	GossipDecodeErrors *prometheus.CounterVec
	GossipPublished    *prometheus.CounterVec
}

// New builds a Metrics set registered against a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		VotesCast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "valnode",
			Subsystem: "hotstuff",
			Name:      "votes_cast_total",
			Help:      "Votes cast by decision.",
		}, []string{"decision"}),
		ProposalsAbstained: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "valnode",
			Subsystem: "hotstuff",
			Name:      "proposals_abstained_total",
			Help:      "Proposals on which this validator abstained from voting.",
		}),
		BlocksCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "valnode",
			Subsystem: "hotstuff",
			Name:      "blocks_committed_total",
			Help:      "Blocks committed via the three-chain rule.",
		}),
		LockConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "valnode",
			Subsystem: "substatelock",
			Name:      "lock_conflicts_total",
			Help:      "Failed all-or-nothing substate lock acquisitions.",
		}),
		ExecutionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "valnode",
			Subsystem: "mempool",
			Name:      "execution_duration_seconds",
			Help:      "Wall-clock time spent executing a transaction on the blocking worker pool.",
			Buckets:   prometheus.DefBuckets,
		}),
		GossipDecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "valnode",
			Subsystem: "gossip",
			Name:      "decode_errors_total",
			Help:      "Inbound gossip frames that failed to decode.",
		}, []string{"topic"}),
		GossipPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "valnode",
			Subsystem: "gossip",
			Name:      "published_total",
			Help:      "Messages published, by topic kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.VotesCast,
		m.ProposalsAbstained,
		m.BlocksCommitted,
		m.LockConflicts,
		m.ExecutionDuration,
		m.GossipDecodeErrors,
		m.GossipPublished,
	)

	return m
}

// Handler returns the HTTP handler cmd/valnode exposes at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
