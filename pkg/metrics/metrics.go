// Package metrics holds the Prometheus collectors exposed by a running
// node: one struct holding pre-registered collectors, built with
// promauto.With(registry)
// against a private registry rather than the global default.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for one running node.
type Metrics struct {
	Registry *prometheus.Registry

	ViewSize          prometheus.Gauge
	ActiveRoundsTotal prometheus.Counter
	MessagesSent      *prometheus.CounterVec
	MessagesReceived  *prometheus.CounterVec
	MergeEvictions    *prometheus.CounterVec
	RoundDuration     prometheus.Histogram
}

// New creates a fresh registry and registers every collector against it.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		Registry: registry,

		ViewSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pss_view_size",
			Help: "Current number of descriptors held in the local view.",
		}),
		ActiveRoundsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "pss_active_rounds_total",
			Help: "Total number of active gossip rounds initiated by this node.",
		}),
		MessagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pss_messages_sent_total",
			Help: "Total number of gossip messages sent, by tag.",
		}, []string{"tag"}),
		MessagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pss_messages_received_total",
			Help: "Total number of gossip messages received, by tag.",
		}, []string{"tag"}),
		MergeEvictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pss_merge_evictions_total",
			Help: "Total number of descriptors evicted during view merges, by reason.",
		}, []string{"reason"}),
		RoundDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pss_round_duration_seconds",
			Help:    "Wall-clock duration of one active gossip round.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Eviction reasons recorded against MergeEvictions.
const (
	ReasonOldest = "oldest"
	ReasonHead   = "head"
	ReasonRandom = "random"
)
