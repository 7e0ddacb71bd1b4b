// Package observability provides logging, metrics, and tracing setup
// shared by both daemons.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are declared here and registered once by InitMetrics; the
// daemons increment them from their control loops.
var (
	// MessagesAcked counts acknowledged messages by topic.
	MessagesAcked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatchd_messages_acked_total",
			Help: "Messages acknowledged, by topic",
		},
		[]string{"topic"},
	)

	// MessagesDeadLettered counts dead-letter routings by reason.
	MessagesDeadLettered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatchd_messages_dead_lettered_total",
			Help: "Messages routed to the dead-letter topic, by reason",
		},
		[]string{"reason"},
	)

	// KeepAlivesSent counts keep_alive calls issued during child supervision.
	KeepAlivesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatchd_keep_alives_total",
			Help: "keep_alive calls issued during child supervision",
		},
	)

	// TierPulls counts pull attempts per priority tier.
	TierPulls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatchd_tier_pulls_total",
			Help: "Pull attempts per priority tier",
		},
		[]string{"tier"},
	)

	// ChildDuration records wall-clock duration of supervised child processes.
	ChildDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatchd_child_duration_seconds",
			Help:    "Wall-clock duration of supervised child processes",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
)

// InitMetrics registers all Prometheus metrics with the default registry.
// Safe to call once per process; calling it twice panics, matching
// prometheus.MustRegister's own contract.
func InitMetrics() {
	prometheus.MustRegister(MessagesAcked)
	prometheus.MustRegister(MessagesDeadLettered)
	prometheus.MustRegister(KeepAlivesSent)
	prometheus.MustRegister(TierPulls)
	prometheus.MustRegister(ChildDuration)
}

// Handler returns the Prometheus scrape handler for ListenAndServe wiring.
func Handler() http.Handler {
	return promhttp.Handler()
}
