// Package metrics exposes Prometheus collectors for roundtable runs and the
// adapters that feed them: engine hooks, a mailbox observer and a gateway
// generation callback.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roundtable_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roundtable_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Run metrics
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roundtable_runs_total",
			Help: "Total finished runs",
		},
		[]string{"termination"}, // drained, budget, stalled or cancelled
	)

	RunsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roundtable_runs_active",
			Help: "Runs currently executing rounds",
		},
	)

	RoundsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roundtable_rounds_total",
			Help: "Total executed rounds",
		},
	)

	RoundDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "roundtable_round_duration_seconds",
			Help:    "Duration of a single dispatch round",
			Buckets: []float64{.001, .01, .1, .5, 1, 5, 15, 60},
		},
	)

	AgentsSpawned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roundtable_agents_spawned_total",
			Help: "Total agents spawned at runtime",
		},
		[]string{"role"},
	)

	ReactionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roundtable_reaction_errors_total",
			Help: "Total failed agent reactions",
		},
		[]string{"role"},
	)

	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roundtable_messages_sent_total",
			Help: "Total messages sent through mailboxes",
		},
	)

	// Generation metrics
	Generations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roundtable_generations_total",
			Help: "Total model generation calls",
		},
		[]string{"provider", "model", "status"}, // status: "ok" or "error"
	)

	GenerationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roundtable_generation_latency_seconds",
			Help:    "Model generation latency",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)
)
