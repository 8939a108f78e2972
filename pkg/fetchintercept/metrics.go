package fetchintercept

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	interceptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_intercepts_total",
		Help: "Total intercepted requests by strategy and outcome",
	}, []string{"strategy", "outcome"})

	interceptDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "offline_intercept_duration_seconds",
		Help:    "Interception handling duration by strategy",
		Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"strategy"})

	offlineFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_fallbacks_total",
		Help: "Synthesized offline responses by kind",
	}, []string{"kind"}) // "generic", "critical_json"
)

// Outcome labels for interceptsTotal.
const (
	outcomeHit       = "hit"
	outcomeNetwork   = "network"
	outcomeFallback  = "fallback"
	outcomeSynth     = "synthesized"
	outcomeForwarded = "forwarded"
)
