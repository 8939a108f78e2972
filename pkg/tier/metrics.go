package tier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Hits tracks tier hits by tier name.
	Hits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_tier_hits_total",
			Help: "Total number of tier snapshot hits",
		},
		[]string{"tier"},
	)

	// Misses tracks tier misses by tier name.
	Misses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_tier_misses_total",
			Help: "Total number of tier snapshot misses",
		},
		[]string{"tier"},
	)

	// Errors tracks tier provider errors by operation.
	Errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_tier_errors_total",
			Help: "Total number of tier provider errors",
		},
		[]string{"operation"}, // "get", "put", "delete", "drop"
	)

	// SnapshotBytes tracks bytes written to tiers by tier name.
	SnapshotBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_tier_snapshot_bytes_total",
			Help: "Total snapshot bytes written per tier",
		},
		[]string{"tier"},
	)

	// TiersDropped counts tier evictions during activation.
	TiersDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offline_tiers_dropped_total",
			Help: "Total number of tiers destroyed during activation",
		},
	)
)
