// Package metrics provides the centralized Prometheus metrics registry for
// the offline engine. All metrics are defined in their respective packages
// (tier, fetchintercept, lifecycle, replay, connectivity, push, worker) to
// maintain modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the offline engine.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Tier Metrics (pkg/tier):
//   - offline_tier_hits_total{tier} (Counter): Snapshot hits by tier
//   - offline_tier_misses_total{tier} (Counter): Snapshot misses by tier
//   - offline_tier_errors_total{operation} (Counter): Store operation errors
//   - offline_tier_snapshot_bytes_total{tier} (Counter): Snapshot bytes written by tier
//   - offline_tiers_dropped_total (Counter): Stale tiers evicted during activation
//
// Interception Metrics (pkg/fetchintercept):
//   - offline_intercepts_total{strategy, outcome} (Counter): Intercepted requests
//     by strategy and outcome (hit, network, fallback, synthesized, forwarded)
//   - offline_intercept_duration_seconds{strategy} (Histogram): Interception latency
//   - offline_fallbacks_total{kind} (Counter): Offline fallbacks served by kind
//
// Lifecycle Metrics (pkg/lifecycle):
//   - offline_installs_total{result} (Counter): Install attempts by result (ok, failed)
//   - offline_activations_total (Counter): Completed activations
//
// Replay Metrics (pkg/replay):
//   - offline_replays_total{result} (Counter): Replay attempts by result
//     (success, requeued, dropped)
//   - offline_replay_batches_total{trigger} (Counter): Drain runs by trigger tag
//   - offline_replay_queue_depth (Gauge): Deferred actions pending after the last drain
//
// Connectivity Metrics (pkg/connectivity):
//   - offline_connectivity_online (Gauge): 1 when the origin is reachable
//   - offline_connectivity_transitions_total{to} (Counter): Reachability transitions
//   - offline_sync_triggers_total{trigger} (Counter): Sync triggers fired by tag
//
// Push Metrics (pkg/push):
//   - offline_push_notifications_total (Counter): Push payloads rendered
//   - offline_push_clicks_total{action} (Counter): Notification clicks by action
//
// Engine Metrics (pkg/worker):
//   - offline_messages_total{type} (Counter): Control messages by type
//   - offline_waituntil_tasks_active (Gauge): Background tasks in flight
//
// Example Prometheus Queries:
//
//   # Tier Hit Rate
//   sum(rate(offline_tier_hits_total[5m])) /
//   (sum(rate(offline_tier_hits_total[5m])) + sum(rate(offline_tier_misses_total[5m])))
//
//   # Offline Fallback Rate
//   rate(offline_fallbacks_total[5m])
//
//   # Replay Backlog
//   offline_replay_queue_depth > 0
//
//   # P95 Interception Latency
//   histogram_quantile(0.95, rate(offline_intercept_duration_seconds_bucket[5m]))
//
//   # Reachability
//   offline_connectivity_online == 0
