// Package connectivity tracks network reachability from fetch outcomes and
// emits the sync triggers that drive deferred-action replay.
package connectivity

import (
	"time"
)

// Redis keys for the shared reachability state.
const (
	RedisKeyOnline     = "offline:connectivity:online"
	RedisKeyFailures   = "offline:connectivity:failures"
	RedisKeyLastChange = "offline:connectivity:last_change"
)

// Trigger tags for sync subscribers.
const (
	// TriggerBackgroundSync fires on an offline-to-online transition.
	TriggerBackgroundSync = "background-sync"

	// TriggerContentSync fires periodically as a fallback where
	// transition detection is unavailable.
	TriggerContentSync = "content-sync"
)

// State is the current reachability assessment, shared across engine
// instances via Redis.
type State struct {
	// Online is the current assessment of origin reachability.
	Online bool `json:"online"`

	// ConsecutiveFailures counts transport failures since the last success.
	ConsecutiveFailures int `json:"consecutive_failures"`

	// LastChange is when Online last flipped.
	LastChange time.Time `json:"last_change"`
}

// Degraded reports whether failures are accumulating but the threshold has
// not been crossed yet.
func (s State) Degraded(threshold int) bool {
	return s.Online && s.ConsecutiveFailures > 0 && s.ConsecutiveFailures < threshold
}

// OfflineFor returns how long the state has been offline, or 0 when online.
func (s State) OfflineFor(now time.Time) time.Duration {
	if s.Online || s.LastChange.IsZero() {
		return 0
	}
	return now.Sub(s.LastChange)
}
