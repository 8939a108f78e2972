// Package replay drains the durable queue of deferred mutating requests
// once connectivity returns.
package replay

import (
	"net/http"
	"time"
)

// Action is a durable record of a mutating request that failed while
// offline, queued by the page for later replay.
type Action struct {
	// ID uniquely identifies the action in the queue.
	ID string `json:"id"`

	// URL is the absolute target URL.
	URL string `json:"url"`

	// Method is the recorded HTTP method.
	Method string `json:"method"`

	// Header holds the recorded request headers.
	Header http.Header `json:"header"`

	// Body is the recorded request body.
	Body []byte `json:"body"`

	// EnqueuedAt orders actions within a drain run.
	EnqueuedAt time.Time `json:"enqueued_at"`

	// Attempts counts failed replays so far.
	Attempts int `json:"attempts"`

	// NotBefore delays the next replay attempt (exponential backoff).
	// Zero means the action is immediately eligible.
	NotBefore time.Time `json:"not_before"`
}

// Eligible reports whether the action may be replayed now.
func (a Action) Eligible(now time.Time) bool {
	return a.NotBefore.IsZero() || !now.Before(a.NotBefore)
}
