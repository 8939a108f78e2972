// Package policy classifies intercepted requests into caching strategies.
package policy

import (
	"net/http"
	"strings"
)

// Decision is the caching strategy applied to a classified request.
type Decision string

const (
	// CacheFirst serves static assets from the tier, falling back to the network.
	CacheFirst Decision = "cache-first"

	// NetworkFirst serves API requests from the network, falling back to the tier.
	NetworkFirst Decision = "network-first"

	// StaleWhileRevalidate serves documents from the tier while refreshing
	// them in the background.
	StaleWhileRevalidate Decision = "stale-while-revalidate"

	// Passthrough leaves the request untouched. Applied to every non-GET
	// request; queueing failed mutations is the page's responsibility.
	Passthrough Decision = "passthrough"
)

// Classifier maps a request to a Decision. It holds only immutable
// configuration and never mutates state.
type Classifier struct {
	staticExts []string
	apiPrefix  string
}

// New creates a classifier for the given static extensions and API namespace.
func New(staticExts []string, apiPrefix string) *Classifier {
	return &Classifier{
		staticExts: staticExts,
		apiPrefix:  apiPrefix,
	}
}

// Classify returns the strategy for the request. First match wins:
// static extension, API prefix, HTML accept header, then network-first.
func (c *Classifier) Classify(req *http.Request) Decision {
	if req.Method != http.MethodGet {
		return Passthrough
	}

	path := req.URL.Path
	for _, ext := range c.staticExts {
		if strings.HasSuffix(path, ext) {
			return CacheFirst
		}
	}

	if strings.HasPrefix(path, c.apiPrefix) {
		return NetworkFirst
	}

	if strings.Contains(req.Header.Get("Accept"), "text/html") {
		return StaleWhileRevalidate
	}

	return NetworkFirst
}
