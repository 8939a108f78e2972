// Package fetchintercept executes caching strategies against the tier store
// and the network for every intercepted request.
package fetchintercept

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/finsight/offline-proxy/pkg/policy"
	"github.com/finsight/offline-proxy/pkg/tier"
)

// Fetcher performs a network fetch. *http.Client satisfies it.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// Reporter receives fetch transport outcomes. The connectivity tracker
// implements it; a nil Reporter disables reporting.
type Reporter interface {
	ReportSuccess(ctx context.Context)
	ReportFailure(ctx context.Context)
}

// Config holds the interceptor's immutable tier and fallback configuration.
type Config struct {
	StaticTier  string
	APITier     string
	DynamicTier string

	// CriticalAPIPaths get the structured offline JSON fallback.
	CriticalAPIPaths []string
}

// Result is the decision for one intercepted request. Revalidate, when
// non-nil, is a background task the host must register with waitUntil.
type Result struct {
	Response   *http.Response
	Strategy   policy.Decision
	Revalidate func(ctx context.Context) error
}

// Interceptor classifies requests and executes the matching strategy.
type Interceptor struct {
	store      tier.Store
	classifier *policy.Classifier
	fetch      Fetcher
	reporter   Reporter
	cfg        Config
	logger     zerolog.Logger
}

// New creates an interceptor.
func New(store tier.Store, classifier *policy.Classifier, fetch Fetcher, reporter Reporter, cfg Config, logger zerolog.Logger) *Interceptor {
	return &Interceptor{
		store:      store,
		classifier: classifier,
		fetch:      fetch,
		reporter:   reporter,
		cfg:        cfg,
		logger:     logger,
	}
}

// Intercept decides the response for a request. For every classified GET the
// result carries a well-formed response; a network error is surfaced to the
// caller only for Passthrough requests.
func (i *Interceptor) Intercept(ctx context.Context, req *http.Request) (*Result, error) {
	decision := i.classifier.Classify(req)

	start := time.Now()
	defer func() {
		interceptDuration.WithLabelValues(string(decision)).Observe(time.Since(start).Seconds())
	}()

	log := i.logger.With().
		Str("url", req.URL.String()).
		Str("strategy", string(decision)).
		Logger()

	switch decision {
	case policy.CacheFirst:
		return i.cacheFirst(ctx, req, log)
	case policy.NetworkFirst:
		return i.networkFirst(ctx, req, log)
	case policy.StaleWhileRevalidate:
		return i.staleWhileRevalidate(ctx, req, log)
	default:
		return i.passthrough(ctx, req, log)
	}
}

// cacheFirst returns the tier snapshot when present, otherwise fetches and
// populates the static tier. Total failure synthesizes a 503.
func (i *Interceptor) cacheFirst(ctx context.Context, req *http.Request, log zerolog.Logger) (*Result, error) {
	id := tier.NewIdentity(req)

	snap, err := i.store.Get(ctx, i.cfg.StaticTier, id)
	if err == nil {
		log.Debug().Str("tier", i.cfg.StaticTier).Msg("Serving snapshot")
		interceptsTotal.WithLabelValues(string(policy.CacheFirst), outcomeHit).Inc()
		return &Result{Response: snap.Response(), Strategy: policy.CacheFirst}, nil
	}
	if !errors.Is(err, tier.ErrMiss) {
		// Provider trouble degrades to the network path.
		log.Warn().Err(err).Str("tier", i.cfg.StaticTier).Msg("Tier read failed")
	}

	resp, err := i.doFetch(ctx, req)
	if err != nil {
		log.Warn().Err(err).Msg("No snapshot and network unreachable")
		interceptsTotal.WithLabelValues(string(policy.CacheFirst), outcomeSynth).Inc()
		return &Result{Response: synthUnavailable(), Strategy: policy.CacheFirst}, nil
	}

	if isSuccess(resp.StatusCode) {
		i.capture(ctx, i.cfg.StaticTier, id, resp, log)
	}
	interceptsTotal.WithLabelValues(string(policy.CacheFirst), outcomeNetwork).Inc()
	return &Result{Response: resp, Strategy: policy.CacheFirst}, nil
}

// networkFirst fetches first and falls back to the API tier. Offline
// critical-API requests get the structured JSON fallback.
func (i *Interceptor) networkFirst(ctx context.Context, req *http.Request, log zerolog.Logger) (*Result, error) {
	id := tier.NewIdentity(req)

	resp, err := i.doFetch(ctx, req)
	if err == nil {
		if isSuccess(resp.StatusCode) {
			// Every success overwrites the prior snapshot, no merge.
			i.capture(ctx, i.cfg.APITier, id, resp, log)
		}
		interceptsTotal.WithLabelValues(string(policy.NetworkFirst), outcomeNetwork).Inc()
		return &Result{Response: resp, Strategy: policy.NetworkFirst}, nil
	}

	log.Debug().Err(err).Msg("Network failed, trying tier")
	snap, gerr := i.store.Get(ctx, i.cfg.APITier, id)
	if gerr == nil {
		interceptsTotal.WithLabelValues(string(policy.NetworkFirst), outcomeFallback).Inc()
		return &Result{Response: snap.Response(), Strategy: policy.NetworkFirst}, nil
	}
	if !errors.Is(gerr, tier.ErrMiss) {
		log.Warn().Err(gerr).Str("tier", i.cfg.APITier).Msg("Tier read failed")
	}

	interceptsTotal.WithLabelValues(string(policy.NetworkFirst), outcomeSynth).Inc()
	if i.isCritical(req.URL.Path) {
		log.Warn().Msg("Critical API offline, serving structured fallback")
		return &Result{Response: synthOfflineJSON(), Strategy: policy.NetworkFirst}, nil
	}
	return &Result{Response: synthUnavailable(), Strategy: policy.NetworkFirst}, nil
}

// staleWhileRevalidate serves the dynamic tier snapshot immediately and
// refreshes it in the background. Without a snapshot the caller gets the
// network result, or a synthesized 503 when that fails too.
func (i *Interceptor) staleWhileRevalidate(ctx context.Context, req *http.Request, log zerolog.Logger) (*Result, error) {
	id := tier.NewIdentity(req)

	snap, err := i.store.Get(ctx, i.cfg.DynamicTier, id)
	if err == nil {
		interceptsTotal.WithLabelValues(string(policy.StaleWhileRevalidate), outcomeHit).Inc()
		return &Result{
			Response:   snap.Response(),
			Strategy:   policy.StaleWhileRevalidate,
			Revalidate: i.revalidateTask(id, log),
		}, nil
	}
	if !errors.Is(err, tier.ErrMiss) {
		log.Warn().Err(err).Str("tier", i.cfg.DynamicTier).Msg("Tier read failed")
	}

	resp, ferr := i.doFetch(ctx, req)
	if ferr != nil {
		log.Warn().Err(ferr).Msg("No snapshot and network unreachable")
		interceptsTotal.WithLabelValues(string(policy.StaleWhileRevalidate), outcomeSynth).Inc()
		return &Result{Response: synthUnavailable(), Strategy: policy.StaleWhileRevalidate}, nil
	}

	if isSuccess(resp.StatusCode) {
		i.capture(ctx, i.cfg.DynamicTier, id, resp, log)
	}
	interceptsTotal.WithLabelValues(string(policy.StaleWhileRevalidate), outcomeNetwork).Inc()
	return &Result{Response: resp, Strategy: policy.StaleWhileRevalidate}, nil
}

// passthrough forwards the request untouched. Errors propagate: queueing a
// failed mutation as a deferred action is the page's responsibility.
func (i *Interceptor) passthrough(ctx context.Context, req *http.Request, log zerolog.Logger) (*Result, error) {
	resp, err := i.doFetch(ctx, req)
	if err != nil {
		log.Debug().Err(err).Msg("Passthrough failed")
		return nil, fmt.Errorf("passthrough %s %s: %w", req.Method, req.URL, err)
	}
	interceptsTotal.WithLabelValues(string(policy.Passthrough), outcomeForwarded).Inc()
	return &Result{Response: resp, Strategy: policy.Passthrough}, nil
}

// revalidateTask builds the background refresh for a stale snapshot.
// Only a 2xx network result updates the tier.
func (i *Interceptor) revalidateTask(id tier.Identity, log zerolog.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, id.URL, nil)
		if err != nil {
			return fmt.Errorf("revalidate request: %w", err)
		}
		resp, err := i.doFetch(ctx, req)
		if err != nil {
			log.Debug().Err(err).Msg("Revalidation fetch failed, keeping stale snapshot")
			return nil
		}
		defer resp.Body.Close()
		if !isSuccess(resp.StatusCode) {
			return nil
		}
		i.capture(ctx, i.cfg.DynamicTier, id, resp, log)
		return nil
	}
}

// capture stores a clone of the response body into the named tier.
// Failures are logged, never surfaced: caching is best-effort.
func (i *Interceptor) capture(ctx context.Context, tierName string, id tier.Identity, resp *http.Response, log zerolog.Logger) {
	snap, err := tier.FromResponse(resp)
	if err != nil {
		log.Warn().Err(err).Msg("Could not capture snapshot")
		return
	}
	if err := i.store.Put(ctx, tierName, id, snap); err != nil {
		log.Warn().Err(err).Str("tier", tierName).Msg("Could not store snapshot")
		return
	}
	log.Debug().Str("tier", tierName).Int("bytes", len(snap.Body)).Msg("Stored snapshot")
}

// doFetch runs the network fetch and reports the transport outcome.
func (i *Interceptor) doFetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := i.fetch.Do(req.WithContext(ctx))
	if i.reporter != nil {
		if err != nil {
			i.reporter.ReportFailure(ctx)
		} else {
			i.reporter.ReportSuccess(ctx)
		}
	}
	return resp, err
}

func (i *Interceptor) isCritical(path string) bool {
	for _, prefix := range i.cfg.CriticalAPIPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
