// Package worker binds the lifecycle manager, interceptor, replayer and
// push relay into one event-driven engine. Each Handle* method is the
// engine-side handler for one host event kind.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/finsight/offline-proxy/pkg/fetchintercept"
	"github.com/finsight/offline-proxy/pkg/lifecycle"
	"github.com/finsight/offline-proxy/pkg/push"
	"github.com/finsight/offline-proxy/pkg/replay"
	"github.com/finsight/offline-proxy/pkg/tier"
)

var (
	messagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_messages_total",
		Help: "Control messages by type",
	}, []string{"type"})

	tasksActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "offline_waituntil_tasks_active",
		Help: "Background tasks currently extending event lifetimes",
	})
)

// Fetcher performs a network fetch. *http.Client satisfies it.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the engine's immutable configuration.
type Config struct {
	// APITier receives snapshots cached on demand via CACHE_URLS.
	APITier string

	// Origin resolves relative CACHE_URLS entries.
	Origin string
}

// Engine is the offline engine: one instance per worker process.
type Engine struct {
	lifecycle   *lifecycle.Manager
	interceptor *fetchintercept.Interceptor
	replayer    *replay.Replayer
	relay       *push.Relay
	store       tier.Store
	fetch       Fetcher
	cfg         Config

	// syncMu serializes drains; lifecycle and sync events never interleave
	// with each other, only fetches run concurrently.
	syncMu sync.Mutex

	tasks sync.WaitGroup

	logger zerolog.Logger
}

// New creates an engine.
func New(lc *lifecycle.Manager, ic *fetchintercept.Interceptor, rp *replay.Replayer, relay *push.Relay, store tier.Store, fetch Fetcher, cfg Config, logger zerolog.Logger) *Engine {
	return &Engine{
		lifecycle:   lc,
		interceptor: ic,
		replayer:    rp,
		relay:       relay,
		store:       store,
		fetch:       fetch,
		cfg:         cfg,
		logger:      logger,
	}
}

// Start runs install and activation. The engine serves fetches only after
// Start returns nil.
func (e *Engine) Start(ctx context.Context) error {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()

	if err := e.lifecycle.Install(ctx); err != nil {
		return fmt.Errorf("install: %w", err)
	}
	if err := e.lifecycle.Activate(ctx); err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	return nil
}

// State returns the current lifecycle state.
func (e *Engine) State() lifecycle.State {
	return e.lifecycle.State()
}

// HandleFetch intercepts one request and returns the response to serve.
// A stale-while-revalidate refresh, when one is due, runs as a background
// task outliving the request.
func (e *Engine) HandleFetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	result, err := e.interceptor.Intercept(ctx, req)
	if err != nil {
		return nil, err
	}
	if result.Revalidate != nil {
		e.waitUntil("revalidate", result.Revalidate)
	}
	return result.Response, nil
}

// HandleSync drains the deferred-action queue. Drains are serialized; a
// trigger arriving mid-drain waits rather than replaying concurrently.
func (e *Engine) HandleSync(ctx context.Context, trigger string) (replay.Stats, error) {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()
	return e.replayer.Drain(ctx, trigger)
}

// OnSyncTrigger is the connectivity tracker's subscription entry point. The
// drain runs as a background task so the trigger source is never blocked.
func (e *Engine) OnSyncTrigger(trigger string) {
	e.waitUntil("sync", func(ctx context.Context) error {
		_, err := e.HandleSync(ctx, trigger)
		return err
	})
}

// HandleMessage processes one page-to-engine control message. Unknown types
// are acknowledged and logged, never an error.
func (e *Engine) HandleMessage(ctx context.Context, msg Message) error {
	messagesTotal.WithLabelValues(msg.Type).Inc()

	switch msg.Type {
	case MessageSkipWaiting:
		e.lifecycle.SkipWaiting()
		return nil

	case MessageCacheURLs:
		return e.cacheURLs(ctx, msg.URLs)

	default:
		e.logger.Warn().Str("type", msg.Type).Msg("Ignoring unknown control message")
		return nil
	}
}

// cacheURLs fetches each URL and stores it in the API tier. Individual
// failures are logged and skipped; the batch never aborts.
func (e *Engine) cacheURLs(ctx context.Context, urls []string) error {
	for _, u := range urls {
		target := u
		if len(target) > 0 && target[0] == '/' {
			target = e.cfg.Origin + target
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			e.logger.Warn().Err(err).Str("url", u).Msg("Invalid cache-urls entry")
			continue
		}
		resp, err := e.fetch.Do(req)
		if err != nil {
			e.logger.Warn().Err(err).Str("url", u).Msg("Could not fetch cache-urls entry")
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			e.logger.Warn().Int("status", resp.StatusCode).Str("url", u).Msg("Skipping non-2xx cache-urls entry")
			continue
		}

		snap, err := tier.FromResponse(resp)
		resp.Body.Close()
		if err != nil {
			e.logger.Warn().Err(err).Str("url", u).Msg("Could not snapshot cache-urls entry")
			continue
		}
		id := tier.Identity{Method: http.MethodGet, URL: target}
		if err := e.store.Put(ctx, e.cfg.APITier, id, snap); err != nil {
			e.logger.Warn().Err(err).Str("url", u).Msg("Could not store cache-urls entry")
			continue
		}
		e.logger.Debug().Str("url", target).Str("tier", e.cfg.APITier).Msg("Cached on demand")
	}
	return nil
}

// HandlePush renders a push payload into a display notification.
func (e *Engine) HandlePush(payload []byte) push.Notification {
	return e.relay.Render(payload)
}

// HandleNotificationClick resolves a notification click into a navigation
// decision.
func (e *Engine) HandleNotificationClick(action string) push.ClickDecision {
	return e.relay.Route(action)
}

// waitUntil runs fn as a background task tracked until Shutdown.
func (e *Engine) waitUntil(kind string, fn func(ctx context.Context) error) {
	e.tasks.Add(1)
	tasksActive.Inc()
	go func() {
		defer e.tasks.Done()
		defer tasksActive.Dec()
		if err := fn(context.Background()); err != nil {
			e.logger.Warn().Err(err).Str("task", kind).Msg("Background task failed")
		}
	}()
}

// Shutdown waits for in-flight background tasks, up to ctx's deadline.
func (e *Engine) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.New("shutdown: background tasks still running")
	}
}
