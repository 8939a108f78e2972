package replay

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	replaysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_replays_total",
		Help: "Replay attempts by result",
	}, []string{"result"}) // "success", "requeued", "dropped"

	replayBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_replay_batches_total",
		Help: "Drain runs by trigger tag",
	}, []string{"trigger"})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "offline_replay_queue_depth",
		Help: "Deferred actions pending after the last drain",
	})
)

// ErrorClass categorizes a failed replay for logging and metrics.
// Every failure is retryable; the class never changes the decision.
type ErrorClass string

const (
	ErrorClassClient  ErrorClass = "client"
	ErrorClassServer  ErrorClass = "server"
	ErrorClassNetwork ErrorClass = "network"
)

func classifyReplay(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}
	if resp.StatusCode >= 500 {
		return ErrorClassServer
	}
	return ErrorClassClient
}

// Fetcher performs a network fetch. *http.Client satisfies it.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// Stats summarizes one drain run.
type Stats struct {
	Attempted int
	Succeeded int
	Requeued  int
	Dropped   int
	Skipped   int
}

// Replayer drains the deferred-action queue against the network.
type Replayer struct {
	queue   Queue
	fetch   Fetcher
	backoff Backoff

	// maxAttempts drops an action after this many failures; 0 retries forever.
	maxAttempts int

	logger zerolog.Logger
}

// NewReplayer creates a replayer. maxAttempts 0 keeps actions queued until
// they succeed.
func NewReplayer(queue Queue, fetch Fetcher, backoff Backoff, maxAttempts int, logger zerolog.Logger) *Replayer {
	return &Replayer{
		queue:       queue,
		fetch:       fetch,
		backoff:     backoff,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Drain replays every eligible pending action in queue order. A failed
// action is rescheduled and never blocks the rest of the batch; an action
// leaves the queue only on an observed 2xx replay (or the configured
// attempt cutoff).
func (r *Replayer) Drain(ctx context.Context, trigger string) (Stats, error) {
	replayBatchesTotal.WithLabelValues(trigger).Inc()

	actions, err := r.queue.List(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list deferred actions: %w", err)
	}

	log := r.logger.With().Str("trigger", trigger).Logger()
	log.Info().Int("pending", len(actions)).Msg("Draining deferred actions")

	var stats Stats
	now := time.Now()
	for _, action := range actions {
		if !action.Eligible(now) {
			stats.Skipped++
			continue
		}
		stats.Attempted++
		r.replayOne(ctx, action, &stats, log)
	}

	queueDepth.Set(float64(len(actions) - stats.Succeeded - stats.Dropped))
	log.Info().
		Int("attempted", stats.Attempted).
		Int("succeeded", stats.Succeeded).
		Int("requeued", stats.Requeued).
		Int("dropped", stats.Dropped).
		Int("skipped", stats.Skipped).
		Msg("Drain complete")
	return stats, nil
}

func (r *Replayer) replayOne(ctx context.Context, action Action, stats *Stats, log zerolog.Logger) {
	alog := log.With().
		Str("action_id", action.ID).
		Str("method", action.Method).
		Str("url", action.URL).
		Int("attempt", action.Attempts+1).
		Logger()

	resp, err := r.replay(ctx, action)
	if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		resp.Body.Close()
		if err := r.queue.Remove(ctx, action.ID); err != nil {
			// The action stays queued; replaying it again is safe only
			// because removal is retried on the next trigger.
			alog.Error().Err(err).Msg("Replayed but could not dequeue")
			return
		}
		replaysTotal.WithLabelValues("success").Inc()
		stats.Succeeded++
		alog.Info().Msg("Replayed deferred action")
		return
	}

	class := classifyReplay(resp, err)
	if resp != nil {
		alog = alog.With().Int("status", resp.StatusCode).Logger()
		resp.Body.Close()
	}

	action.Attempts++
	if r.maxAttempts > 0 && action.Attempts >= r.maxAttempts {
		if err := r.queue.Remove(ctx, action.ID); err != nil {
			alog.Error().Err(err).Msg("Could not drop exhausted action")
			return
		}
		replaysTotal.WithLabelValues("dropped").Inc()
		stats.Dropped++
		alog.Warn().Str("error_class", string(class)).Msg("Replay attempts exhausted, dropping action")
		return
	}

	delay := r.backoff.ForAttempt(action.Attempts)
	action.NotBefore = time.Now().Add(delay)
	if err := r.queue.Put(ctx, action); err != nil {
		alog.Error().Err(err).Msg("Could not reschedule action")
		return
	}
	replaysTotal.WithLabelValues("requeued").Inc()
	stats.Requeued++
	alog.Warn().
		Str("error_class", string(class)).
		Dur("backoff", delay).
		Msg("Replay failed, action left in queue")
}

func (r *Replayer) replay(ctx context.Context, action Action) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, action.Method, action.URL, bytes.NewReader(action.Body))
	if err != nil {
		return nil, fmt.Errorf("build replay request: %w", err)
	}
	for name, values := range action.Header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	return r.fetch.Do(req)
}
