package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	onlineGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "offline_connectivity_online",
		Help: "1 when the origin is considered reachable, 0 when offline",
	})

	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_connectivity_transitions_total",
		Help: "Reachability transitions by direction",
	}, []string{"to"}) // "online", "offline"

	syncTriggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_sync_triggers_total",
		Help: "Sync triggers fired by tag",
	}, []string{"trigger"})
)

// Tracker derives reachability from fetch outcomes reported by the
// interceptor. State lives in Redis so all engine instances agree; trigger
// subscribers are per-instance.
type Tracker struct {
	redis *redis.Client

	// threshold is the consecutive-failure count that marks offline.
	threshold int

	mu          sync.Mutex
	subscribers []func(trigger string)

	logger zerolog.Logger
}

// NewTracker creates a reachability tracker.
func NewTracker(redisClient *redis.Client, threshold int, logger zerolog.Logger) *Tracker {
	if threshold <= 0 {
		threshold = 3
	}
	return &Tracker{
		redis:     redisClient,
		threshold: threshold,
		logger:    logger,
	}
}

// Subscribe registers a sync-trigger callback. Callbacks run on the
// reporting goroutine and should hand off work quickly.
func (t *Tracker) Subscribe(fn func(trigger string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribers = append(t.subscribers, fn)
}

// GetState retrieves the current reachability state. With no data in Redis
// the engine assumes it is online.
func (t *Tracker) GetState(ctx context.Context) (State, error) {
	state := State{Online: true}

	online, err := t.redis.Get(ctx, RedisKeyOnline).Int()
	if err == redis.Nil {
		return state, nil
	}
	if err != nil {
		return state, err
	}
	state.Online = online == 1

	if failures, err := t.redis.Get(ctx, RedisKeyFailures).Int(); err == nil {
		state.ConsecutiveFailures = failures
	}
	if ts, err := t.redis.Get(ctx, RedisKeyLastChange).Int64(); err == nil {
		state.LastChange = time.Unix(ts, 0)
	}
	return state, nil
}

// ReportSuccess records a successful network fetch. The first success after
// an offline stretch flips the state and fires the background-sync trigger.
func (t *Tracker) ReportSuccess(ctx context.Context) {
	state, err := t.GetState(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Could not read connectivity state")
		return
	}

	pipe := t.redis.Pipeline()
	pipe.Set(ctx, RedisKeyOnline, 1, 0)
	pipe.Set(ctx, RedisKeyFailures, 0, 0)
	if !state.Online {
		pipe.Set(ctx, RedisKeyLastChange, time.Now().Unix(), 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		t.logger.Warn().Err(err).Msg("Could not store connectivity state")
		return
	}
	onlineGauge.Set(1)

	if !state.Online {
		transitionsTotal.WithLabelValues("online").Inc()
		t.logger.Info().
			Dur("offline_for", state.OfflineFor(time.Now())).
			Msg("Connectivity restored")
		t.fire(TriggerBackgroundSync)
	}
}

// ReportFailure records a failed network fetch. Crossing the consecutive
// failure threshold marks the engine offline.
func (t *Tracker) ReportFailure(ctx context.Context) {
	failures, err := t.redis.Incr(ctx, RedisKeyFailures).Result()
	if err != nil {
		t.logger.Warn().Err(err).Msg("Could not record fetch failure")
		return
	}

	state, err := t.GetState(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Could not read connectivity state")
		return
	}

	if state.Online && int(failures) >= t.threshold {
		pipe := t.redis.Pipeline()
		pipe.Set(ctx, RedisKeyOnline, 0, 0)
		pipe.Set(ctx, RedisKeyLastChange, time.Now().Unix(), 0)
		if _, err := pipe.Exec(ctx); err != nil {
			t.logger.Warn().Err(err).Msg("Could not store connectivity state")
			return
		}
		onlineGauge.Set(0)
		transitionsTotal.WithLabelValues("offline").Inc()
		t.logger.Warn().Int64("failures", failures).Msg("Origin unreachable, going offline")
	}
}

// StartContentSync fires the periodic fallback trigger until ctx is done.
func (t *Tracker) StartContentSync(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.fire(TriggerContentSync)
			}
		}
	}()
}

func (t *Tracker) fire(trigger string) {
	syncTriggersTotal.WithLabelValues(trigger).Inc()
	t.mu.Lock()
	subs := append([]func(string){}, t.subscribers...)
	t.mu.Unlock()
	for _, fn := range subs {
		fn(trigger)
	}
}
