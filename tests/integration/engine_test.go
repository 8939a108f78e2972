package integration

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/finsight/offline-proxy/internal/testutil"
	"github.com/finsight/offline-proxy/pkg/connectivity"
	"github.com/finsight/offline-proxy/pkg/fetchintercept"
	"github.com/finsight/offline-proxy/pkg/lifecycle"
	"github.com/finsight/offline-proxy/pkg/policy"
	"github.com/finsight/offline-proxy/pkg/push"
	"github.com/finsight/offline-proxy/pkg/replay"
	"github.com/finsight/offline-proxy/pkg/tier"
	"github.com/finsight/offline-proxy/pkg/worker"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

type harness struct {
	engine  *worker.Engine
	store   *tier.RedisStore
	queue   *replay.MemoryQueue
	tracker *connectivity.Tracker
	origin  *testutil.MockOrigin
	cfg     fetchintercept.Config
}

func newHarness(t *testing.T, redisClient *redis.Client, client *http.Client, origin *testutil.MockOrigin) *harness {
	t.Helper()

	store := tier.NewRedisStore(redisClient)
	queue := replay.NewMemoryQueue()
	logger := zerolog.Nop()

	icfg := fetchintercept.Config{
		StaticTier:       "static-v1",
		APITier:          "api-v1",
		DynamicTier:      "dynamic-v1",
		CriticalAPIPaths: []string{"/api/portfolio"},
	}

	manager := lifecycle.NewManager(store, client, nil, lifecycle.Config{
		StaticTier: icfg.StaticTier,
		Registry:   []string{"static-v1", "api-v1", "dynamic-v1"},
		Manifest:   []string{"/", "/static/js/main.js"},
		Origin:     origin.URL(),
	}, logger)

	tracker := connectivity.NewTracker(redisClient, 2, logger)
	classifier := policy.New([]string{".js", ".css"}, "/api/")
	interceptor := fetchintercept.New(store, classifier, client, tracker, icfg, logger)
	replayer := replay.NewReplayer(queue, client, replay.DefaultBackoff(), 0, logger)
	relay := push.NewRelay("FinSight", "/dashboard", logger)

	engine := worker.New(manager, interceptor, replayer, relay, store, client, worker.Config{
		APITier: icfg.APITier,
		Origin:  origin.URL(),
	}, logger)

	return &harness{
		engine:  engine,
		store:   store,
		queue:   queue,
		tracker: tracker,
		origin:  origin,
		cfg:     icfg,
	}
}

// TestEngineFullFlow covers the whole engine lifecycle against real Redis:
// install, activation with stale-tier eviction, cache-first serving, offline
// fallbacks and deferred-action replay.
func TestEngineFullFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	redisClient, cleanup := setupRedis(t)
	defer cleanup()
	ctx := context.Background()

	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetResponse("/api/portfolio", testutil.NewJSONResponse(`{"totalValue": 70}`))

	h := newHarness(t, redisClient, origin.Client(), origin)

	// Seed a stale tier from a previous version; activation must evict it.
	staleID := tier.Identity{Method: http.MethodGet, URL: origin.URL() + "/old"}
	if err := h.store.Put(ctx, "static-v0", staleID, &tier.Snapshot{
		StatusCode: http.StatusOK,
		Body:       []byte("old"),
		CapturedAt: time.Now(),
	}); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	if err := h.engine.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if got := h.engine.State(); got != lifecycle.StateActive {
		t.Fatalf("State() = %q, want active", got)
	}

	names, err := h.store.TierNames(ctx)
	if err != nil {
		t.Fatalf("TierNames() error: %v", err)
	}
	for _, name := range names {
		if name == "static-v0" {
			t.Error("activation left the stale tier in place")
		}
	}

	// Precached asset served without a network call.
	before := origin.GetPathCount("/static/js/main.js")
	req, _ := http.NewRequest(http.MethodGet, origin.URL()+"/static/js/main.js", nil)
	resp, err := h.engine.HandleFetch(ctx, req)
	if err != nil {
		t.Fatalf("HandleFetch() error: %v", err)
	}
	resp.Body.Close()
	if got := origin.GetPathCount("/static/js/main.js"); got != before {
		t.Errorf("precached asset hit the origin %d times", got-before)
	}

	// API request populates the API tier.
	req, _ = http.NewRequest(http.MethodGet, origin.URL()+"/api/portfolio", nil)
	resp, err = h.engine.HandleFetch(ctx, req)
	if err != nil {
		t.Fatalf("HandleFetch() error: %v", err)
	}
	resp.Body.Close()
	apiID := tier.Identity{Method: http.MethodGet, URL: origin.URL() + "/api/portfolio"}
	if _, err := h.store.Get(ctx, "api-v1", apiID); err != nil {
		t.Fatalf("API snapshot not stored: %v", err)
	}
}

// TestEngineOfflineFallbacks verifies the offline behavior: cached API
// responses are served from the tier, uncached critical APIs get the
// structured JSON fallback.
func TestEngineOfflineFallbacks(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	redisClient, cleanup := setupRedis(t)
	defer cleanup()
	ctx := context.Background()

	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetResponse("/api/portfolio", testutil.NewJSONResponse(`{"totalValue": 70}`))

	h := newHarness(t, redisClient, origin.Client(), origin)
	if err := h.engine.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	// Warm the API tier while online.
	req, _ := http.NewRequest(http.MethodGet, origin.URL()+"/api/portfolio", nil)
	resp, err := h.engine.HandleFetch(ctx, req)
	if err != nil {
		t.Fatalf("HandleFetch() error: %v", err)
	}
	resp.Body.Close()

	// Sever the network; the warmed endpoint must come from the tier. The
	// offline engine shares the tier store and needs no install of its own.
	offline := newHarness(t, redisClient, testutil.OfflineClient(), origin)

	req, _ = http.NewRequest(http.MethodGet, origin.URL()+"/api/portfolio", nil)
	resp, err = offline.engine.HandleFetch(ctx, req)
	if err != nil {
		t.Fatalf("HandleFetch() offline error: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `"totalValue"`) {
		t.Errorf("offline body = %q, want the cached response", body)
	}

	// An uncached critical API path gets the structured fallback.
	req, _ = http.NewRequest(http.MethodGet, origin.URL()+"/api/portfolio/history", nil)
	resp, err = offline.engine.HandleFetch(ctx, req)
	if err != nil {
		t.Fatalf("HandleFetch() offline error: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"offline":true`) {
		t.Errorf("body = %q, want structured offline JSON", body)
	}
}

// TestEngineReplayOnReconnect verifies the sync pipeline end to end: failures
// flip the tracker offline, the first success fires background-sync, and the
// triggered drain replays the queued action.
func TestEngineReplayOnReconnect(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	redisClient, cleanup := setupRedis(t)
	defer cleanup()
	ctx := context.Background()

	origin := testutil.NewMockOrigin()
	defer origin.Close()

	h := newHarness(t, redisClient, origin.Client(), origin)
	if err := h.engine.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	h.tracker.Subscribe(h.engine.OnSyncTrigger)

	// A mutation failed while offline; the page queued it for replay.
	h.queue.Put(ctx, replay.Action{
		ID:         "order-1",
		URL:        origin.URL() + "/api/orders",
		Method:     http.MethodPost,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       []byte(`{"symbol":"X","quantity":10}`),
		EnqueuedAt: time.Now(),
	})

	// Cross the failure threshold, then report recovery.
	h.tracker.ReportFailure(ctx)
	h.tracker.ReportFailure(ctx)
	state, _ := h.tracker.GetState(ctx)
	if state.Online {
		t.Fatal("tracker should be offline after threshold failures")
	}
	h.tracker.ReportSuccess(ctx)

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := h.engine.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}

	if h.queue.Len() != 0 {
		t.Errorf("queue depth = %d, want 0 after replay", h.queue.Len())
	}
	if origin.GetPathCount("/api/orders") != 1 {
		t.Errorf("origin replays = %d, want 1", origin.GetPathCount("/api/orders"))
	}
}
