package worker

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/finsight/offline-proxy/pkg/fetchintercept"
	"github.com/finsight/offline-proxy/pkg/lifecycle"
	"github.com/finsight/offline-proxy/pkg/policy"
	"github.com/finsight/offline-proxy/pkg/push"
	"github.com/finsight/offline-proxy/pkg/replay"
	"github.com/finsight/offline-proxy/pkg/tier"
)

// countingOrigin is an origin stub that counts requests per path.
type countingOrigin struct {
	mu     sync.Mutex
	counts map[string]int
	server *httptest.Server
}

func newCountingOrigin() *countingOrigin {
	o := &countingOrigin{counts: make(map[string]int)}
	o.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o.mu.Lock()
		o.counts[r.URL.Path]++
		o.mu.Unlock()

		switch {
		case strings.HasSuffix(r.URL.Path, ".js"):
			w.Header().Set("Content-Type", "application/javascript")
			w.Write([]byte("console.log('bundle')"))
		case strings.HasPrefix(r.URL.Path, "/api/"):
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"quotes":[]}`))
		default:
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html>dashboard</html>"))
		}
	}))
	return o
}

func (o *countingOrigin) count(path string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counts[path]
}

type testEngine struct {
	engine *Engine
	origin *countingOrigin
	store  *tier.MemoryStore
	queue  *replay.MemoryQueue
	lc     *lifecycle.Manager
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()

	origin := newCountingOrigin()
	t.Cleanup(origin.server.Close)

	store := tier.NewMemoryStore()
	queue := replay.NewMemoryQueue()
	client := origin.server.Client()
	logger := zerolog.Nop()

	lc := lifecycle.NewManager(store, client, nil, lifecycle.Config{
		StaticTier: "static-v1",
		Registry:   []string{"static-v1", "api-v1", "dynamic-v1"},
		Manifest:   []string{"/", "/app.js"},
		Origin:     origin.server.URL,
	}, logger)

	classifier := policy.New([]string{".js", ".css"}, "/api/")
	ic := fetchintercept.New(store, classifier, client, nil, fetchintercept.Config{
		StaticTier:  "static-v1",
		APITier:     "api-v1",
		DynamicTier: "dynamic-v1",
	}, logger)

	rp := replay.NewReplayer(queue, client, replay.DefaultBackoff(), 0, logger)
	relay := push.NewRelay("FinSight", "/dashboard", logger)

	engine := New(lc, ic, rp, relay, store, client, Config{
		APITier: "api-v1",
		Origin:  origin.server.URL,
	}, logger)

	return &testEngine{engine: engine, origin: origin, store: store, queue: queue, lc: lc}
}

func (te *testEngine) start(t *testing.T) {
	t.Helper()
	if err := te.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
}

func TestStartInstallsAndActivates(t *testing.T) {
	te := newTestEngine(t)
	te.start(t)

	if got := te.engine.State(); got != lifecycle.StateActive {
		t.Fatalf("State() = %q, want active", got)
	}
	if got := te.store.Len("static-v1"); got != 2 {
		t.Errorf("precached snapshots = %d, want 2", got)
	}
}

func TestHandleFetchServesPrecachedAsset(t *testing.T) {
	te := newTestEngine(t)
	te.start(t)

	fetches := te.origin.count("/app.js")

	req, _ := http.NewRequest(http.MethodGet, te.origin.server.URL+"/app.js", nil)
	resp, err := te.engine.HandleFetch(context.Background(), req)
	if err != nil {
		t.Fatalf("HandleFetch() error: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "console.log('bundle')" {
		t.Errorf("body = %q", body)
	}
	if got := te.origin.count("/app.js"); got != fetches {
		t.Errorf("origin fetched %d extra times, want snapshot served without network", got-fetches)
	}
}

func TestHandleFetchRunsRevalidationInBackground(t *testing.T) {
	te := newTestEngine(t)
	te.start(t)
	ctx := context.Background()

	// Seed a stale document snapshot.
	docURL := te.origin.server.URL + "/portfolio"
	id := tier.Identity{Method: http.MethodGet, URL: docURL}
	stale := &tier.Snapshot{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/html"}},
		Body:       []byte("<html>stale</html>"),
		CapturedAt: time.Now().Add(-time.Hour),
	}
	if err := te.store.Put(ctx, "dynamic-v1", id, stale); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, docURL, nil)
	req.Header.Set("Accept", "text/html")
	resp, err := te.engine.HandleFetch(ctx, req)
	if err != nil {
		t.Fatalf("HandleFetch() error: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "<html>stale</html>" {
		t.Errorf("body = %q, want the stale snapshot", body)
	}

	// Shutdown waits for the background refresh.
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := te.engine.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	if got := te.origin.count("/portfolio"); got != 1 {
		t.Errorf("origin refreshed %d times, want 1", got)
	}

	snap, err := te.store.Get(ctx, "dynamic-v1", id)
	if err != nil {
		t.Fatalf("Get() after revalidation error: %v", err)
	}
	if string(snap.Body) != "<html>dashboard</html>" {
		t.Errorf("snapshot after revalidation = %q, want refreshed document", snap.Body)
	}
}

func TestHandleSyncDrainsQueue(t *testing.T) {
	te := newTestEngine(t)
	te.start(t)
	ctx := context.Background()

	te.queue.Put(ctx, replay.Action{
		ID:         "act-1",
		URL:        te.origin.server.URL + "/api/orders",
		Method:     http.MethodPost,
		Body:       []byte(`{"symbol":"X"}`),
		EnqueuedAt: time.Now(),
	})

	stats, err := te.engine.HandleSync(ctx, "background-sync")
	if err != nil {
		t.Fatalf("HandleSync() error: %v", err)
	}
	if stats.Succeeded != 1 {
		t.Errorf("Succeeded = %d, want 1", stats.Succeeded)
	}
	if te.queue.Len() != 0 {
		t.Errorf("queue depth = %d, want 0", te.queue.Len())
	}
	if got := te.origin.count("/api/orders"); got != 1 {
		t.Errorf("origin received %d replays, want 1", got)
	}
}

func TestOnSyncTriggerDrainsAsynchronously(t *testing.T) {
	te := newTestEngine(t)
	te.start(t)
	ctx := context.Background()

	te.queue.Put(ctx, replay.Action{
		ID:         "act-1",
		URL:        te.origin.server.URL + "/api/orders",
		Method:     http.MethodPost,
		EnqueuedAt: time.Now(),
	})

	te.engine.OnSyncTrigger("content-sync")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := te.engine.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	if te.queue.Len() != 0 {
		t.Errorf("queue depth = %d, want 0 after triggered drain", te.queue.Len())
	}
}

func TestHandleMessageSkipWaiting(t *testing.T) {
	te := newTestEngine(t)

	err := te.engine.HandleMessage(context.Background(), Message{Type: MessageSkipWaiting})
	if err != nil {
		t.Fatalf("HandleMessage() error: %v", err)
	}
	if !te.lc.SkipWaitingRequested() {
		t.Error("skip-waiting signal not recorded")
	}
}

func TestHandleMessageCacheURLs(t *testing.T) {
	te := newTestEngine(t)
	te.start(t)
	ctx := context.Background()

	err := te.engine.HandleMessage(ctx, Message{
		Type: MessageCacheURLs,
		URLs: []string{"/api/quotes", te.origin.server.URL + "/api/news"},
	})
	if err != nil {
		t.Fatalf("HandleMessage() error: %v", err)
	}

	for _, u := range []string{"/api/quotes", "/api/news"} {
		id := tier.Identity{Method: http.MethodGet, URL: te.origin.server.URL + u}
		if _, err := te.store.Get(ctx, "api-v1", id); err != nil {
			t.Errorf("Get(%s) error: %v, want cached snapshot", u, err)
		}
	}
}

func TestHandleMessageUnknownTypeAcks(t *testing.T) {
	te := newTestEngine(t)

	err := te.engine.HandleMessage(context.Background(), Message{Type: "REFRESH_EVERYTHING"})
	if err != nil {
		t.Errorf("HandleMessage() unknown type error: %v, want nil ack", err)
	}
}

func TestHandlePushAndClick(t *testing.T) {
	te := newTestEngine(t)

	n := te.engine.HandlePush([]byte("Markets open"))
	if n.Body != "Markets open" || n.Title != "FinSight" {
		t.Errorf("notification = %+v", n)
	}

	d := te.engine.HandleNotificationClick("explore")
	if !d.Navigate || d.URL != "/dashboard" {
		t.Errorf("click decision = %+v, want navigate to /dashboard", d)
	}
	if d := te.engine.HandleNotificationClick("close"); d.Navigate {
		t.Error("close must not navigate")
	}
}

func TestParseMessage(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"type":"CACHE_URLS","urls":["/api/quotes"]}`))
	if err != nil {
		t.Fatalf("ParseMessage() error: %v", err)
	}
	if msg.Type != MessageCacheURLs || len(msg.URLs) != 1 {
		t.Errorf("msg = %+v", msg)
	}

	if _, err := ParseMessage([]byte("not json")); err == nil {
		t.Error("expected an error for malformed input")
	}
}
