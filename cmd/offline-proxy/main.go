// Command offline-proxy runs the offline engine as an edge server in front
// of a SPA origin. Every request is intercepted, answered from the tier
// store or the network per its caching strategy, and mirrored into the
// tiers for offline continuity.
package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/finsight/offline-proxy/pkg/config"
	"github.com/finsight/offline-proxy/pkg/connectivity"
	"github.com/finsight/offline-proxy/pkg/fetchintercept"
	"github.com/finsight/offline-proxy/pkg/lifecycle"
	"github.com/finsight/offline-proxy/pkg/logging"
	"github.com/finsight/offline-proxy/pkg/policy"
	"github.com/finsight/offline-proxy/pkg/push"
	"github.com/finsight/offline-proxy/pkg/replay"
	"github.com/finsight/offline-proxy/pkg/tier"
	"github.com/finsight/offline-proxy/pkg/worker"
)

func main() {
	cfg := loadConfig()

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Logging.Level),
		Pretty: cfg.Logging.Pretty,
	})
	logger = logger.With().Str("component", "offline-proxy").Logger()

	if cfg.Origin == "" {
		logger.Fatal().Msg("No origin configured (set ORIGIN or origin in the config file)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Could not connect to Redis")
	}
	logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")

	queue, err := replay.OpenLevelDBQueue(cfg.Replay.QueuePath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Replay.QueuePath).Msg("Could not open action queue")
	}
	defer queue.Close()

	httpClient := &http.Client{Timeout: 30 * time.Second}
	store := tier.NewRedisStore(redisClient)
	tracker := connectivity.NewTracker(redisClient, cfg.Sync.FailureThreshold, logging.NewLogger("connectivity"))
	classifier := policy.New(cfg.Policy.StaticExtensions, cfg.Policy.APIPrefix)

	interceptor := fetchintercept.New(store, classifier, httpClient, tracker, fetchintercept.Config{
		StaticTier:       cfg.Tiers.Static,
		APITier:          cfg.Tiers.API,
		DynamicTier:      cfg.Tiers.Dynamic,
		CriticalAPIPaths: cfg.Policy.CriticalAPIPaths,
	}, logging.NewLogger("fetchintercept"))

	replayer := replay.NewReplayer(queue, httpClient, replay.Backoff{
		Initial:    cfg.Replay.BackoffFloor(),
		Max:        cfg.Replay.BackoffCeiling(),
		Multiplier: 2.0,
	}, cfg.Replay.MaxAttempts, logging.NewLogger("replay"))

	relay := push.NewRelay(cfg.Push.Title, cfg.Push.DashboardPath, logging.NewLogger("push"))

	manager := lifecycle.NewManager(store, httpClient, nil, lifecycle.Config{
		StaticTier: cfg.Tiers.Static,
		Registry:   cfg.TierNames(),
		Manifest:   cfg.Precache,
		Origin:     cfg.Origin,
	}, logging.NewLogger("lifecycle"))

	engine := worker.New(manager, interceptor, replayer, relay, store, httpClient, worker.Config{
		APITier: cfg.Tiers.API,
		Origin:  cfg.Origin,
	}, logging.NewLogger("worker"))

	if err := engine.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Engine startup failed")
	}
	logger.Info().Str("version", cfg.Version).Strs("tiers", cfg.TierNames()).Msg("Engine active")

	tracker.Subscribe(engine.OnSyncTrigger)
	tracker.StartContentSync(ctx, cfg.Sync.ContentSyncEvery())

	server := &http.Server{
		Addr:    cfg.Listen,
		Handler: newRouter(engine, cfg, logger),
	}

	go func() {
		logger.Info().Str("addr", cfg.Listen).Str("origin", cfg.Origin).Msg("Edge server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Server shutdown incomplete")
	}
	if err := engine.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Background tasks did not finish")
	}
}

// loadConfig reads the config file when present and applies environment
// overrides on top.
func loadConfig() config.Config {
	path := getEnv("CONFIG_FILE", "config.yaml")

	var cfg config.Config
	if _, err := os.Stat(path); err == nil {
		cfg, err = config.Load(path)
		if err != nil {
			os.Stderr.WriteString("invalid config file " + path + ": " + err.Error() + "\n")
			os.Exit(1)
		}
	} else {
		cfg = config.Default()
	}

	if origin := os.Getenv("ORIGIN"); origin != "" {
		cfg.Origin = origin
	}
	if listen := os.Getenv("LISTEN"); listen != "" {
		cfg.Listen = listen
	}
	if addr := os.Getenv("REDIS_URL"); addr != "" {
		cfg.Redis.Addr = addr
	}
	return cfg
}

func newRouter(engine *worker.Engine, cfg config.Config, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/sw/message", func(w http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(io.LimitReader(req.Body, 1<<20))
		if err != nil {
			http.Error(w, "could not read message", http.StatusBadRequest)
			return
		}
		msg, err := worker.ParseMessage(body)
		if err != nil {
			http.Error(w, "malformed message", http.StatusBadRequest)
			return
		}
		if err := engine.HandleMessage(req.Context(), msg); err != nil {
			logger.Warn().Err(err).Str("type", msg.Type).Msg("Message handling failed")
			http.Error(w, "message handling failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	// Everything else is an intercepted application request.
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		originReq, err := buildOriginRequest(req, cfg.Origin)
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		resp, err := engine.HandleFetch(req.Context(), originReq)
		if err != nil {
			// Only passthrough (non-GET) errors reach here.
			http.Error(w, "origin unreachable", http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()

		for key, values := range resp.Header {
			for _, v := range values {
				w.Header().Add(key, v)
			}
		}
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil {
			logger.Debug().Err(err).Str("url", req.URL.Path).Msg("Response copy aborted")
		}
	})

	return r
}

// buildOriginRequest rebases an inbound edge request onto the origin.
func buildOriginRequest(req *http.Request, origin string) (*http.Request, error) {
	out, err := http.NewRequestWithContext(req.Context(), req.Method, origin+req.URL.RequestURI(), req.Body)
	if err != nil {
		return nil, err
	}
	for key, values := range req.Header {
		for _, v := range values {
			out.Header.Add(key, v)
		}
	}
	return out, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
