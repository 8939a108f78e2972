// Package lifecycle owns install, activation and the version-update
// handshake of the offline engine.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/finsight/offline-proxy/pkg/tier"
)

var (
	installsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_installs_total",
		Help: "Install attempts by result",
	}, []string{"result"}) // "ok", "failed"

	activationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "offline_activations_total",
		Help: "Completed activations",
	})
)

// State is the engine lifecycle state.
type State string

const (
	StateNew        State = "new"
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActivating State = "activating"
	StateActive     State = "active"
	StateRedundant  State = "redundant"
)

// ErrState indicates an operation was attempted in the wrong state.
var ErrState = errors.New("invalid lifecycle state")

// Fetcher performs a network fetch. *http.Client satisfies it.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientRegistry claims open page instances for the current engine version.
// The platform owns the registration set; the engine only claims it.
type ClientRegistry interface {
	Claim(ctx context.Context) error
}

// FuncRegistry adapts a function to the ClientRegistry interface.
type FuncRegistry func(ctx context.Context) error

// Claim implements ClientRegistry.
func (f FuncRegistry) Claim(ctx context.Context) error { return f(ctx) }

// Config holds the manager's immutable configuration.
type Config struct {
	// StaticTier is the tier pre-populated during install.
	StaticTier string

	// Registry is the current tier set; activation evicts everything else.
	Registry []string

	// Manifest lists absolute paths to precache, resolved against Origin.
	Manifest []string

	// Origin is the base URL the manifest is fetched from.
	Origin string

	// Concurrency bounds the precache worker pool. Defaults to 4.
	Concurrency int
}

// Manager drives the install -> installed -> activating -> active state
// machine. Transitions are serialized.
type Manager struct {
	mu          sync.Mutex
	state       State
	skipWaiting bool

	store   tier.Store
	fetch   Fetcher
	clients ClientRegistry
	cfg     Config
	logger  zerolog.Logger
}

// NewManager creates a lifecycle manager in StateNew.
func NewManager(store tier.Store, fetch Fetcher, clients ClientRegistry, cfg Config, logger zerolog.Logger) *Manager {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Manager{
		state:   StateNew,
		store:   store,
		fetch:   fetch,
		clients: clients,
		cfg:     cfg,
		logger:  logger,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SkipWaiting signals that the engine should take over immediately on the
// next activation, without waiting for open pages to close.
func (m *Manager) SkipWaiting() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipWaiting = true
	m.logger.Info().Msg("Skip-waiting requested")
}

// SkipWaitingRequested reports whether the handshake signal was received.
func (m *Manager) SkipWaitingRequested() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.skipWaiting
}

// Install pre-populates the static tier from the manifest, all or nothing.
// Every manifest entry is fetched before any snapshot is written; a single
// failure aborts the install with the tier untouched and the manager
// redundant.
func (m *Manager) Install(ctx context.Context) error {
	if err := m.transition(StateNew, StateInstalling); err != nil {
		return err
	}
	m.logger.Info().Int("entries", len(m.cfg.Manifest)).Msg("Installing: precaching manifest")

	snapshots, err := m.precache(ctx)
	if err != nil {
		m.setState(StateRedundant)
		installsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("precache manifest: %w", err)
	}

	for path, snap := range snapshots {
		id := tier.Identity{Method: http.MethodGet, URL: m.cfg.Origin + path}
		if err := m.store.Put(ctx, m.cfg.StaticTier, id, snap); err != nil {
			m.setState(StateRedundant)
			installsTotal.WithLabelValues("failed").Inc()
			return fmt.Errorf("store precached %s: %w", path, err)
		}
	}

	m.setState(StateInstalled)
	installsTotal.WithLabelValues("ok").Inc()
	m.logger.Info().Str("tier", m.cfg.StaticTier).Msg("Install complete")
	return nil
}

// Activate reconciles the physical tier set against the registry and claims
// all open clients. Postcondition: exactly the registry tiers are present.
func (m *Manager) Activate(ctx context.Context) error {
	if err := m.transition(StateInstalled, StateActivating); err != nil {
		return err
	}

	names, err := m.store.TierNames(ctx)
	if err != nil {
		m.setState(StateRedundant)
		return fmt.Errorf("list tiers: %w", err)
	}

	current := make(map[string]bool, len(m.cfg.Registry))
	for _, name := range m.cfg.Registry {
		current[name] = true
	}

	for _, name := range names {
		if current[name] {
			continue
		}
		m.logger.Info().Str("tier", name).Msg("Evicting stale tier")
		if err := m.store.DropTier(ctx, name); err != nil {
			m.setState(StateRedundant)
			return fmt.Errorf("drop tier %s: %w", name, err)
		}
		tier.TiersDropped.Inc()
	}

	if m.clients != nil {
		if err := m.clients.Claim(ctx); err != nil {
			// Claiming is best-effort; pages pick up the new version on
			// their next navigation anyway.
			m.logger.Warn().Err(err).Msg("Could not claim clients")
		}
	}

	m.setState(StateActive)
	activationsTotal.Inc()
	m.logger.Info().Strs("registry", m.cfg.Registry).Msg("Activation complete")
	return nil
}

func (m *Manager) transition(from, to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != from {
		return fmt.Errorf("%w: %s -> %s (currently %s)", ErrState, from, to, m.state)
	}
	m.state = to
	return nil
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}
