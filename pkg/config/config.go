// Package config holds the immutable engine configuration.
//
// Tier names, the precache manifest and the critical-API allow-list are
// deliberately configuration rather than package-level constants so tests
// and deployments can substitute their own sets.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full engine configuration. Load validates and compiles it;
// after that it is treated as read-only.
type Config struct {
	// Listen is the HTTP listen address of the edge server.
	Listen string `yaml:"listen"`

	// Origin is the base URL of the SPA origin server, e.g. "http://app:3000".
	Origin string `yaml:"origin"`

	// Version tags the current tier set. Changing it makes activation
	// evict every tier carrying the previous tag.
	Version string `yaml:"version"`

	Tiers    Tiers    `yaml:"tiers"`
	Policy   Policy   `yaml:"policy"`
	Precache []string `yaml:"precache"`
	Replay   Replay   `yaml:"replay"`
	Sync     Sync     `yaml:"sync"`
	Push     Push     `yaml:"push"`
	Redis    Redis    `yaml:"redis"`
	Logging  Logging  `yaml:"logging"`
}

// Tiers names the three cache tiers. Empty names are derived from Version.
type Tiers struct {
	Static  string `yaml:"static"`
	API     string `yaml:"api"`
	Dynamic string `yaml:"dynamic"`
}

// Policy configures request classification and offline fallbacks.
type Policy struct {
	// StaticExtensions lists path suffixes served cache-first.
	StaticExtensions []string `yaml:"staticExtensions"`

	// APIPrefix is the API namespace served network-first.
	APIPrefix string `yaml:"apiPrefix"`

	// CriticalAPIPaths are API prefixes that get the structured
	// offline JSON fallback instead of a generic 503.
	CriticalAPIPaths []string `yaml:"criticalApiPaths"`
}

// Replay configures the deferred-action queue and replayer.
type Replay struct {
	// QueuePath is the leveldb directory for the durable queue.
	QueuePath string `yaml:"queuePath"`

	// MaxAttempts drops an action after this many failed replays.
	// 0 retries forever.
	MaxAttempts int `yaml:"maxAttempts"`

	InitialBackoff string `yaml:"initialBackoff"`
	MaxBackoff     string `yaml:"maxBackoff"`

	// compiled
	initialBackoffDur time.Duration
	maxBackoffDur     time.Duration
}

// Sync configures the replay triggers.
type Sync struct {
	// FailureThreshold is the number of consecutive transport failures
	// before the engine considers itself offline.
	FailureThreshold int `yaml:"failureThreshold"`

	// ContentSyncInterval is the periodic fallback trigger cadence.
	ContentSyncInterval string `yaml:"contentSyncInterval"`

	// compiled
	contentSyncDur time.Duration
}

// Push configures the notification relay.
type Push struct {
	Title         string `yaml:"title"`
	Icon          string `yaml:"icon"`
	Badge         string `yaml:"badge"`
	DashboardPath string `yaml:"dashboardPath"`
}

// Redis configures the tier store and connectivity state backend.
type Redis struct {
	Addr string `yaml:"addr"`
	DB   int    `yaml:"db"`
}

// Logging configures the zerolog setup.
type Logging struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.compile(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns a configuration with every field at its default value.
// Origin is left empty; the edge server requires it, library use does not.
func Default() Config {
	cfg := Config{}
	if err := cfg.compile(); err != nil {
		panic(err)
	}
	return cfg
}

func (c *Config) compile() error {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	c.Origin = strings.TrimRight(c.Origin, "/")
	if c.Version == "" {
		c.Version = "v1"
	}
	if c.Tiers.Static == "" {
		c.Tiers.Static = "static-" + c.Version
	}
	if c.Tiers.API == "" {
		c.Tiers.API = "api-" + c.Version
	}
	if c.Tiers.Dynamic == "" {
		c.Tiers.Dynamic = "dynamic-" + c.Version
	}
	if len(c.Policy.StaticExtensions) == 0 {
		c.Policy.StaticExtensions = []string{
			".js", ".css", ".png", ".jpg", ".jpeg", ".gif", ".svg",
			".ico", ".woff", ".woff2", ".ttf", ".eot",
		}
	}
	if c.Policy.APIPrefix == "" {
		c.Policy.APIPrefix = "/api/"
	}
	if len(c.Policy.CriticalAPIPaths) == 0 {
		c.Policy.CriticalAPIPaths = []string{
			"/api/portfolio", "/api/watchlist", "/api/quotes",
		}
	}
	if len(c.Precache) == 0 {
		c.Precache = []string{
			"/", "/index.html", "/static/js/main.js", "/static/css/main.css",
			"/manifest.json", "/icons/icon-192.png",
		}
	}
	for i, p := range c.Precache {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("precache[%d]: %q is not an absolute path", i, p)
		}
	}
	if c.Replay.QueuePath == "" {
		c.Replay.QueuePath = "./data/actions"
	}
	if c.Replay.MaxAttempts < 0 {
		return fmt.Errorf("replay.maxAttempts must be >= 0 (got %d)", c.Replay.MaxAttempts)
	}
	var err error
	if c.Replay.initialBackoffDur, err = parseDuration(c.Replay.InitialBackoff, 30*time.Second); err != nil {
		return fmt.Errorf("replay.initialBackoff: %w", err)
	}
	if c.Replay.maxBackoffDur, err = parseDuration(c.Replay.MaxBackoff, 15*time.Minute); err != nil {
		return fmt.Errorf("replay.maxBackoff: %w", err)
	}
	if c.Sync.FailureThreshold == 0 {
		c.Sync.FailureThreshold = 3
	}
	if c.Sync.contentSyncDur, err = parseDuration(c.Sync.ContentSyncInterval, 15*time.Minute); err != nil {
		return fmt.Errorf("sync.contentSyncInterval: %w", err)
	}
	if c.Push.Title == "" {
		c.Push.Title = "FinSight"
	}
	if c.Push.DashboardPath == "" {
		c.Push.DashboardPath = "/dashboard"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	return nil
}

func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	return time.ParseDuration(s)
}

// TierNames returns the current tier registry: the set of names activation
// must leave physically present.
func (c Config) TierNames() []string {
	return []string{c.Tiers.Static, c.Tiers.API, c.Tiers.Dynamic}
}

// BackoffFloor returns the compiled initial replay backoff.
func (r Replay) BackoffFloor() time.Duration { return r.initialBackoffDur }

// BackoffCeiling returns the compiled maximum replay backoff.
func (r Replay) BackoffCeiling() time.Duration { return r.maxBackoffDur }

// ContentSyncEvery returns the compiled periodic trigger cadence.
func (s Sync) ContentSyncEvery() time.Duration { return s.contentSyncDur }
