// Package config loads Nexus's static configuration from a TOML file (spec
// §6.2), generalizing the teacher's three-layer "defaults, then env
// overrides, then validate" loading style (core/config.go) from JSON+env to
// TOML+env. Secret-bearing fields (backend API keys, a Redis URL with an
// embedded password) can be supplied through environment variables instead
// of the TOML file; when both are set, the environment value wins.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/nexuslb/nexus/internal/registry"
	"github.com/nexuslb/nexus/pkg/nexuserrors"
)

// QualitySection is spec §6.2's `quality` table.
type QualitySection struct {
	ErrorRateThreshold     float64 `toml:"error_rate_threshold"`
	TTFTPenaltyThresholdMs uint32  `toml:"ttft_penalty_threshold_ms"`
	MetricsIntervalSeconds uint64  `toml:"metrics_interval_seconds"`
}

// QueueSection is spec §6.2's `queue` table.
type QueueSection struct {
	Enabled        bool   `toml:"enabled"`
	MaxSize        uint32 `toml:"max_size"`
	MaxWaitSeconds uint64 `toml:"max_wait_seconds"`
}

// RoutingWeights is the `routing.weights` subtable.
type RoutingWeights struct {
	Priority float64 `toml:"priority"`
	Load     float64 `toml:"load"`
	Latency  float64 `toml:"latency"`
}

// RoutingSection is spec §6.2's `routing` table.
type RoutingSection struct {
	Strategy  string              `toml:"strategy"`
	Weights   RoutingWeights      `toml:"weights"`
	Aliases   map[string]string   `toml:"aliases"`
	Fallbacks map[string][]string `toml:"fallbacks"`
	// PendingCap is the per-backend pending-request count (spec §9's
	// saturation predicate: all filtered candidates at or above this cap
	// triggers the Queue decision) and the Scheduler's load-term
	// normalization constant.
	PendingCap uint32 `toml:"pending_cap"`
	// LatencyCapMs is the Scheduler's latency-term normalization constant.
	LatencyCapMs uint32 `toml:"latency_cap_ms"`
}

// BackendSeed is one entry of spec §6.2's `backends` static seed list.
type BackendSeed struct {
	Name     string            `toml:"name"`
	URL      string            `toml:"url"`
	Type     string            `toml:"type"`
	Priority int               `toml:"priority"`
	Metadata map[string]string `toml:"metadata"`
}

// DiscoverySection configures the optional mDNS and Redis backend-discovery
// sources (spec §3.1's `discovery_source` domain includes `mdns`; the
// static seed list always runs, these two are opt-in). Empty fields leave
// the corresponding source unconstructed.
type DiscoverySection struct {
	MDNSServiceName string `toml:"mdns_service_name"`
	MDNSBackendType string `toml:"mdns_backend_type"`
	RedisURL        string `toml:"redis_url"`
	RedisNamespace  string `toml:"redis_namespace"`
}

// ServerSection configures the HTTP collaborator's bind address — ambient,
// not named by spec §6.2, but every control plane needs one.
type ServerSection struct {
	Address         string        `toml:"address"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

// LoggingSection configures internal/logging.
type LoggingSection struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// TracingSection configures internal/telemetry's OTLP/gRPC exporter.
// Endpoint empty disables span export entirely.
type TracingSection struct {
	Endpoint string `toml:"endpoint"`
}

// Config is the fully parsed, defaulted, and validated configuration file.
type Config struct {
	Server    ServerSection    `toml:"server"`
	Logging   LoggingSection   `toml:"logging"`
	Tracing   TracingSection   `toml:"tracing"`
	Quality   QualitySection   `toml:"quality"`
	Queue     QueueSection     `toml:"queue"`
	Routing   RoutingSection   `toml:"routing"`
	Discovery DiscoverySection `toml:"discovery"`
	Backends  []BackendSeed    `toml:"backends"`
}

// Default returns a Config populated with spec §6.2's documented defaults.
func Default() *Config {
	return &Config{
		Server: ServerSection{
			Address:         ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingSection{
			Level:  "info",
			Format: "json",
		},
		Quality: QualitySection{
			ErrorRateThreshold:     0.5,
			TTFTPenaltyThresholdMs: 3000,
			MetricsIntervalSeconds: 30,
		},
		Queue: QueueSection{
			Enabled:        true,
			MaxSize:        100,
			MaxWaitSeconds: 30,
		},
		Routing: RoutingSection{
			Strategy:     "smart",
			Weights:      RoutingWeights{Priority: 50, Load: 30, Latency: 20},
			PendingCap:   4,
			LatencyCapMs: 5000,
		},
	}
}

// Load reads and parses a TOML file at path over the documented defaults,
// then applies environment overrides for secret-bearing fields.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, nexuserrors.New("config.Load", "config", path, err))
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets operators inject secrets (backend API keys embedded
// in metadata, the bind address) without writing them to the TOML file,
// mirroring the teacher's GOMIND_* env-override convention in core/config.go
// but scoped to just the fields that are actually secret-shaped.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("NEXUS_ADDRESS"); v != "" {
		c.Server.Address = v
	}
	if v := os.Getenv("NEXUS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("NEXUS_TRACING_ENDPOINT"); v != "" {
		c.Tracing.Endpoint = v
	}
	if v := os.Getenv("NEXUS_DISCOVERY_REDIS_URL"); v != "" {
		c.Discovery.RedisURL = v
	}
	for i := range c.Backends {
		envKey := "NEXUS_BACKEND_" + sanitizeEnvKey(c.Backends[i].Name) + "_API_KEY"
		if v := os.Getenv(envKey); v != "" {
			if c.Backends[i].Metadata == nil {
				c.Backends[i].Metadata = make(map[string]string)
			}
			c.Backends[i].Metadata["api_key"] = v
		}
	}
}

func sanitizeEnvKey(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
			out[i] = c - 'a' + 'A'
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			out[i] = c
		default:
			out[i] = '_'
		}
	}
	return string(out)
}

// Validate checks structural invariants that the Reconciler and Queue
// packages rely on.
func (c *Config) Validate() error {
	if c.Queue.Enabled && c.Queue.MaxSize == 0 {
		// Not an error per se (spec's effective-enable predicate handles
		// this), but worth normalizing so callers don't have to re-derive it.
		c.Queue.Enabled = false
	}
	switch c.Routing.Strategy {
	case "smart", "round_robin", "priority_only", "random", "":
	default:
		return nexuserrors.New("config.Validate", "config", c.Routing.Strategy, nexuserrors.ErrInvalidConfiguration)
	}
	for _, b := range c.Backends {
		if b.URL == "" {
			return nexuserrors.New("config.Validate", "config", b.Name, nexuserrors.ErrMissingConfiguration)
		}
	}
	return nil
}

// BackendSeeds converts the parsed static seed list to registry.Backend
// values ready for Registry.AddBackend.
func (c *Config) BackendSeeds() []registry.Backend {
	out := make([]registry.Backend, 0, len(c.Backends))
	for _, b := range c.Backends {
		out = append(out, registry.Backend{
			ID:              b.Name,
			Name:            b.Name,
			URL:             b.URL,
			BackendType:     registry.BackendType(b.Type),
			Priority:        b.Priority,
			DiscoverySource: registry.DiscoveryStatic,
			Metadata:        b.Metadata,
		})
	}
	return out
}
