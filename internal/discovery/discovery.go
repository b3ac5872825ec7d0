// Package discovery implements the backend discovery sources named by spec
// §3.1's `discovery_source` field (static, manual, mdns) plus an optional
// Redis-backed source for multi-node deployments, generalized from the
// teacher's RedisDiscovery/RedisRegistry (core/redis_discovery.go,
// core/redis_registry.go). Discovery never decides health — a Source only
// ever produces or removes registry.Backend entries; internal/health owns
// status transitions.
package discovery

import (
	"context"

	"github.com/nexuslb/nexus/internal/registry"
)

// Source discovers backends from one origin (static config, mDNS LAN
// broadcast, Redis shared registry) and reconciles them into reg.
type Source interface {
	// Name identifies the source for logging.
	Name() string
	// Sync performs one discovery pass, adding newly found backends to reg
	// and returning the ids it currently observes. Loop discards the
	// returned ids: a backend a source stops reporting stays registered.
	Sync(ctx context.Context, reg *registry.Registry) ([]string, error)
}

// StaticSource registers a fixed seed list exactly once; Sync after the
// first call is a no-op since the list cannot change at runtime (spec
// §6.2's `backends` table is read once at startup).
type StaticSource struct {
	seeds     []registry.Backend
	registered bool
}

// NewStaticSource builds a Source from the config-file seed list.
func NewStaticSource(seeds []registry.Backend) *StaticSource {
	return &StaticSource{seeds: seeds}
}

func (s *StaticSource) Name() string { return "static" }

func (s *StaticSource) Sync(ctx context.Context, reg *registry.Registry) ([]string, error) {
	ids := make([]string, 0, len(s.seeds))
	if s.registered {
		for _, b := range s.seeds {
			ids = append(ids, b.ID)
		}
		return ids, nil
	}
	for _, b := range s.seeds {
		b.DiscoverySource = registry.DiscoveryStatic
		if err := reg.AddBackend(b); err != nil {
			return ids, err
		}
		ids = append(ids, b.ID)
	}
	s.registered = true
	return ids, nil
}

// ManualSource wraps ad-hoc operator registrations (an admin API adding a
// backend at runtime) behind the same Source contract used by the
// discovery loop, so manually-added backends are tracked identically to
// auto-discovered ones.
type ManualSource struct {
	pending []registry.Backend
}

// NewManualSource builds an empty ManualSource; Add queues a backend for
// the next Sync call.
func NewManualSource() *ManualSource { return &ManualSource{} }

func (m *ManualSource) Name() string { return "manual" }

// Add queues a backend to be registered on the next Sync.
func (m *ManualSource) Add(b registry.Backend) {
	b.DiscoverySource = registry.DiscoveryManual
	m.pending = append(m.pending, b)
}

func (m *ManualSource) Sync(ctx context.Context, reg *registry.Registry) ([]string, error) {
	ids := make([]string, 0, len(m.pending))
	for _, b := range m.pending {
		if err := reg.AddBackend(b); err != nil {
			return ids, err
		}
		ids = append(ids, b.ID)
	}
	m.pending = nil
	return ids, nil
}
