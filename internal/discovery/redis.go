package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/nexuslb/nexus/internal/registry"
)

// RedisSource shares backend membership across a fleet of Nexus instances
// the way the teacher's RedisRegistry/RedisDiscovery share agent membership
// (core/redis_registry.go, core/redis_discovery.go): Announce writes one
// backend into a namespaced Redis hash, and Sync reads every entry of that
// hash back, registering the ones not yet present. Neither the discovery
// Loop nor Sync calls Announce, and Sync never removes a backend.
type RedisSource struct {
	client    *redis.Client
	namespace string
	selfID    string
}

// NewRedisSource connects to redisURL under namespace (default "nexus" when
// empty). selfID is stored on the source; Sync does not read it.
func NewRedisSource(redisURL, namespace, selfID string) (*RedisSource, error) {
	if namespace == "" {
		namespace = "nexus"
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("discovery: parse redis url: %w", err)
	}
	return &RedisSource{client: redis.NewClient(opt), namespace: namespace, selfID: selfID}, nil
}

func (s *RedisSource) Name() string { return "redis" }

// Announce publishes a backend under the shared set so other instances'
// Sync calls observe it.
func (s *RedisSource) Announce(ctx context.Context, b registry.Backend) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("discovery: marshal backend %s: %w", b.ID, err)
	}
	key := s.namespace + ":backends"
	if err := s.client.HSet(ctx, key, b.ID, payload).Err(); err != nil {
		return fmt.Errorf("discovery: announce backend %s: %w", b.ID, err)
	}
	return s.client.Expire(ctx, key, 24*time.Hour).Err()
}

func (s *RedisSource) Sync(ctx context.Context, reg *registry.Registry) ([]string, error) {
	key := s.namespace + ":backends"
	raw, err := s.client.HGetAll(ctx, key).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("discovery: redis sync: %w", err)
	}

	ids := make([]string, 0, len(raw))
	for id, payload := range raw {
		var b registry.Backend
		if err := json.Unmarshal([]byte(payload), &b); err != nil {
			continue // skip malformed entries rather than aborting the whole sync
		}
		if _, ok := reg.GetBackend(id); !ok {
			b.DiscoverySource = registry.DiscoveryManual
			_ = reg.AddBackend(b)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
