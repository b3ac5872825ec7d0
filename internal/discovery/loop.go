package discovery

import (
	"context"
	"time"

	"github.com/nexuslb/nexus/internal/logging"
	"github.com/nexuslb/nexus/internal/registry"
)

// Loop periodically syncs every configured Source into the registry,
// grounded in the teacher's StartHeartbeat ticker idiom
// (core/redis_discovery.go) applied to backend membership instead of
// liveness pings.
type Loop struct {
	sources  []Source
	registry *registry.Registry
	interval time.Duration
	log      logging.Logger
}

// NewLoop builds a discovery Loop. interval defaults to 30s.
func NewLoop(reg *registry.Registry, sources []Source, interval time.Duration, log logging.Logger) *Loop {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Loop{sources: sources, registry: reg, interval: interval, log: log}
}

// Run blocks, syncing every source once immediately and then on each tick,
// until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	l.syncAll(ctx)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.syncAll(ctx)
		}
	}
}

func (l *Loop) syncAll(ctx context.Context) {
	for _, src := range l.sources {
		if _, err := src.Sync(ctx, l.registry); err != nil && l.log != nil {
			l.log.Warn("discovery sync failed", map[string]interface{}{
				"source": src.Name(),
				"error":  err.Error(),
			})
		}
	}
}
