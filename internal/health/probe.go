// Package health implements the health-check probe loop collaborator named
// in spec §2's data flow and §4.1's update_status operation, grounded in
// the teacher's StartHeartbeat ticker-goroutine idiom
// (core/redis_registry.go). It writes only Backend.status,
// last_health_check, and last_error — it never touches the quality store,
// which tracks a separate per-spec independent signal (§9).
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/nexuslb/nexus/internal/logging"
	"github.com/nexuslb/nexus/internal/registry"
)

// Prober checks one backend's liveness. The default implementation issues a
// GET against a configurable path (typically /v1/models or /api/tags); a
// test can substitute any Prober.
type Prober interface {
	Probe(ctx context.Context, b registry.BackendView) error
}

// HTTPProber issues an HTTP GET to base+Path and treats any 2xx response as
// healthy.
type HTTPProber struct {
	Path   string
	Client *http.Client
}

// NewHTTPProber builds an HTTPProber with a 5s timeout client.
func NewHTTPProber(path string) *HTTPProber {
	if path == "" {
		path = "/v1/models"
	}
	return &HTTPProber{Path: path, Client: &http.Client{Timeout: 5 * time.Second}}
}

func (p *HTTPProber) Probe(ctx context.Context, b registry.BackendView) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.URL+p.Path, nil)
	if err != nil {
		return err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &unhealthyStatusError{code: resp.StatusCode}
	}
	return nil
}

type unhealthyStatusError struct{ code int }

func (e *unhealthyStatusError) Error() string {
	return http.StatusText(e.code)
}

// Loop polls every registered backend on an interval and writes the
// resulting status via Registry.UpdateStatus.
type Loop struct {
	registry *registry.Registry
	prober   Prober
	interval time.Duration
	log      logging.Logger
}

// NewLoop builds a health check Loop. interval defaults to 15s.
func NewLoop(reg *registry.Registry, prober Prober, interval time.Duration, log logging.Logger) *Loop {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Loop{registry: reg, prober: prober, interval: interval, log: log}
}

// Run blocks, probing every backend once immediately and then on each tick,
// until ctx is cancelled. No uncaught probe failure terminates the loop
// (spec §7): a panic-free Prober is assumed, but any returned error is
// simply recorded as the backend's unhealthy status.
func (l *Loop) Run(ctx context.Context) {
	l.probeAll(ctx)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.probeAll(ctx)
		}
	}
}

func (l *Loop) probeAll(ctx context.Context) {
	for _, b := range l.registry.GetAllBackends() {
		err := l.prober.Probe(ctx, b)
		status := registry.StatusHealthy
		if err != nil {
			status = registry.StatusUnhealthy
		}
		if uerr := l.registry.UpdateStatus(b.ID, status, err); uerr != nil && l.log != nil {
			l.log.Warn("health: update status failed", map[string]interface{}{
				"backend_id": b.ID,
				"error":      uerr.Error(),
			})
		}
	}
}
