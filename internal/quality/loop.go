package quality

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nexuslb/nexus/internal/logging"
)

// Gauges bundles the Prometheus instruments the quality loop publishes to,
// per spec §6.3.
type Gauges struct {
	ErrorRate       *prometheus.GaugeVec
	TTFTSeconds     *prometheus.GaugeVec
	SuccessRate24h  *prometheus.GaugeVec
	RequestCount1h  *prometheus.GaugeVec
}

// NewGauges registers the quality gauges on reg.
func NewGauges(reg prometheus.Registerer) *Gauges {
	g := &Gauges{
		ErrorRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nexus_agent_error_rate",
			Help: "1h error rate per backend.",
		}, []string{"agent_id"}),
		TTFTSeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nexus_agent_ttft_seconds",
			Help: "Average time-to-first-token per backend, in seconds.",
		}, []string{"agent_id"}),
		SuccessRate24h: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nexus_agent_success_rate_24h",
			Help: "24h success rate per backend.",
		}, []string{"agent_id"}),
		RequestCount1h: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nexus_agent_request_count_1h",
			Help: "Request count in the trailing hour, per backend.",
		}, []string{"agent_id"}),
	}
	reg.MustRegister(g.ErrorRate, g.TTFTSeconds, g.SuccessRate24h, g.RequestCount1h)
	return g
}

// Loop drives periodic recomputation of the quality store and publishes the
// resulting aggregates as Prometheus gauges. It mirrors the teacher's
// ticker-goroutine-with-cancellation idiom (RedisDiscovery.StartHeartbeat).
type Loop struct {
	store    *Store
	gauges   *Gauges
	interval time.Duration
	log      logging.Logger
}

// NewLoop builds a Loop that recomputes every interval.
func NewLoop(store *Store, gauges *Gauges, interval time.Duration, log logging.Logger) *Loop {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Loop{store: store, gauges: gauges, interval: interval, log: log}
}

// Run blocks until ctx is cancelled, recomputing and publishing on each tick.
// A panic recovering from one tick never corrupts state for the next: each
// tick starts from the store's current bucket contents, not from loop-local
// state, so a recovered panic just means that tick's gauges are stale.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick()
		}
	}
}

func (l *Loop) tick() {
	defer func() {
		if r := recover(); r != nil && l.log != nil {
			l.log.Error("quality recompute panicked, recovering for next cycle", map[string]interface{}{
				"panic": r,
			})
		}
	}()

	l.store.RecomputeAll()
	if l.gauges == nil {
		return
	}
	for agentID, m := range l.store.GetAllMetrics() {
		l.gauges.ErrorRate.WithLabelValues(agentID).Set(m.ErrorRate1h)
		l.gauges.TTFTSeconds.WithLabelValues(agentID).Set(m.AvgTTFTMs / 1000.0)
		l.gauges.SuccessRate24h.WithLabelValues(agentID).Set(m.SuccessRate24h)
		l.gauges.RequestCount1h.WithLabelValues(agentID).Set(float64(m.RequestCount1h))
	}
}
