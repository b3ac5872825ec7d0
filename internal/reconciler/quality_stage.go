package reconciler

import (
	"fmt"

	"github.com/nexuslb/nexus/internal/quality"
)

// QualityConfig tunes QualityReconciler's exclusion threshold (spec §4.4).
type QualityConfig struct {
	// ErrorRateThreshold excludes a candidate once its trailing-1h error
	// rate meets or exceeds this fraction. Zero disables exclusion.
	ErrorRateThreshold float64
}

// DefaultQualityConfig matches spec §6.2's documented defaults.
func DefaultQualityConfig() QualityConfig {
	return QualityConfig{ErrorRateThreshold: 0.5}
}

// QualityReconciler excludes candidates whose recent error rate crosses
// the configured threshold, reading from the lock-free quality.Store
// snapshot (spec §4.4; store mechanics in internal/quality).
type QualityReconciler struct {
	store  *quality.Store
	config QualityConfig
}

func NewQualityReconciler(store *quality.Store, cfg QualityConfig) *QualityReconciler {
	return &QualityReconciler{store: store, config: cfg}
}

func (q *QualityReconciler) Name() string { return "quality" }

// Reconcile applies spec §4.4's exact exclusion rule: a candidate with zero
// request history AND no recorded last-failure timestamp gets the
// new-backend grace and is never excluded here, regardless of its
// (zero-value) error rate. Every other candidate is excluded once
// error_rate_1h meets or exceeds the threshold.
func (q *QualityReconciler) Reconcile(intent *RoutingIntent) {
	if q.config.ErrorRateThreshold <= 0 || len(intent.CandidateAgents) == 0 {
		return
	}

	for _, id := range append([]string(nil), intent.CandidateAgents...) {
		m := q.store.GetMetrics(id)
		if m.LastFailureTs == nil && m.RequestCount1h == 0 {
			continue
		}
		if m.ErrorRate1h >= q.config.ErrorRateThreshold {
			reason := fmt.Sprintf("Error rate %.0f%% exceeds threshold %.0f%%", m.ErrorRate1h*100, q.config.ErrorRateThreshold*100)
			intent.Exclude(id, q.Name(), reason, "Wait for agent error rate to decrease")
		}
	}
}
