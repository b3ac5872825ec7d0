package reconciler

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nexuslb/nexus/internal/quality"
	"github.com/nexuslb/nexus/internal/registry"
	"github.com/nexuslb/nexus/pkg/nexuserrors"
)

// Strategy selects how SchedulerReconciler picks a winner among candidates
// that survive filter_candidates (spec §4.3.5).
type Strategy string

const (
	StrategySmart        Strategy = "smart"
	StrategyRoundRobin   Strategy = "round_robin"
	StrategyPriorityOnly Strategy = "priority_only"
	StrategyRandom       Strategy = "random"
)

// SchedulerConfig tunes the terminal stage (spec §6.2's routing section).
type SchedulerConfig struct {
	Strategy Strategy

	// Weights for StrategySmart; spec defaults are Wp=50, Wl=30, Wlat=20.
	PriorityWeight float64
	LoadWeight     float64
	LatencyWeight  float64

	// PendingCap and LatencyCapMs are the normalization constants in the
	// Smart scoring formula (spec §4.3.3) and double as the saturation
	// signal for the queue decision (spec §4.3.6): a candidate set is
	// saturated when every member has pending_requests >= PendingCap.
	PendingCap    uint32
	LatencyCapMs  uint32

	// TTFTThresholdMs is Tth in the proportional-penalty formula (spec
	// §4.3.4): penalty = floor(score * min((T-Tth)/Tth, 1.0)), applied only
	// under StrategySmart. Zero disables the penalty.
	TTFTThresholdMs float64

	// FallbackChains maps a resolved model name to an ordered, one-level
	// fallback sequence (spec §3.9): a fallback's own fallbacks are never
	// consulted.
	FallbackChains map[string][]string

	QueueEnabled bool
}

// DefaultSchedulerConfig matches spec §6.2's documented defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Strategy:        StrategySmart,
		PriorityWeight:  50,
		LoadWeight:      30,
		LatencyWeight:   20,
		PendingCap:      4,
		LatencyCapMs:    5000,
		TTFTThresholdMs: 3000,
		QueueEnabled:    true,
	}
}

// SchedulerMetrics bundles the Prometheus instruments the terminal stage
// publishes to (spec §6.3: nexus_fallbacks_total).
type SchedulerMetrics struct {
	FallbacksTotal *prometheus.CounterVec
}

func NewSchedulerMetrics(reg prometheus.Registerer) *SchedulerMetrics {
	m := &SchedulerMetrics{
		FallbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_fallbacks_total",
			Help: "Count of requests routed via a fallback model.",
		}, []string{"from_model", "to_model"}),
	}
	reg.MustRegister(m.FallbacksTotal)
	return m
}

// SchedulerReconciler is the terminal stage: it re-applies health and
// capability filtering over whatever candidates survived the earlier
// stages (filter_candidates, spec §4.3.2), scores them, and always sets
// intent.Decision. A fallback model attempt performs a fresh model index
// lookup and capability filter directly against the registry, bypassing
// Privacy/Budget/Tier/Quality entirely — those stages only ever evaluated
// the primary model's candidates (spec §4.3.5).
type SchedulerReconciler struct {
	registry *registry.Registry
	quality  *quality.Store
	config   SchedulerConfig
	metrics  *SchedulerMetrics

	roundRobinCounter atomic.Uint64
}

func NewSchedulerReconciler(reg *registry.Registry, qualityStore *quality.Store, cfg SchedulerConfig, metrics *SchedulerMetrics) *SchedulerReconciler {
	return &SchedulerReconciler{registry: reg, quality: qualityStore, config: cfg, metrics: metrics}
}

func (s *SchedulerReconciler) Name() string { return "scheduler" }

func (s *SchedulerReconciler) Reconcile(intent *RoutingIntent) {
	req := intent.Requirements
	primary := intent.ResolvedModel

	candidates := s.filterCandidates(intent.CandidateAgents, req)
	if len(candidates) > 0 {
		s.finalizeDecision(intent, candidates, primary, primary, false)
		return
	}

	// filter_candidates returned empty: walk the one-level fallback chain
	// (spec §4.3.5). A saturated-but-nonempty primary set never falls
	// through to here — that's handled entirely inside finalizeDecision.
	chain := s.config.FallbackChains[primary]
	for _, fallbackModel := range chain {
		fresh := s.registry.GetBackendsForModel(fallbackModel)
		ids := make([]string, len(fresh))
		for i, v := range fresh {
			ids[i] = v.ID
		}
		fallbackCandidates := s.filterCandidates(ids, req)
		if len(fallbackCandidates) == 0 {
			continue
		}
		if s.metrics != nil {
			s.metrics.FallbacksTotal.WithLabelValues(primary, fallbackModel).Inc()
		}
		s.finalizeDecision(intent, fallbackCandidates, fallbackModel, primary, true)
		return
	}

	if len(chain) > 0 {
		fullChain := append([]string{primary}, chain...)
		err := &nexuserrors.FallbackChainExhaustedError{Chain: fullChain}
		intent.AddRejectionReason(err.Error())
		intent.Decision = &RoutingDecision{
			Kind:             DecisionReject,
			RejectionReasons: intent.RejectionReasons,
			HTTPStatus:       404,
			ErrorCode:        "model_not_found",
			FallbackChain:    fullChain,
		}
		return
	}

	s.rejectNoChain(intent, primary)
}

func (s *SchedulerReconciler) rejectNoChain(intent *RoutingIntent, model string) {
	if len(s.registry.GetBackendsForModel(model)) > 0 {
		intent.AddRejectionReason("no_healthy_backend")
		intent.Decision = &RoutingDecision{
			Kind:             DecisionReject,
			RejectionReasons: intent.RejectionReasons,
			HTTPStatus:       503,
			ErrorCode:        "no_healthy_backend",
		}
		return
	}
	intent.AddRejectionReason("model_not_found")
	intent.Decision = &RoutingDecision{
		Kind:             DecisionReject,
		RejectionReasons: intent.RejectionReasons,
		HTTPStatus:       404,
		ErrorCode:        "model_not_found",
	}
}

// filterCandidates applies the health + capability filter (spec §4.3.2) over
// a list of backend ids.
func (s *SchedulerReconciler) filterCandidates(ids []string, req RequestRequirements) []registry.BackendView {
	out := make([]registry.BackendView, 0, len(ids))
	for _, id := range ids {
		view, ok := s.registry.GetBackend(id)
		if !ok || view.Status != registry.StatusHealthy {
			continue
		}
		if req.NeedsVision && !hasVision(view) {
			continue
		}
		if req.NeedsTools && !hasTools(view) {
			continue
		}
		if req.NeedsJSONMode && !hasJSONMode(view) {
			continue
		}
		if req.MinContextLength > 0 && !hasContextLength(view, req.MinContextLength) {
			continue
		}
		out = append(out, view)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func hasVision(v registry.BackendView) bool { return anyModel(v, func(m registry.Model) bool { return m.SupportsVision }) }
func hasTools(v registry.BackendView) bool  { return anyModel(v, func(m registry.Model) bool { return m.SupportsTools }) }
func hasJSONMode(v registry.BackendView) bool {
	return anyModel(v, func(m registry.Model) bool { return m.SupportsJSONMode })
}
func hasContextLength(v registry.BackendView, min int) bool {
	return anyModel(v, func(m registry.Model) bool { return m.ContextLength >= min })
}

func anyModel(v registry.BackendView, pred func(registry.Model) bool) bool {
	for _, m := range v.Models {
		if pred(m) {
			return true
		}
	}
	return false
}

// finalizeDecision implements spec §4.3.6 (queue decision) and §4.3.3/.4
// (scoring + TTFT penalty) for a non-empty, already health/capability
// filtered candidate set. primaryModel is used for the "fallback:{primary}:"
// route_reason prefix regardless of which model actually served the request.
func (s *SchedulerReconciler) finalizeDecision(intent *RoutingIntent, candidates []registry.BackendView, servedModel, primaryModel string, isFallback bool) {
	if s.allSaturated(candidates) {
		if s.config.QueueEnabled {
			intent.Decision = &RoutingDecision{
				Kind:            DecisionQueue,
				QueueReason:     "capacity_overflow",
				EstimatedWaitMs: s.estimateWaitMs(candidates),
			}
			return
		}
		intent.AddRejectionReason("capacity_overflow")
		intent.Decision = &RoutingDecision{
			Kind:             DecisionReject,
			RejectionReasons: intent.RejectionReasons,
			HTTPStatus:       503,
			ErrorCode:        "capacity_overflow",
		}
		return
	}

	winner, reason := s.pickWinner(candidates)
	if isFallback {
		reason = fmt.Sprintf("fallback:%s:%s", primaryModel, reason)
	}

	intent.ActualModel = servedModel
	intent.FallbackUsed = isFallback
	intent.RouteReason = reason
	intent.Decision = &RoutingDecision{
		Kind:         DecisionRoute,
		BackendID:    winner.ID,
		ActualModel:  servedModel,
		FallbackUsed: isFallback,
		RouteReason:  reason,
	}
}

func (s *SchedulerReconciler) allSaturated(candidates []registry.BackendView) bool {
	if s.config.PendingCap == 0 {
		return false
	}
	for _, c := range candidates {
		if c.PendingRequests < s.config.PendingCap {
			return false
		}
	}
	return true
}

// estimateWaitMs is a best-effort projection, not a spec-mandated formula:
// the trailing average latency of the least-loaded candidate, as a rough
// proxy for how long the next free slot should take to open up.
func (s *SchedulerReconciler) estimateWaitMs(candidates []registry.BackendView) int64 {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.PendingRequests < best.PendingRequests {
			best = c
		}
	}
	return int64(best.AvgLatencyMs)
}

// pickWinner returns the selected backend and a route_reason token (spec
// §3.5's example: "highest_score:98").
func (s *SchedulerReconciler) pickWinner(candidates []registry.BackendView) (registry.BackendView, string) {
	switch s.config.Strategy {
	case StrategyRoundRobin:
		idx := s.roundRobinCounter.Add(1) - 1
		return candidates[idx%uint64(len(candidates))], "round_robin"
	case StrategyPriorityOnly:
		return pickMinPriority(candidates), "priority_only"
	case StrategyRandom:
		return candidates[rand.Intn(len(candidates))], "random"
	default:
		winner, score := s.pickSmart(candidates)
		return winner, fmt.Sprintf("highest_score:%d", int(score))
	}
}

func pickMinPriority(candidates []registry.BackendView) registry.BackendView {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Priority < best.Priority || (c.Priority == best.Priority && c.ID < best.ID) {
			best = c
		}
	}
	return best
}

// pickSmart implements the weighted Smart strategy exactly as spec §4.3.3
// defines it: priority/load/latency components normalized against fixed
// configuration constants (not against the candidate set), then the §4.3.4
// TTFT penalty. Ties break on ascending backend id, a hard invariant across
// every strategy.
func (s *SchedulerReconciler) pickSmart(candidates []registry.BackendView) (registry.BackendView, float64) {
	var best registry.BackendView
	bestScore := -1.0

	for i, c := range candidates {
		priorityTerm := clampFloor0(100-float64(c.Priority)) * s.config.PriorityWeight

		loadRatio := 0.0
		if s.config.PendingCap > 0 {
			loadRatio = float64(c.PendingRequests) / float64(s.config.PendingCap)
		}
		loadTerm := clampFloor0(1-loadRatio) * s.config.LoadWeight

		latencyRatio := 0.0
		if s.config.LatencyCapMs > 0 {
			capped := c.AvgLatencyMs
			if capped > s.config.LatencyCapMs {
				capped = s.config.LatencyCapMs
			}
			latencyRatio = float64(capped) / float64(s.config.LatencyCapMs)
		}
		latencyTerm := (1 - latencyRatio) * s.config.LatencyWeight

		score := priorityTerm + loadTerm + latencyTerm
		score = s.applyTTFTPenalty(score, c.ID)

		if i == 0 || score > bestScore || (score == bestScore && c.ID < best.ID) {
			best = c
			bestScore = score
		}
	}
	return best, bestScore
}

func clampFloor0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// applyTTFTPenalty implements spec §4.3.4's proportional penalty:
// penalty = floor(score * min((T-Tth)/Tth, 1.0)), saturating at 0.
func (s *SchedulerReconciler) applyTTFTPenalty(score float64, agentID string) float64 {
	if s.config.TTFTThresholdMs <= 0 {
		return score
	}
	t := s.quality.GetMetrics(agentID).AvgTTFTMs
	if t <= s.config.TTFTThresholdMs {
		return score
	}
	ratio := (t - s.config.TTFTThresholdMs) / s.config.TTFTThresholdMs
	if ratio > 1.0 {
		ratio = 1.0
	}
	penalty := math.Floor(score * ratio)
	score -= penalty
	if score < 0 {
		score = 0
	}
	return score
}
