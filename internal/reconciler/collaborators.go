package reconciler

import (
	"strconv"

	"github.com/nexuslb/nexus/internal/registry"
)

// tierRank orders the declared capability tiers so TierReconciler can
// compare "at least this tier" requirements. Unknown tier strings rank
// below every known tier, per spec §4.3.3's "unknown tier treated as
// below any requirement" edge case.
var tierRank = map[string]int{
	"basic":    1,
	"standard": 2,
	"premium":  3,
}

// PrivacyReconciler excludes candidates whose backend's privacy_zone
// metadata does not match the request's declared zone (spec §4.3.1). A
// backend without the metadata key defaults to "open".
type PrivacyReconciler struct {
	registry *registry.Registry
}

func NewPrivacyReconciler(reg *registry.Registry) *PrivacyReconciler {
	return &PrivacyReconciler{registry: reg}
}

func (p *PrivacyReconciler) Name() string { return "privacy" }

func (p *PrivacyReconciler) Reconcile(intent *RoutingIntent) {
	required := intent.Requirements.PrivacyZone
	if required == "" || len(intent.CandidateAgents) == 0 {
		return
	}

	for _, id := range append([]string(nil), intent.CandidateAgents...) {
		view, ok := p.registry.GetBackend(id)
		if !ok {
			continue
		}
		zone := view.Metadata["privacy_zone"]
		if zone == "" {
			zone = "open"
		}
		if zone != required {
			intent.Exclude(id, p.Name(), "privacy_zone_mismatch",
				"use a backend registered in the \""+required+"\" privacy zone")
		}
	}
}

// BudgetReconciler excludes candidates whose per-request cost, as declared
// in their cost_per_request_usd metadata, would exceed the request's
// remaining budget (spec §4.3.2). A request with BudgetUSD<=0 is treated
// as unbounded and the stage no-ops.
type BudgetReconciler struct {
	registry *registry.Registry
}

func NewBudgetReconciler(reg *registry.Registry) *BudgetReconciler {
	return &BudgetReconciler{registry: reg}
}

func (b *BudgetReconciler) Name() string { return "budget" }

func (b *BudgetReconciler) Reconcile(intent *RoutingIntent) {
	budget := intent.Requirements.BudgetUSD
	if budget <= 0 || len(intent.CandidateAgents) == 0 {
		return
	}

	for _, id := range append([]string(nil), intent.CandidateAgents...) {
		view, ok := b.registry.GetBackend(id)
		if !ok {
			continue
		}
		cost := parseCost(view.Metadata["cost_per_request_usd"])
		if intent.Requirements.EstimatedCostUSD+cost > budget {
			intent.Exclude(id, b.Name(), "budget_exceeded",
				"raise budget_usd or route to a lower-cost backend")
		}
	}
}

func parseCost(raw string) float64 {
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return v
}

// TierReconciler excludes candidates whose declared service tier ranks
// below the request's required tier (spec §4.3.3).
type TierReconciler struct {
	registry *registry.Registry
}

func NewTierReconciler(reg *registry.Registry) *TierReconciler {
	return &TierReconciler{registry: reg}
}

func (t *TierReconciler) Name() string { return "tier" }

func (t *TierReconciler) Reconcile(intent *RoutingIntent) {
	required := intent.Requirements.Tier
	if required == "" || len(intent.CandidateAgents) == 0 {
		return
	}
	requiredRank, ok := tierRank[required]
	if !ok {
		return
	}

	for _, id := range append([]string(nil), intent.CandidateAgents...) {
		view, exists := t.registry.GetBackend(id)
		if !exists {
			continue
		}
		rank := tierRank[view.Metadata["tier"]] // 0 for unknown/absent
		if rank < requiredRank {
			intent.Exclude(id, t.Name(), "tier_below_requirement",
				"route to a backend tagged tier=\""+required+"\" or higher")
		}
	}
}
