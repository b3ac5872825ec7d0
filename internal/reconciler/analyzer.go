package reconciler

import "github.com/nexuslb/nexus/internal/registry"

// AnalyzerReconciler is the first stage of the chain. Alias resolution
// happens one level up, in the router package, before the chain runs (per
// the data-flow diagram in spec §2); by the time Analyzer runs,
// intent.ResolvedModel already names the post-alias model. Analyzer's job
// is simply to seed CandidateAgents from the model index (spec §3.5:
// "candidate_agents: current list of eligible backend ids (starts from
// model index lookup after alias resolution)") — no health or capability
// filtering yet, that's the Scheduler's filter_candidates step.
type AnalyzerReconciler struct {
	registry *registry.Registry
}

// NewAnalyzerReconciler builds the Analyzer stage.
func NewAnalyzerReconciler(reg *registry.Registry) *AnalyzerReconciler {
	return &AnalyzerReconciler{registry: reg}
}

func (a *AnalyzerReconciler) Name() string { return "analyzer" }

func (a *AnalyzerReconciler) Reconcile(intent *RoutingIntent) {
	if intent.ResolvedModel == "" {
		intent.ResolvedModel = intent.Requirements.Model
	}

	backends := a.registry.GetBackendsForModel(intent.ResolvedModel)
	ids := make([]string, len(backends))
	for i, b := range backends {
		ids[i] = b.ID
	}
	intent.CandidateAgents = ids
}
