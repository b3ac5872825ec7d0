package reconciler

// Chain is the fixed-order sequence of stages described in spec §2/§4.2.
// It is deliberately a flat slice, not a dynamic registry — the order is
// fixed by the spec, so a registry of named stages would be over-engineering
// per spec §9's design note.
type Chain struct {
	stages []Reconciler
}

// NewChain builds a Chain from an ordered list of stages. The last stage is
// expected to be terminal (sets intent.Decision).
func NewChain(stages ...Reconciler) *Chain {
	return &Chain{stages: stages}
}

// Run executes every stage in order and returns the terminal decision. Per
// spec §4.2, once any stage empties CandidateAgents, later non-terminal
// stages are expected to no-op (each stage implementation is responsible for
// that check); the terminal stage always runs and always sets a decision.
func (c *Chain) Run(intent *RoutingIntent) *RoutingDecision {
	for _, stage := range c.stages {
		stage.Reconcile(intent)
	}
	return intent.Decision
}
