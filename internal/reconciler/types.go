// Package reconciler implements the fixed-order Analyzer -> Privacy ->
// Budget -> Tier -> Quality -> Scheduler pipeline that turns a request into
// a RoutingDecision (spec §4.2/§4.3). Stages share a small interface rather
// than a class hierarchy, per spec §9's explicit design note, generalized
// from the teacher's small-interface-over-inheritance style seen throughout
// core (Logger, Telemetry, AIClient in core/interfaces.go).
package reconciler

import "time"

// RequestRequirements is extracted from the incoming HTTP body before
// routing (spec §3.4).
type RequestRequirements struct {
	Model             string
	NeedsVision       bool
	NeedsTools        bool
	NeedsJSONMode     bool
	MinContextLength  int
	PrefersStreaming  bool
	PrivacyZone       string // "restricted" | "open"; empty means no requirement
	Tier              string // declared capability tier; empty means no requirement
	EstimatedCostUSD  float64
	BudgetUSD         float64 // 0 means unlimited
}

// ExcludedAgent records why a candidate was removed by a stage.
type ExcludedAgent struct {
	AgentID     string
	Stage       string
	Reason      string
	Remediation string
}

// DecisionKind discriminates the RoutingDecision sum type.
type DecisionKind int

const (
	DecisionRoute DecisionKind = iota
	DecisionQueue
	DecisionReject
)

// RoutingDecision is the reconciler chain's terminal output (spec §3.6).
type RoutingDecision struct {
	Kind DecisionKind

	// Route fields
	BackendID    string
	ActualModel  string
	FallbackUsed bool
	RouteReason  string

	// Queue fields
	EstimatedWaitMs int64
	QueueReason     string

	// Reject fields
	RejectionReasons []string
	HTTPStatus       int
	ErrorCode        string
	FallbackChain    []string // populated only for FallbackChainExhausted
	RetryAfterSeconds int     // populated only for queue_timeout rejections
}

// RoutingIntent is the mutable per-request state threaded through the chain
// (spec §3.5).
type RoutingIntent struct {
	ID        string
	CreatedAt time.Time

	Requirements RequestRequirements

	// ResolvedModel is the request's model name after alias resolution
	// (depth <= 3). ActualModel may differ further if a fallback is used.
	ResolvedModel string

	CandidateAgents  []string
	ExcludedAgents   []ExcludedAgent
	RejectionReasons []string

	Decision *RoutingDecision

	RouteReason  string
	FallbackUsed bool
	ActualModel  string
}

// Exclude removes agentID from CandidateAgents (if present) and records why.
func (ri *RoutingIntent) Exclude(agentID, stage, reason, remediation string) {
	for i, id := range ri.CandidateAgents {
		if id == agentID {
			ri.CandidateAgents = append(ri.CandidateAgents[:i], ri.CandidateAgents[i+1:]...)
			break
		}
	}
	ri.ExcludedAgents = append(ri.ExcludedAgents, ExcludedAgent{
		AgentID: agentID, Stage: stage, Reason: reason, Remediation: remediation,
	})
}

// AddRejectionReason appends a human-readable, deduplicated rejection
// reason aggregated for a terminal Reject decision.
func (ri *RoutingIntent) AddRejectionReason(reason string) {
	for _, r := range ri.RejectionReasons {
		if r == reason {
			return
		}
	}
	ri.RejectionReasons = append(ri.RejectionReasons, reason)
}

// Reconciler is the shared contract every pipeline stage implements. The
// hot path must never perform I/O, take a blocking lock, or allocate beyond
// the intent's own growth (spec §4.2 budget: p95 < 1ms for the whole chain).
type Reconciler interface {
	Name() string
	Reconcile(intent *RoutingIntent)
}
