// Package router wires the Registry, the reconciler Chain, and the Request
// Queue together behind a single Select call — the thing an HTTP handler
// actually invokes (spec §2's "Router.select(requirements)"). Dispatch
// bookkeeping (increment_pending/decrement_pending/update_latency/outcome
// recording) is deliberately left to the caller per spec §4.3's closing
// note, keeping Router itself stateless beyond alias resolution.
package router

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nexuslb/nexus/internal/queue"
	"github.com/nexuslb/nexus/internal/reconciler"
)

const maxAliasDepth = 3

// Pipeline is the subset of *reconciler.Chain the router needs.
type Pipeline interface {
	Run(intent *reconciler.RoutingIntent) *reconciler.RoutingDecision
}

// Config carries the router's own collaborator settings: the alias table
// (spec §6.2's routing.aliases), resolved to depth <= 3.
type Config struct {
	Aliases map[string]string
}

// Router is the request-facing entry point.
type Router struct {
	pipeline Pipeline
	queue    *queue.Queue
	config   Config
}

// New builds a Router. q may be nil when queueing is unused (e.g. tests).
func New(pipeline Pipeline, q *queue.Queue, cfg Config) *Router {
	return &Router{pipeline: pipeline, queue: q, config: cfg}
}

// Select resolves aliases, runs the reconciler chain, and — on a Queue
// decision — enqueues and awaits the eventual terminal outcome. ctx governs
// only the queue wait; the chain itself has no suspension points (spec §5).
func (r *Router) Select(ctx context.Context, req reconciler.RequestRequirements, priority queue.Priority) (*reconciler.RoutingDecision, error) {
	resolved := r.resolveAlias(req.Model)

	intent := &reconciler.RoutingIntent{
		ID:            uuid.NewString(),
		CreatedAt:     time.Now(),
		Requirements:  req,
		ResolvedModel: resolved,
	}

	decision := r.pipeline.Run(intent)
	if decision.Kind != reconciler.DecisionQueue {
		return decision, nil
	}
	return r.awaitQueued(ctx, intent, priority)
}

func (r *Router) awaitQueued(ctx context.Context, intent *reconciler.RoutingIntent, priority queue.Priority) (*reconciler.RoutingDecision, error) {
	if r.queue == nil || !r.queue.Enabled() {
		return &reconciler.RoutingDecision{
			Kind:             reconciler.DecisionReject,
			RejectionReasons: []string{"capacity_overflow"},
			HTTPStatus:       503,
			ErrorCode:        "capacity_overflow",
		}, nil
	}

	item := queue.NewQueuedRequest(intent, priority, time.Now())
	if err := r.queue.Enqueue(item); err != nil {
		return &reconciler.RoutingDecision{
			Kind:             reconciler.DecisionReject,
			RejectionReasons: []string{"queue_full"},
			HTTPStatus:       503,
			ErrorCode:        "queue_full",
		}, nil
	}

	select {
	case decision := <-item.ResponseCh:
		return decision, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// resolveAlias follows the alias chain up to depth 3 (spec §4.3.1). A cycle
// or chain longer than the depth limit simply stops at the last resolved
// name rather than erroring — the Scheduler will reject it downstream as
// ModelNotFound if nothing serves it. Aliases never chain through fallbacks
// and vice versa: this method only ever consults config.Aliases.
func (r *Router) resolveAlias(model string) string {
	current := model
	for depth := 0; depth < maxAliasDepth; depth++ {
		target, ok := r.config.Aliases[current]
		if !ok || target == current {
			break
		}
		current = target
	}
	return current
}
