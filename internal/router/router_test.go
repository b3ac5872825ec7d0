package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuslb/nexus/internal/queue"
	"github.com/nexuslb/nexus/internal/reconciler"
)

type stubPipeline struct {
	decision *reconciler.RoutingDecision
}

func (s stubPipeline) Run(intent *reconciler.RoutingIntent) *reconciler.RoutingDecision {
	return s.decision
}

func TestResolveAlias_FollowsChainUpToDepth3(t *testing.T) {
	r := New(stubPipeline{}, nil, Config{Aliases: map[string]string{
		"gpt-4": "llama3:70b",
		"a":     "b",
		"b":     "c",
		"c":     "d",
		"d":     "e", // depth 4, should not be followed from "a"
	}})

	assert.Equal(t, "llama3:70b", r.resolveAlias("gpt-4"))
	assert.Equal(t, "d", r.resolveAlias("a"))
}

func TestResolveAlias_SelfReferenceStops(t *testing.T) {
	r := New(stubPipeline{}, nil, Config{Aliases: map[string]string{"x": "x"}})
	assert.Equal(t, "x", r.resolveAlias("x"))
}

func TestSelect_RouteDecisionPassesThrough(t *testing.T) {
	r := New(stubPipeline{decision: &reconciler.RoutingDecision{Kind: reconciler.DecisionRoute, BackendID: "b1"}}, nil, Config{})
	decision, err := r.Select(context.Background(), reconciler.RequestRequirements{Model: "m"}, queue.PriorityNormal)
	require.NoError(t, err)
	assert.Equal(t, "b1", decision.BackendID)
}

func TestSelect_QueueDecisionWithoutQueueRejectsAsCapacityOverflow(t *testing.T) {
	r := New(stubPipeline{decision: &reconciler.RoutingDecision{Kind: reconciler.DecisionQueue}}, nil, Config{})
	decision, err := r.Select(context.Background(), reconciler.RequestRequirements{Model: "m"}, queue.PriorityNormal)
	require.NoError(t, err)
	assert.Equal(t, reconciler.DecisionReject, decision.Kind)
	assert.Equal(t, "capacity_overflow", decision.ErrorCode)
}

func TestSelect_QueueDecisionEnqueuesAndAwaitsResult(t *testing.T) {
	q := queue.New(queue.Config{Enabled: true, MaxSize: 10, MaxWaitSeconds: 30}, nil)
	r := New(stubPipeline{decision: &reconciler.RoutingDecision{Kind: reconciler.DecisionQueue}}, q, Config{})

	done := make(chan struct{})
	var result *reconciler.RoutingDecision
	go func() {
		d, err := r.Select(context.Background(), reconciler.RequestRequirements{Model: "m"}, queue.PriorityHigh)
		require.NoError(t, err)
		result = d
		close(done)
	}()

	// Simulate the drain loop resolving the queued item directly.
	var item *queue.QueuedRequest
	for item == nil {
		item = q.TryDequeue()
		time.Sleep(time.Millisecond)
	}
	item.ResponseCh <- &reconciler.RoutingDecision{Kind: reconciler.DecisionRoute, BackendID: "delayed-backend"}

	<-done
	assert.Equal(t, "delayed-backend", result.BackendID)
}

func TestSelect_ContextCancelledWhileQueuedReturnsErr(t *testing.T) {
	q := queue.New(queue.Config{Enabled: true, MaxSize: 10, MaxWaitSeconds: 30}, nil)
	r := New(stubPipeline{decision: &reconciler.RoutingDecision{Kind: reconciler.DecisionQueue}}, q, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := r.Select(ctx, reconciler.RequestRequirements{Model: "m"}, queue.PriorityNormal)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
