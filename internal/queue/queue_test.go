package queue

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuslb/nexus/internal/reconciler"
	"github.com/nexuslb/nexus/pkg/nexuserrors"
)

func newIntent(id string) *reconciler.RoutingIntent {
	return &reconciler.RoutingIntent{ID: id, Requirements: reconciler.RequestRequirements{Model: "m"}}
}

func TestEnqueue_DisabledReturnsErr(t *testing.T) {
	q := New(Config{Enabled: false, MaxSize: 10}, nil)
	err := q.Enqueue(NewQueuedRequest(newIntent("1"), PriorityNormal, time.Now()))
	assert.ErrorIs(t, err, nexuserrors.ErrQueueDisabled)
}

func TestEnqueue_FullReturnsErr(t *testing.T) {
	q := New(Config{Enabled: true, MaxSize: 1}, nil)
	require.NoError(t, q.Enqueue(NewQueuedRequest(newIntent("1"), PriorityNormal, time.Now())))
	err := q.Enqueue(NewQueuedRequest(newIntent("2"), PriorityNormal, time.Now()))
	assert.ErrorIs(t, err, nexuserrors.ErrQueueFull)
}

func TestTryDequeue_HighDrainsBeforeNormal(t *testing.T) {
	// S7: enqueue order N1, N2, H1, N3 -> drain order H1, N1, N2, N3.
	q := New(Config{Enabled: true, MaxSize: 10}, nil)
	n1 := NewQueuedRequest(newIntent("N1"), PriorityNormal, time.Now())
	n2 := NewQueuedRequest(newIntent("N2"), PriorityNormal, time.Now())
	h1 := NewQueuedRequest(newIntent("H1"), PriorityHigh, time.Now())
	n3 := NewQueuedRequest(newIntent("N3"), PriorityNormal, time.Now())

	require.NoError(t, q.Enqueue(n1))
	require.NoError(t, q.Enqueue(n2))
	require.NoError(t, q.Enqueue(h1))
	require.NoError(t, q.Enqueue(n3))

	order := []string{
		q.TryDequeue().Intent.ID,
		q.TryDequeue().Intent.ID,
		q.TryDequeue().Intent.ID,
		q.TryDequeue().Intent.ID,
	}
	assert.Equal(t, []string{"H1", "N1", "N2", "N3"}, order)
	assert.Nil(t, q.TryDequeue())
}

func TestDepth_TracksEnqueueMinusDequeue(t *testing.T) {
	q := New(Config{Enabled: true, MaxSize: 10}, nil)
	require.NoError(t, q.Enqueue(NewQueuedRequest(newIntent("1"), PriorityNormal, time.Now())))
	require.NoError(t, q.Enqueue(NewQueuedRequest(newIntent("2"), PriorityNormal, time.Now())))
	assert.Equal(t, uint32(2), q.Depth())

	q.TryDequeue()
	assert.Equal(t, uint32(1), q.Depth())
}

type stubPipeline struct {
	decision *reconciler.RoutingDecision
}

func (s stubPipeline) Run(intent *reconciler.RoutingIntent) *reconciler.RoutingDecision {
	return s.decision
}

func TestDrainLoop_TimeoutDeliversRetryAfter(t *testing.T) {
	q := New(Config{Enabled: true, MaxSize: 10, MaxWaitSeconds: 30}, NewMetrics(prometheus.NewRegistry()))
	item := NewQueuedRequest(newIntent("1"), PriorityNormal, time.Now().Add(-31*time.Second))
	require.NoError(t, q.Enqueue(item))

	loop := NewDrainLoop(q, stubPipeline{decision: &reconciler.RoutingDecision{Kind: reconciler.DecisionRoute}}, time.Millisecond, nil)
	loop.drainAvailable()

	select {
	case decision := <-item.ResponseCh:
		assert.Equal(t, reconciler.DecisionReject, decision.Kind)
		assert.Equal(t, "queue_timeout", decision.ErrorCode)
		assert.Equal(t, 30, decision.RetryAfterSeconds)
	default:
		t.Fatal("expected a decision to be delivered")
	}
}

func TestDrainLoop_RouteDeliversDecision(t *testing.T) {
	q := New(Config{Enabled: true, MaxSize: 10, MaxWaitSeconds: 30}, nil)
	item := NewQueuedRequest(newIntent("1"), PriorityNormal, time.Now())
	require.NoError(t, q.Enqueue(item))

	loop := NewDrainLoop(q, stubPipeline{decision: &reconciler.RoutingDecision{Kind: reconciler.DecisionRoute, BackendID: "b1"}}, time.Millisecond, nil)
	loop.drainAvailable()

	decision := <-item.ResponseCh
	assert.Equal(t, reconciler.DecisionRoute, decision.Kind)
	assert.Equal(t, "b1", decision.BackendID)
}

func TestDrainLoop_RequeuesOnQueueDecision(t *testing.T) {
	q := New(Config{Enabled: true, MaxSize: 10, MaxWaitSeconds: 30}, nil)
	original := NewQueuedRequest(newIntent("1"), PriorityNormal, time.Now())
	require.NoError(t, q.Enqueue(original))

	loop := NewDrainLoop(q, stubPipeline{decision: &reconciler.RoutingDecision{Kind: reconciler.DecisionQueue}}, time.Millisecond, nil)
	loop.drainAvailable()

	// Still queued, still the same original item (same EnqueuedAt / channel).
	assert.Equal(t, uint32(1), q.Depth())
	requeued := q.TryDequeue()
	require.NotNil(t, requeued)
	assert.Same(t, original, requeued)
}

func TestDrainLoop_ShutdownRejectsRemainingItems(t *testing.T) {
	q := New(Config{Enabled: true, MaxSize: 10, MaxWaitSeconds: 30}, nil)
	item := NewQueuedRequest(newIntent("1"), PriorityNormal, time.Now())
	require.NoError(t, q.Enqueue(item))

	loop := NewDrainLoop(q, stubPipeline{}, time.Millisecond, nil)
	loop.drainOnShutdown()

	decision := <-item.ResponseCh
	assert.Equal(t, reconciler.DecisionReject, decision.Kind)
	assert.Equal(t, "shutdown", decision.ErrorCode)
}

func TestParsePriority(t *testing.T) {
	assert.Equal(t, PriorityHigh, ParsePriority("High"))
	assert.Equal(t, PriorityHigh, ParsePriority("  high  "))
	assert.Equal(t, PriorityNormal, ParsePriority(""))
	assert.Equal(t, PriorityNormal, ParsePriority("low"))
}
