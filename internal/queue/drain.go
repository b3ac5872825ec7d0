package queue

import (
	"context"
	"time"

	"github.com/nexuslb/nexus/internal/logging"
	"github.com/nexuslb/nexus/internal/reconciler"
)

// Pipeline is the subset of *reconciler.Chain the drain loop needs. Defined
// as an interface here (rather than importing Chain directly) so tests can
// substitute a stub without constructing a full chain.
type Pipeline interface {
	Run(intent *reconciler.RoutingIntent) *reconciler.RoutingDecision
}

// DrainLoop is the background task described in spec §4.5: it polls the
// queue, re-enters the reconciler chain for each waiting item, and resolves
// the item's response channel with the outcome. Modeled as an independent
// cancellable task, mirroring the teacher's StartHeartbeat ticker idiom
// (core/redis_discovery.go) generalized to a drain-and-reroute loop.
type DrainLoop struct {
	queue        *Queue
	pipeline     Pipeline
	pollInterval time.Duration
	maxWait      time.Duration
	metrics      *Metrics
	log          logging.Logger
}

// NewDrainLoop builds a DrainLoop. pollInterval defaults to 50ms per spec
// §4.5.
func NewDrainLoop(q *Queue, pipeline Pipeline, pollInterval time.Duration, log logging.Logger) *DrainLoop {
	if pollInterval <= 0 {
		pollInterval = 50 * time.Millisecond
	}
	return &DrainLoop{
		queue:        q,
		pipeline:     pipeline,
		pollInterval: pollInterval,
		maxWait:      time.Duration(q.config.MaxWaitSeconds) * time.Second,
		metrics:      q.metrics,
		log:          log,
	}
}

// Run blocks until ctx is cancelled. On cancellation it drains whatever is
// left in the queue with a shutdown rejection before returning (spec §5's
// "in-flight queued requests on shutdown receive a 503 with reason
// shutdown").
func (l *DrainLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.drainOnShutdown()
			return
		case <-ticker.C:
			l.drainAvailable()
		}
	}
}

func (l *DrainLoop) drainAvailable() {
	for {
		item := l.queue.TryDequeue()
		if item == nil {
			return
		}
		l.handle(item)
	}
}

func (l *DrainLoop) handle(item *QueuedRequest) {
	if l.maxWait > 0 && time.Since(item.EnqueuedAt) >= l.maxWait {
		if l.metrics != nil {
			l.metrics.TimeoutTotal.Inc()
		}
		deliver(item, timeoutDecision(l.queue.config.MaxWaitSeconds))
		return
	}

	decision := l.pipeline.Run(item.Intent)
	switch decision.Kind {
	case reconciler.DecisionQueue:
		if err := l.queue.Requeue(item); err != nil {
			deliver(item, capacityOverflowDecision())
		}
	default: // Route or Reject: terminal, hand back to the waiting caller
		deliver(item, decision)
	}
}

func (l *DrainLoop) drainOnShutdown() {
	for {
		item := l.queue.TryDequeue()
		if item == nil {
			return
		}
		deliver(item, shutdownDecision())
	}
}

// deliver is non-blocking because ResponseCh is always created with buffer
// 1 (see NewQueuedRequest); a waiting caller that already gave up (request
// context cancelled) simply never reads it, and the channel is garbage
// collected with the item.
func deliver(item *QueuedRequest, decision *reconciler.RoutingDecision) {
	select {
	case item.ResponseCh <- decision:
	default:
	}
}

func timeoutDecision(maxWaitSeconds uint64) *reconciler.RoutingDecision {
	return &reconciler.RoutingDecision{
		Kind:              reconciler.DecisionReject,
		RejectionReasons:  []string{"queue_timeout"},
		HTTPStatus:        503,
		ErrorCode:         "queue_timeout",
		RetryAfterSeconds: int(maxWaitSeconds),
	}
}

func shutdownDecision() *reconciler.RoutingDecision {
	return &reconciler.RoutingDecision{
		Kind:             reconciler.DecisionReject,
		RejectionReasons: []string{"shutdown"},
		HTTPStatus:       503,
		ErrorCode:        "shutdown",
	}
}

func capacityOverflowDecision() *reconciler.RoutingDecision {
	return &reconciler.RoutingDecision{
		Kind:             reconciler.DecisionReject,
		RejectionReasons: []string{"capacity_overflow"},
		HTTPStatus:       503,
		ErrorCode:        "capacity_overflow",
	}
}
