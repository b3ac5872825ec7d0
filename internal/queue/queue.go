package queue

import (
	"sync/atomic"

	"github.com/nexuslb/nexus/pkg/nexuserrors"
)

// Config is the queue's collaborator configuration (spec §6.2).
type Config struct {
	Enabled        bool
	MaxSize        uint32
	MaxWaitSeconds uint64
}

// DefaultConfig matches spec §6.2's documented defaults.
func DefaultConfig() Config {
	return Config{Enabled: true, MaxSize: 100, MaxWaitSeconds: 30}
}

// Queue is the bounded, dual-priority FIFO described in spec §3.8/§4.5. High
// and normal each get their own buffered channel sized to MaxSize; the
// shared depth counter is the single source of truth for the enqueue
// capacity check, so the two channels together never hold more than
// MaxSize items.
type Queue struct {
	config Config
	high   chan *QueuedRequest
	normal chan *QueuedRequest
	depth  atomic.Uint32

	metrics *Metrics
}

// New builds a Queue from cfg. metrics may be nil (tests, or metrics
// disabled).
func New(cfg Config, metrics *Metrics) *Queue {
	size := cfg.MaxSize
	if size == 0 {
		size = 1 // channels must have non-negative capacity; Enabled() gates use when MaxSize==0
	}
	return &Queue{
		config:  cfg,
		high:    make(chan *QueuedRequest, size),
		normal:  make(chan *QueuedRequest, size),
		metrics: metrics,
	}
}

// Enabled implements spec §6.2's effective-enable predicate.
func (q *Queue) Enabled() bool { return q.config.Enabled && q.config.MaxSize > 0 }

// Depth returns the current atomic depth counter.
func (q *Queue) Depth() uint32 { return q.depth.Load() }

// MaxSize returns the configured capacity.
func (q *Queue) MaxSize() uint32 { return q.config.MaxSize }

// Enqueue admits a new item (spec §4.5's enqueue). Fails with
// ErrQueueDisabled or ErrQueueFull without mutating depth.
func (q *Queue) Enqueue(item *QueuedRequest) error {
	if !q.Enabled() {
		return nexuserrors.ErrQueueDisabled
	}
	if err := q.admit(item); err != nil {
		return err
	}
	if q.metrics != nil {
		q.metrics.EnqueuedTotal.Inc()
		q.metrics.Depth.Set(float64(q.depth.Load()))
	}
	return nil
}

// Requeue re-admits an item the drain loop pulled off and is putting back
// (spec §4.5: "re-enqueue preserving priority and enqueued_at"). It does not
// touch EnqueuedAt or the enqueued-total counter — this is not a new
// request, it's the same one going back to the tail of its priority lane.
func (q *Queue) Requeue(item *QueuedRequest) error {
	if err := q.admit(item); err != nil {
		return err
	}
	if q.metrics != nil {
		q.metrics.Depth.Set(float64(q.depth.Load()))
	}
	return nil
}

func (q *Queue) admit(item *QueuedRequest) error {
	for {
		cur := q.depth.Load()
		if cur >= q.config.MaxSize {
			return nexuserrors.ErrQueueFull
		}
		if q.depth.CompareAndSwap(cur, cur+1) {
			break
		}
	}

	ch := q.channelFor(item.Priority)
	select {
	case ch <- item:
		return nil
	default:
		q.decrementDepth()
		return nexuserrors.ErrQueueFull
	}
}

// TryDequeue polls high first, then normal (spec §4.5). Returns nil if both
// are empty.
func (q *Queue) TryDequeue() *QueuedRequest {
	select {
	case item := <-q.high:
		q.decrementDepth()
		return item
	default:
	}
	select {
	case item := <-q.normal:
		q.decrementDepth()
		return item
	default:
	}
	return nil
}

func (q *Queue) channelFor(p Priority) chan *QueuedRequest {
	if p == PriorityHigh {
		return q.high
	}
	return q.normal
}

func (q *Queue) decrementDepth() {
	for {
		cur := q.depth.Load()
		if cur == 0 {
			return
		}
		if q.depth.CompareAndSwap(cur, cur-1) {
			if q.metrics != nil {
				q.metrics.Depth.Set(float64(cur - 1))
			}
			return
		}
	}
}
