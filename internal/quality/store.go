package quality

import (
	"sync"
	"sync/atomic"
	"time"
)

// bucket holds one backend's time-ordered outcome history. Appends take
// bucket.mu — an exclusive lock scoped to this single agent — so concurrent
// backends never contend with each other, only with their own writer and
// with their own recompute pass.
type bucket struct {
	mu       sync.Mutex
	outcomes []Outcome
}

// Store is the quality subsystem's per-backend outcome store plus a
// lock-free, recompute-published snapshot map.
type Store struct {
	mu      sync.RWMutex // guards the buckets map itself (new-agent creation only)
	buckets map[string]*bucket

	snapshot atomic.Pointer[map[string]Metrics]
}

// NewStore builds an empty Store with an empty published snapshot.
func NewStore() *Store {
	s := &Store{buckets: make(map[string]*bucket)}
	empty := make(map[string]Metrics)
	s.snapshot.Store(&empty)
	return s
}

func (s *Store) getOrCreateBucket(agentID string) *bucket {
	s.mu.RLock()
	b, ok := s.buckets[agentID]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok = s.buckets[agentID]; ok {
		return b
	}
	b = &bucket{}
	s.buckets[agentID] = b
	return b
}

// RecordOutcome appends a request outcome in O(1), taking an exclusive lock
// scoped to agentID only.
func (s *Store) RecordOutcome(agentID string, success bool, ttftMs uint32) {
	b := s.getOrCreateBucket(agentID)
	o := Outcome{Timestamp: time.Now(), Success: success, TTFTMs: ttftMs}
	b.mu.Lock()
	b.outcomes = append(b.outcomes, o)
	b.mu.Unlock()
}

// GetMetrics is a lock-free read of the most recently published snapshot.
// A backend absent from the snapshot (zero recorded outcomes) gets the
// healthy default per spec §3.7.
func (s *Store) GetMetrics(agentID string) Metrics {
	m := *s.snapshot.Load()
	if v, ok := m[agentID]; ok {
		return v
	}
	return HealthyDefault()
}

// GetAllMetrics returns a copy of the published snapshot map.
func (s *Store) GetAllMetrics() map[string]Metrics {
	m := *s.snapshot.Load()
	out := make(map[string]Metrics, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// RecomputeAll prunes entries older than the 24h retention window, computes
// 1h/24h aggregates per backend, and atomically publishes the new snapshot.
// Each bucket is locked independently so a slow recompute of one agent never
// blocks RecordOutcome calls for another.
func (s *Store) RecomputeAll() {
	now := time.Now()

	s.mu.RLock()
	ids := make([]string, 0, len(s.buckets))
	bs := make([]*bucket, 0, len(s.buckets))
	for id, b := range s.buckets {
		ids = append(ids, id)
		bs = append(bs, b)
	}
	s.mu.RUnlock()

	next := make(map[string]Metrics, len(ids))
	for i, id := range ids {
		next[id] = recomputeBucket(bs[i], now)
	}
	s.snapshot.Store(&next)
}

func recomputeBucket(b *bucket, now time.Time) Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff24h := now.Add(-retentionWindow)
	kept := b.outcomes[:0]
	for _, o := range b.outcomes {
		if o.Timestamp.After(cutoff24h) {
			kept = append(kept, o)
		}
	}
	b.outcomes = kept

	if len(kept) == 0 {
		return HealthyDefault()
	}

	cutoff1h := now.Add(-oneHour)
	var (
		count1h      int
		failures1h   int
		ttftSum1h    float64
		ttftSamples1h int
		successes24h int
		lastFailure  *time.Time
	)

	for _, o := range kept {
		if !o.Success {
			ts := o.Timestamp
			if lastFailure == nil || ts.After(*lastFailure) {
				lastFailure = &ts
			}
		} else {
			successes24h++
		}
		if o.Timestamp.After(cutoff1h) {
			count1h++
			if !o.Success {
				failures1h++
			}
			if o.TTFTMs > 0 {
				ttftSum1h += float64(o.TTFTMs)
				ttftSamples1h++
			}
		}
	}

	m := Metrics{
		SuccessRate24h: float64(successes24h) / float64(len(kept)),
		RequestCount1h: count1h,
		LastFailureTs:  lastFailure,
	}
	if count1h > 0 {
		m.ErrorRate1h = float64(failures1h) / float64(count1h)
	}
	if ttftSamples1h > 0 {
		m.AvgTTFTMs = ttftSum1h / float64(ttftSamples1h)
	}
	return m
}
