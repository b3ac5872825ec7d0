package registry

import (
	"sync"
	"sync/atomic"
	"time"
)

// entry is the live, mutable representation of a backend inside a shard.
// Fields that change together (status, models, metadata) share a RWMutex;
// the hot-path load/latency counters are plain atomics so increment/decrement
// and EMA updates never contend with that mutex or with each other's reads.
type entry struct {
	id              string
	url             string // normalized (no trailing slash), immutable after creation
	mu              sync.RWMutex
	name            string
	backendType     BackendType
	status          Status
	lastHealthCheck time.Time
	lastError       string
	models          []Model
	priority        int
	discoverySource DiscoverySource
	metadata        map[string]string

	pendingRequests atomic.Uint32
	totalRequests   atomic.Uint64
	avgLatencyMs    atomic.Uint32
}

func newEntry(b Backend) *entry {
	metadata := make(map[string]string, len(b.Metadata))
	for k, v := range b.Metadata {
		metadata[k] = v
	}
	models := make([]Model, len(b.Models))
	copy(models, b.Models)

	e := &entry{
		id:              b.ID,
		url:             normalizeURL(b.URL),
		name:            b.Name,
		backendType:     b.BackendType,
		status:          StatusUnknown,
		models:          models,
		priority:        b.Priority,
		discoverySource: b.DiscoverySource,
		metadata:        metadata,
	}
	return e
}

// snapshot reads every field once and returns an immutable view. Atomic
// fields are read outside the RWMutex critical section; static fields are
// read inside it, so a concurrent UpdateModels cannot produce a view with a
// half-old, half-new models slice alongside an unrelated status field.
func (e *entry) snapshot() BackendView {
	e.mu.RLock()
	v := BackendView{
		ID:              e.id,
		Name:            e.name,
		URL:             e.url,
		BackendType:     e.backendType,
		Status:          e.status,
		LastHealthCheck: e.lastHealthCheck,
		LastError:       e.lastError,
		Priority:        e.priority,
		DiscoverySource: e.discoverySource,
	}
	v.Models = make([]Model, len(e.models))
	copy(v.Models, e.models)
	if len(e.metadata) > 0 {
		v.Metadata = make(map[string]string, len(e.metadata))
		for k, val := range e.metadata {
			v.Metadata[k] = val
		}
	}
	e.mu.RUnlock()

	v.PendingRequests = e.pendingRequests.Load()
	v.TotalRequests = e.totalRequests.Load()
	v.AvgLatencyMs = e.avgLatencyMs.Load()
	return v
}

// modelIDs returns the current model id list, used while holding e.mu by
// the registry's add/remove/update paths (no additional locking needed).
func (e *entry) modelIDs() []string {
	ids := make([]string, len(e.models))
	for i, m := range e.models {
		ids[i] = m.ID
	}
	return ids
}

// incrementPending bumps the pending counter and returns the new value.
func (e *entry) incrementPending() uint32 {
	return e.pendingRequests.Add(1)
}

// decrementPending floors at zero via a CAS loop, per spec §4.1.
func (e *entry) decrementPending() (newValue uint32, wasZero bool) {
	for {
		cur := e.pendingRequests.Load()
		if cur == 0 {
			return 0, true
		}
		if e.pendingRequests.CompareAndSwap(cur, cur-1) {
			return cur - 1, false
		}
	}
}

// updateLatency implements the integer EMA with alpha=1/5 described in
// spec §4.1: new = (sample + 4*old)/5, except when old==0 where new=sample.
func (e *entry) updateLatency(sampleMs uint32) {
	for {
		old := e.avgLatencyMs.Load()
		var next uint32
		if old == 0 {
			next = sampleMs
		} else {
			next = (sampleMs + 4*old) / 5
		}
		if e.avgLatencyMs.CompareAndSwap(old, next) {
			return
		}
	}
}

func normalizeURL(u string) string {
	for len(u) > 0 && u[len(u)-1] == '/' {
		u = u[:len(u)-1]
	}
	return u
}
