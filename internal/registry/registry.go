// Package registry implements the concurrent in-memory backend/model store
// described in spec §3.3/§4.1. It shards both the backend map and the model
// index by an FNV hash of the key, following the hashing idiom used for
// session affinity in the reference oairouter registry — here applied to
// avoid the single global-lock store the spec explicitly disallows.
package registry

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/nexuslb/nexus/pkg/nexuserrors"
)

const shardCount = 16

type backendShard struct {
	mu    sync.RWMutex
	byID  map[string]*entry
}

type modelShard struct {
	mu     sync.RWMutex
	byID   map[string]map[string]struct{} // modelID -> set of backendID
}

// Registry is the shared, reference-counted store of backends and their
// models. All public methods are safe for concurrent use; reads never
// serialize against other reads.
type Registry struct {
	backendShards [shardCount]*backendShard
	modelShards   [shardCount]*modelShard
}

// New constructs an empty Registry.
func New() *Registry {
	r := &Registry{}
	for i := 0; i < shardCount; i++ {
		r.backendShards[i] = &backendShard{byID: make(map[string]*entry)}
		r.modelShards[i] = &modelShard{byID: make(map[string]map[string]struct{})}
	}
	return r
}

func shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % shardCount)
}

func (r *Registry) backendShardFor(id string) *backendShard {
	return r.backendShards[shardIndex(id)]
}

func (r *Registry) modelShardFor(modelID string) *modelShard {
	return r.modelShards[shardIndex(modelID)]
}

// AddBackend registers a new backend. Returns DuplicateBackend if the id is
// already present.
func (r *Registry) AddBackend(b Backend) error {
	bs := r.backendShardFor(b.ID)
	bs.mu.Lock()
	if _, exists := bs.byID[b.ID]; exists {
		bs.mu.Unlock()
		return nexuserrors.DuplicateBackend(b.ID)
	}
	e := newEntry(b)
	bs.byID[b.ID] = e
	bs.mu.Unlock()

	r.indexModels(b.ID, e.modelIDs())
	return nil
}

// RemoveBackend deletes a backend and scrubs it from the model index,
// removing now-empty index entries. Returns the removed backend's snapshot.
func (r *Registry) RemoveBackend(id string) (BackendView, error) {
	bs := r.backendShardFor(id)
	bs.mu.Lock()
	e, exists := bs.byID[id]
	if !exists {
		bs.mu.Unlock()
		return BackendView{}, nexuserrors.BackendNotFound("registry.RemoveBackend", id)
	}
	view := e.snapshot()
	modelIDs := e.modelIDs()
	delete(bs.byID, id)
	bs.mu.Unlock()

	r.unindexModels(id, modelIDs)
	return view, nil
}

// GetBackend returns a snapshot of a single backend, or ok=false.
func (r *Registry) GetBackend(id string) (BackendView, bool) {
	bs := r.backendShardFor(id)
	bs.mu.RLock()
	e, exists := bs.byID[id]
	bs.mu.RUnlock()
	if !exists {
		return BackendView{}, false
	}
	return e.snapshot(), true
}

// GetAllBackends returns a snapshot of every registered backend.
func (r *Registry) GetAllBackends() []BackendView {
	views := make([]BackendView, 0)
	for _, bs := range r.backendShards {
		bs.mu.RLock()
		for _, e := range bs.byID {
			views = append(views, e.snapshot())
		}
		bs.mu.RUnlock()
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	return views
}

// GetBackendsForModel returns snapshots of every backend serving modelID, in
// no particular order beyond a stable sort by id.
func (r *Registry) GetBackendsForModel(modelID string) []BackendView {
	ms := r.modelShardFor(modelID)
	ms.mu.RLock()
	ids := make([]string, 0, len(ms.byID[modelID]))
	for id := range ms.byID[modelID] {
		ids = append(ids, id)
	}
	ms.mu.RUnlock()

	views := make([]BackendView, 0, len(ids))
	for _, id := range ids {
		if v, ok := r.GetBackend(id); ok {
			views = append(views, v)
		}
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	return views
}

// GetHealthyBackends returns snapshots filtered to Status==Healthy.
func (r *Registry) GetHealthyBackends() []BackendView {
	all := r.GetAllBackends()
	out := all[:0:0]
	for _, v := range all {
		if v.Status == StatusHealthy {
			out = append(out, v)
		}
	}
	return out
}

// UpdateStatus sets a backend's health status and last-check timestamp.
func (r *Registry) UpdateStatus(id string, status Status, lastErr error) error {
	bs := r.backendShardFor(id)
	bs.mu.Lock()
	e, exists := bs.byID[id]
	if !exists {
		bs.mu.Unlock()
		return nexuserrors.BackendNotFound("registry.UpdateStatus", id)
	}
	e.mu.Lock()
	e.status = status
	e.lastHealthCheck = time.Now()
	if lastErr != nil {
		e.lastError = lastErr.Error()
	} else {
		e.lastError = ""
	}
	e.mu.Unlock()
	bs.mu.Unlock()
	return nil
}

// UpdateModels replaces a backend's model list wholesale and rebuilds the
// model index entries for it. Old entries are removed and new ones added in
// the same logical operation so a crash mid-update leaves the index
// recoverable on the next UpdateModels call (the index never references a
// model list older than what's currently on the backend entry, because we
// compute the diff from the entry's own prior state under its lock).
func (r *Registry) UpdateModels(id string, models []Model) error {
	bs := r.backendShardFor(id)
	bs.mu.RLock()
	e, exists := bs.byID[id]
	bs.mu.RUnlock()
	if !exists {
		return nexuserrors.BackendNotFound("registry.UpdateModels", id)
	}

	e.mu.Lock()
	oldIDs := e.modelIDs()
	newModels := make([]Model, len(models))
	copy(newModels, models)
	e.models = newModels
	newIDs := e.modelIDs()
	r.reindexModels(id, oldIDs, newIDs)
	e.mu.Unlock()
	return nil
}

// IncrementPending increments a backend's pending-request counter.
func (r *Registry) IncrementPending(id string) (uint32, error) {
	bs := r.backendShardFor(id)
	bs.mu.RLock()
	e, exists := bs.byID[id]
	bs.mu.RUnlock()
	if !exists {
		return 0, nexuserrors.BackendNotFound("registry.IncrementPending", id)
	}
	e.totalRequests.Add(1)
	return e.incrementPending(), nil
}

// DecrementPending decrements a backend's pending-request counter, flooring
// at zero. onUnderflow, when non-nil, is invoked if the counter was already
// zero so callers can emit the spec-mandated warning without this package
// taking a logging dependency.
func (r *Registry) DecrementPending(id string, onUnderflow func()) (uint32, error) {
	bs := r.backendShardFor(id)
	bs.mu.RLock()
	e, exists := bs.byID[id]
	bs.mu.RUnlock()
	if !exists {
		return 0, nexuserrors.BackendNotFound("registry.DecrementPending", id)
	}
	newValue, wasZero := e.decrementPending()
	if wasZero && onUnderflow != nil {
		onUnderflow()
	}
	return newValue, nil
}

// UpdateLatency folds a new latency sample into the backend's EMA.
func (r *Registry) UpdateLatency(id string, sampleMs uint32) error {
	bs := r.backendShardFor(id)
	bs.mu.RLock()
	e, exists := bs.byID[id]
	bs.mu.RUnlock()
	if !exists {
		return nexuserrors.BackendNotFound("registry.UpdateLatency", id)
	}
	e.updateLatency(sampleMs)
	return nil
}

// HasBackendURL reports whether any registered backend normalizes to the
// given URL (trailing slash stripped before comparison).
func (r *Registry) HasBackendURL(url string) bool {
	normalized := normalizeURL(url)
	for _, bs := range r.backendShards {
		bs.mu.RLock()
		for _, e := range bs.byID {
			if e.url == normalized {
				bs.mu.RUnlock()
				return true
			}
		}
		bs.mu.RUnlock()
	}
	return false
}

func (r *Registry) indexModels(backendID string, modelIDs []string) {
	for _, modelID := range modelIDs {
		ms := r.modelShardFor(modelID)
		ms.mu.Lock()
		set, ok := ms.byID[modelID]
		if !ok {
			set = make(map[string]struct{})
			ms.byID[modelID] = set
		}
		set[backendID] = struct{}{}
		ms.mu.Unlock()
	}
}

func (r *Registry) unindexModels(backendID string, modelIDs []string) {
	for _, modelID := range modelIDs {
		ms := r.modelShardFor(modelID)
		ms.mu.Lock()
		if set, ok := ms.byID[modelID]; ok {
			delete(set, backendID)
			if len(set) == 0 {
				delete(ms.byID, modelID)
			}
		}
		ms.mu.Unlock()
	}
}

func (r *Registry) reindexModels(backendID string, oldIDs, newIDs []string) {
	newSet := make(map[string]struct{}, len(newIDs))
	for _, id := range newIDs {
		newSet[id] = struct{}{}
	}
	oldSet := make(map[string]struct{}, len(oldIDs))
	for _, id := range oldIDs {
		oldSet[id] = struct{}{}
	}

	toRemove := make([]string, 0)
	for _, id := range oldIDs {
		if _, keep := newSet[id]; !keep {
			toRemove = append(toRemove, id)
		}
	}
	toAdd := make([]string, 0)
	for _, id := range newIDs {
		if _, existed := oldSet[id]; !existed {
			toAdd = append(toAdd, id)
		}
	}

	r.unindexModels(backendID, toRemove)
	r.indexModels(backendID, toAdd)
}
