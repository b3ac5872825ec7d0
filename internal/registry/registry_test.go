package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuslb/nexus/pkg/nexuserrors"
)

func backendFixture(id string, models ...Model) Backend {
	return Backend{
		ID:              id,
		Name:            id,
		URL:             "http://" + id + ":11434/",
		BackendType:     BackendOllama,
		DiscoverySource: DiscoveryStatic,
		Models:          models,
	}
}

func TestAddBackend_DuplicateRejected(t *testing.T) {
	r := New()
	require.NoError(t, r.AddBackend(backendFixture("a")))

	err := r.AddBackend(backendFixture("a"))
	assert.ErrorIs(t, err, nexuserrors.ErrDuplicateBackend)
}

func TestAddBackend_IndexesModels(t *testing.T) {
	r := New()
	m := Model{ID: "llama3:70b", Name: "llama3:70b", ContextLength: 8192}
	require.NoError(t, r.AddBackend(backendFixture("a", m)))

	backends := r.GetBackendsForModel(m.ID)
	require.Len(t, backends, 1)
	assert.Equal(t, "a", backends[0].ID)
}

func TestRemoveBackend_ScrubsModelIndex(t *testing.T) {
	r := New()
	m := Model{ID: "llama3:70b"}
	require.NoError(t, r.AddBackend(backendFixture("a", m)))

	_, err := r.RemoveBackend("a")
	require.NoError(t, err)

	assert.Empty(t, r.GetBackendsForModel(m.ID))

	_, err = r.RemoveBackend("a")
	assert.ErrorIs(t, err, nexuserrors.ErrBackendNotFound)
}

func TestUpdateModels_ReindexesOldAndNew(t *testing.T) {
	r := New()
	old := Model{ID: "old-model"}
	require.NoError(t, r.AddBackend(backendFixture("a", old)))

	newModel := Model{ID: "new-model"}
	require.NoError(t, r.UpdateModels("a", []Model{newModel}))

	assert.Empty(t, r.GetBackendsForModel(old.ID))
	got := r.GetBackendsForModel(newModel.ID)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}

func TestUpdateModels_NotFound(t *testing.T) {
	r := New()
	err := r.UpdateModels("missing", nil)
	assert.ErrorIs(t, err, nexuserrors.ErrBackendNotFound)
}

// TestBalancedPendingCountersConverge exercises invariant #1 from spec §8:
// any sequence of balanced increment/decrement of pending_requests ends at 0.
func TestBalancedPendingCountersConverge(t *testing.T) {
	r := New()
	require.NoError(t, r.AddBackend(backendFixture("a")))

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.IncrementPending("a")
			_, _ = r.DecrementPending("a", nil)
		}()
	}
	wg.Wait()

	view, ok := r.GetBackend("a")
	require.True(t, ok)
	assert.Equal(t, uint32(0), view.PendingRequests)
}

func TestDecrementPending_SaturatesAtZero(t *testing.T) {
	r := New()
	require.NoError(t, r.AddBackend(backendFixture("a")))

	underflowed := false
	newValue, err := r.DecrementPending("a", func() { underflowed = true })
	require.NoError(t, err)
	assert.Equal(t, uint32(0), newValue)
	assert.True(t, underflowed)
}

func TestUpdateLatency_EMA(t *testing.T) {
	r := New()
	require.NoError(t, r.AddBackend(backendFixture("a")))

	require.NoError(t, r.UpdateLatency("a", 100))
	view, _ := r.GetBackend("a")
	assert.Equal(t, uint32(100), view.AvgLatencyMs)

	// new = (sample + 4*old)/5 = (200 + 400)/5 = 120
	require.NoError(t, r.UpdateLatency("a", 200))
	view, _ = r.GetBackend("a")
	assert.Equal(t, uint32(120), view.AvgLatencyMs)
}

func TestGetHealthyBackends_FiltersStatus(t *testing.T) {
	r := New()
	require.NoError(t, r.AddBackend(backendFixture("a")))
	require.NoError(t, r.AddBackend(backendFixture("b")))
	require.NoError(t, r.UpdateStatus("a", StatusHealthy, nil))

	healthy := r.GetHealthyBackends()
	require.Len(t, healthy, 1)
	assert.Equal(t, "a", healthy[0].ID)
}

func TestHasBackendURL_NormalizesTrailingSlash(t *testing.T) {
	r := New()
	require.NoError(t, r.AddBackend(backendFixture("a")))

	assert.True(t, r.HasBackendURL("http://a:11434"))
	assert.True(t, r.HasBackendURL("http://a:11434/"))
	assert.False(t, r.HasBackendURL("http://b:11434"))
}

// TestConcurrentReadsAndWrites is a smoke test: many concurrent readers
// alongside writers should not deadlock or race (run with -race in CI).
func TestConcurrentReadsAndWrites(t *testing.T) {
	r := New()
	for i := 0; i < shardCount*2; i++ {
		id := string(rune('a' + i))
		require.NoError(t, r.AddBackend(backendFixture(id, Model{ID: "m" + id})))
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.GetAllBackends()
			_ = r.GetHealthyBackends()
		}()
	}
	for i := 0; i < shardCount*2; i++ {
		id := string(rune('a' + i))
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_ = r.UpdateStatus(id, StatusHealthy, nil)
			_, _ = r.IncrementPending(id)
		}(id)
	}
	wg.Wait()
}
