package reconciler

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuslb/nexus/internal/quality"
	"github.com/nexuslb/nexus/internal/registry"
)

func newTestRegistry(t *testing.T, backends ...registry.Backend) *registry.Registry {
	t.Helper()
	reg := registry.New()
	for _, b := range backends {
		require.NoError(t, reg.AddBackend(b))
		require.NoError(t, reg.UpdateStatus(b.ID, registry.StatusHealthy, nil))
	}
	return reg
}

func llamaModel(id string) registry.Model {
	return registry.Model{ID: id, Name: id, ContextLength: 8192}
}

func TestChain_RoutesHealthyCandidate(t *testing.T) {
	reg := newTestRegistry(t, registry.Backend{
		ID: "b1", URL: "http://b1", Priority: 1, Models: []registry.Model{llamaModel("llama3")},
	})
	qstore := quality.NewStore()

	chain := NewChain(
		NewAnalyzerReconciler(reg),
		NewPrivacyReconciler(reg),
		NewBudgetReconciler(reg),
		NewTierReconciler(reg),
		NewQualityReconciler(qstore, DefaultQualityConfig()),
		NewSchedulerReconciler(reg, qstore, DefaultSchedulerConfig(), NewSchedulerMetrics(prometheus.NewRegistry())),
	)

	intent := &RoutingIntent{ID: "r1", Requirements: RequestRequirements{Model: "llama3"}}
	decision := chain.Run(intent)

	require.NotNil(t, decision)
	assert.Equal(t, DecisionRoute, decision.Kind)
	assert.Equal(t, "b1", decision.BackendID)
}

func TestChain_PrivacyMismatchExcludesCandidate(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.AddBackend(registry.Backend{
		ID: "restricted-1", URL: "http://r1", Models: []registry.Model{llamaModel("llama3")},
		Metadata: map[string]string{"privacy_zone": "open"},
	}))
	require.NoError(t, reg.UpdateStatus("restricted-1", registry.StatusHealthy, nil))
	qstore := quality.NewStore()

	chain := NewChain(
		NewAnalyzerReconciler(reg),
		NewPrivacyReconciler(reg),
		NewBudgetReconciler(reg),
		NewTierReconciler(reg),
		NewQualityReconciler(qstore, DefaultQualityConfig()),
		NewSchedulerReconciler(reg, qstore, DefaultSchedulerConfig(), NewSchedulerMetrics(prometheus.NewRegistry())),
	)

	intent := &RoutingIntent{ID: "r2", Requirements: RequestRequirements{Model: "llama3", PrivacyZone: "restricted"}}
	decision := chain.Run(intent)

	require.NotNil(t, decision)
	assert.Equal(t, DecisionReject, decision.Kind)
	assert.Len(t, intent.ExcludedAgents, 1)
	assert.Equal(t, "privacy", intent.ExcludedAgents[0].Stage)
}

func TestScheduler_FallsBackWhenPrimaryUnhealthy(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.AddBackend(registry.Backend{ID: "primary", URL: "http://p", Models: []registry.Model{llamaModel("big-model")}}))
	require.NoError(t, reg.AddBackend(registry.Backend{ID: "fallback", URL: "http://f", Models: []registry.Model{llamaModel("small-model")}}))
	require.NoError(t, reg.UpdateStatus("fallback", registry.StatusHealthy, nil))
	// primary left Unknown (unhealthy for routing purposes)

	qstore := quality.NewStore()
	cfg := DefaultSchedulerConfig()
	cfg.FallbackChains = map[string][]string{"big-model": {"small-model"}}
	metrics := NewSchedulerMetrics(prometheus.NewRegistry())

	chain := NewChain(
		NewAnalyzerReconciler(reg),
		NewSchedulerReconciler(reg, qstore, cfg, metrics),
	)

	intent := &RoutingIntent{ID: "r3", Requirements: RequestRequirements{Model: "big-model"}}
	decision := chain.Run(intent)

	require.NotNil(t, decision)
	assert.Equal(t, DecisionRoute, decision.Kind)
	assert.Equal(t, "fallback", decision.BackendID)
	assert.True(t, decision.FallbackUsed)
	assert.Equal(t, "small-model", decision.ActualModel)
}

func TestScheduler_QueuesWhenAllCandidatesSaturated(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.AddBackend(registry.Backend{ID: "b1", URL: "http://b1", Models: []registry.Model{llamaModel("m")}}))
	require.NoError(t, reg.UpdateStatus("b1", registry.StatusHealthy, nil))
	for i := 0; i < 4; i++ {
		_, err := reg.IncrementPending("b1")
		require.NoError(t, err)
	}

	qstore := quality.NewStore()
	cfg := DefaultSchedulerConfig()
	cfg.PendingCap = 4

	chain := NewChain(
		NewAnalyzerReconciler(reg),
		NewSchedulerReconciler(reg, qstore, cfg, NewSchedulerMetrics(prometheus.NewRegistry())),
	)

	intent := &RoutingIntent{ID: "r4", Requirements: RequestRequirements{Model: "m"}}
	decision := chain.Run(intent)

	require.NotNil(t, decision)
	assert.Equal(t, DecisionQueue, decision.Kind)
}

func TestScheduler_PriorityOnlyPicksLowestPriorityThenLexicographicID(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.AddBackend(registry.Backend{ID: "z-backend", URL: "http://z", Priority: 1, Models: []registry.Model{llamaModel("m")}}))
	require.NoError(t, reg.AddBackend(registry.Backend{ID: "a-backend", URL: "http://a", Priority: 1, Models: []registry.Model{llamaModel("m")}}))
	require.NoError(t, reg.UpdateStatus("z-backend", registry.StatusHealthy, nil))
	require.NoError(t, reg.UpdateStatus("a-backend", registry.StatusHealthy, nil))

	qstore := quality.NewStore()
	cfg := DefaultSchedulerConfig()
	cfg.Strategy = StrategyPriorityOnly

	chain := NewChain(
		NewAnalyzerReconciler(reg),
		NewSchedulerReconciler(reg, qstore, cfg, NewSchedulerMetrics(prometheus.NewRegistry())),
	)

	intent := &RoutingIntent{ID: "r5", Requirements: RequestRequirements{Model: "m"}}
	decision := chain.Run(intent)

	require.NotNil(t, decision)
	assert.Equal(t, "a-backend", decision.BackendID)
}

func TestScheduler_RoundRobinAlternates(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.AddBackend(registry.Backend{ID: "b1", URL: "http://b1", Models: []registry.Model{llamaModel("m")}}))
	require.NoError(t, reg.AddBackend(registry.Backend{ID: "b2", URL: "http://b2", Models: []registry.Model{llamaModel("m")}}))
	require.NoError(t, reg.UpdateStatus("b1", registry.StatusHealthy, nil))
	require.NoError(t, reg.UpdateStatus("b2", registry.StatusHealthy, nil))

	qstore := quality.NewStore()
	cfg := DefaultSchedulerConfig()
	cfg.Strategy = StrategyRoundRobin
	sched := NewSchedulerReconciler(reg, qstore, cfg, NewSchedulerMetrics(prometheus.NewRegistry()))
	chain := NewChain(NewAnalyzerReconciler(reg), sched)

	first := chain.Run(&RoutingIntent{ID: "r6", Requirements: RequestRequirements{Model: "m"}})
	second := chain.Run(&RoutingIntent{ID: "r7", Requirements: RequestRequirements{Model: "m"}})

	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.NotEqual(t, first.BackendID, second.BackendID)
}
