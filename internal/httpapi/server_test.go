package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuslb/nexus/internal/quality"
	"github.com/nexuslb/nexus/internal/queue"
	"github.com/nexuslb/nexus/internal/reconciler"
	"github.com/nexuslb/nexus/internal/registry"
	"github.com/nexuslb/nexus/internal/router"
)

type stubPipeline struct {
	decision *reconciler.RoutingDecision
}

func (s stubPipeline) Run(intent *reconciler.RoutingIntent) *reconciler.RoutingDecision {
	return s.decision
}

func TestHandleModels_ListsUniqueModelsFromHealthyBackends(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.AddBackend(registry.Backend{ID: "b1", URL: "http://b1"}))
	require.NoError(t, reg.UpdateStatus("b1", registry.StatusHealthy, nil))
	require.NoError(t, reg.UpdateModels("b1", []registry.Model{{ID: "llama3:70b", ContextLength: 8192}}))

	srv := New(nil, reg, quality.NewStore(), queue.Config{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	w := httptest.NewRecorder()
	srv.handleModels(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp modelListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "llama3:70b", resp.Data[0].ID)
	assert.Equal(t, 8192, resp.Data[0].ContextLength)
}

func TestHandleHealth_ReportsCounts(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.AddBackend(registry.Backend{ID: "b1", URL: "http://b1"}))
	require.NoError(t, reg.AddBackend(registry.Backend{ID: "b2", URL: "http://b2"}))
	require.NoError(t, reg.UpdateStatus("b1", registry.StatusHealthy, nil))

	srv := New(nil, reg, quality.NewStore(), queue.Config{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.handleHealth(w, req)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.TotalBackends)
	assert.Equal(t, 1, resp.HealthyBackends)
	assert.Equal(t, 1, resp.UnhealthyBackends)
}

func TestHandleChatCompletions_RejectDecisionProducesOpenAIEnvelope(t *testing.T) {
	reg := registry.New()
	pipeline := stubPipeline{decision: &reconciler.RoutingDecision{
		Kind: reconciler.DecisionReject, HTTPStatus: http.StatusNotFound,
		ErrorCode: "model_not_found", RejectionReasons: []string{"model never registered"},
	}}
	r := router.New(pipeline, nil, router.Config{})
	srv := New(r, reg, quality.NewStore(), queue.Config{}, nil)

	body := []byte(`{"model":"gpt-4","messages":[{"role":"user","content":"hi"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleChatCompletions(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	var resp openAIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "model_not_found", resp.Error.Code)
}
