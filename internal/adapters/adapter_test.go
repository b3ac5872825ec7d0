package adapters

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuslb/nexus/internal/registry"
)

func TestFor_UnknownBackendTypeFallsBackToOpenAI(t *testing.T) {
	a := For(registry.BackendType("something-weird"))
	_, ok := a.(*openAIAdapter)
	assert.True(t, ok)
}

func TestOpenAIAdapter_BuildRequest_ChatCompletions(t *testing.T) {
	a := For(registry.BackendVLLM)
	req, err := a.BuildRequest(context.Background(), "http://backend:8000", OpChatCompletions, "m", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "http://backend:8000/v1/chat/completions", req.URL.String())
	assert.Equal(t, "POST", req.Method)
}

func TestOllamaAdapter_TranslatesChatResponseToOpenAIShape(t *testing.T) {
	a := For(registry.BackendOllama)
	raw := []byte(`{"model":"llama3","message":{"role":"assistant","content":"hi"},"done":true,"prompt_eval_count":5,"eval_count":2}`)
	out, err := a.TranslateResponse(OpChatCompletions, raw)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"content":"hi"`)
	assert.Contains(t, string(out), `"total_tokens":7`)
}

func TestOllamaAdapter_BuildRequest_UsesNativePaths(t *testing.T) {
	a := For(registry.BackendOllama)
	req, err := a.BuildRequest(context.Background(), "http://ollama:11434", OpListModels, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://ollama:11434/api/tags", req.URL.String())
	assert.Equal(t, "GET", req.Method)
}
