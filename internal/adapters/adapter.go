// Package adapters implements the per-backend-type wire adapters named as
// out-of-scope collaborators in spec §1 (Ollama, vLLM, llama.cpp, OpenAI,
// Generic) — the thing that gives the Scheduler's `backend_type` field a
// concrete consumer. Grounded in the teacher's ai/providers/{openai,
// anthropic,bedrock,gemini,mock} layout: one file per provider, a shared
// interface and a BaseClient-flavored helper in the parent package.
package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nexuslb/nexus/internal/registry"
)

// Operation names the three proxy operations Nexus forwards to a backend.
type Operation int

const (
	OpChatCompletions Operation = iota
	OpEmbeddings
	OpListModels
)

// Adapter translates Nexus's OpenAI-shaped inbound request into whatever
// wire format a specific backend_type expects, and adapts the response back.
// Implementations never touch routing decisions — Nexus has already picked
// the backend by the time an Adapter is invoked.
type Adapter interface {
	// BuildRequest returns the outbound *http.Request for op against base,
	// with body already translated to the backend's wire format.
	BuildRequest(ctx context.Context, base string, op Operation, model string, body []byte) (*http.Request, error)

	// TranslateResponse adapts a raw backend response body back to the
	// OpenAI-compatible shape Nexus's HTTP surface promises callers. Most
	// adapters are near-identity; Ollama's is not.
	TranslateResponse(op Operation, raw []byte) ([]byte, error)
}

// For returns the Adapter for a backend_type, falling back to Generic
// (OpenAI passthrough) for unrecognized values rather than erroring — an
// operator typo in `backends.type` shouldn't take the backend out of
// rotation entirely, just lose any wire-format translation it needed.
func For(t registry.BackendType) Adapter {
	switch t {
	case registry.BackendOllama:
		return &ollamaAdapter{}
	case registry.BackendVLLM, registry.BackendLlamaCpp,
		registry.BackendExo, registry.BackendLMStudio, registry.BackendOpenAI:
		return &openAIAdapter{}
	default:
		return &openAIAdapter{}
	}
}

// NewHTTPClient returns the client Nexus's proxy layer should use to execute
// requests built by an Adapter. A generous timeout accommodates non-streaming
// completions against slow local models; streaming responses are read
// incrementally by the caller regardless.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: 120 * time.Second}
}

func newJSONRequest(ctx context.Context, method, url string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("adapters: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func mustMarshal(v interface{}) []byte {
	b, _ := json.Marshal(v)
	return b
}
