package adapters

import (
	"context"
	"net/http"
)

// openAIAdapter serves OpenAI itself plus every locally-hosted server that
// speaks the OpenAI wire format unmodified: vLLM, llama.cpp's server mode,
// Exo, and LM Studio all expose /v1/chat/completions, /v1/embeddings and
// /v1/models verbatim, so one adapter covers all of them.
type openAIAdapter struct{}

func (a *openAIAdapter) BuildRequest(ctx context.Context, base string, op Operation, model string, body []byte) (*http.Request, error) {
	path := map[Operation]string{
		OpChatCompletions: "/v1/chat/completions",
		OpEmbeddings:      "/v1/embeddings",
		OpListModels:      "/v1/models",
	}[op]

	method := http.MethodPost
	if op == OpListModels {
		method = http.MethodGet
		body = nil
	}
	return newJSONRequest(ctx, method, base+path, body)
}

func (a *openAIAdapter) TranslateResponse(op Operation, raw []byte) ([]byte, error) {
	return raw, nil
}
