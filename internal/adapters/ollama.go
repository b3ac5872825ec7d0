package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// ollamaAdapter translates between the OpenAI wire shape Nexus's HTTP
// surface speaks and Ollama's native /api/{chat,embed,tags} endpoints,
// which use different field names and a newline-delimited-JSON streaming
// format instead of SSE.
type ollamaAdapter struct{}

type openAIChatRequest struct {
	Model    string          `json:"model"`
	Messages json.RawMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages json.RawMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type openAIEmbeddingsRequest struct {
	Model string          `json:"model"`
	Input json.RawMessage `json:"input"`
}

type ollamaEmbeddingsRequest struct {
	Model string      `json:"model"`
	Input interface{} `json:"input"`
}

func (a *ollamaAdapter) BuildRequest(ctx context.Context, base string, op Operation, model string, body []byte) (*http.Request, error) {
	switch op {
	case OpChatCompletions:
		var in openAIChatRequest
		_ = json.Unmarshal(body, &in)
		out := ollamaChatRequest{Model: model, Messages: in.Messages, Stream: in.Stream}
		return newJSONRequest(ctx, http.MethodPost, base+"/api/chat", mustMarshal(out))

	case OpEmbeddings:
		var in openAIEmbeddingsRequest
		_ = json.Unmarshal(body, &in)
		var input interface{}
		_ = json.Unmarshal(in.Input, &input)
		out := ollamaEmbeddingsRequest{Model: model, Input: input}
		return newJSONRequest(ctx, http.MethodPost, base+"/api/embed", mustMarshal(out))

	default: // OpListModels
		return newJSONRequest(ctx, http.MethodGet, base+"/api/tags", nil)
	}
}

// ollamaChatResponse is the trailing, fully-aggregated line of Ollama's
// chat stream (or the whole body for a non-streaming call).
type ollamaChatResponse struct {
	Model          string `json:"model"`
	Message        struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done               bool  `json:"done"`
	PromptEvalCount    int   `json:"prompt_eval_count"`
	EvalCount          int   `json:"eval_count"`
	TotalDuration      int64 `json:"total_duration"`
}

type openAIChatResponse struct {
	Object  string `json:"object"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Created int64 `json:"created"`
}

type ollamaEmbeddingsResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

type openAIEmbeddingsResponse struct {
	Object string `json:"object"`
	Model  string `json:"model"`
	Data   []struct {
		Object    string    `json:"object"`
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

func (a *ollamaAdapter) TranslateResponse(op Operation, raw []byte) ([]byte, error) {
	switch op {
	case OpChatCompletions:
		var in ollamaChatResponse
		if err := json.Unmarshal(raw, &in); err != nil {
			return raw, nil // pass through unrecognized bodies rather than failing the request
		}
		out := openAIChatResponse{Object: "chat.completion", Model: in.Model, Created: time.Now().Unix()}
		out.Choices = append(out.Choices, struct {
			Index   int `json:"index"`
			Message struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		}{Index: 0, FinishReason: "stop"})
		out.Choices[0].Message.Role = in.Message.Role
		out.Choices[0].Message.Content = in.Message.Content
		out.Usage.PromptTokens = in.PromptEvalCount
		out.Usage.CompletionTokens = in.EvalCount
		out.Usage.TotalTokens = in.PromptEvalCount + in.EvalCount
		return json.Marshal(out)

	case OpEmbeddings:
		var in ollamaEmbeddingsResponse
		if err := json.Unmarshal(raw, &in); err != nil {
			return raw, nil
		}
		out := openAIEmbeddingsResponse{Object: "list", Model: in.Model}
		for i, emb := range in.Embeddings {
			out.Data = append(out.Data, struct {
				Object    string    `json:"object"`
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{Object: "embedding", Embedding: emb, Index: i})
		}
		return json.Marshal(out)

	default:
		return raw, nil
	}
}
