package httpapi

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/nexuslb/nexus/internal/adapters"
	"github.com/nexuslb/nexus/internal/queue"
	"github.com/nexuslb/nexus/internal/reconciler"
)

// chatRequest is the subset of an OpenAI chat-completions request body Nexus
// needs to extract routing requirements; the rest of the body is forwarded
// to the backend minimally modified, per spec §6.1.
type chatRequest struct {
	Model       string          `json:"model"`
	Messages    json.RawMessage `json:"messages"`
	Stream      bool            `json:"stream"`
	Tools       json.RawMessage `json:"tools,omitempty"`
	ResponseFmt json.RawMessage `json:"response_format,omitempty"`
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, openAIError{Error: openAIErrorBody{Message: "method not allowed", Type: "invalid_request_error"}})
		return
	}

	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, openAIError{Error: openAIErrorBody{Message: "could not read request body", Type: "invalid_request_error"}})
		return
	}

	var req chatRequest
	if err := json.Unmarshal(rawBody, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, openAIError{Error: openAIErrorBody{Message: "malformed JSON body", Type: "invalid_request_error"}})
		return
	}

	requirements := reconciler.RequestRequirements{
		Model:            req.Model,
		NeedsVision:      containsImageContent(req.Messages),
		NeedsTools:       len(req.Tools) > 0,
		NeedsJSONMode:    len(req.ResponseFmt) > 0,
		PrefersStreaming: req.Stream,
		PrivacyZone:      r.Header.Get("X-Nexus-Privacy-Zone"),
		Tier:             r.Header.Get("X-Nexus-Tier"),
	}

	priority := queue.ParsePriority(r.Header.Get("X-Nexus-Priority"))
	decision, err := s.router.Select(r.Context(), requirements, priority)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, openAIError{Error: openAIErrorBody{Message: "request cancelled while queued", Type: "server_error"}})
		return
	}
	if decision.Kind == reconciler.DecisionReject {
		writeRejection(w, decision)
		return
	}

	backend, ok := s.registry.GetBackend(decision.BackendID)
	if !ok {
		writeRejection(w, &reconciler.RoutingDecision{Kind: reconciler.DecisionReject, HTTPStatus: http.StatusServiceUnavailable, ErrorCode: "no_healthy_backend"})
		return
	}

	adapter := adapters.For(backend.BackendType)
	outboundBody := rebuildChatBody(rawBody, decision.ActualModel)

	costUSD, costOK := s.estimateTokensCost(string(req.Messages), 256)
	applyDecisionHeaders(w, backend.BackendType.Locality(), backend.Metadata["privacy_zone"], decision, costUSD, costOK)

	var ttft uint32
	var success bool
	proxyErr := s.dispatchBookkeeping(r.Context(), decision.BackendID, func() (uint32, bool, error) {
		start := time.Now()
		outReq, err := adapter.BuildRequest(r.Context(), backend.URL, adapters.OpChatCompletions, decision.ActualModel, outboundBody)
		if err != nil {
			return 0, false, err
		}
		resp, err := s.httpClient.Do(outReq)
		if err != nil {
			return 0, false, err
		}
		defer resp.Body.Close()

		if req.Stream {
			ttft = streamSSE(w, resp.Body, start, req.Model)
		} else {
			raw, err := io.ReadAll(resp.Body)
			if err != nil {
				return uint32(time.Since(start).Milliseconds()), false, err
			}
			translated, terr := adapter.TranslateResponse(adapters.OpChatCompletions, raw)
			if terr != nil {
				translated = raw
			}
			translated = rewriteModelField(translated, req.Model)
			ttft = uint32(time.Since(start).Milliseconds())
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(resp.StatusCode)
			_, _ = w.Write(translated)
		}
		success = resp.StatusCode < 400
		return ttft, success, nil
	})

	if proxyErr != nil && s.log != nil {
		s.log.Warn("chat completions proxy failed", map[string]interface{}{"backend_id": decision.BackendID, "error": proxyErr.Error()})
	}
}

// sseDataPrefix is the standard SSE field prefix carrying each chunk's JSON
// payload.
const sseDataPrefix = "data: "

// streamSSE copies backend SSE chunks through to the client, flushing after
// every event so the client observes true incremental delivery, and returns
// the observed time-to-first-token in milliseconds. Every data chunk's
// model field is rewritten to the client-requested model name before
// forwarding (spec invariant 9 applies to streaming exactly as it does to
// non-streaming responses).
func streamSSE(w http.ResponseWriter, body io.Reader, start time.Time, requestedModel string) uint32 {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var ttft uint32
	first := true
	for scanner.Scan() {
		line := scanner.Bytes()
		out := rewriteSSEDataLine(line, requestedModel)
		if _, err := w.Write(append(out, '\n')); err != nil {
			return ttft
		}
		if first && len(bytes.TrimSpace(line)) > 0 {
			ttft = uint32(time.Since(start).Milliseconds())
			first = false
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	return ttft
}

// rewriteSSEDataLine rewrites the model field inside a "data: {...}" SSE
// line, leaving the "data: [DONE]" sentinel and any non-data line untouched.
func rewriteSSEDataLine(line []byte, requestedModel string) []byte {
	payload, ok := bytes.CutPrefix(line, []byte(sseDataPrefix))
	if !ok || bytes.Equal(bytes.TrimSpace(payload), []byte("[DONE]")) {
		return line
	}
	rewritten := rewriteModelField(payload, requestedModel)
	return append([]byte(sseDataPrefix), rewritten...)
}

func containsImageContent(messages json.RawMessage) bool {
	return bytes.Contains(messages, []byte(`"image_url"`)) || bytes.Contains(messages, []byte(`"type":"image"`))
}

// rebuildChatBody swaps the model field to the resolved/fallback model name
// before forwarding, leaving everything else untouched (spec §6.1: "Request
// body is passed through minimally modified").
func rebuildChatBody(raw []byte, model string) []byte {
	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return raw
	}
	generic["model"] = model
	out, err := json.Marshal(generic)
	if err != nil {
		return raw
	}
	return out
}

// rewriteModelField restores the client-requested model name in the
// response body (spec invariant 9: the response's model field echoes what
// the client asked for, not any alias or fallback target).
func rewriteModelField(raw []byte, requestedModel string) []byte {
	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return raw
	}
	if _, ok := generic["model"]; ok {
		generic["model"] = requestedModel
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return raw
	}
	return out
}
