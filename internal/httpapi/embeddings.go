package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/nexuslb/nexus/internal/adapters"
	"github.com/nexuslb/nexus/internal/queue"
	"github.com/nexuslb/nexus/internal/reconciler"
)

type embeddingsRequest struct {
	Model string          `json:"model"`
	Input json.RawMessage `json:"input"`
}

func (s *Server) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, openAIError{Error: openAIErrorBody{Message: "method not allowed", Type: "invalid_request_error"}})
		return
	}

	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, openAIError{Error: openAIErrorBody{Message: "could not read request body", Type: "invalid_request_error"}})
		return
	}

	var req embeddingsRequest
	if err := json.Unmarshal(rawBody, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, openAIError{Error: openAIErrorBody{Message: "malformed JSON body", Type: "invalid_request_error"}})
		return
	}

	requirements := reconciler.RequestRequirements{Model: req.Model, PrivacyZone: r.Header.Get("X-Nexus-Privacy-Zone")}
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
	applyDecisionHeaders(w, backend.BackendType.Locality(), backend.Metadata["privacy_zone"], decision, 0, false)

	proxyErr := s.dispatchBookkeeping(r.Context(), decision.BackendID, func() (uint32, bool, error) {
		start := time.Now()
		outReq, err := adapter.BuildRequest(r.Context(), backend.URL, adapters.OpEmbeddings, decision.ActualModel, outboundBody)
		if err != nil {
			return 0, false, err
		}
		resp, err := s.httpClient.Do(outReq)
		if err != nil {
			return 0, false, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		ttft := uint32(time.Since(start).Milliseconds())
		if err != nil {
			return ttft, false, err
		}
		translated, terr := adapter.TranslateResponse(adapters.OpEmbeddings, raw)
		if terr != nil {
			translated = raw
		}
		translated = rewriteModelField(translated, req.Model)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(translated)
		return ttft, resp.StatusCode < 400, nil
	})

	if proxyErr != nil && s.log != nil {
		s.log.Warn("embeddings proxy failed", map[string]interface{}{"backend_id": decision.BackendID, "error": proxyErr.Error()})
	}
}
