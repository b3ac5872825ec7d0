package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/nexuslb/nexus/internal/reconciler"
)

// openAIError is spec §6.1's required error envelope shape.
type openAIError struct {
	Error openAIErrorBody `json:"error"`
}

type openAIErrorBody struct {
	Message string                 `json:"message"`
	Type    string                 `json:"type"`
	Code    string                 `json:"code"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// writeRejection renders a Reject RoutingDecision as an OpenAI-shaped error
// response, including Retry-After for queue_timeout (spec §6.1) and a
// context object enumerating rejection_reasons whenever the decision
// carries any (spec §7).
func writeRejection(w http.ResponseWriter, d *reconciler.RoutingDecision) {
	if d.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfterSeconds))
	}

	body := openAIError{Error: openAIErrorBody{
		Message: rejectionMessage(d),
		Type:    "invalid_request_error",
		Code:    d.ErrorCode,
	}}
	if d.HTTPStatus >= 500 || d.HTTPStatus == http.StatusServiceUnavailable {
		body.Error.Type = "server_error"
	}
	if len(d.RejectionReasons) > 0 {
		body.Error.Context = map[string]interface{}{"rejection_reasons": d.RejectionReasons}
	}
	if len(d.FallbackChain) > 0 {
		if body.Error.Context == nil {
			body.Error.Context = map[string]interface{}{}
		}
		body.Error.Context["fallback_chain"] = d.FallbackChain
	}

	writeJSON(w, d.HTTPStatus, body)
}

func rejectionMessage(d *reconciler.RoutingDecision) string {
	switch d.ErrorCode {
	case "model_not_found":
		return "The requested model could not be routed to any backend."
	case "no_healthy_backend":
		return "No healthy backend is currently available for the requested model."
	case "capacity_overflow":
		return "All capable backends are at capacity and queueing is disabled."
	case "queue_full":
		return "The request queue is full."
	case "queue_timeout":
		return "The request timed out waiting in queue."
	case "shutdown":
		return "The server is shutting down."
	default:
		return "The request could not be routed."
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// applyDecisionHeaders sets the X-Nexus-* response headers spec §4.6
// describes for a successful Route decision.
func applyDecisionHeaders(w http.ResponseWriter, backendLocality, privacyZone string, d *reconciler.RoutingDecision, costUSD float64, costOK bool) {
	w.Header().Set("X-Nexus-Backend-Type", backendLocality)
	w.Header().Set("X-Nexus-Route-Reason", d.RouteReason)
	if privacyZone != "" {
		w.Header().Set("X-Nexus-Privacy-Zone", privacyZone)
	}
	if costOK {
		w.Header().Set("X-Nexus-Cost-Estimated", strconv.FormatFloat(costUSD, 'f', 6, 64))
	}
	if d.FallbackUsed {
		w.Header().Set("X-Nexus-Fallback-Model", d.ActualModel)
	}
}
