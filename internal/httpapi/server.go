// Package httpapi implements spec §6.1's HTTP surface: the six endpoints a
// Nexus deployment exposes to OpenAI-compatible clients and to operators.
// Routing goes through Router.Select; dispatch bookkeeping
// (increment/decrement pending, latency EMA, quality outcome recording)
// happens here, around the call, per the Router's own documented contract.
// Wiring follows the teacher's core/middleware.go responseWriter/Flusher
// idiom — Nexus pulls in no router framework either, just net/http's
// ServeMux and a small middleware chain.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nexuslb/nexus/internal/adapters"
	"github.com/nexuslb/nexus/internal/logging"
	"github.com/nexuslb/nexus/internal/quality"
	"github.com/nexuslb/nexus/internal/queue"
	"github.com/nexuslb/nexus/internal/registry"
	"github.com/nexuslb/nexus/internal/router"
	"github.com/nexuslb/nexus/internal/telemetry"
	"github.com/nexuslb/nexus/internal/tokenizer"
)

var proxyTracer = telemetry.NewTracer("nexus.proxy")

// Server wires the Router, Registry, and Quality store behind net/http
// handlers.
type Server struct {
	router     *router.Router
	registry   *registry.Registry
	quality    *quality.Store
	queueCfg   queue.Config
	queueDepth func() uint32
	log        logging.Logger
	startedAt  time.Time

	// httpClient is shared across every proxied request so the underlying
	// transport's connection pool is actually reused, rather than a fresh
	// client (and fresh, unpooled transport) per request.
	httpClient *http.Client

	// CostPerThousandInputUSD / CostPerThousandOutputUSD, when either is
	// positive, enables the best-effort X-Nexus-Cost-Estimated header.
	CostPerThousandInputUSD  float64
	CostPerThousandOutputUSD float64
}

// New builds a Server.
func New(r *router.Router, reg *registry.Registry, q *quality.Store, queueCfg queue.Config, log logging.Logger) *Server {
	return &Server{router: r, registry: reg, quality: q, queueCfg: queueCfg, log: log, startedAt: time.Now(), httpClient: adapters.NewHTTPClient()}
}

// SetQueueDepthFunc wires a live depth reader (typically *queue.Queue.Depth)
// for /v1/stats to report; omitted in tests that don't construct a queue.
func (s *Server) SetQueueDepthFunc(fn func() uint32) {
	s.queueDepth = fn
}

// Handler builds the top-level http.Handler: routes wrapped in logging
// middleware and OTel HTTP instrumentation (teacher's telemetry.Tracer
// generalized to request-scoped spans around the proxy call).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/v1/embeddings", s.handleEmbeddings)
	mux.HandleFunc("/v1/models", s.handleModels)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/stats", s.handleStats)
	mux.Handle("/metrics", promhttp.Handler())

	var handler http.Handler = mux
	handler = loggingMiddleware(s.log)(handler)
	handler = otelhttp.NewHandler(handler, "nexus.http")
	return handler
}

func (s *Server) estimateTokensCost(promptText string, completionTokens int) (float64, bool) {
	return tokenizer.EstimateCostUSD(promptText, completionTokens, s.CostPerThousandInputUSD, s.CostPerThousandOutputUSD)
}

// dispatchBookkeeping wraps a proxy call with the increment/decrement
// pending and latency-EMA/outcome-recording bookkeeping the Router
// deliberately leaves to its caller (spec §4.3's closing note).
func (s *Server) dispatchBookkeeping(ctx context.Context, backendID string, fn func() (ttftMs uint32, success bool, err error)) error {
	ctx, span := proxyTracer.Start(ctx, "nexus.dispatch")
	span.SetAttributes(attribute.String("nexus.backend_id", backendID))
	defer span.End()

	if _, err := s.registry.IncrementPending(backendID); err != nil && s.log != nil {
		s.log.Warn("dispatch: increment_pending failed", map[string]interface{}{"backend_id": backendID, "error": err.Error()})
	}

	start := time.Now()
	ttftMs, success, err := fn()
	latencyMs := uint32(time.Since(start).Milliseconds())
	span.SetAttributes(attribute.Bool("nexus.success", success), attribute.Int64("nexus.latency_ms", int64(latencyMs)))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}

	if uerr := s.registry.UpdateLatency(backendID, latencyMs); uerr != nil && s.log != nil {
		s.log.Warn("dispatch: update_latency failed", map[string]interface{}{"backend_id": backendID, "error": uerr.Error()})
	}
	if _, derr := s.registry.DecrementPending(backendID, func() {
		if s.log != nil {
			s.log.Warn("dispatch: decrement_pending underflow", map[string]interface{}{"backend_id": backendID})
		}
	}); derr != nil && s.log != nil {
		s.log.Warn("dispatch: decrement_pending failed", map[string]interface{}{"backend_id": backendID, "error": derr.Error()})
	}
	if s.quality != nil {
		s.quality.RecordOutcome(backendID, success, ttftMs)
	}
	return err
}
