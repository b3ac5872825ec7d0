package httpapi

import (
	"net/http"
)

type backendStats struct {
	ID             string  `json:"id"`
	Status         string  `json:"status"`
	PendingReqs    uint32  `json:"pending_requests"`
	AvgLatencyMs   uint32  `json:"avg_latency_ms"`
	ErrorRate1h    float64 `json:"error_rate_1h"`
	AvgTTFTMs      float64 `json:"avg_ttft_ms"`
	SuccessRate24h float64 `json:"success_rate_24h"`
}

type queueStats struct {
	Enabled bool   `json:"enabled"`
	Depth   uint32 `json:"depth"`
	MaxSize uint32 `json:"max_size"`
}

type statsResponse struct {
	Backends []backendStats `json:"backends"`
	Queue    queueStats     `json:"queue"`
}

// handleStats returns per-backend quality snapshots plus queue state (spec
// §6.1). enabled/max_size come from the static queue.Config; depth comes
// from the live reader wired via SetQueueDepthFunc, and is reported as 0
// when none was wired.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		Queue: queueStats{
			Enabled: s.queueCfg.Enabled && s.queueCfg.MaxSize > 0,
			MaxSize: s.queueCfg.MaxSize,
		},
	}
	if s.queueDepth != nil {
		resp.Queue.Depth = s.queueDepth()
	}

	for _, b := range s.registry.GetAllBackends() {
		m := s.quality.GetMetrics(b.ID)
		resp.Backends = append(resp.Backends, backendStats{
			ID:             b.ID,
			Status:         string(b.Status),
			PendingReqs:    b.PendingRequests,
			AvgLatencyMs:   b.AvgLatencyMs,
			ErrorRate1h:    m.ErrorRate1h,
			AvgTTFTMs:      m.AvgTTFTMs,
			SuccessRate24h: m.SuccessRate24h,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}
