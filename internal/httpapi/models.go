package httpapi

import (
	"net/http"
	"time"

	"github.com/nexuslb/nexus/internal/registry"
)

type modelListEntry struct {
	ID               string `json:"id"`
	Object           string `json:"object"`
	Created          int64  `json:"created"`
	OwnedBy          string `json:"owned_by"`
	ContextLength    int    `json:"context_length"`
	SupportsVision   bool   `json:"supports_vision"`
	SupportsTools    bool   `json:"supports_tools"`
	SupportsJSONMode bool   `json:"supports_json_mode"`
}

type modelListResponse struct {
	Object string           `json:"object"`
	Data   []modelListEntry `json:"data"`
}

// handleModels returns the union of unique model ids across Healthy
// backends (spec §6.1), enriched with context_length and capability flags
// taken from the first Healthy backend advertising each model id.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	seen := make(map[string]modelListEntry)
	order := make([]string, 0, 8)

	for _, b := range s.registry.GetHealthyBackends() {
		for _, m := range b.Models {
			if _, ok := seen[m.ID]; ok {
				continue
			}
			seen[m.ID] = modelListEntry{
				ID:               m.ID,
				Object:           "model",
				Created:          s.startedAt.Unix(),
				OwnedBy:          "nexus",
				ContextLength:    m.ContextLength,
				SupportsVision:   m.SupportsVision,
				SupportsTools:    m.SupportsTools,
				SupportsJSONMode: m.SupportsJSONMode,
			}
			order = append(order, m.ID)
		}
	}

	resp := modelListResponse{Object: "list"}
	for _, id := range order {
		resp.Data = append(resp.Data, seen[id])
	}
	writeJSON(w, http.StatusOK, resp)
}

type healthResponse struct {
	TotalBackends     int    `json:"total_backends"`
	HealthyBackends   int    `json:"healthy_backends"`
	UnhealthyBackends int    `json:"unhealthy_backends"`
	UniqueModels      int    `json:"unique_models"`
	UptimeSeconds     int64  `json:"uptime_seconds"`
	Status            string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	all := s.registry.GetAllBackends()
	healthy := 0
	models := make(map[string]struct{})
	for _, b := range all {
		if b.Status == registry.StatusHealthy {
			healthy++
			for _, m := range b.Models {
				models[m.ID] = struct{}{}
			}
		}
	}

	status := "ok"
	if len(all) > 0 && healthy == 0 {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, healthResponse{
		TotalBackends:     len(all),
		HealthyBackends:   healthy,
		UnhealthyBackends: len(all) - healthy,
		UniqueModels:      len(models),
		UptimeSeconds:     int64(time.Since(s.startedAt).Seconds()),
		Status:            status,
	})
}
