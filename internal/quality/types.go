// Package quality implements the rolling per-backend outcome history and
// periodic metric recomputation described in spec §3.7/§4.4. Concurrency
// follows the teacher's circuit-breaker sharding idiom (resilience package):
// writers take a lock scoped to one agent's outcome buffer, while readers of
// the computed snapshot never block on a writer touching a different agent.
package quality

import "time"

// Outcome is a single recorded request result for one backend.
type Outcome struct {
	Timestamp time.Time
	Success   bool
	TTFTMs    uint32
}

// Metrics is the precomputed, read-optimized aggregate for one backend.
type Metrics struct {
	ErrorRate1h    float64    `json:"error_rate_1h"`
	AvgTTFTMs      float64    `json:"avg_ttft_ms"`
	SuccessRate24h float64    `json:"success_rate_24h"`
	LastFailureTs  *time.Time `json:"last_failure_ts,omitempty"`
	RequestCount1h int        `json:"request_count_1h"`
}

// HealthyDefault is returned for any backend with zero recorded outcomes,
// per spec §3.7's invariant.
func HealthyDefault() Metrics {
	return Metrics{
		ErrorRate1h:    0,
		AvgTTFTMs:      0,
		SuccessRate24h: 1,
		LastFailureTs:  nil,
		RequestCount1h: 0,
	}
}

const (
	oneHour         = time.Hour
	retentionWindow = 24 * time.Hour
)
