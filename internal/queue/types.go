// Package queue implements the bounded, dual-priority request queue and its
// drain loop (spec §3.8/§4.5). A queued item is delivered exactly one final
// RoutingDecision over a one-shot channel — Route meaning the waiting
// handler should proxy the request itself, Reject meaning it should answer
// with the enclosed status/reasons. This mirrors the teacher's pattern of
// suspending a caller on a channel rather than threading a callback through
// the background loop (core/agent.go's graceful-shutdown wait channel).
package queue

import (
	"strings"
	"time"

	"github.com/nexuslb/nexus/internal/reconciler"
)

// Priority orders items within the queue; High always drains before Normal.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

// ParsePriority maps the X-Nexus-Priority header value (spec §6.1): "high"
// (case-insensitive, trimmed) selects High, anything else Normal.
func ParsePriority(header string) Priority {
	if strings.ToLower(strings.TrimSpace(header)) == "high" {
		return PriorityHigh
	}
	return PriorityNormal
}

// QueuedRequest is a single waiting request (spec §3.8). ResponseCh is
// buffered size 1 so the drain loop never blocks delivering the result.
type QueuedRequest struct {
	Intent     *reconciler.RoutingIntent
	Priority   Priority
	EnqueuedAt time.Time
	ResponseCh chan *reconciler.RoutingDecision
}

// NewQueuedRequest builds a QueuedRequest stamped with the current time.
func NewQueuedRequest(intent *reconciler.RoutingIntent, priority Priority, now time.Time) *QueuedRequest {
	return &QueuedRequest{
		Intent:     intent,
		Priority:   priority,
		EnqueuedAt: now,
		ResponseCh: make(chan *reconciler.RoutingDecision, 1),
	}
}
