package quality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMetrics_ZeroOutcomesIsHealthyDefault(t *testing.T) {
	s := NewStore()
	m := s.GetMetrics("unknown-agent")
	assert.Equal(t, HealthyDefault(), m)
}

func TestRecomputeAll_ErrorRateAndSuccessRate(t *testing.T) {
	s := NewStore()

	// S5: U has 4 failures + 1 success in the last hour -> 80% error rate.
	for i := 0; i < 4; i++ {
		s.RecordOutcome("U", false, 500)
	}
	s.RecordOutcome("U", true, 500)

	for i := 0; i < 10; i++ {
		s.RecordOutcome("V", true, 500)
	}

	s.RecomputeAll()

	u := s.GetMetrics("U")
	assert.InDelta(t, 0.8, u.ErrorRate1h, 0.0001)
	assert.Equal(t, 5, u.RequestCount1h)
	assert.InDelta(t, 0.2, u.SuccessRate24h, 0.0001)
	require.NotNil(t, u.LastFailureTs)

	v := s.GetMetrics("V")
	assert.Equal(t, 0.0, v.ErrorRate1h)
	assert.Equal(t, 1.0, v.SuccessRate24h)
}

func TestRecomputeAll_PrunesOlderThan24h(t *testing.T) {
	s := NewStore()
	b := s.getOrCreateBucket("old")
	b.outcomes = append(b.outcomes, Outcome{
		Timestamp: time.Now().Add(-25 * time.Hour),
		Success:   false,
		TTFTMs:    100,
	})

	s.RecomputeAll()

	m := s.GetMetrics("old")
	assert.Equal(t, HealthyDefault(), m)
}

func TestRecomputeAll_AvgTTFTOnlyOverLastHour(t *testing.T) {
	s := NewStore()
	b := s.getOrCreateBucket("agent")
	b.outcomes = []Outcome{
		{Timestamp: time.Now().Add(-2 * time.Hour), Success: true, TTFTMs: 9000},
		{Timestamp: time.Now(), Success: true, TTFTMs: 1000},
	}

	s.RecomputeAll()

	m := s.GetMetrics("agent")
	assert.InDelta(t, 1000, m.AvgTTFTMs, 0.01)
}

func TestRecordOutcome_ConcurrentAgentsDoNotBlock(t *testing.T) {
	s := NewStore()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			s.RecordOutcome("a", true, 10)
		}
		close(done)
	}()
	for i := 0; i < 1000; i++ {
		s.RecordOutcome("b", true, 10)
	}
	<-done

	s.RecomputeAll()
	assert.Equal(t, 1000, s.GetMetrics("a").RequestCount1h)
	assert.Equal(t, 1000, s.GetMetrics("b").RequestCount1h)
}
