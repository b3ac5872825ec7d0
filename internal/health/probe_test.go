package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuslb/nexus/internal/registry"
)

type stubProber struct {
	err map[string]error
}

func (s *stubProber) Probe(ctx context.Context, b registry.BackendView) error {
	return s.err[b.ID]
}

func TestLoop_ProbeAll_MarksHealthyAndUnhealthy(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.AddBackend(registry.Backend{ID: "ok", URL: "http://ok"}))
	require.NoError(t, reg.AddBackend(registry.Backend{ID: "bad", URL: "http://bad"}))

	prober := &stubProber{err: map[string]error{"bad": errors.New("boom")}}
	loop := NewLoop(reg, prober, time.Second, nil)
	loop.probeAll(context.Background())

	ok, _ := reg.GetBackend("ok")
	bad, _ := reg.GetBackend("bad")
	assert.Equal(t, registry.StatusHealthy, ok.Status)
	assert.Equal(t, registry.StatusUnhealthy, bad.Status)
	assert.Equal(t, "boom", bad.LastError)
}
