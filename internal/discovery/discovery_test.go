package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuslb/nexus/internal/registry"
)

func TestStaticSource_RegistersOnceThenNoOps(t *testing.T) {
	reg := registry.New()
	src := NewStaticSource([]registry.Backend{{ID: "b1", URL: "http://b1", BackendType: registry.BackendGeneric}})

	ids, err := src.Sync(context.Background(), reg)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1"}, ids)

	_, ok := reg.GetBackend("b1")
	assert.True(t, ok)

	// Second sync must not attempt to re-add (would error as duplicate).
	ids, err = src.Sync(context.Background(), reg)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1"}, ids)
}

func TestManualSource_AddQueuesForNextSync(t *testing.T) {
	reg := registry.New()
	src := NewManualSource()
	src.Add(registry.Backend{ID: "m1", URL: "http://m1", BackendType: registry.BackendGeneric})

	ids, err := src.Sync(context.Background(), reg)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, ids)

	ids, err = src.Sync(context.Background(), reg)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
