package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/mdns"

	"github.com/nexuslb/nexus/internal/registry"
)

// MDNSSource browses the local network for backends advertising themselves
// under ServiceName (spec §3.1's mdns discovery_source) — a LAN of Ollama
// instances, for instance, each broadcasting `_nexus-backend._tcp`.
type MDNSSource struct {
	ServiceName string
	Timeout     time.Duration
	BackendType registry.BackendType
}

// NewMDNSSource builds an MDNSSource with a default 2s browse window.
func NewMDNSSource(serviceName string, backendType registry.BackendType) *MDNSSource {
	return &MDNSSource{ServiceName: serviceName, Timeout: 2 * time.Second, BackendType: backendType}
}

func (m *MDNSSource) Name() string { return "mdns" }

func (m *MDNSSource) Sync(ctx context.Context, reg *registry.Registry) ([]string, error) {
	entriesCh := make(chan *mdns.ServiceEntry, 16)
	ids := make([]string, 0, 4)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for entry := range entriesCh {
			id := fmt.Sprintf("mdns-%s-%d", entry.AddrV4.String(), entry.Port)
			url := fmt.Sprintf("http://%s:%d", entry.AddrV4.String(), entry.Port)
			if !reg.HasBackendURL(url) {
				_ = reg.AddBackend(registry.Backend{
					ID:              id,
					Name:            entry.Name,
					URL:             url,
					BackendType:     m.BackendType,
					DiscoverySource: registry.DiscoveryMDNS,
				})
			}
			ids = append(ids, id)
		}
	}()

	params := mdns.DefaultParams(m.ServiceName)
	params.Entries = entriesCh
	params.Timeout = m.Timeout
	err := mdns.Query(params)
	close(entriesCh)
	<-done

	if err != nil {
		return ids, fmt.Errorf("discovery: mdns query %s: %w", m.ServiceName, err)
	}
	return ids, nil
}
