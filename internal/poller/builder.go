// internal/poller/builder.go
package poller

import (
	"fmt"

	cfg "github.com/tamzrod/telemetry-gateway/internal/config"
	"github.com/tamzrod/telemetry-gateway/internal/decoder"
	"github.com/tamzrod/telemetry-gateway/internal/metrics"
)

// Build constructs the Poller of one device on top of its reader.
// Assumes the registry has already passed validation.
func Build(d cfg.DeviceConfig, reader Reader, m *metrics.Metrics) (*Poller, error) {
	reqs := make([]RequestSpec, 0, len(d.Requests))
	for i, r := range d.Requests {
		t, err := decoder.ParseDeviceType(r.Type)
		if err != nil {
			return nil, fmt.Errorf("device %q request #%d: %w", d.Name, i, err)
		}
		reqs = append(reqs, RequestSpec{
			StartAddr: r.StartAddr,
			Quantity:  r.Quantity,
			UnitID:    r.UnitID,
			Type:      t,
		})
	}

	return New(Config{
		Device:   d.Name,
		Requests: reqs,
		Metrics:  m,
	}, reader)
}
