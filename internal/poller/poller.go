// internal/poller/poller.go
package poller

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"k8s.io/klog/v2"

	"github.com/tamzrod/telemetry-gateway/internal/connection"
	"github.com/tamzrod/telemetry-gateway/internal/decoder"
	"github.com/tamzrod/telemetry-gateway/internal/metrics"
)

// Config is the minimal runtime config a device poller needs.
type Config struct {
	Device   string
	Requests []RequestSpec
	Metrics  *metrics.Metrics
}

// Poller runs the ordered request list of one device.
type Poller struct {
	cfg    Config
	reader Reader

	// inFlight guards against overlapping cycles when the scheduler asks for it.
	inFlight atomic.Bool
}

// New creates a poller with immutable config.
func New(cfg Config, reader Reader) (*Poller, error) {
	if cfg.Device == "" {
		return nil, errors.New("poller: device name required")
	}
	if reader == nil {
		return nil, fmt.Errorf("poller %s: reader required", cfg.Device)
	}
	if len(cfg.Requests) == 0 {
		return nil, fmt.Errorf("poller %s: at least one request required", cfg.Device)
	}
	return &Poller{cfg: cfg, reader: reader}, nil
}

func (p *Poller) Device() string { return p.cfg.Device }

// PollOnce performs exactly one poll cycle.
// Requests run strictly in order; a failed request is logged and skipped,
// it never aborts the cycle. There is no retry within a cycle.
func (p *Poller) PollOnce() CycleResult {
	res := CycleResult{
		Device: p.cfg.Device,
		At:     time.Now(),
	}

	for _, rs := range p.cfg.Requests {
		payload, err := p.reader.ReadHoldingRegisters(rs.StartAddr, rs.Quantity, rs.UnitID)
		p.cfg.Metrics.ObserveRead(p.cfg.Device, rs.UnitID, err)
		if err != nil {
			res.Failed++
			if errors.Is(err, connection.ErrNotConnected) {
				klog.V(2).Infof("[%s] poll skipped (unit=%d): %v", p.cfg.Device, rs.UnitID, err)
				continue
			}
			klog.Errorf("[%s] poll error (unit=%d addr=%d qty=%d): %v",
				p.cfg.Device, rs.UnitID, rs.StartAddr, rs.Quantity, err)
			continue
		}

		reading, ok := decoder.Decode(rs.Type, payload)
		if !ok {
			res.Failed++
			klog.Warningf("[%s] decode %s failed (unit=%d): payload %d bytes, need %d",
				p.cfg.Device, rs.Type, rs.UnitID, len(payload), decoder.MinLength(rs.Type))
			continue
		}

		klog.V(4).Infof("[%s] unit=%d %s decoded %d channels", p.cfg.Device, rs.UnitID, rs.Type, len(reading))
		res.Reading = decoder.Merge(res.Reading, reading)
		res.Succeeded++
	}

	return res
}
