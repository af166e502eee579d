// internal/status/reporter.go
package status

import (
	"time"

	"github.com/tamzrod/telemetry-gateway/internal/connection"
)

// Source exposes the read-only connectivity view of one device.
type Source interface {
	Snapshot() connection.Snapshot
}

// Reporter builds pull-based status snapshots for all devices.
type Reporter struct {
	sources    []Source
	tracker    *Tracker
	staleAfter time.Duration
}

// NewReporter keeps sources in registry order. tracker may be nil.
// A connected device with no reading for longer than staleAfter reports HealthStale;
// zero disables the check.
func NewReporter(sources []Source, tracker *Tracker, staleAfter time.Duration) *Reporter {
	if tracker == nil {
		tracker = NewTracker()
	}
	return &Reporter{
		sources:    sources,
		tracker:    tracker,
		staleAfter: staleAfter,
	}
}

// Snapshot returns one DeviceStatus per device.
func (r *Reporter) Snapshot() []DeviceStatus {
	out := make([]DeviceStatus, 0, len(r.sources))
	for _, src := range r.sources {
		s := src.Snapshot()

		health, lastSuccess, secs := r.tracker.health(s.Name, s.Connected, r.staleAfter)

		ds := DeviceStatus{
			Name:           s.Name,
			Connected:      s.Connected,
			Address:        s.Address,
			State:          s.State.String(),
			Since:          s.Since,
			Health:         health,
			SecondsInError: secs,
		}
		if !lastSuccess.IsZero() {
			ls := lastSuccess
			ds.LastSuccess = &ls
		}
		out = append(out, ds)
	}
	return out
}
