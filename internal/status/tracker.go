// internal/status/tracker.go
package status

import (
	"sync"
	"time"
)

type cycleRecord struct {
	at          time.Time
	ok          bool
	lastSuccess time.Time
	errorSince  time.Time
}

// Tracker remembers the outcome of the latest poll cycle per device.
// It holds timestamps only, never readings.
type Tracker struct {
	mu      sync.RWMutex
	devices map[string]*cycleRecord
	now     func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		devices: make(map[string]*cycleRecord),
		now:     time.Now,
	}
}

// RecordCycle stores the outcome of one poll cycle.
func (t *Tracker) RecordCycle(device string, ok bool) {
	if t == nil {
		return
	}
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	rec := t.devices[device]
	if rec == nil {
		rec = &cycleRecord{}
		t.devices[device] = rec
	}
	rec.at = now
	rec.ok = ok
	if ok {
		rec.lastSuccess = now
		rec.errorSince = time.Time{}
		return
	}
	if rec.errorSince.IsZero() {
		rec.errorSince = now
	}
}

// health derives the device health from connectivity and the last cycle.
func (t *Tracker) health(device string, connected bool, staleAfter time.Duration) (Health, time.Time, uint16) {
	t.mu.RLock()
	rec := t.devices[device]
	var r cycleRecord
	if rec != nil {
		r = *rec
	}
	t.mu.RUnlock()

	now := t.now()

	secondsInError := func() uint16 {
		if r.errorSince.IsZero() {
			return 0
		}
		s := now.Sub(r.errorSince) / time.Second
		if s > MaxSecondsInError {
			return MaxSecondsInError
		}
		return uint16(s)
	}

	switch {
	case rec == nil && !connected:
		return HealthUnknown, time.Time{}, 0
	case !connected:
		return HealthError, r.lastSuccess, secondsInError()
	case rec == nil:
		return HealthUnknown, time.Time{}, 0
	case !r.ok:
		return HealthError, r.lastSuccess, secondsInError()
	case staleAfter > 0 && now.Sub(r.lastSuccess) > staleAfter:
		return HealthStale, r.lastSuccess, 0
	default:
		return HealthOK, r.lastSuccess, 0
	}
}
