// internal/poller/types.go
package poller

import (
	"context"
	"time"

	"github.com/tamzrod/telemetry-gateway/internal/decoder"
)

// RequestSpec describes one holding-register read and the layout that decodes it.
type RequestSpec struct {
	StartAddr uint16
	Quantity  uint16
	UnitID    uint8
	Type      decoder.DeviceType
}

// Reader is the register source of one device.
// It must fail fast when the device is not connected.
type Reader interface {
	ReadHoldingRegisters(startAddr, qty uint16, unitID uint8) ([]byte, error)
}

// Sink receives completed readings. It must not block the caller.
type Sink interface {
	InsertReading(ctx context.Context, deviceID string, r decoder.Reading)
}

// Recorder remembers cycle outcomes for status reporting.
type Recorder interface {
	RecordCycle(device string, ok bool)
}

// CycleResult is the outcome of one poll cycle.
type CycleResult struct {
	Device string
	At     time.Time

	// Reading is the union of every decoded request, later requests winning.
	// nil when no request produced a reading.
	Reading decoder.Reading

	Succeeded int
	Failed    int
}

// OK reports whether the cycle produced something to persist.
func (r CycleResult) OK() bool {
	return r.Succeeded > 0
}
