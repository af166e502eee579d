// internal/decoder/reading.go
package decoder

import (
	"database/sql/driver"
	"encoding/json"
	"math"
)

// Channel names one normalized electrical quantity.
type Channel string

const (
	CurrentL1     Channel = "currentL1"
	CurrentL2     Channel = "currentL2"
	CurrentL3     Channel = "currentL3"
	VoltageL1L2   Channel = "voltageL1L2"
	VoltageL2L3   Channel = "voltageL2L3"
	VoltageL3L1   Channel = "voltageL3L1"
	ActivePower   Channel = "activePower"
	ReactivePower Channel = "reactivePower"
	PowerFactor   Channel = "powerFactor"
	Frequency     Channel = "frequency"
)

// Channels lists every channel in storage column order.
var Channels = []Channel{
	VoltageL1L2, VoltageL2L3, VoltageL3L1,
	CurrentL1, CurrentL2, CurrentL3,
	ActivePower, ReactivePower, PowerFactor, Frequency,
}

// MaxMagnitude is the exclusive bound for a stored value.
// Anything at or above it does not fit NUMERIC(10,2) and becomes null.
const MaxMagnitude = 999999.99

// Value is a nullable two-decimal reading.
type Value struct {
	Float float64
	Valid bool
}

// Null is the "no value" Value.
var Null = Value{}

// NewValue rounds v to two decimals and applies the overflow guard.
func NewValue(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Null
	}
	r := math.Round(v*100) / 100
	if math.Abs(r) >= MaxMagnitude {
		return Null
	}
	return Value{Float: r, Valid: true}
}

// Value implements driver.Valuer so a Value binds directly as a nullable column.
func (v Value) Value() (driver.Value, error) {
	if !v.Valid {
		return nil, nil
	}
	return v.Float, nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.Float)
}

// Reading maps channels to decoded values for one device.
type Reading map[Channel]Value

// Get returns the value for ch; a missing channel is Null.
func (r Reading) Get(ch Channel) Value {
	return r[ch]
}

// Merge copies src into dst, src wins on collisions (last-write-wins).
// A nil dst is allocated.
func Merge(dst, src Reading) Reading {
	if dst == nil {
		dst = make(Reading, len(src))
	}
	for ch, v := range src {
		dst[ch] = v
	}
	return dst
}
