// internal/status/constants.go
package status

// Health is the per-device health code reported on /status.
type Health uint16

// ---- HEALTH CODES ----

// HealthUnknown represents a device that has not completed a poll cycle yet.
const HealthUnknown Health = 0

// HealthOK represents a device whose last cycle produced a reading.
const HealthOK Health = 1

// HealthError represents a disconnected device or one whose last cycle produced nothing.
const HealthError Health = 2

// HealthStale represents a connected device with no reading for longer than the stale window.
const HealthStale Health = 3

func (h Health) String() string {
	switch h {
	case HealthUnknown:
		return "unknown"
	case HealthOK:
		return "ok"
	case HealthError:
		return "error"
	case HealthStale:
		return "stale"
	default:
		return "invalid"
	}
}

func (h Health) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// ---- LIMITS ----

// MaxSecondsInError caps SecondsInError so it never wraps in 16-bit consumers.
const MaxSecondsInError = 65535
