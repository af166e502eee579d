// internal/config/validate.go
package config

import (
	"fmt"
	"strings"

	"github.com/tamzrod/telemetry-gateway/internal/decoder"
)

// maxReadQuantity is the Modbus limit for one FC3 request.
const maxReadQuantity = 125

// Validate checks registry correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(reg *Registry) error {
	if reg == nil || len(reg.Devices) == 0 {
		return fmt.Errorf("registry: no devices defined")
	}

	names := make(map[string]int)

	for i, d := range reg.Devices {
		// compare the values Normalize will produce
		name := strings.TrimSpace(d.Name)
		if name == "" {
			return fmt.Errorf("device #%d: name required", i)
		}
		if prev, exists := names[name]; exists {
			return fmt.Errorf("device %q: duplicate name (also device #%d)", name, prev)
		}
		names[name] = i

		if strings.TrimSpace(d.IP) == "" {
			return fmt.Errorf("device %q: ip required", d.Name)
		}
		// 0 means default port, applied by Normalize
		if d.Port < 0 || d.Port > 65535 {
			return fmt.Errorf("device %q: port %d out of range", d.Name, d.Port)
		}
		if len(d.Requests) == 0 {
			return fmt.Errorf("device %q: at least one request required", d.Name)
		}

		for j, r := range d.Requests {
			if r.Quantity == 0 || r.Quantity > maxReadQuantity {
				return fmt.Errorf(
					"device %q request #%d (unit=%d): quantity %d must be 1..%d",
					d.Name, j, r.UnitID, r.Quantity, maxReadQuantity,
				)
			}

			t, err := decoder.ParseDeviceType(r.Type)
			if err != nil {
				return fmt.Errorf("device %q request #%d (unit=%d): %w", d.Name, j, r.UnitID, err)
			}

			if need := decoder.MinLength(t); int(r.Quantity)*2 < need {
				return fmt.Errorf(
					"device %q request #%d (unit=%d): quantity %d covers %d bytes, %s needs %d",
					d.Name, j, r.UnitID, r.Quantity, int(r.Quantity)*2, t, need,
				)
			}
		}
	}

	return nil
}

// ValidateSettings checks service settings.
func ValidateSettings(s *Settings) error {
	if s.Poll.IntervalMs <= 0 {
		return fmt.Errorf("poll.interval_ms must be > 0, got %d", s.Poll.IntervalMs)
	}
	if s.Connection.ReconnectDelayMs <= 0 {
		return fmt.Errorf("connection.reconnect_delay_ms must be > 0, got %d", s.Connection.ReconnectDelayMs)
	}
	if s.Connection.IdleTimeoutMs <= 0 {
		return fmt.Errorf("connection.idle_timeout_ms must be > 0, got %d", s.Connection.IdleTimeoutMs)
	}
	if s.HTTP.Port < 0 || s.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", s.HTTP.Port)
	}
	if s.Sink.DB.Enabled && s.Sink.DB.Database == "" {
		return fmt.Errorf("sink.db: database required when enabled")
	}
	if s.Sink.Influx.Enabled && (s.Sink.Influx.URL == "" || s.Sink.Influx.Bucket == "") {
		return fmt.Errorf("sink.influx: url and bucket required when enabled")
	}
	if s.Sink.MQTT.Enabled && s.Sink.MQTT.Broker == "" {
		return fmt.Errorf("sink.mqtt: broker required when enabled")
	}
	if s.Sink.MQTT.QoS < 0 || s.Sink.MQTT.QoS > 2 {
		return fmt.Errorf("sink.mqtt: qos %d must be 0..2", s.Sink.MQTT.QoS)
	}
	return nil
}
