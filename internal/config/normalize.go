// internal/config/normalize.go
package config

import "strings"

// DefaultModbusPort is used for devices that omit a port.
const DefaultModbusPort = 502

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(reg *Registry) {
	if reg == nil {
		return
	}

	for i := range reg.Devices {
		d := &reg.Devices[i]

		d.Name = strings.TrimSpace(d.Name)
		d.IP = strings.TrimSpace(d.IP)

		if d.Port == 0 {
			d.Port = DefaultModbusPort
		}
	}
}
