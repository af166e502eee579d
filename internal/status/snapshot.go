// internal/status/snapshot.go
package status

import "time"

// DeviceStatus is the on-demand view of one device.
// It contains no logic and no memory of the past beyond current state.
type DeviceStatus struct {
	Name      string    `json:"name"`
	Connected bool      `json:"connected"`
	Address   string    `json:"ip"`
	State     string    `json:"state"`
	Since     time.Time `json:"since"`

	Health         Health     `json:"health"`
	LastSuccess    *time.Time `json:"lastSuccess,omitempty"`
	SecondsInError uint16     `json:"secondsInError"`
}
