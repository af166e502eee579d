// internal/sink/builder.go
package sink

import (
	"time"

	cfg "github.com/tamzrod/telemetry-gateway/internal/config"
)

// BuildBackends creates one backend per enabled sink section.
// Assumes settings have already passed validation.
func BuildBackends(s cfg.SinkConfig) []Backend {
	var out []Backend

	if s.DB.Enabled {
		out = append(out, NewTimescale(TimescaleConfig{
			Host:         s.DB.Host,
			Port:         s.DB.Port,
			User:         s.DB.User,
			Password:     s.DB.Password,
			Database:     s.DB.Database,
			SSLMode:      s.DB.SSLMode,
			MaxOpenConns: s.DB.MaxOpenConns,
		}))
	}

	if s.Influx.Enabled {
		out = append(out, NewInflux(InfluxConfig{
			URL:         s.Influx.URL,
			Token:       s.Influx.Token,
			Org:         s.Influx.Org,
			Bucket:      s.Influx.Bucket,
			Measurement: s.Influx.Measurement,
		}))
	}

	if s.MQTT.Enabled {
		out = append(out, NewMQTT(MQTTConfig{
			Broker:      s.MQTT.Broker,
			ClientID:    s.MQTT.ClientID,
			Username:    s.MQTT.Username,
			Password:    s.MQTT.Password,
			TopicPrefix: s.MQTT.TopicPrefix,
			QoS:         byte(s.MQTT.QoS),
			Retained:    s.MQTT.Retained,
		}))
	}

	return out
}

// WriteTimeout converts the configured per-write timeout.
func WriteTimeout(s cfg.SinkConfig) time.Duration {
	return time.Duration(s.WriteTimeoutMs) * time.Millisecond
}
