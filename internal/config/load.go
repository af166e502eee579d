// internal/config/load.go
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// envBindings keeps the environment names the gateway has always accepted.
var envBindings = map[string]string{
	"http.port":              "PORT",
	"poll.interval_ms":       "POLL_INTERVAL",
	"sink.db.enabled":        "ENABLE_DB_WRITE",
	"sink.db.host":           "POSTGRES_HOST",
	"sink.db.port":           "POSTGRES_PORT",
	"sink.db.user":           "POSTGRES_USER",
	"sink.db.password":       "POSTGRES_PASSWORD",
	"sink.db.database":       "POSTGRES_DB",
	"sink.influx.enabled":    "ENABLE_INFLUX_WRITE",
	"sink.influx.url":        "INFLUX_URL",
	"sink.influx.token":      "INFLUX_TOKEN",
	"sink.influx.org":        "INFLUX_ORG",
	"sink.influx.bucket":     "INFLUX_BUCKET",
	"sink.mqtt.enabled":      "ENABLE_MQTT_PUBLISH",
	"sink.mqtt.broker":       "MQTT_BROKER",
	"sink.mqtt.username":     "MQTT_USERNAME",
	"sink.mqtt.password":     "MQTT_PASSWORD",
	"sink.mqtt.topic_prefix": "MQTT_TOPIC_PREFIX",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("registry", "config/devices.json")
	v.SetDefault("http.address", "")
	v.SetDefault("http.port", 3000)
	v.SetDefault("poll.interval_ms", 3000)
	v.SetDefault("poll.skip_overlapping", true)
	v.SetDefault("connection.reconnect_delay_ms", 5000)
	v.SetDefault("connection.idle_timeout_ms", 10000)
	v.SetDefault("status.stale_after_ms", 0)
	v.SetDefault("sink.write_timeout_ms", 5000)
	v.SetDefault("sink.db.enabled", false)
	v.SetDefault("sink.db.host", "localhost")
	v.SetDefault("sink.db.port", 5432)
	v.SetDefault("sink.db.sslmode", "disable")
	v.SetDefault("sink.db.max_open_conns", 10)
	v.SetDefault("sink.influx.enabled", false)
	v.SetDefault("sink.influx.measurement", "telemetry")
	v.SetDefault("sink.mqtt.enabled", false)
	v.SetDefault("sink.mqtt.client_id", "telemetry-gateway")
	v.SetDefault("sink.mqtt.topic_prefix", "telemetry")
	v.SetDefault("sink.mqtt.qos", 0)
	v.SetDefault("sink.mqtt.retained", false)

	// keys without a default are invisible to Unmarshal under AutomaticEnv
	for _, key := range []string{
		"sink.db.user", "sink.db.password", "sink.db.database",
		"sink.influx.url", "sink.influx.token", "sink.influx.org", "sink.influx.bucket",
		"sink.mqtt.broker", "sink.mqtt.username", "sink.mqtt.password",
	} {
		v.SetDefault(key, "")
	}
}

// RegisterFlags adds the gateway flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "Settings file (yaml). Optional.")
	fs.StringP("registry", "r", "config/devices.json", "Device registry file (json or yaml).")
	fs.IntP("http.port", "p", 3000, "HTTP port for /health, /status and /metrics.")
	fs.Int("poll.interval_ms", 3000, "Poll interval in milliseconds.")
	fs.Bool("poll.skip_overlapping", true, "Skip a device tick while its previous cycle is still running.")
}

// LoadSettings resolves settings from defaults, an optional file, the
// environment and fs, in increasing precedence. fs may be nil.
func LoadSettings(fs *pflag.FlagSet) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}
	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read settings %s: %w", path, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	return &s, nil
}

// LoadRegistry reads the device registry. Both {devices: [...]} and a bare
// top-level list of devices are accepted; JSON is valid YAML.
func LoadRegistry(path string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	return ParseRegistry(b)
}

// ParseRegistry decodes registry bytes.
func ParseRegistry(b []byte) (*Registry, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}

	var reg Registry
	if len(doc.Content) == 0 {
		return &reg, nil
	}

	root := doc.Content[0]
	if root.Kind == yaml.SequenceNode {
		if err := root.Decode(&reg.Devices); err != nil {
			return nil, fmt.Errorf("decode registry: %w", err)
		}
		return &reg, nil
	}
	if err := root.Decode(&reg); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	return &reg, nil
}
