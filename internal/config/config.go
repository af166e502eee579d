// internal/config/config.go
package config

// ---- SERVICE SETTINGS (viper) ----

type Settings struct {
	Registry   string           `mapstructure:"registry"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Poll       PollConfig       `mapstructure:"poll"`
	Connection ConnectionConfig `mapstructure:"connection"`
	Status     StatusConfig     `mapstructure:"status"`
	Sink       SinkConfig       `mapstructure:"sink"`
}

type HTTPConfig struct {
	Address string `mapstructure:"address"`
	Port    int    `mapstructure:"port"`
}

type PollConfig struct {
	IntervalMs int `mapstructure:"interval_ms"`

	// SkipOverlapping skips a device's tick while its previous cycle is still running.
	SkipOverlapping bool `mapstructure:"skip_overlapping"`
}

type ConnectionConfig struct {
	ReconnectDelayMs int `mapstructure:"reconnect_delay_ms"`
	IdleTimeoutMs    int `mapstructure:"idle_timeout_ms"`
}

type StatusConfig struct {
	// StaleAfterMs marks a connected device stale when it has produced no reading for this long. 0 disables.
	StaleAfterMs int `mapstructure:"stale_after_ms"`
}

type SinkConfig struct {
	WriteTimeoutMs int          `mapstructure:"write_timeout_ms"`
	DB             DBConfig     `mapstructure:"db"`
	Influx         InfluxConfig `mapstructure:"influx"`
	MQTT           MQTTConfig   `mapstructure:"mqtt"`
}

type DBConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type InfluxConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	URL         string `mapstructure:"url"`
	Token       string `mapstructure:"token"`
	Org         string `mapstructure:"org"`
	Bucket      string `mapstructure:"bucket"`
	Measurement string `mapstructure:"measurement"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	QoS         int    `mapstructure:"qos"`
	Retained    bool   `mapstructure:"retained"`
}

// ---- DEVICE REGISTRY (yaml / json) ----

type Registry struct {
	Devices []DeviceConfig `yaml:"devices"`
}

// DeviceConfig is one polled device. Immutable after load.
type DeviceConfig struct {
	Name     string          `yaml:"name"`
	IP       string          `yaml:"ip"`
	Port     int             `yaml:"port"`
	Requests []RequestConfig `yaml:"requests"`
}

// RequestConfig is one holding-register read. Order within a device is execution order.
type RequestConfig struct {
	StartAddr uint16 `yaml:"startAddr"`
	Quantity  uint16 `yaml:"quantity"`
	UnitID    uint8  `yaml:"unitId"`
	Type      string `yaml:"type"`
}
