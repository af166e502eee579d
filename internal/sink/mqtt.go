// internal/sink/mqtt.go
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"k8s.io/klog/v2"

	"github.com/tamzrod/telemetry-gateway/internal/decoder"
)

// MQTTConfig configures the MQTT publish backend.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
	Retained    bool

	// ConnectTimeout bounds the startup wait and paces background connect retries.
	ConnectTimeout time.Duration
}

// message is the published JSON document.
type message struct {
	DeviceID string          `json:"device_id"`
	Time     time.Time       `json:"time"`
	Reading  decoder.Reading `json:"reading"`
}

// MQTT publishes each reading to <prefix>/<device>.
type MQTT struct {
	cfg    MQTTConfig
	client mqtt.Client
	now    func() time.Time
}

func NewMQTT(cfg MQTTConfig) *MQTT {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "telemetry"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "telemetry-gateway"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(cfg.ConnectTimeout).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			klog.Warningf("mqtt: connection to %s lost: %v", cfg.Broker, err)
		})

	return &MQTT{
		cfg:    cfg,
		client: mqtt.NewClient(opts),
		now:    time.Now,
	}
}

func (m *MQTT) Name() string { return "mqtt" }

// Connect starts connecting and waits up to ConnectTimeout. An unreachable
// broker is retried in the background; Connect then returns ErrConnectPending.
func (m *MQTT) Connect(ctx context.Context) error {
	tok := m.client.Connect()

	timer := time.NewTimer(m.cfg.ConnectTimeout)
	defer timer.Stop()

	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			return fmt.Errorf("mqtt: connect to %s: %w", m.cfg.Broker, err)
		}
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	klog.Warningf("mqtt: %s not reachable yet, retrying every %s", m.cfg.Broker, m.cfg.ConnectTimeout)
	return fmt.Errorf("mqtt: %s: %w", m.cfg.Broker, ErrConnectPending)
}

func (m *MQTT) topic(deviceID string) string {
	return strings.TrimSuffix(m.cfg.TopicPrefix, "/") + "/" + deviceID
}

func (m *MQTT) encode(deviceID string, r decoder.Reading) ([]byte, error) {
	return json.Marshal(message{DeviceID: deviceID, Time: m.now().UTC(), Reading: r})
}

func (m *MQTT) InsertReading(ctx context.Context, deviceID string, r decoder.Reading) error {
	if !m.client.IsConnectionOpen() {
		return fmt.Errorf("mqtt: not connected to %s", m.cfg.Broker)
	}
	payload, err := m.encode(deviceID, r)
	if err != nil {
		return fmt.Errorf("mqtt: encode: %w", err)
	}

	tok := m.client.Publish(m.topic(deviceID), m.cfg.QoS, m.cfg.Retained, payload)
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return fmt.Errorf("mqtt: publish: %w", ctx.Err())
	}
}

func (m *MQTT) Close() error {
	// also stops a background connect retry
	m.client.Disconnect(250)
	return nil
}
