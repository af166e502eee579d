// internal/sink/influx.go
package sink

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/tamzrod/telemetry-gateway/internal/decoder"
)

// InfluxConfig configures the InfluxDB v2 backend.
type InfluxConfig struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string
}

// Influx writes one point per reading, tagged with the device id.
type Influx struct {
	cfg    InfluxConfig
	client influxdb2.Client
	write  api.WriteAPIBlocking
}

func NewInflux(cfg InfluxConfig) *Influx {
	if cfg.Measurement == "" {
		cfg.Measurement = "telemetry"
	}
	return &Influx{cfg: cfg}
}

func (i *Influx) Name() string { return "influxdb" }

func (i *Influx) Connect(ctx context.Context) error {
	i.client = influxdb2.NewClient(i.cfg.URL, i.cfg.Token)
	i.write = i.client.WriteAPIBlocking(i.cfg.Org, i.cfg.Bucket)

	ok, err := i.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influxdb: ping %s: %w", i.cfg.URL, err)
	}
	if !ok {
		return fmt.Errorf("influxdb: %s not ready", i.cfg.URL)
	}
	return nil
}

// readingFields keeps non-null channels only; Influx has no null fields.
func readingFields(r decoder.Reading) map[string]interface{} {
	fields := make(map[string]interface{}, len(r))
	for _, c := range columns {
		v := r.Get(c.Channel)
		if !v.Valid {
			continue
		}
		fields[c.Name] = v.Float
	}
	return fields
}

func (i *Influx) InsertReading(ctx context.Context, deviceID string, r decoder.Reading) error {
	if i.write == nil {
		return fmt.Errorf("influxdb: not connected")
	}
	fields := readingFields(r)
	if len(fields) == 0 {
		return nil
	}
	p := influxdb2.NewPoint(i.cfg.Measurement,
		map[string]string{"device_id": deviceID},
		fields,
		time.Now())
	if err := i.write.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("influxdb: write: %w", err)
	}
	return nil
}

func (i *Influx) Close() error {
	if i.client != nil {
		i.client.Close()
	}
	return nil
}
