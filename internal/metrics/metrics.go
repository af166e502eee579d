// internal/metrics/metrics.go
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tamzrod/telemetry-gateway/internal/connection"
	"github.com/tamzrod/telemetry-gateway/internal/decoder"
)

const namespace = "telemetry_gateway"

// Metrics holds the gateway collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	connected    *prometheus.GaugeVec
	transitions  *prometheus.CounterVec
	reads        *prometheus.CounterVec
	cycles       *prometheus.CounterVec
	skipped      *prometheus.CounterVec
	sinkWrites   *prometheus.CounterVec
	channelValue *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_connected",
			Help:      "1 when the device session is connected.",
		}, []string{"device"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_transitions_total",
			Help:      "Connection state transitions by target state.",
		}, []string{"device", "state"}),
		reads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "register_reads_total",
			Help:      "Holding register reads by outcome.",
		}, []string{"device", "unit", "result"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Completed poll cycles; result is persisted or empty.",
		}, []string{"device", "result"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_skipped_total",
			Help:      "Ticks skipped because the previous cycle was still running.",
		}, []string{"device"}),
		sinkWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_writes_total",
			Help:      "Persistence writes by sink and outcome.",
		}, []string{"sink", "result"}),
		channelValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_value",
			Help:      "Last decoded value per device and channel.",
		}, []string{"device", "channel"}),
	}

	reg.MustRegister(
		m.connected,
		m.transitions,
		m.reads,
		m.cycles,
		m.skipped,
		m.sinkWrites,
		m.channelValue,
	)
	return m
}

// ObserveTransition records a connection state change.
func (m *Metrics) ObserveTransition(tr connection.Transition) {
	if m == nil {
		return
	}
	v := 0.0
	if tr.To == connection.Connected {
		v = 1
	}
	m.connected.WithLabelValues(tr.Device).Set(v)
	m.transitions.WithLabelValues(tr.Device, tr.To.String()).Inc()
}

// ObserveRead records one register read.
func (m *Metrics) ObserveRead(device string, unitID uint8, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.reads.WithLabelValues(device, strconv.Itoa(int(unitID)), result).Inc()
}

// ObserveCycle records the outcome of one poll cycle and the values it produced.
func (m *Metrics) ObserveCycle(device string, r decoder.Reading, persisted bool) {
	if m == nil {
		return
	}
	if !persisted {
		m.cycles.WithLabelValues(device, "empty").Inc()
		return
	}
	m.cycles.WithLabelValues(device, "persisted").Inc()
	for ch, v := range r {
		if !v.Valid {
			m.channelValue.DeleteLabelValues(device, string(ch))
			continue
		}
		m.channelValue.WithLabelValues(device, string(ch)).Set(v.Float)
	}
}

// ObserveSkip records a tick skipped by the overlap guard.
func (m *Metrics) ObserveSkip(device string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(device).Inc()
}

// ObserveSinkWrite records one persistence attempt.
func (m *Metrics) ObserveSinkWrite(sink string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.sinkWrites.WithLabelValues(sink, result).Inc()
}
