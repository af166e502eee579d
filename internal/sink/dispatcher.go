// internal/sink/dispatcher.go
package sink

import (
	"context"
	"errors"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/tamzrod/telemetry-gateway/internal/decoder"
	"github.com/tamzrod/telemetry-gateway/internal/metrics"
)

const DefaultWriteTimeout = 5 * time.Second

// Dispatcher is the persistence sink handed to the poller.
// Writes are fire-and-forget: every backend write runs on its own goroutine,
// failures are logged and counted, and nothing is reported back to the caller.
type Dispatcher struct {
	backends     []Backend
	writeTimeout time.Duration
	metrics      *metrics.Metrics

	wg sync.WaitGroup
}

// NewDispatcher fans readings out to backends. With no backends every insert is dropped.
func NewDispatcher(backends []Backend, writeTimeout time.Duration, m *metrics.Metrics) *Dispatcher {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Dispatcher{
		backends:     backends,
		writeTimeout: writeTimeout,
		metrics:      m,
	}
}

// Connect connects every backend. A backend that fails to connect stays in
// the fan-out; its writes keep being attempted and logged.
func (d *Dispatcher) Connect(ctx context.Context) {
	if len(d.backends) == 0 {
		klog.Info("persistence disabled: no sink backends enabled")
		return
	}
	for _, b := range d.backends {
		if err := b.Connect(ctx); err != nil {
			if errors.Is(err, ErrConnectPending) {
				klog.Warningf("sink %s: still connecting in background: %v", b.Name(), err)
				continue
			}
			klog.Errorf("sink %s: connect failed: %v", b.Name(), err)
			continue
		}
		klog.Infof("sink %s: connected", b.Name())
	}
}

// InsertReading hands r to every backend and returns immediately.
func (d *Dispatcher) InsertReading(ctx context.Context, deviceID string, r decoder.Reading) {
	for _, b := range d.backends {
		d.wg.Add(1)
		go func(b Backend) {
			defer d.wg.Done()

			wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.writeTimeout)
			defer cancel()

			err := b.InsertReading(wctx, deviceID, r)
			d.metrics.ObserveSinkWrite(b.Name(), err)
			if err != nil {
				klog.Errorf("sink %s: insert failed (device=%s): %v", b.Name(), deviceID, err)
				return
			}
			klog.V(4).Infof("sink %s: saved reading (device=%s channels=%d)", b.Name(), deviceID, len(r))
		}(b)
	}
}

// Close waits for in-flight writes and closes every backend.
func (d *Dispatcher) Close() error {
	d.wg.Wait()

	var errs []error
	for _, b := range d.backends {
		if err := b.Close(); err != nil {
			errs = append(errs, err)
			continue
		}
		klog.Infof("sink %s: closed", b.Name())
	}
	return errors.Join(errs...)
}
