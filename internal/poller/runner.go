// internal/poller/runner.go
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/tamzrod/telemetry-gateway/internal/metrics"
)

const DefaultInterval = 3 * time.Second

// SchedulerConfig controls the tick loop.
type SchedulerConfig struct {
	Interval time.Duration

	// SkipOverlapping drops a device's tick while its previous cycle is still running.
	// When false, cycles for a slow device may overlap.
	SkipOverlapping bool
}

// Scheduler drives every device poller from one ticker.
type Scheduler struct {
	cfg     SchedulerConfig
	pollers []*Poller
	sink    Sink
	rec     Recorder
	metrics *metrics.Metrics

	wg sync.WaitGroup
}

// NewScheduler wires pollers to the sink. rec and m may be nil.
func NewScheduler(cfg SchedulerConfig, pollers []*Poller, sink Sink, rec Recorder, m *metrics.Metrics) (*Scheduler, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("scheduler: interval must be > 0")
	}
	if sink == nil {
		return nil, errors.New("scheduler: sink required")
	}
	return &Scheduler{
		cfg:     cfg,
		pollers: pollers,
		sink:    sink,
		rec:     rec,
		metrics: m,
	}, nil
}

// Run ticks until ctx is done, then waits for in-flight cycles.
// The loop never waits on a device.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	klog.Infof("scheduler started: polling %d devices every %s", len(s.pollers), s.cfg.Interval)

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			klog.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick starts one cycle per device, each on its own goroutine.
func (s *Scheduler) Tick(ctx context.Context) {
	for _, p := range s.pollers {
		if s.cfg.SkipOverlapping && !p.inFlight.CompareAndSwap(false, true) {
			klog.Warningf("[%s] previous cycle still running, tick skipped", p.Device())
			s.metrics.ObserveSkip(p.Device())
			continue
		}

		s.wg.Add(1)
		go s.cycle(ctx, p)
	}
}

func (s *Scheduler) cycle(ctx context.Context, p *Poller) {
	defer s.wg.Done()
	if s.cfg.SkipOverlapping {
		defer p.inFlight.Store(false)
	}

	res := p.PollOnce()

	if res.OK() {
		s.sink.InsertReading(ctx, res.Device, res.Reading)
	}
	if s.rec != nil {
		s.rec.RecordCycle(res.Device, res.OK())
	}
	s.metrics.ObserveCycle(res.Device, res.Reading, res.OK())
}
