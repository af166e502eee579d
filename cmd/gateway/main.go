// cmd/gateway/main.go
package main

import (
	"context"
	"errors"
	goflag "flag"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"github.com/tamzrod/telemetry-gateway/internal/config"
	"github.com/tamzrod/telemetry-gateway/internal/connection"
	"github.com/tamzrod/telemetry-gateway/internal/metrics"
	"github.com/tamzrod/telemetry-gateway/internal/poller"
	"github.com/tamzrod/telemetry-gateway/internal/sink"
	"github.com/tamzrod/telemetry-gateway/internal/status"
)

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func main() {
	klog.InitFlags(nil)
	config.RegisterFlags(pflag.CommandLine)
	pflag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	pflag.Parse()
	defer klog.Flush()

	// --------------------
	// Load + validate config
	// --------------------

	settings, err := config.LoadSettings(pflag.CommandLine)
	if err != nil {
		klog.Fatalf("settings load failed: %v", err)
	}
	if err := config.ValidateSettings(settings); err != nil {
		klog.Fatalf("settings validation failed: %v", err)
	}

	reg, err := config.LoadRegistry(settings.Registry)
	if err != nil {
		klog.Fatalf("registry load failed: %v", err)
	}
	if err := config.Validate(reg); err != nil {
		klog.Fatalf("registry validation failed: %v", err)
	}
	config.Normalize(reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --------------------
	// Metrics
	// --------------------

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promReg)

	// --------------------
	// Persistence
	// --------------------

	db := settings.Sink.DB
	klog.Infof("[config] db enabled=%t host=%s port=%d user=%s db=%s",
		db.Enabled, db.Host, db.Port, db.User, db.Database)

	dispatcher := sink.NewDispatcher(sink.BuildBackends(settings.Sink), sink.WriteTimeout(settings.Sink), m)
	dispatcher.Connect(ctx)

	// --------------------
	// Build per-device pipelines
	// --------------------

	tracker := status.NewTracker()

	var (
		wg      sync.WaitGroup
		pollers []*poller.Poller
		sources []status.Source
	)

	for _, d := range reg.Devices {
		mgr, err := connection.New(connection.Config{
			Name:           d.Name,
			Host:           d.IP,
			Port:           d.Port,
			ReconnectDelay: ms(settings.Connection.ReconnectDelayMs),
			IdleTimeout:    ms(settings.Connection.IdleTimeoutMs),
			OnTransition:   m.ObserveTransition,
		})
		if err != nil {
			klog.Fatalf("connection build failed (device=%s): %v", d.Name, err)
		}

		p, err := poller.Build(d, mgr, m)
		if err != nil {
			klog.Fatalf("poller build failed (device=%s): %v", d.Name, err)
		}

		pollers = append(pollers, p)
		sources = append(sources, mgr)

		wg.Add(1)
		go func() {
			defer wg.Done()
			mgr.Run(ctx)
		}()
	}

	sched, err := poller.NewScheduler(poller.SchedulerConfig{
		Interval:        ms(settings.Poll.IntervalMs),
		SkipOverlapping: settings.Poll.SkipOverlapping,
	}, pollers, dispatcher, tracker, m)
	if err != nil {
		klog.Fatalf("scheduler build failed: %v", err)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()

	// --------------------
	// HTTP (health, status, metrics)
	// --------------------

	rep := status.NewReporter(sources, tracker, ms(settings.Status.StaleAfterMs))
	srv := &http.Server{
		Addr:              net.JoinHostPort(settings.HTTP.Address, strconv.Itoa(settings.HTTP.Port)),
		Handler:           status.NewRouter(rep, promReg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		klog.Infof("telemetry gateway listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			klog.Errorf("http server failed: %v", err)
			stop()
		}
	}()

	// --------------------
	// Shutdown
	// --------------------

	<-ctx.Done()
	klog.Info("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		klog.Errorf("http shutdown: %v", err)
	}

	wg.Wait()

	if err := dispatcher.Close(); err != nil {
		klog.Errorf("sink close: %v", err)
	}

	klog.Info("telemetry gateway stopped")
}
