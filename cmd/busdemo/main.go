// Command busdemo is a runnable demonstration of the signalbus core (spec
// §12.1 of SPEC_FULL.md): it loads configuration, starts a Prometheus
// /metrics endpoint, constructs a Bus, and runs a small publisher +
// subscriber loop until interrupted. It deliberately stops at the core's
// boundary — no transport, identity, or hub dispatch — those remain out of
// scope per spec.md §1.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	_ "go.uber.org/automaxprocs" // sets GOMAXPROCS from the cgroup quota on import

	"github.com/odin-labs/signalbus/internal/bus"
	"github.com/odin-labs/signalbus/internal/config"
	"github.com/odin-labs/signalbus/internal/engine"
	"github.com/odin-labs/signalbus/internal/platform"
	"github.com/odin-labs/signalbus/internal/subscription"
	"github.com/odin-labs/signalbus/internal/telemetry"
	"github.com/odin-labs/signalbus/internal/trace"
)

type demoSubscriber struct {
	identity string
	keys     []string
}

func (d demoSubscriber) Identity() string    { return d.identity }
func (d demoSubscriber) EventKeys() []string { return d.keys }

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides BUS_LOG_LEVEL)")
	flag.Parse()

	bootstrap := trace.New("info", trace.FormatJSON)

	cfg, err := config.Load(nil)
	if err != nil {
		bootstrap.Errorf("failed to load configuration: %v", err)
		os.Exit(1)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	tr := trace.New(cfg.LogLevel, trace.Format(cfg.LogFormat))
	tr.Infof("starting busdemo, GOMAXPROCS-derived CPU count=%d", platform.CPUCount())

	telem := telemetry.NewPrometheus()
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: telem.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			tr.Errorf("metrics server stopped: %v", err)
		}
	}()

	maxWorkers, maxIdleWorkers := platform.WorkerBudget()
	if cfg.MaxWorkersOverride > 0 {
		maxWorkers = cfg.MaxWorkersOverride
	}
	if cfg.MaxIdleWorkersOverride > 0 {
		maxIdleWorkers = cfg.MaxIdleWorkersOverride
	}

	b := bus.New(bus.Config{
		StoreCapacity: cfg.StoreCapacity,
		Engine: engine.Config{
			MaxWorkers:        maxWorkers,
			MaxIdleWorkers:    maxIdleWorkers,
			IdleCheckInterval: cfg.IdleCheckInterval,
		},
		DefaultMaxMessages: cfg.DefaultMaxMessages,
		Telemetry:          telem,
		Trace:              tr,
	})

	identity := uuid.NewString()
	handle := b.Subscribe(demoSubscriber{identity: identity, keys: []string{"demo.greetings"}}, "", func(r subscription.Result) (bool, error) {
		for _, item := range r.Items {
			tr.Infof("subscriber %s received %q (cursor now %s)", identity, item.Payload, r.Cursor)
		}
		return true, nil
	}, cfg.DefaultMaxMessages)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	i := 0
loop:
	for {
		select {
		case <-sigCh:
			tr.Infof("shutdown signal received")
			break loop
		case <-ticker.C:
			i++
			b.Publish("demo.greetings", []byte(fmt.Sprintf("hello #%d", i)))
		}
	}

	handle.Unsubscribe()
	b.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		tr.Errorf("metrics server shutdown: %v", err)
	}
}
