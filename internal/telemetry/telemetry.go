// Package telemetry implements the message bus's "telemetry counter sink"
// collaborator (spec.md §1, §6): a small write-only interface the core
// calls into, backed concretely by Prometheus.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter is the write-only interface spec §6 describes for a single named
// metric: SafeIncrement, SafeDecrement, SafeSetRaw. "Safe" in the spec's
// sense means it never panics or blocks the caller, matching a fire-and-
// forget metrics emission style.
type Counter interface {
	SafeIncrement()
	SafeDecrement()
	SafeSetRaw(value float64)
}

// Sink is the consumed interface: GetCounter(name) -> Counter.
type Sink interface {
	GetCounter(name string) Counter
}

// Recognized counter names, spec §6.
const (
	MessagesPublishedTotal  = "MessageBusMessagesPublishedTotal"
	MessagesPublishedPerSec = "MessageBusMessagesPublishedPerSec"
	SubscribersTotal        = "MessageBusSubscribersTotal"
	SubscribersCurrent      = "MessageBusSubscribersCurrent"
	SubscribersPerSec       = "MessageBusSubscribersPerSec"
	AllocatedWorkers        = "MessageBusAllocatedWorkers"
	BusyWorkers             = "MessageBusBusyWorkers"
)

var recognizedNames = []string{
	MessagesPublishedTotal,
	MessagesPublishedPerSec,
	SubscribersTotal,
	SubscribersCurrent,
	SubscribersPerSec,
	AllocatedWorkers,
	BusyWorkers,
}

// gaugeCounter adapts a prometheus.Gauge (which supports arbitrary Set, Inc,
// Dec) to the Counter contract. A Gauge rather than a Counter/CounterVec is
// used uniformly here because several recognized names
// (MessageBusAllocatedWorkers, MessageBusSubscribersCurrent) are inherently
// point-in-time values that must support SafeSetRaw and SafeDecrement,
// which prometheus.Counter forbids.
type gaugeCounter struct {
	gauge prometheus.Gauge
}

func (g gaugeCounter) SafeIncrement()          { g.gauge.Inc() }
func (g gaugeCounter) SafeDecrement()          { g.gauge.Dec() }
func (g gaugeCounter) SafeSetRaw(value float64) { g.gauge.Set(value) }

// Prometheus is the default Sink, mirroring src/metrics.go's
// var-block-of-metrics-plus-registration pattern, scoped to exactly the
// names spec §6 recognizes.
type Prometheus struct {
	registry *prometheus.Registry
	counters map[string]Counter
}

// NewPrometheus builds and registers one gauge per recognized counter name.
func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	counters := make(map[string]Counter, len(recognizedNames))

	for _, name := range recognizedNames {
		gauge := prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricName(name),
			Help: "signalbus counter: " + name,
		})
		registry.MustRegister(gauge)
		counters[name] = gaugeCounter{gauge: gauge}
	}

	return &Prometheus{registry: registry, counters: counters}
}

func metricName(name string) string {
	// MessageBusMessagesPublishedTotal -> message_bus_messages_published_total
	out := make([]byte, 0, len(name)+8)
	for i, r := range name {
		if i > 0 && r >= 'A' && r <= 'Z' {
			out = append(out, '_')
		}
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		out = append(out, byte(r))
	}
	return string(out)
}

// GetCounter implements Sink. Unrecognized names get a no-op Counter that
// records nothing, so callers never see a nil Counter.
func (p *Prometheus) GetCounter(name string) Counter {
	if c, ok := p.counters[name]; ok {
		return c
	}
	return noop{}
}

// Handler exposes the registry over /metrics, the way src/metrics.go wires
// promhttp.Handler() into the server's HTTP mux.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

type noop struct{}

func (noop) SafeIncrement()           {}
func (noop) SafeDecrement()           {}
func (noop) SafeSetRaw(value float64) {}

// NoopSink never records anything; used by callers that don't need metrics.
type NoopSink struct{}

func (NoopSink) GetCounter(string) Counter { return noop{} }
