// Package metrics records generator activity as Prometheus metrics.
//
// The generator is a short-lived CLI, so metrics are not served over HTTP:
// they are written in the node_exporter textfile format after each pass.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "metainf"

// Metrics holds the generator's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	passes       *prometheus.CounterVec
	declarations *prometheus.CounterVec
	writes       *prometheus.CounterVec
	readErrors   prometheus.Counter
	entries      *prometheus.GaugeVec
	passDuration prometheus.Histogram
}

// New creates and registers the generator metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Processing passes by kind (round or finalize).",
		}, []string{"kind"}),
		declarations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "declarations_total",
			Help:      "Service declarations seen, by outcome.",
		}, []string{"outcome"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_writes_total",
			Help:      "Registry file writes, by outcome.",
		}, []string{"outcome"}),
		readErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_read_errors_total",
			Help:      "Existing registry files that could not be read.",
		}),
		entries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_entries",
			Help:      "Entries in the last written registry file of each contract.",
		}, []string{"contract"}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Duration of processing passes.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}

	m.registry.MustRegister(
		m.passes,
		m.declarations,
		m.writes,
		m.readErrors,
		m.entries,
		m.passDuration,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the registry holding the generator metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObservePass records one pass of the given kind.
func (m *Metrics) ObservePass(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(kind).Inc()
	m.passDuration.Observe(d.Seconds())
}

// Declarations records accepted and rejected declarations.
func (m *Metrics) Declarations(accepted, rejected int) {
	if m == nil {
		return
	}
	m.declarations.WithLabelValues("accepted").Add(float64(accepted))
	m.declarations.WithLabelValues("rejected").Add(float64(rejected))
}

// RegistryWritten records a successful write of a contract's registry.
func (m *Metrics) RegistryWritten(contract string, entries int) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues("ok").Inc()
	m.entries.WithLabelValues(contract).Set(float64(entries))
}

// WriteFailed records a failed registry write.
func (m *Metrics) WriteFailed() {
	if m == nil {
		return
	}
	m.writes.WithLabelValues("error").Inc()
}

// ReadFailed records an existing registry that could not be read.
func (m *Metrics) ReadFailed() {
	if m == nil {
		return
	}
	m.readErrors.Inc()
}

// WriteTextfile writes all metrics to path in the textfile collector
// format. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
