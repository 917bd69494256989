package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the watcher.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	TicksTotal         prometheus.Counter
	BucketsFinalized   prometheus.Counter
	SignalsDetected    *prometheus.CounterVec
	SignalsPublished   prometheus.Counter
	UpdatesPublished   prometheus.Counter
	EnrichmentFailures *prometheus.CounterVec
	BusDropped         prometheus.Counter
	LedgerWrites       *prometheus.CounterVec
	Subscribers        prometheus.Gauge
	SinkErrors         *prometheus.CounterVec
}

// New creates the metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		TicksTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "watcher_ticks_total",
			Help: "Ticker updates processed by the normalizer",
		}),
		BucketsFinalized: f.NewCounter(prometheus.CounterOpts{
			Name: "watcher_buckets_finalized_total",
			Help: "Minute buckets appended to symbol windows",
		}),
		SignalsDetected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "watcher_signals_detected_total",
			Help: "Signals that passed detection and claimed the cooldown",
		}, []string{"direction"}),
		SignalsPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "watcher_signals_published_total",
			Help: "Enriched signals published to the bus",
		}),
		UpdatesPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "watcher_updates_published_total",
			Help: "Live signal updates published to the bus",
		}),
		EnrichmentFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "watcher_enrichment_failures_total",
			Help: "Failed enrichment lookups by kind",
		}, []string{"lookup"}),
		BusDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "watcher_bus_dropped_total",
			Help: "Messages dropped for slow subscribers",
		}),
		LedgerWrites: f.NewCounterVec(prometheus.CounterOpts{
			Name: "watcher_ledger_writes_total",
			Help: "Ledger persistence attempts by result",
		}, []string{"result"}),
		Subscribers: f.NewGauge(prometheus.GaugeOpts{
			Name: "watcher_subscribers",
			Help: "Connected websocket subscribers",
		}),
		SinkErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "watcher_sink_errors_total",
			Help: "Errors returned by external sinks",
		}, []string{"sink"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *Metrics) RecordTick() {
	if m != nil {
		m.TicksTotal.Inc()
	}
}

func (m *Metrics) RecordBucket() {
	if m != nil {
		m.BucketsFinalized.Inc()
	}
}

func (m *Metrics) RecordSignalDetected(direction string) {
	if m != nil {
		m.SignalsDetected.WithLabelValues(direction).Inc()
	}
}

func (m *Metrics) RecordSignalPublished() {
	if m != nil {
		m.SignalsPublished.Inc()
	}
}

func (m *Metrics) RecordUpdatePublished() {
	if m != nil {
		m.UpdatesPublished.Inc()
	}
}

func (m *Metrics) RecordEnrichmentFailure(lookup string) {
	if m != nil {
		m.EnrichmentFailures.WithLabelValues(lookup).Inc()
	}
}

func (m *Metrics) RecordBusDropped() {
	if m != nil {
		m.BusDropped.Inc()
	}
}

// RecordLedgerWrite counts a persistence attempt; err == nil counts as ok.
func (m *Metrics) RecordLedgerWrite(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.LedgerWrites.WithLabelValues(result).Inc()
}

func (m *Metrics) SubscriberConnected() {
	if m != nil {
		m.Subscribers.Inc()
	}
}

func (m *Metrics) SubscriberDisconnected() {
	if m != nil {
		m.Subscribers.Dec()
	}
}

func (m *Metrics) RecordSinkError(sink string) {
	if m != nil {
		m.SinkErrors.WithLabelValues(sink).Inc()
	}
}
