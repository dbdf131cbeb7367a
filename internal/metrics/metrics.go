// Package metrics exposes Prometheus counters for the companion.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the router and catalog client report into.
type Recorder interface {
	RecordMessage(source, intent string)
	RecordOutcome(action, outcome string)
	RecordRoute(path string, elapsed time.Duration)
	ObserveCatalogCall(op, outcome string, elapsed time.Duration)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordMessage(string, string)                     {}
func (Nop) RecordOutcome(string, string)                     {}
func (Nop) RecordRoute(string, time.Duration)                {}
func (Nop) ObserveCatalogCall(string, string, time.Duration) {}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	messages       *prometheus.CounterVec
	outcomes       *prometheus.CounterVec
	routeLatency   *prometheus.HistogramVec
	catalogCalls   *prometheus.CounterVec
	catalogLatency *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "companion_messages_total",
			Help: "Messages routed, by source and classified intent.",
		}, []string{"source", "intent"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "companion_action_outcomes_total",
			Help: "Executed actions, by intent and outcome kind.",
		}, []string{"action", "outcome"}),
		routeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "companion_route_duration_seconds",
			Help:    "Time to answer a message, by path taken (action, conversation, refused).",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"}),
		catalogCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "companion_catalog_calls_total",
			Help: "Catalog API calls, by operation and outcome.",
		}, []string{"op", "outcome"}),
		catalogLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "companion_catalog_call_duration_seconds",
			Help:    "Catalog API call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}

	reg.MustRegister(c.messages, c.outcomes, c.routeLatency, c.catalogCalls, c.catalogLatency)
	return c
}

// RecordMessage counts one routed message.
func (c *Collector) RecordMessage(source, intent string) {
	if source == "" {
		source = "unknown"
	}
	c.messages.WithLabelValues(source, intent).Inc()
}

// RecordOutcome counts one executed action.
func (c *Collector) RecordOutcome(action, outcome string) {
	c.outcomes.WithLabelValues(action, outcome).Inc()
}

// RecordRoute observes the time spent answering a message.
func (c *Collector) RecordRoute(path string, elapsed time.Duration) {
	c.routeLatency.WithLabelValues(path).Observe(elapsed.Seconds())
}

// ObserveCatalogCall implements catalog.Observer.
func (c *Collector) ObserveCatalogCall(op, outcome string, elapsed time.Duration) {
	c.catalogCalls.WithLabelValues(op, outcome).Inc()
	c.catalogLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// Handler serves the registry for scraping.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
