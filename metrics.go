package waf

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the proxy.
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	requestsDenied   *prometheus.CounterVec
	relayDuration    *prometheus.HistogramVec
	inFlightRequests prometheus.Gauge
	upstreamErrors   *prometheus.CounterVec
	ruleCount        prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new Metrics instance with all collectors registered.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "waf",
			Name:      "requests_total",
			Help:      "Total number of requests processed.",
		}, []string{"method"}),

		requestsDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "waf",
			Name:      "requests_denied_total",
			Help:      "Total number of requests denied, by rule.",
		}, []string{"rule"}),

		relayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "waf",
			Name:      "relay_duration_seconds",
			Help:      "Origin round-trip duration in seconds.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"status"}),

		inFlightRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "waf",
			Name:      "in_flight_requests",
			Help:      "Number of requests currently being handled.",
		}),

		upstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "waf",
			Name:      "upstream_errors_total",
			Help:      "Number of origin connection failures.",
		}, []string{"host"}),

		ruleCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "waf",
			Name:      "ruleset_rules",
			Help:      "Number of rules in the loaded rule set.",
		}),

		registry: reg,
	}

	reg.MustRegister(
		m.requestsTotal,
		m.requestsDenied,
		m.relayDuration,
		m.inFlightRequests,
		m.upstreamErrors,
		m.ruleCount,
	)

	return m
}

// Handler returns an http.Handler that serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest records a processed request.
func (m *Metrics) RecordRequest(method string) {
	m.requestsTotal.WithLabelValues(method).Inc()
}

// RecordDenied records a denied request by rule identifier.
func (m *Metrics) RecordDenied(rule string) {
	m.requestsDenied.WithLabelValues(rule).Inc()
}

// RecordRelayDuration records the duration of an origin round-trip.
func (m *Metrics) RecordRelayDuration(statusCode int, duration time.Duration) {
	m.relayDuration.WithLabelValues(strconv.Itoa(statusCode)).Observe(duration.Seconds())
}

// IncInFlight increments the in-flight request gauge.
func (m *Metrics) IncInFlight() {
	m.inFlightRequests.Inc()
}

// DecInFlight decrements the in-flight request gauge.
func (m *Metrics) DecInFlight() {
	m.inFlightRequests.Dec()
}

// RecordUpstreamError records an origin connection failure.
func (m *Metrics) RecordUpstreamError(host string) {
	m.upstreamErrors.WithLabelValues(host).Inc()
}

// SetRuleCount sets the loaded rule count gauge.
func (m *Metrics) SetRuleCount(count int) {
	m.ruleCount.Set(float64(count))
}
