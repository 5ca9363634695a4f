// Package metric wires ContractGate's Prometheus instrumentation: request
// outcomes, forward retries, contract validation failures and route table
// reloads, exposed on /metrics.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's core instruments on a private registry so
// tests can create isolated instances without collector name collisions.
type Metrics struct {
	registry *prometheus.Registry

	// RequestsTotal counts requests by route pattern, method and final state
	RequestsTotal *prometheus.CounterVec

	// RequestDuration observes end-to-end handling time per route
	RequestDuration *prometheus.HistogramVec

	// ForwardRetries counts individual retry attempts (not requests)
	ForwardRetries prometheus.Counter

	// ValidationFailures counts contract violations by route and direction
	ValidationFailures *prometheus.CounterVec

	// RouteReloads counts route table snapshot swaps
	RouteReloads prometheus.Counter
}

// New creates a metrics set with Go runtime and process collectors attached
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contractgate",
			Name:      "requests_total",
			Help:      "Requests handled, by route, method and final state",
		}, []string{"route", "method", "state"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "contractgate",
			Name:      "request_duration_seconds",
			Help:      "End-to-end request handling time",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		ForwardRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "contractgate",
			Name:      "forward_retries_total",
			Help:      "Retry attempts issued by the forward loop",
		}),
		ValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contractgate",
			Name:      "validation_failures_total",
			Help:      "Contract validation failures, by route and direction",
		}, []string{"route", "direction"}),
		RouteReloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "contractgate",
			Name:      "route_reloads_total",
			Help:      "Route table snapshot swaps since boot",
		}),
	}

	registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ForwardRetries,
		m.ValidationFailures,
		m.RouteReloads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry exposes the underlying Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the /metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
