package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// serverMetrics are registered on a per-server registry so several servers
// (and tests) can coexist in one process.
type serverMetrics struct {
	registry    *prometheus.Registry
	guard       *prometheus.CounterVec
	preflight   *prometheus.CounterVec
	rateLimited prometheus.Counter
}

func newServerMetrics() *serverMetrics {
	m := &serverMetrics{
		registry: prometheus.NewRegistry(),
		guard: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tacklebox",
			Name:      "guard_decisions_total",
			Help:      "Guard decisions by protected resource and outcome.",
		}, []string{"resource", "decision"}),
		preflight: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tacklebox",
			Name:      "preflight_checks_total",
			Help:      "Transition pre-flight checks by outcome.",
		}, []string{"outcome"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tacklebox",
			Name:      "rate_limited_requests_total",
			Help:      "Requests rejected by the per-IP rate limiter.",
		}),
	}
	m.registry.MustRegister(
		m.guard,
		m.preflight,
		m.rateLimited,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *serverMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
