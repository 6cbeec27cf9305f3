package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors exported by the dashboard.
type Metrics struct {
	registry  *prometheus.Registry
	pageViews *prometheus.CounterVec
	signIns   *prometheus.CounterVec
}

// New creates Metrics registered on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		pageViews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bizdash",
			Name:      "page_views_total",
			Help:      "Page renders by page and the access level of the viewer.",
		}, []string{"page", "access"}),
		signIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bizdash",
			Name:      "sign_ins_total",
			Help:      "Sign-in and sign-out attempts by outcome.",
		}, []string{"outcome"}),
	}

	registry.MustRegister(
		m.pageViews,
		m.signIns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// PageView records one render of page for a viewer with the given access.
func (m *Metrics) PageView(page, access string) {
	m.pageViews.WithLabelValues(page, access).Inc()
}

// SignIn records the outcome of a sign-in or sign-out attempt.
func (m *Metrics) SignIn(outcome string) {
	m.signIns.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
