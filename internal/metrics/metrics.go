// Package metrics exposes Prometheus counters for authentication outcomes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry      *prometheus.Registry
	attempts      *prometheus.CounterVec
	sweptTokens   prometheus.Counter
	usersResolved *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_auth_attempts_total",
				Help: "Authentication operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		sweptTokens: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "identity_refresh_tokens_swept_total",
				Help: "Expired refresh tokens removed by the janitor",
			},
		),
		usersResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_users_resolved_total",
				Help: "Provider logins resolved to a local user",
			},
			[]string{"provider", "created"},
		),
	}
	reg.MustRegister(m.attempts, m.sweptTokens, m.usersResolved, collectors.NewGoCollector())
	return m
}

func (m *Metrics) Observe(operation, outcome string) {
	m.attempts.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) UserResolved(provider string, created bool) {
	label := "false"
	if created {
		label = "true"
	}
	m.usersResolved.WithLabelValues(provider, label).Inc()
}

func (m *Metrics) Swept(n int64) {
	m.sweptTokens.Add(float64(n))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
