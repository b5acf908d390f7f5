// Package metrics expone los contadores Prometheus del servicio.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics agrupa los contadores del servicio. Un *Metrics nil es válido y no registra nada.
type Metrics struct {
	registry *prometheus.Registry

	AuthOutcomes        *prometheus.CounterVec
	AuditWriteFailures  prometheus.Counter
	AuditDropped        prometheus.Counter
	AuditRetried        prometheus.Counter
	HashPoolRejections  prometheus.Counter
	RateLimitRejections *prometheus.CounterVec
	TokensPurged        prometheus.Counter
}

// New crea un registry propio para no contaminar el global.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		AuthOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bakubin_auth_outcomes_total",
				Help: "Auth flow outcomes by flow and result",
			},
			[]string{"flow", "outcome"},
		),
		AuditWriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bakubin_audit_write_failures_total",
			Help: "Audit writes that failed on first attempt",
		}),
		AuditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bakubin_audit_dropped_total",
			Help: "Audit entries dropped after exhausting retries or queue capacity",
		}),
		AuditRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bakubin_audit_retried_total",
			Help: "Audit entries written by the retry worker",
		}),
		HashPoolRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bakubin_hash_pool_rejections_total",
			Help: "Password hashing requests rejected because the pool was saturated",
		}),
		RateLimitRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bakubin_rate_limit_rejections_total",
				Help: "Requests rejected by the per-client rate limiter",
			},
			[]string{"flow"},
		),
		TokensPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bakubin_verification_tokens_purged_total",
			Help: "Expired verification tokens removed by the purger",
		}),
	}

	reg.MustRegister(
		m.AuthOutcomes,
		m.AuditWriteFailures,
		m.AuditDropped,
		m.AuditRetried,
		m.HashPoolRejections,
		m.RateLimitRejections,
		m.TokensPurged,
	)
	return m
}

// Handler sirve el endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Outcome(flow, outcome string) {
	if m == nil {
		return
	}
	m.AuthOutcomes.WithLabelValues(flow, outcome).Inc()
}

func (m *Metrics) AuditFailure() {
	if m != nil {
		m.AuditWriteFailures.Inc()
	}
}

func (m *Metrics) AuditDrop() {
	if m != nil {
		m.AuditDropped.Inc()
	}
}

func (m *Metrics) AuditRetry() {
	if m != nil {
		m.AuditRetried.Inc()
	}
}

func (m *Metrics) HashRejected() {
	if m != nil {
		m.HashPoolRejections.Inc()
	}
}

func (m *Metrics) RateLimited(flow string) {
	if m != nil {
		m.RateLimitRejections.WithLabelValues(flow).Inc()
	}
}

func (m *Metrics) Purged(n int64) {
	if m != nil && n > 0 {
		m.TokensPurged.Add(float64(n))
	}
}
