// Package metrics exposes Prometheus metrics about identity extractions and proving sessions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pckid"

// Metrics holds the collectors of the service on a dedicated registry.
// It implements identity.Observer and prover.SessionObserver.
type Metrics struct {
	registry      *prometheus.Registry
	extractions   *prometheus.CounterVec
	sessions      *prometheus.CounterVec
	proofDuration prometheus.Histogram
}

// New creates the collectors and registers them, together with the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Number of platform identity extractions by result and error kind.",
		}, []string{"result", "kind"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proving_sessions_total",
			Help:      "Number of finished proving sessions by stage and final status.",
		}, []string{"stage", "status"}),
		proofDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "proof_duration_seconds",
			Help:      "Duration of successful proofs, from image upload to SNARK receipt.",
			Buckets:   prometheus.ExponentialBuckets(15, 2, 8),
		}),
	}

	m.registry.MustRegister(
		m.extractions,
		m.sessions,
		m.proofDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveExtraction counts an extraction. kind is empty for a successful extraction.
func (m *Metrics) ObserveExtraction(kind string) {
	if kind == "" {
		m.extractions.WithLabelValues("success", "").Inc()
		return
	}
	m.extractions.WithLabelValues("failure", kind).Inc()
}

// ObserveSession counts a proving session that reached a final status.
func (m *Metrics) ObserveSession(stage, status string) {
	m.sessions.WithLabelValues(stage, status).Inc()
}

// ObserveProof records the duration of a successful proof.
func (m *Metrics) ObserveProof(d time.Duration) {
	m.proofDuration.Observe(d.Seconds())
}

// Registry returns the registry holding all collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
