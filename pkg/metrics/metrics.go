// Package metrics holds the pipeline's Prometheus instruments. Each process
// serves one request, so the registry is dumped to a textfile on exit
// instead of being scraped over HTTP.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Session outcomes
const (
	OutcomeSuccess   = "success"
	OutcomeExhausted = "exhausted"
	OutcomeError     = "error"
)

// Metrics groups the instruments on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	attempts         prometheus.Counter
	sessions         *prometheus.CounterVec
	embeddingRetries prometheus.Counter
	simulation       prometheus.Histogram
	indexChunks      prometheus.Gauge
}

// New creates and registers all instruments
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "labrag_attempts_total",
			Help: "Generation attempts made by the correction loop.",
		}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labrag_sessions_total",
			Help: "Finished sessions by outcome.",
		}, []string{"outcome"}),
		embeddingRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "labrag_embedding_retries_total",
			Help: "Embedding requests retried after a rate-limit response.",
		}),
		simulation: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "labrag_simulation_seconds",
			Help:    "Wall time of simulator runs.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		indexChunks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "labrag_index_chunks",
			Help: "Rows in the vector index used by the last session.",
		}),
	}

	m.registry.MustRegister(m.attempts, m.sessions, m.embeddingRetries, m.simulation, m.indexChunks)
	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) IncAttempts() {
	if m == nil {
		return
	}
	m.attempts.Inc()
}

func (m *Metrics) ObserveSession(outcome string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncEmbeddingRetries() {
	if m == nil {
		return
	}
	m.embeddingRetries.Inc()
}

func (m *Metrics) ObserveSimulation(d time.Duration) {
	if m == nil {
		return
	}
	m.simulation.Observe(d.Seconds())
}

func (m *Metrics) SetIndexChunks(n int) {
	if m == nil {
		return
	}
	m.indexChunks.Set(float64(n))
}

// WriteTextfile dumps the registry in the text exposition format, for the
// node exporter's textfile collector. An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
