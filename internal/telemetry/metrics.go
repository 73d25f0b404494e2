// Package telemetry holds the Prometheus metrics of the API and dispatcher.
// A nil *Metrics is valid and records nothing.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "paperscore"

// Metrics holds all paperscore Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// Pipeline metrics
	StageRuns     *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	AgentCalls    *prometheus.CounterVec
	JobsFinished  *prometheus.CounterVec

	// Queue metrics
	Deliveries  *prometheus.CounterVec
	QueueDepth  *prometheus.GaugeVec
	DeadLetters prometheus.Counter

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	InFlight     prometheus.Gauge
}

// New registers every metric on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		StageRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_runs_total",
			Help:      "Stage handler invocations by outcome (completed, duplicate, fatal, transient)",
		}, []string{"stage", "outcome"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall-clock time of a stage handler invocation",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"stage"}),
		AgentCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_calls_total",
			Help:      "Evaluation agent calls by outcome (ok, degraded)",
		}, []string{"agent", "outcome"}),
		JobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Jobs reaching a terminal state",
		}, []string{"tier", "status"}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_deliveries_total",
			Help:      "Queue deliveries by outcome (delivered, retry, dead)",
		}, []string{"outcome"}),
		QueueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Messages waiting per queue list",
		}, []string{"list"}),
		DeadLetters: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_dead_letters_total",
			Help:      "Messages moved to the dead-letter list",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by status class",
		}, []string{"code"}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served",
		}),
	}
}

// Handler returns the Prometheus HTTP handler for /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ObserveStage(stage, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageRuns.WithLabelValues(stage, outcome).Inc()
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) ObserveAgent(agent string, degraded bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if degraded {
		outcome = "degraded"
	}
	m.AgentCalls.WithLabelValues(agent, outcome).Inc()
}

func (m *Metrics) JobFinished(tier, status string) {
	if m == nil {
		return
	}
	m.JobsFinished.WithLabelValues(tier, status).Inc()
}

func (m *Metrics) Delivery(outcome string) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(outcome).Inc()
	if outcome == "dead" {
		m.DeadLetters.Inc()
	}
}

func (m *Metrics) SetQueueDepth(list string, n int64) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(list).Set(float64(n))
}
