// Package metrics defines the Prometheus collectors used by the pipeline
// and the HTTP server, and exposes a handler for scraping.
//
// All methods are safe to call on a nil *Metrics, so components can be
// built without instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for TutorialPipe.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	RunsTotal            *prometheus.CounterVec
	StageDuration        *prometheus.HistogramVec
	LLMCallsTotal        *prometheus.CounterVec
	LLMCallDuration      *prometheus.HistogramVec
	LLMInFlight          prometheus.Gauge
	FallbacksTotal       *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tutorialpipe_runs_total",
				Help: "Pipeline runs by target and outcome (done, failed).",
			},
			[]string{"target", "outcome"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tutorialpipe_stage_duration_seconds",
				Help:    "Pipeline stage latency in seconds.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"stage"},
		),
		LLMCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tutorialpipe_llm_calls_total",
				Help: "Model client calls by backend, task and outcome.",
			},
			[]string{"backend", "task", "outcome"},
		),
		LLMCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tutorialpipe_llm_call_duration_seconds",
				Help:    "Model client call latency in seconds.",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"backend", "task"},
		),
		LLMInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tutorialpipe_llm_in_flight",
				Help: "Model client calls currently outstanding.",
			},
		),
		FallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tutorialpipe_fallbacks_total",
				Help: "Recovered failures by stage (analysis items, placeholders, unrefined drafts).",
			},
			[]string{"stage"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.RunsTotal,
		m.StageDuration,
		m.LLMCallsTotal,
		m.LLMCallDuration,
		m.LLMInFlight,
		m.FallbacksTotal,
		m.CircuitBreakerState,
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRun records a finished pipeline run.
func (m *Metrics) ObserveRun(target, outcome string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(target, outcome).Inc()
}

// ObserveStage records the duration of one pipeline stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveLLMCall records one model client call.
func (m *Metrics) ObserveLLMCall(backend, task string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.LLMCallsTotal.WithLabelValues(backend, task, outcome).Inc()
	m.LLMCallDuration.WithLabelValues(backend, task).Observe(d.Seconds())
}

// LLMCallStarted and LLMCallFinished track outstanding model calls.
func (m *Metrics) LLMCallStarted() {
	if m == nil {
		return
	}
	m.LLMInFlight.Inc()
}

func (m *Metrics) LLMCallFinished() {
	if m == nil {
		return
	}
	m.LLMInFlight.Dec()
}

// ObserveFallback records a recovered failure in stage.
func (m *Metrics) ObserveFallback(stage string) {
	if m == nil {
		return
	}
	m.FallbacksTotal.WithLabelValues(stage).Inc()
}

// SetBreakerState exports a circuit breaker state.
func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
