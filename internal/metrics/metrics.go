// Package metrics defines the Prometheus collectors for API requests, jobs
// and generation calls.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "planner"

// Generation call outcomes used as the llm_calls_total outcome label.
const (
	OutcomeSuccess       = "success"
	OutcomeFail          = "fail"
	OutcomeQuotaOrBudget = "quota_or_budget"
)

// Metrics holds every collector, registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests     *prometheus.CounterVec
	apiDuration     *prometheus.HistogramVec
	jobsTotal       *prometheus.CounterVec
	jobsInProgress  *prometheus.GaugeVec
	generationCalls *prometheus.CounterVec
}

// New registers the collectors on a fresh registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		apiRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Total API requests",
		}, []string{"path", "method", "status"}),
		apiDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "API request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"path", "method"}),
		jobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Finished jobs by type and terminal status",
		}, []string{"type", "status"}),
		jobsInProgress: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_progress",
			Help:      "Jobs currently running",
		}, []string{"type"}),
		generationCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "Generation calls by intent and outcome",
		}, []string{"intent", "outcome"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveRequest(path, method string, status int, d time.Duration) {
	m.apiRequests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.apiDuration.WithLabelValues(path, method).Observe(d.Seconds())
}

func (m *Metrics) JobStarted(jobType string) {
	m.jobsInProgress.WithLabelValues(jobType).Inc()
}

func (m *Metrics) JobStopped(jobType string) {
	m.jobsInProgress.WithLabelValues(jobType).Dec()
}

// JobFinished counts a job reaching a terminal status.
func (m *Metrics) JobFinished(jobType, status string) {
	m.jobsTotal.WithLabelValues(jobType, status).Inc()
}

func (m *Metrics) GenerationCall(intent, outcome string) {
	m.generationCalls.WithLabelValues(intent, outcome).Inc()
}
