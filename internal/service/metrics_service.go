package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/univtimetable/optimizer-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface and the optimizer loop, and provides lightweight snapshots for
// API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	jobsTotal        *prometheus.CounterVec
	activeJobs       prometheus.Gauge
	bestScore        *prometheus.GaugeVec
	iterationsTotal  prometheus.Counter
	evaluationsTotal prometheus.Counter
	llmCallsTotal    *prometheus.CounterVec

	requestCount         uint64
	requestDurationTotal uint64
	jobsStarted          uint64
	jobsCompleted        uint64
	jobsFailed           uint64
	evaluationCount      uint64
	llmCallCount         uint64
}

// NewMetricsService registers the service's Prometheus collectors on a
// private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	jobsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "optimizer_jobs_total",
		Help: "Optimization jobs by terminal status",
	}, []string{"status"})

	activeJobs := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "optimizer_active_jobs",
		Help: "Optimization jobs currently running",
	})

	bestScore := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "optimizer_best_score",
		Help: "Best fitness score observed per job",
	}, []string{"job_id"})

	iterationsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "optimizer_iterations_total",
		Help: "Total evolutionary iterations across all jobs",
	})

	evaluationsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "optimizer_evaluations_total",
		Help: "Total chromosome fitness evaluations",
	})

	llmCallsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "optimizer_llm_calls_total",
		Help: "LLM improver calls by outcome",
	}, []string{"outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, jobsTotal, activeJobs,
		bestScore, iterationsTotal, evaluationsTotal, llmCallsTotal, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:         registry,
		handler:          handler,
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		jobsTotal:        jobsTotal,
		activeJobs:       activeJobs,
		bestScore:        bestScore,
		iterationsTotal:  iterationsTotal,
		evaluationsTotal: evaluationsTotal,
		llmCallsTotal:    llmCallsTotal,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// JobStarted marks a new running job.
func (m *MetricsService) JobStarted() {
	if m == nil {
		return
	}
	m.activeJobs.Inc()
	atomic.AddUint64(&m.jobsStarted, 1)
}

// JobFinished records a terminal job status.
func (m *MetricsService) JobFinished(status models.GenerationStatus) {
	if m == nil {
		return
	}
	m.activeJobs.Dec()
	m.jobsTotal.WithLabelValues(string(status)).Inc()
	switch status {
	case models.GenerationCompleted:
		atomic.AddUint64(&m.jobsCompleted, 1)
	case models.GenerationFailed:
		atomic.AddUint64(&m.jobsFailed, 1)
	}
}

// ObserveIteration records one evolutionary iteration and the running best.
func (m *MetricsService) ObserveIteration(jobID string, bestScore float64) {
	if m == nil {
		return
	}
	m.iterationsTotal.Inc()
	m.bestScore.WithLabelValues(jobID).Set(bestScore)
}

// ObserveEvaluations adds finished fitness evaluations.
func (m *MetricsService) ObserveEvaluations(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evaluationsTotal.Add(float64(n))
	atomic.AddUint64(&m.evaluationCount, uint64(n))
}

// ObserveLLMCall records one improver call by outcome.
func (m *MetricsService) ObserveLLMCall(success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.llmCallsTotal.WithLabelValues(outcome).Inc()
	atomic.AddUint64(&m.llmCallCount, 1)
}

// Snapshot returns aggregated metrics suitable for status endpoints.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		JobsStarted:              atomic.LoadUint64(&m.jobsStarted),
		JobsCompleted:            atomic.LoadUint64(&m.jobsCompleted),
		JobsFailed:               atomic.LoadUint64(&m.jobsFailed),
		EvaluationsTotal:         atomic.LoadUint64(&m.evaluationCount),
		LLMCallsTotal:            atomic.LoadUint64(&m.llmCallCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
