package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acadhub/curricula-api/internal/workflow"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP
// traffic and workflow transitions.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	transitionTotal *prometheus.CounterVec
	decisionLatency *prometheus.HistogramVec
	pendingQueue    *prometheus.GaugeVec
}

// NewMetricsService registers core Prometheus collectors.
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

	transitionTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_transitions_total",
		Help: "Workflow transition attempts by resource, action, and outcome",
	}, []string{"resource", "action", "outcome"})

	decisionLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "workflow_decision_wait_seconds",
		Help:    "Time a submission waited in the approval queue before a decision",
		Buckets: []float64{3600, 21600, 86400, 259200, 604800, 1209600},
	}, []string{"resource"})

	pendingQueue := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "workflow_pending_queue_size",
		Help: "Entities awaiting approval per department",
	}, []string{"resource", "department"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, transitionTotal, decisionLatency, pendingQueue, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		transitionTotal: transitionTotal,
		decisionLatency: decisionLatency,
		pendingQueue:    pendingQueue,
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordTransition counts one workflow transition attempt. Outcome is
// "applied" or "rejected".
func (m *MetricsService) RecordTransition(resource string, action workflow.Action, outcome string) {
	if m == nil {
		return
	}
	m.transitionTotal.WithLabelValues(resource, string(action), outcome).Inc()
}

// ObserveDecisionWait records how long a submission sat in the queue.
func (m *MetricsService) ObserveDecisionWait(resource string, wait time.Duration) {
	if m == nil {
		return
	}
	m.decisionLatency.WithLabelValues(resource).Observe(wait.Seconds())
}

// SetPendingQueueSize publishes the current queue depth.
func (m *MetricsService) SetPendingQueueSize(resource, department string, size int) {
	if m == nil {
		return
	}
	m.pendingQueue.WithLabelValues(resource, department).Set(float64(size))
}
