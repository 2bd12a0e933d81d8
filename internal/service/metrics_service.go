package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Jabarteley/academic-staff-service-request/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface and the workflow engine.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	transitionTotal *prometheus.CounterVec
	fallbackTotal   *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
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
		Help: "Total workflow transitions by action and outcome",
	}, []string{"action", "outcome"})

	fallbackTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_fallback_resolutions_total",
		Help: "Approver resolutions that degraded to a fallback path",
	}, []string{"role"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "workflow_config_cache_hits_total",
		Help: "Workflow config lookups served from cache",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "workflow_config_cache_misses_total",
		Help: "Workflow config lookups that fell through to the database",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, transitionTotal, fallbackTotal, cacheHits, cacheMisses, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		transitionTotal: transitionTotal,
		fallbackTotal:   fallbackTotal,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
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

// RecordTransition counts one workflow transition attempt by outcome.
func (m *MetricsService) RecordTransition(action string, outcome string) {
	if m == nil {
		return
	}
	m.transitionTotal.WithLabelValues(action, outcome).Inc()
}

// RecordFallback counts a degraded approver resolution for the stage role.
func (m *MetricsService) RecordFallback(role models.UserRole) {
	if m == nil {
		return
	}
	m.fallbackTotal.WithLabelValues(string(role)).Inc()
}

// RecordConfigCacheLookup counts workflow config cache hits and misses.
func (m *MetricsService) RecordConfigCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}
