package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	expansions      prometheus.Histogram
	remindersQueued prometheus.Counter
	remindersSent   prometheus.Counter
	syncTotal       *prometheus.CounterVec
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

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	expansions := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "recurrence_expansion_occurrences",
		Help:    "Occurrences produced per recurrence expansion",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
	})

	remindersQueued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reminders_enqueued_total",
		Help: "Reminder jobs enqueued by the scanner",
	})

	remindersSent := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reminders_sent_total",
		Help: "Reminder notifications delivered",
	})

	syncTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "calendar_sync_total",
		Help: "Calendar mirror operations by source type and outcome",
	}, []string{"source", "outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheHits, cacheMisses, expansions, remindersQueued, remindersSent, syncTotal, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		expansions:      expansions,
		remindersQueued: remindersQueued,
		remindersSent:   remindersSent,
		syncTotal:       syncTotal,
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

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveExpansion records the occurrence count of a recurrence expansion.
func (m *MetricsService) ObserveExpansion(occurrences int) {
	if m == nil {
		return
	}
	m.expansions.Observe(float64(occurrences))
}

// RecordReminderEnqueued counts reminder jobs produced by the scanner.
func (m *MetricsService) RecordReminderEnqueued(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.remindersQueued.Add(float64(n))
}

// RecordReminderSent counts delivered reminder notifications.
func (m *MetricsService) RecordReminderSent() {
	if m == nil {
		return
	}
	m.remindersSent.Inc()
}

// RecordSync counts a calendar mirror operation.
func (m *MetricsService) RecordSync(source, outcome string) {
	if m == nil {
		return
	}
	m.syncTotal.WithLabelValues(source, outcome).Inc()
}
