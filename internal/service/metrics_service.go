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
	placements      *prometheus.CounterVec
	sweepDuration   prometheus.Observer
	summariesSent   prometheus.Counter
}

// NewMetricsService registers the application's Prometheus collectors.
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

	placements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollments_placed_total",
		Help: "Enrollments placed, by placement outcome",
	}, []string{"placement"})

	sweepDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "activity_sweep_duration_seconds",
		Help:    "Duration of enrollment activity sweeps",
		Buckets: prometheus.DefBuckets,
	})

	summariesSent := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "enrollment_summaries_sent_total",
		Help: "Enrollment summary notifications delivered",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, placements, sweepDuration, summariesSent, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		placements:      placements,
		sweepDuration:   sweepDuration,
		summariesSent:   summariesSent,
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

// ObservePlacement counts an enrollment placement by outcome.
func (m *MetricsService) ObservePlacement(waitingList bool) {
	if m == nil {
		return
	}
	placement := "direct"
	if waitingList {
		placement = "waiting_list"
	}
	m.placements.WithLabelValues(placement).Inc()
}

// ObserveSweep records the duration of one activity sweep.
func (m *MetricsService) ObserveSweep(duration time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(duration.Seconds())
}

// CountSummarySent counts a delivered enrollment summary.
func (m *MetricsService) CountSummarySent() {
	if m == nil {
		return
	}
	m.summariesSent.Inc()
}
