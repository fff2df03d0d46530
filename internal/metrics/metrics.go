// Package metrics provides Prometheus instrumentation for the deal
// pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SearchesTotal counts marketplace searches by source and outcome.
	SearchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dealscout_searches_total",
		Help: "Marketplace searches performed",
	}, []string{"source", "outcome"})

	// ScanCyclesTotal counts completed scanner cycles.
	ScanCyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dealscout_scan_cycles_total",
		Help: "Scanner cycles completed",
	})

	// ScanErrorsTotal counts watch queries whose scan failed outright.
	ScanErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dealscout_scan_errors_total",
		Help: "Watch query scans that failed",
	})

	// OpportunitiesFound counts newly persisted opportunities.
	OpportunitiesFound = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dealscout_opportunities_found_total",
		Help: "New opportunities persisted",
	})

	// ScannerRunning reports whether the background scanner loop is up.
	ScannerRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dealscout_scanner_running",
		Help: "1 while the background scanner is running",
	})

	// ScanCycleDuration tracks full-cycle wall time.
	ScanCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dealscout_scan_cycle_duration_seconds",
		Help:    "Scanner cycle duration in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	// HTTPRequestsTotal counts API requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dealscout_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks API request duration.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dealscout_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and durations for the API server.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
