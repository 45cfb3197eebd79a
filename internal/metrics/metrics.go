// Package metrics holds the Prometheus collectors shared by the backend API and the console.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestDuration tracks request latency per route
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailtriage_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"component", "method", "path", "status"},
	)

	// DBQueryDuration tracks store operation latency
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailtriage_db_query_duration_seconds",
			Help:    "Database operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation"},
	)

	// AnalysisDuration tracks LLM evaluation latency
	AnalysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailtriage_analysis_duration_seconds",
			Help:    "Email evaluation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 11), // 100ms to ~100s
		},
		[]string{"result"},
	)

	// EmailsIngested counts upload outcomes on the backend
	EmailsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailtriage_emails_ingested_total",
			Help: "Uploaded emails by outcome",
		},
		[]string{"outcome"}, // ok, soft_failure, rejected, error
	)

	// ConsoleReloads counts console reloads by result
	ConsoleReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailtriage_console_reloads_total",
			Help: "Console reloads by result",
		},
		[]string{"result"}, // ok, error, stale
	)

	// ConsoleMutations counts console upload/delete attempts by result
	ConsoleMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailtriage_console_mutations_total",
			Help: "Console mutations by operation and result",
		},
		[]string{"operation", "result"},
	)
)

// RecordHTTPRequest records one served request
func RecordHTTPRequest(component, method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(component, method, path, status).Observe(duration.Seconds())
}

// RecordDBQuery records one store operation
func RecordDBQuery(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAnalysis records one evaluation attempt
func RecordAnalysis(result string, duration time.Duration) {
	AnalysisDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordIngest counts one upload outcome
func RecordIngest(outcome string) {
	EmailsIngested.WithLabelValues(outcome).Inc()
}

// RecordReload counts one console reload
func RecordReload(result string) {
	ConsoleReloads.WithLabelValues(result).Inc()
}

// RecordMutation counts one console mutation
func RecordMutation(operation, result string) {
	ConsoleMutations.WithLabelValues(operation, result).Inc()
}

// Handler serves the default registry for scraping
func Handler() http.Handler {
	return promhttp.Handler()
}
