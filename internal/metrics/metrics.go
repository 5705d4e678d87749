// Package metrics holds the Prometheus instrumentation for mailquery.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricSearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailquery_search_duration_seconds",
			Help:    "Duration of search executions, by folder scope.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"scope"},
	)
	metricSearchResults = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailquery_search_results",
			Help:    "Number of messages returned per search.",
			Buckets: []float64{0, 1, 10, 100, 1000, 10000, 50000},
		},
	)
	metricSearchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailquery_search_errors_total",
			Help: "Failed searches, by error category.",
		},
		[]string{"category"},
	)
	metricResourceExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailquery_resource_exceeded_total",
			Help: "Resource ceilings crossed, by resource.",
		},
		[]string{"resource"},
	)
	metricTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailquery_timeouts_total",
			Help: "Guarded operations abandoned after their timeout, by operation.",
		},
		[]string{"operation"},
	)
	metricConnectionRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailquery_connection_retries_total",
			Help: "Reconnection and retry attempts, by result.",
		},
		[]string{"result"},
	)
	metricStreamChunks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailquery_stream_chunks_total",
			Help: "Chunks delivered by the streaming paginator.",
		},
	)
)

// ObserveSearch records a completed search.
func ObserveSearch(scope string, d time.Duration, results int) {
	metricSearchDuration.WithLabelValues(scope).Observe(d.Seconds())
	metricSearchResults.Observe(float64(results))
}

// SearchFailed records a failed search under the given error category.
func SearchFailed(category string) {
	metricSearchErrors.WithLabelValues(category).Inc()
}

// ResourceExceeded records a crossed ceiling.
func ResourceExceeded(resource string) {
	metricResourceExceeded.WithLabelValues(resource).Inc()
}

// Timeout records an abandoned operation.
func Timeout(operation string) {
	metricTimeouts.WithLabelValues(operation).Inc()
}

// ConnectionRetry records a reconnect or retry attempt; result is
// "success" or "failure".
func ConnectionRetry(result string) {
	metricConnectionRetries.WithLabelValues(result).Inc()
}

// StreamChunk records one delivered chunk.
func StreamChunk() {
	metricStreamChunks.Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
