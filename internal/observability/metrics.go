package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	requestsTotal          *prometheus.CounterVec
	requestLatencySeconds  *prometheus.HistogramVec
	requestErrorsTotal     *prometheus.CounterVec
	gradingsTotal          *prometheus.CounterVec
	gradingDurationSeconds prometheus.Histogram
	dimensionScores        *prometheus.HistogramVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API and the grading service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "essay_api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		requestLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "essay_api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"method", "route"})

		requestErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "essay_api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		gradingsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "essay_gradings_total",
			Help: "Essay gradings by outcome.",
		}, []string{"outcome"})

		gradingDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "essay_grading_duration_seconds",
			Help:    "Time spent grading an essay, all sub-evaluations included.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		})

		dimensionScores = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "essay_dimension_score",
			Help:    "Distribution of component scores per dimension.",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		}, []string{"dimension"})

		prometheus.MustRegister(requestsTotal, requestLatencySeconds, requestErrorsTotal, gradingsTotal, gradingDurationSeconds, dimensionScores)
	})
}

// Requests exposes the counter for API requests.
func Requests() *prometheus.CounterVec {
	RegisterMetrics()
	return requestsTotal
}

// Latency exposes the latency histogram for API requests.
func Latency() *prometheus.HistogramVec {
	RegisterMetrics()
	return requestLatencySeconds
}

// Errors exposes the counter for API error responses.
func Errors() *prometheus.CounterVec {
	RegisterMetrics()
	return requestErrorsTotal
}

// Gradings exposes the grading outcome counter.
func Gradings() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingsTotal
}

// GradingDuration exposes the grading duration histogram.
func GradingDuration() prometheus.Histogram {
	RegisterMetrics()
	return gradingDurationSeconds
}

// DimensionScores exposes the per-dimension score histogram.
func DimensionScores() *prometheus.HistogramVec {
	RegisterMetrics()
	return dimensionScores
}
