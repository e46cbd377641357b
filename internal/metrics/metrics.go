// Package metrics provides Prometheus metrics for the churn prediction service.
// It covers prediction volume and latency, the distribution of churn
// probabilities and risk levels, cache efficiency, and HTTP traffic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	predictionsMetric        = "churn_predictions_total"
	predictionFailuresMetric = "churn_prediction_failures_total"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	// Prediction metrics
	PredictionsTotal   prometheus.Counter   // Records scored successfully
	PredictionFailures prometheus.Counter   // Predictor errors
	ValidationFailures prometheus.Counter   // Records rejected by schema validation
	PredictionLatency  prometheus.Histogram // Serving latency per call in seconds
	ChurnProbability   prometheus.Histogram // Distribution of predicted churn probabilities
	RiskLevels         *prometheus.CounterVec
	BatchSize          prometheus.Histogram

	// Model metrics
	ModelLoaded prometheus.Gauge
	ModelAge    prometheus.Gauge // Seconds since the artifact was created

	// Cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// HTTP metrics
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
	RateLimited   *prometheus.CounterVec
	StreamClients prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates and registers all metrics with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	gatherer := prometheus.DefaultGatherer
	if g, ok := registerer.(prometheus.Gatherer); ok {
		gatherer = g
	}

	return &Metrics{
		PredictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: predictionsMetric,
			Help: "Total number of customer records scored",
		}),
		PredictionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: predictionFailuresMetric,
			Help: "Total number of predictor failures",
		}),
		ValidationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "churn_validation_failures_total",
			Help: "Total number of customer records rejected by validation",
		}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "churn_prediction_latency_seconds",
			Help:    "Prediction latency in seconds (validation to result)",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		ChurnProbability: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "churn_probability",
			Help:    "Distribution of predicted churn probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		RiskLevels: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "churn_risk_level_total",
			Help: "Predictions per risk level",
		}, []string{"level"}),
		BatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "churn_batch_size",
			Help:    "Number of records per batch request",
			Buckets: prometheus.ExponentialBuckets(1, 2, 11),
		}),
		ModelLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "churn_model_loaded",
			Help: "1 when a model artifact is loaded, 0 otherwise",
		}),
		ModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "churn_model_age_seconds",
			Help: "Age of the loaded model artifact in seconds",
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "churn_cache_hits_total",
			Help: "Prediction cache hits",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "churn_cache_misses_total",
			Help: "Prediction cache misses",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "churn_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "churn_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		RateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "churn_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		}, []string{"route"}),
		StreamClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "churn_stats_stream_clients",
			Help: "Connected stats stream clients",
		}),
		gatherer: gatherer,
	}
}

// GetErrorRate returns predictor failures relative to scored records, or 0
// when nothing has been scored yet.
func (m *Metrics) GetErrorRate() float64 {
	var total, failures float64

	metricFamilies, err := m.gatherer.Gather()
	if err != nil {
		return 0
	}

	for _, mf := range metricFamilies {
		switch mf.GetName() {
		case predictionsMetric:
			for _, metric := range mf.Metric {
				total = metric.GetCounter().GetValue()
			}
		case predictionFailuresMetric:
			for _, metric := range mf.Metric {
				failures = metric.GetCounter().GetValue()
			}
		}
	}

	if total == 0 {
		return 0
	}
	return failures / total
}

// Gatherer returns the registry the metrics were registered with, for
// exposing them over HTTP.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.gatherer
}
