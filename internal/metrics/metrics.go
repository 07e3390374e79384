// Package metrics provides Prometheus metrics collection for the income
// prediction service. It defines the prediction, model and transport metrics
// exposed via the Prometheus metrics endpoint for monitoring and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the prediction service.
type Metrics struct {
	// Prediction metrics
	PredictionsTotal      prometheus.Counter     // Total number of successful predictions
	RejectionsTotal       *prometheus.CounterVec // Rejected predictions by reason
	PredictionLatency     prometheus.Histogram   // End-to-end prediction latency
	PredictionProbability prometheus.Histogram   // Distribution of reported probabilities

	// Model metrics
	ModelFitDuration prometheus.Gauge   // Duration of the last model fit
	ModelFitRows     prometheus.Gauge   // Rows used by the last model fit
	ScriptCalls      prometheus.Counter // Calls to the external model script
	ScriptFailures   prometheus.Counter // Failed external model calls
	ScriptTimeouts   prometheus.Counter // Timed-out external model calls
	ScriptLatency    prometheus.Histogram

	// Transport and storage metrics
	HTTPRequests  *prometheus.CounterVec // HTTP requests by route and status code
	WSConnections prometheus.Gauge       // Open websocket connections
	StoreErrors   prometheus.Counter     // Prediction log write failures
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		PredictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "income_predictions_total",
			Help: "Total number of successful income predictions",
		}),
		RejectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "income_prediction_rejections_total",
			Help: "Total number of rejected predictions by reason",
		}, []string{"reason"}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "income_prediction_latency_seconds",
			Help:    "Prediction latency in seconds (end-to-end)",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		PredictionProbability: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "income_prediction_probability",
			Help:    "Distribution of the probability of the predicted label",
			Buckets: prometheus.LinearBuckets(0.5, 0.05, 11),
		}),
		ModelFitDuration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "income_model_fit_duration_seconds",
			Help: "Duration of the last model fit in seconds",
		}),
		ModelFitRows: factory.NewGauge(prometheus.GaugeOpts{
			Name: "income_model_fit_rows",
			Help: "Number of training rows used by the last model fit",
		}),
		ScriptCalls: factory.NewCounter(prometheus.CounterOpts{
			Name: "income_script_calls_total",
			Help: "Total number of external model script calls",
		}),
		ScriptFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "income_script_failures_total",
			Help: "Total number of failed external model script calls",
		}),
		ScriptTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "income_script_timeouts_total",
			Help: "Total number of timed-out external model script calls",
		}),
		ScriptLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "income_script_latency_seconds",
			Help:    "External model script latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "income_http_requests_total",
			Help: "Total number of HTTP requests by route and status code",
		}, []string{"route", "code"}),
		WSConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "income_ws_connections",
			Help: "Number of open websocket prediction streams",
		}),
		StoreErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "income_store_errors_total",
			Help: "Total number of prediction log write failures",
		}),
	}
}

// RejectionRate returns the ratio of rejected to attempted predictions
// gathered from g, or 0 if nothing has been recorded yet.
func RejectionRate(g prometheus.Gatherer) float64 {
	var accepted, rejected float64

	families, err := g.Gather()
	if err != nil {
		return 0
	}

	for _, mf := range families {
		switch mf.GetName() {
		case "income_predictions_total":
			for _, m := range mf.GetMetric() {
				accepted += m.GetCounter().GetValue()
			}
		case "income_prediction_rejections_total":
			for _, m := range mf.GetMetric() {
				rejected += m.GetCounter().GetValue()
			}
		}
	}

	if accepted+rejected == 0 {
		return 0
	}
	return rejected / (accepted + rejected)
}
