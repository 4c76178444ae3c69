package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	TrainingRuns     *prometheus.CounterVec
	TrainingDuration *prometheus.HistogramVec
	ModelScore       *prometheus.GaugeVec
	Predictions      *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry, plus the Go and process
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		TrainingRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autotab",
			Name:      "training_runs_total",
			Help:      "Training runs by problem type and outcome.",
		}, []string{"problem_type", "outcome"}),
		TrainingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "autotab",
			Name:      "training_duration_seconds",
			Help:      "Wall time of a full training run.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"problem_type"}),
		ModelScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "autotab",
			Name:      "last_model_score",
			Help:      "Cross-validation score of the last selected model.",
		}, []string{"problem_type", "algorithm"}),
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autotab",
			Name:      "predicted_rows_total",
			Help:      "Rows scored by stored models.",
		}, []string{"algorithm"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autotab",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "autotab",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		m.TrainingRuns,
		m.TrainingDuration,
		m.ModelScore,
		m.Predictions,
		m.HTTPRequests,
		m.HTTPDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}

// Middleware records request counts and latency by matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
