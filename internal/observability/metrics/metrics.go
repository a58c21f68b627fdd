package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the metrics sink injected into the core. The core never
// owns process-global counters; callers decide where measurements go.
type Recorder interface {
	HTTPRequest(method, path, status string, seconds float64)
	DocumentProcessed(status string)
	ProcessingStage(stage string, seconds float64)
	RuleFailure(ruleID string)
	QueryServed(seconds float64)
	RateLimitRejected(dimension, window string)
}

type PrometheusRecorder struct {
	registry *prometheus.Registry
	service  string

	requestTotal       *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	documentsProcessed *prometheus.CounterVec
	stageDuration      *prometheus.HistogramVec
	ruleFailures       *prometheus.CounterVec
	queryDuration      prometheus.Histogram
	rateLimitRejected  *prometheus.CounterVec
}

func NewPrometheusRecorder(service string) *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cia",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cia",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	documentsProcessed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cia",
			Subsystem: "pipeline",
			Name:      "documents_processed_total",
			Help:      "Documents that finished a processing attempt, by terminal status.",
		},
		[]string{"service", "status"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cia",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "stage"},
	)
	ruleFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cia",
			Subsystem: "audit",
			Name:      "rule_failures_total",
			Help:      "Audit rules that errored during evaluation.",
		},
		[]string{"service", "rule_id"},
	)
	queryDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "cia",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "End-to-end retrieval query duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	rateLimitRejected := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cia",
			Subsystem: "ratelimit",
			Name:      "rejected_total",
			Help:      "Requests rejected by the rate limiter, by dimension and window.",
		},
		[]string{"service", "dimension", "window"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		documentsProcessed,
		stageDuration,
		ruleFailures,
		queryDuration,
		rateLimitRejected,
	)

	return &PrometheusRecorder{
		registry:           registry,
		service:            service,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		documentsProcessed: documentsProcessed,
		stageDuration:      stageDuration,
		ruleFailures:       ruleFailures,
		queryDuration:      queryDuration,
		rateLimitRejected:  rateLimitRejected,
	}
}

func (r *PrometheusRecorder) HTTPRequest(method, path, status string, seconds float64) {
	r.requestTotal.WithLabelValues(r.service, method, path, status).Inc()
	r.requestDuration.WithLabelValues(r.service, method, path).Observe(seconds)
}

func (r *PrometheusRecorder) DocumentProcessed(status string) {
	r.documentsProcessed.WithLabelValues(r.service, status).Inc()
}

func (r *PrometheusRecorder) ProcessingStage(stage string, seconds float64) {
	r.stageDuration.WithLabelValues(r.service, stage).Observe(seconds)
}

func (r *PrometheusRecorder) RuleFailure(ruleID string) {
	r.ruleFailures.WithLabelValues(r.service, ruleID).Inc()
}

func (r *PrometheusRecorder) QueryServed(seconds float64) {
	r.queryDuration.Observe(seconds)
}

func (r *PrometheusRecorder) RateLimitRejected(dimension, window string) {
	r.rateLimitRejected.WithLabelValues(r.service, dimension, window).Inc()
}

// Handler serves the recorder's registry, suitable for GET /metrics.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Noop discards all measurements; handy in tests.
type Noop struct{}

func (Noop) HTTPRequest(string, string, string, float64) {}
func (Noop) DocumentProcessed(string)                    {}
func (Noop) ProcessingStage(string, float64)             {}
func (Noop) RuleFailure(string)                          {}
func (Noop) QueryServed(float64)                         {}
func (Noop) RateLimitRejected(string, string)            {}
