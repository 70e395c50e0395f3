// Package metrics holds the Prometheus collectors of the transformer.
// Every method is safe on a nil *Metrics, so components can run without
// instrumentation in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "persona_transformer"

// Label values for revision events
const (
	RevisionRecorded   = "recorded"
	RevisionApproved   = "approved"
	RevisionRejected   = "rejected"
	RevisionRolledBack = "rolled_back"
)

// Metrics is a set of collectors registered on a private registry
type Metrics struct {
	registry *prometheus.Registry

	jobsSubmitted     *prometheus.CounterVec
	jobTransitions    *prometheus.CounterVec
	retries           *prometheus.CounterVec
	discarded         prometheus.Counter
	queueDepth        prometheus.Gauge
	adaptationSeconds *prometheus.HistogramVec
	qualityScore      *prometheus.HistogramVec
	revisions         *prometheus.CounterVec
	requests          *prometheus.CounterVec
	latency           *prometheus.HistogramVec
}

// New creates and registers the collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Number of transformation jobs submitted, by output format.",
		}, []string{"format"}),
		jobTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_transitions_total",
			Help:      "Number of job state transitions, by target status.",
		}, []string{"status"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_retries_total",
			Help:      "Number of scheduled job retries, by reason.",
		}, []string{"reason"}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_discarded_total",
			Help:      "Number of adaptation results discarded because the job was cancelled meanwhile.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Number of jobs waiting in the dispatch queue.",
		}),
		adaptationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "adaptation_duration_seconds",
			Help:      "Latency of adaptation attempts, by outcome.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"outcome"}),
		qualityScore: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quality_overall_score",
			Help:      "Overall quality score of recorded revisions, by output format.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}, []string{"format"}),
		revisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revision_events_total",
			Help:      "Number of revision events, by event.",
		}, []string{"event"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Number of HTTP requests partitioned by status code, method and route pattern.",
		}, []string{"code", "method", "path"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_milliseconds",
			Help:      "Time spent on the request partitioned by status code, method and route pattern.",
			Buckets:   []float64{5, 25, 100, 300, 1000, 5000},
		}, []string{"code", "method", "path"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.jobsSubmitted, m.jobTransitions, m.retries, m.discarded, m.queueDepth,
		m.adaptationSeconds, m.qualityScore, m.revisions, m.requests, m.latency,
	)
	return m
}

// Registry exposes the private registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) JobSubmitted(format string) {
	if m == nil {
		return
	}
	m.jobsSubmitted.WithLabelValues(format).Inc()
}

func (m *Metrics) JobTransition(status string) {
	if m == nil {
		return
	}
	m.jobTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) RetryScheduled(reason string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(reason).Inc()
}

func (m *Metrics) ResultDiscarded() {
	if m == nil {
		return
	}
	m.discarded.Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) ObserveAdaptation(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.adaptationSeconds.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) ObserveQuality(format string, overall float64) {
	if m == nil {
		return
	}
	m.qualityScore.WithLabelValues(format).Observe(overall)
}

func (m *Metrics) RevisionEvent(event string) {
	if m == nil {
		return
	}
	m.revisions.WithLabelValues(event).Inc()
}

// statusRecorder captures the response code for the request metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps server-sent event streams working behind the middleware
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware counts requests and observes latency by route pattern
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		code := strconv.Itoa(rec.status)
		m.requests.WithLabelValues(code, r.Method, path).Inc()
		m.latency.WithLabelValues(code, r.Method, path).Observe(float64(time.Since(start).Milliseconds()))
	})
}
