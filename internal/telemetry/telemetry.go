// Package telemetry bundles the Prometheus collectors exported on /metrics.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process collectors. A nil *Metrics is valid and records
// nothing, so components can run unwired in tests and one-shot commands.
type Metrics struct {
	reg           *prometheus.Registry
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	inFlight      prometheus.Gauge
	notifications *prometheus.CounterVec
	runs          *prometheus.CounterVec
	events        *prometheus.CounterVec
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealwhisperer_http_requests_total",
				Help: "Total count of HTTP requests received.",
			},
			[]string{"method", "path", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dealwhisperer_http_request_duration_seconds",
				Help:    "Histogram of request durations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dealwhisperer_http_inflight_requests",
			Help: "Number of requests currently being handled.",
		}),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealwhisperer_notifications_total",
				Help: "Stakeholder notifications attempted, by outcome.",
			},
			[]string{"outcome"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealwhisperer_notifier_runs_total",
				Help: "Stale-deal notifier runs, by deal source.",
			},
			[]string{"source"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealwhisperer_webhook_events_total",
				Help: "Inbound chat events, by outcome.",
			},
			[]string{"outcome"},
		),
	}
	m.reg.MustRegister(
		m.requests, m.duration, m.inFlight, m.notifications, m.runs, m.events,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RegisterQueueDepth exports the current length of a work queue.
func (m *Metrics) RegisterQueueDepth(depth func() int) {
	if m == nil {
		return
	}
	m.reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "dealwhisperer_inbound_queue_depth",
			Help: "Inbound events waiting for a worker.",
		},
		func() float64 { return float64(depth()) },
	))
}

// Handler serves the exposition format for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Notification counts one send attempt ("sent" or "failed").
func (m *Metrics) Notification(outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(outcome).Inc()
}

// NotifierRun counts one notifier run by where its deals came from
// ("crm" or "cache").
func (m *Metrics) NotifierRun(source string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(source).Inc()
}

// Event counts one inbound event by outcome.
func (m *Metrics) Event(outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(outcome).Inc()
}

// Instrument is gin middleware recording request counts and latencies. The
// route template is used as the path label to bound cardinality.
func (m *Metrics) Instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		start := time.Now()
		c.Next()
		elapsed := time.Since(start).Seconds()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		labels := []string{c.Request.Method, path, strconv.Itoa(c.Writer.Status())}
		m.requests.WithLabelValues(labels...).Inc()
		m.duration.WithLabelValues(labels...).Observe(elapsed)
	}
}
