package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Engine metrics
	SelectionsTotal      *prometheus.CounterVec
	ReassignmentsTotal   *prometheus.CounterVec
	LedgerDuration       prometheus.Histogram
	AggregationRunsTotal *prometheus.CounterVec
	AggregatedRows       prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		SelectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consultant_selections_total",
				Help: "Consultant selection decisions by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		ReassignmentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reassignment_events_total",
				Help: "Reassignment events recorded in the ledger",
			},
			[]string{"source", "success"},
		),
		LedgerDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "reassignment_ledger_duration_seconds",
			Help:    "Time spent in the ledger unit of work",
			Buckets: prometheus.DefBuckets,
		}),
		AggregationRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_aggregation_runs_total",
				Help: "Daily analytics aggregation runs",
			},
			[]string{"status"},
		),
		AggregatedRows: factory.NewGauge(prometheus.GaugeOpts{
			Name: "analytics_aggregated_rows",
			Help: "Summary rows written by the last aggregation run",
		}),
	}
}

func (m *Metrics) ObserveSelection(method, outcome string) {
	if m == nil {
		return
	}
	if method == "" {
		method = "none"
	}
	m.SelectionsTotal.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) ObserveReassignment(source string, success bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ReassignmentsTotal.WithLabelValues(source, strconv.FormatBool(success)).Inc()
	m.LedgerDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveAggregation(rows int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.AggregationRunsTotal.WithLabelValues("failed").Inc()
		return
	}
	m.AggregationRunsTotal.WithLabelValues("success").Inc()
	m.AggregatedRows.Set(float64(rows))
}

// Gatherer exposes the registry for tests and custom exporters.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request count and latency per route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
