package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Redirect outcomes.
const (
	OutcomeRedirect = "redirect"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Click recording failure stages.
const (
	StageInsert   = "insert"
	StageCounter  = "counter"
	StageVisitors = "visitors"
	StagePublish  = "publish"
)

// Metrics holds the service's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	RedirectsTotal      *prometheus.CounterVec
	ClicksRecordedTotal prometheus.Counter
	ClickFailuresTotal  *prometheus.CounterVec
	ReportDuration      *prometheus.HistogramVec
	BreakerState        *prometheus.GaugeVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RedirectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linktracker_redirects_total",
				Help: "Total number of short link lookups by outcome",
			},
			[]string{"outcome"},
		),
		ClicksRecordedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "linktracker_clicks_recorded_total",
				Help: "Total number of click rows written to the click log",
			},
		),
		ClickFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linktracker_click_failures_total",
				Help: "Total number of click recording failures by stage",
			},
			[]string{"stage"},
		),
		ReportDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "linktracker_report_duration_seconds",
				Help:    "Analytics report duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"report"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "linktracker_circuit_breaker_open",
				Help: "Whether a circuit breaker is open (1) or not (0)",
			},
			[]string{"name"},
		),
	}

	m.registry.MustRegister(
		m.RedirectsTotal,
		m.ClicksRecordedTotal,
		m.ClickFailuresTotal,
		m.ReportDuration,
		m.BreakerState,
		collectors.NewGoCollector(),
	)

	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Redirect(outcome string) {
	m.RedirectsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ClickRecorded() {
	m.ClicksRecordedTotal.Inc()
}

func (m *Metrics) ClickFailed(stage string) {
	m.ClickFailuresTotal.WithLabelValues(stage).Inc()
}

// ObserveReport records how long a report took, measured from start.
func (m *Metrics) ObserveReport(report string, start time.Time) {
	m.ReportDuration.WithLabelValues(report).Observe(time.Since(start).Seconds())
}

func (m *Metrics) SetBreakerOpen(name string, open bool) {
	value := 0.0
	if open {
		value = 1
	}

	m.BreakerState.WithLabelValues(name).Set(value)
}
