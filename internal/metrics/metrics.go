package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for billing activity
type Metrics struct {
	registry *prometheus.Registry

	// relay
	PullsTotal   *prometheus.CounterVec
	PulledAmount *prometheus.CounterVec

	// state machine
	OutcomesTotal     *prometheus.CounterVec
	HookFailuresTotal *prometheus.CounterVec
	CommunitySyncErrs *prometheus.CounterVec

	// sweeper
	SweepDuration *prometheus.HistogramVec

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all collectors on a fresh registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		PullsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pullpay_relay_pulls_total",
				Help: "Total number of fund pulls attempted through the relay",
			},
			[]string{"result"},
		),
		PulledAmount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pullpay_relay_pulled_amount_total",
				Help: "Sum of amounts moved by the relay, per asset",
			},
			[]string{"asset"},
		),
		OutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pullpay_billing_outcomes_total",
				Help: "Per-subscriber outcomes of billing operations",
			},
			[]string{"operation", "outcome"},
		),
		HookFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pullpay_hook_failures_total",
				Help: "Charge hook invocations that vetoed the operation",
			},
			[]string{"operation"},
		),
		CommunitySyncErrs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pullpay_community_sync_errors_total",
				Help: "Failed community role grants and revocations",
			},
			[]string{"action"},
		),
		SweepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pullpay_sweep_duration_seconds",
				Help:    "Duration of one charge-due sweep over an instance",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"instance"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pullpay_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pullpay_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.PullsTotal,
		m.PulledAmount,
		m.OutcomesTotal,
		m.HookFailuresTotal,
		m.CommunitySyncErrs,
		m.SweepDuration,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mostly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordPull(result string) {
	m.PullsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordPulledAmount(asset string, amount float64) {
	m.PulledAmount.WithLabelValues(asset).Add(amount)
}

func (m *Metrics) RecordOutcome(operation, outcome string) {
	m.OutcomesTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) RecordHookFailure(operation string) {
	m.HookFailuresTotal.WithLabelValues(operation).Inc()
}

func (m *Metrics) RecordCommunitySyncError(action string) {
	m.CommunitySyncErrs.WithLabelValues(action).Inc()
}

func (m *Metrics) ObserveSweep(instance string, d time.Duration) {
	m.SweepDuration.WithLabelValues(instance).Observe(d.Seconds())
}

func (m *Metrics) RecordHTTPRequest(method, path, status string, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}
