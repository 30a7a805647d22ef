package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/earnings-engine/earnings"
)

// MetricsRegistry holds all Prometheus metrics for the earnings service.
// It implements earnings.Observer.
type MetricsRegistry struct {
	reg *prometheus.Registry

	// HTTP Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Engine Metrics
	GateEvaluationsTotal *prometheus.CounterVec
	SavesTotal           *prometheus.CounterVec
	VerifiedDrift        *prometheus.GaugeVec
	DriftScansTotal      prometheus.Counter
}

var _ earnings.Observer = (*MetricsRegistry)(nil)

// NewMetricsRegistry initializes a registry with all metrics plus the Go
// runtime and process collectors.
func NewMetricsRegistry() *MetricsRegistry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &MetricsRegistry{
		reg: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "earnings_http_requests_total",
				Help: "Total HTTP requests processed by endpoint, method, and status code",
			},
			[]string{"endpoint", "method", "status_code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "earnings_http_request_duration_seconds",
				Help:    "HTTP request latency distribution in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"endpoint", "method"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "earnings_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		GateEvaluationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "earnings_gate_evaluations_total",
				Help: "Persistence gate decisions by label",
			},
			[]string{"label"},
		),
		SavesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "earnings_saves_total",
				Help: "Save attempts by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		VerifiedDrift: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "earnings_verified_drift",
				Help: "Verified records whose saved figures no longer match, per date",
			},
			[]string{"date"},
		),
		DriftScansTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "earnings_drift_scans_total",
				Help: "Completed drift scans",
			},
		),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsRegistry) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus text format.
func (m *MetricsRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// =============================================================================
// earnings.Observer
// =============================================================================

func (m *MetricsRegistry) GateEvaluated(label earnings.GateLabel) {
	m.GateEvaluationsTotal.WithLabelValues(string(label)).Inc()
}

func (m *MetricsRegistry) SaveFinished(mode earnings.SaveMode, err error) {
	m.SavesTotal.WithLabelValues(modeLabel(mode), outcome(err)).Inc()
}

func (m *MetricsRegistry) DriftDetected(date earnings.Date, count int) {
	m.VerifiedDrift.WithLabelValues(date.String()).Set(float64(count))
	m.DriftScansTotal.Inc()
}

func modeLabel(mode earnings.SaveMode) string {
	if mode == earnings.ModeNone {
		return "none"
	}
	return string(mode)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, earnings.ErrSaveInFlight):
		return "in_flight"
	case errors.Is(err, earnings.ErrSaveNotPermitted):
		return "refused"
	default:
		return "error"
	}
}
