package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder registers and updates the engine's Prometheus metrics.
type Recorder struct {
	riskCalcCounter    *prometheus.CounterVec
	riskCalcLatency    *prometheus.HistogramVec
	varGauge           *prometheus.GaugeVec
	riskScoreGauge     *prometheus.GaugeVec
	activePositions    prometheus.Gauge
	liquidationCounter *prometheus.CounterVec
	rejectionCounter   *prometheus.CounterVec
	marginCallCounter  prometheus.Counter
	priceFailures      prometheus.Counter

	apiRequestCounter   *prometheus.CounterVec
	apiLatencyHistogram *prometheus.HistogramVec
}

// NewRecorder creates the metric set on the default Prometheus registry.
func NewRecorder() *Recorder {
	return NewRecorderWith(prometheus.DefaultRegisterer)
}

// NewRecorderWith creates the metric set on the given registerer. Tests use
// this with a private registry so instances never collide.
func NewRecorderWith(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		riskCalcCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskengine_computations_total",
				Help: "The total number of position risk computations",
			},
			[]string{"operation", "outcome"},
		),
		riskCalcLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "riskengine_computation_seconds",
				Help:    "Risk computation latency distribution",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
			},
			[]string{"operation"},
		),
		varGauge: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "riskengine_portfolio_var",
				Help: "Latest 1-day 95% portfolio VaR per owner, in currency units",
			},
			[]string{"owner"},
		),
		riskScoreGauge: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "riskengine_portfolio_score",
				Help: "Latest portfolio risk score per owner, 0-10000",
			},
			[]string{"owner"},
		),
		activePositions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "riskengine_active_positions",
				Help: "Number of registered active positions",
			},
		),
		liquidationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskengine_liquidations_total",
				Help: "Liquidations dispatched to the custody collaborator",
			},
			[]string{"reason"},
		),
		rejectionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskengine_admission_rejections_total",
				Help: "Position admissions rejected by limit checks",
			},
			[]string{"limit"},
		),
		marginCallCounter: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "riskengine_margin_calls_total",
				Help: "Margin calls raised by the decision engine",
			},
		),
		priceFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "riskengine_price_failures_total",
				Help: "Price feed lookups that failed or were stale",
			},
		),
		apiRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskengine_api_requests_total",
				Help: "The total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		apiLatencyHistogram: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "riskengine_api_latency_seconds",
				Help:    "API request latency distribution",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"method", "path"},
		),
	}
}

// RecordComputation records one risk computation and its latency.
func (r *Recorder) RecordComputation(operation string, err error, duration time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.riskCalcCounter.WithLabelValues(operation, outcome).Inc()
	r.riskCalcLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetPortfolio updates the per-owner gauges after a recompute.
func (r *Recorder) SetPortfolio(owner string, varValue float64, score int64) {
	r.varGauge.WithLabelValues(owner).Set(varValue)
	r.riskScoreGauge.WithLabelValues(owner).Set(float64(score))
}

// ClearPortfolio drops the per-owner gauges once the portfolio is empty.
func (r *Recorder) ClearPortfolio(owner string) {
	r.varGauge.DeleteLabelValues(owner)
	r.riskScoreGauge.DeleteLabelValues(owner)
}

// SetActivePositions updates the registry size gauge.
func (r *Recorder) SetActivePositions(n int) {
	r.activePositions.Set(float64(n))
}

// RecordLiquidation counts a dispatched liquidation.
func (r *Recorder) RecordLiquidation(reason string) {
	r.liquidationCounter.WithLabelValues(reason).Inc()
}

// RecordRejection counts a failed admission check by breached limit.
func (r *Recorder) RecordRejection(limit string) {
	r.rejectionCounter.WithLabelValues(limit).Inc()
}

// RecordMarginCall counts a raised margin call.
func (r *Recorder) RecordMarginCall() {
	r.marginCallCounter.Inc()
}

// RecordPriceFailure counts a failed or stale price lookup.
func (r *Recorder) RecordPriceFailure() {
	r.priceFailures.Inc()
}

// RecordAPIRequest records an API request with its status and latency.
func (r *Recorder) RecordAPIRequest(method, path string, status int, duration time.Duration) {
	r.apiRequestCounter.WithLabelValues(method, path, statusLabel(status)).Inc()
	r.apiLatencyHistogram.WithLabelValues(method, path).Observe(duration.Seconds())
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
