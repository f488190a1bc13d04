package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ignitex"

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticks            *prometheus.CounterVec
	ticksDropped     *prometheus.CounterVec
	lastPrice        *prometheus.GaugeVec
	strategyErrors   *prometheus.CounterVec
	strategyDisabled *prometheus.GaugeVec
	thresholdChecks  *prometheus.CounterVec
	gateDecisions    *prometheus.CounterVec
	outcomes         *prometheus.CounterVec
	deliveries       *prometheus.CounterVec
	quotaUsed        *prometheus.GaugeVec
	eventsDropped    *prometheus.CounterVec
	latency          *prometheus.HistogramVec
}

// NewRegistry returns a private registry carrying the Go runtime and process
// collectors. Every component of one process registers on the same instance.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ticks: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ticks_ingested_total",
				Help:      "Ticks accepted into market state",
			},
			[]string{"source"},
		),
		ticksDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ticks_dropped_total",
				Help:      "Ticks rejected before reaching market state",
			},
			[]string{"reason"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_price",
				Help:      "Latest known price for a symbol",
			},
			[]string{"symbol"},
		),
		strategyErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "strategy_errors_total",
				Help:      "Strategy evaluation errors and recovered panics",
			},
			[]string{"strategy"},
		),
		strategyDisabled: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "strategy_disabled",
				Help:      "1 when the strategy is excluded from ensemble cycles",
			},
			[]string{"strategy"},
		),
		thresholdChecks: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "threshold_checks_total",
				Help:      "Adaptive threshold prefilter results",
			},
			[]string{"result"},
		),
		gateDecisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gate_decisions_total",
				Help:      "Quality gate decisions by reason",
			},
			[]string{"decision"},
		),
		outcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "signal_outcomes_total",
				Help:      "Terminal signal outcomes",
			},
			[]string{"result"},
		),
		deliveries: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deliveries_total",
				Help:      "Signal deliveries per tier and mode",
			},
			[]string{"tier", "mode"},
		),
		quotaUsed: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "quota_used",
				Help:      "Full-detail deliveries used in the current quota window",
			},
			[]string{"tier"},
		),
		eventsDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dropped_total",
				Help:      "Notification events dropped on full subscriber buffers",
			},
			[]string{"kind"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of pipeline operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordTick(source string) {
	r.ticks.WithLabelValues(source).Inc()
}

func (r *Recorder) RecordTickDropped(reason string) {
	r.ticksDropped.WithLabelValues(reason).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

func (r *Recorder) RecordStrategyError(strategyID string) {
	r.strategyErrors.WithLabelValues(strategyID).Inc()
}

func (r *Recorder) RecordStrategyDisabled(strategyID string, disabled bool) {
	v := 0.0
	if disabled {
		v = 1
	}
	r.strategyDisabled.WithLabelValues(strategyID).Set(v)
}

func (r *Recorder) RecordThreshold(passed bool) {
	result := "skipped"
	if passed {
		result = "passed"
	}
	r.thresholdChecks.WithLabelValues(result).Inc()
}

// RecordGateDecision takes "approved" or the rejection reason.
func (r *Recorder) RecordGateDecision(decision string) {
	r.gateDecisions.WithLabelValues(decision).Inc()
}

func (r *Recorder) RecordOutcome(result string) {
	r.outcomes.WithLabelValues(result).Inc()
}

func (r *Recorder) RecordDelivery(tier, mode string) {
	r.deliveries.WithLabelValues(tier, mode).Inc()
}

func (r *Recorder) RecordQuotaUsed(tier string, used int) {
	r.quotaUsed.WithLabelValues(tier).Set(float64(used))
}

func (r *Recorder) RecordEventDropped(kind string) {
	r.eventsDropped.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
