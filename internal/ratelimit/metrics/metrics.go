package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RateLimitChecksTotal     *prometheus.CounterVec
	RateLimitDenialsTotal    *prometheus.CounterVec
	RateLimitIncrementsTotal prometheus.Counter
	IncrementsSkippedTotal   *prometheus.CounterVec
	AccessChecksTotal        *prometheus.CounterVec
	FailOpenTotal            *prometheus.CounterVec
	ViolationsRecordedTotal  prometheus.Counter
	CheckDurationSeconds     prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		RateLimitChecksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "faregate_ratelimit_checks_total",
			Help: "Total number of rate limit checks by outcome",
		}, []string{"outcome"}),
		RateLimitDenialsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "faregate_ratelimit_denials_total",
			Help: "Total number of rate limit denials by rule name",
		}, []string{"rule"}),
		RateLimitIncrementsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "faregate_ratelimit_increments_total",
			Help: "Total number of counter increments applied",
		}),
		IncrementsSkippedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "faregate_ratelimit_increments_skipped_total",
			Help: "Total number of increments skipped by a rule's skip policy",
		}, []string{"reason"}),
		AccessChecksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "faregate_access_control_checks_total",
			Help: "Total number of access control checks by outcome",
		}, []string{"outcome"}),
		FailOpenTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "faregate_fail_open_total",
			Help: "Total number of request-path failures converted to allow",
		}, []string{"operation"}),
		ViolationsRecordedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "faregate_ratelimit_violations_recorded_total",
			Help: "Total number of rate limit violations recorded",
		}),
		CheckDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "faregate_ratelimit_check_duration_seconds",
			Help: "Duration of rate limit evaluations in seconds",
		}),
	}
}

func (m *Metrics) RecordCheck(outcome string) {
	m.RateLimitChecksTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordDenial(ruleName string) {
	m.RateLimitDenialsTotal.WithLabelValues(ruleName).Inc()
}

func (m *Metrics) RecordIncrement() {
	m.RateLimitIncrementsTotal.Inc()
}

func (m *Metrics) RecordIncrementSkipped(reason string) {
	m.IncrementsSkippedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordAccessCheck(outcome string) {
	m.AccessChecksTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordFailOpen(operation string) {
	m.FailOpenTotal.WithLabelValues(operation).Inc()
}

func (m *Metrics) RecordViolation() {
	m.ViolationsRecordedTotal.Inc()
}

func (m *Metrics) ObserveCheckDuration(seconds float64) {
	m.CheckDurationSeconds.Observe(seconds)
}
