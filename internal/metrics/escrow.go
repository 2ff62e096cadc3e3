// Package metrics exposes Prometheus instrumentation for the trade lifecycle.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/efreitasn/tradeescrow/internal/domain"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// EscrowMetrics records lifecycle operations. A nil *EscrowMetrics is valid
// and records nothing.
type EscrowMetrics struct {
	operations    *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	matchFailures *prometheus.CounterVec
	duration      *prometheus.HistogramVec
}

// NewEscrowMetrics registers the lifecycle metrics on reg.
func NewEscrowMetrics(reg prometheus.Registerer) *EscrowMetrics {
	if reg == nil {
		return &EscrowMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_operations_total",
		Help: "Lifecycle operations by outcome.",
	}, []string{"operation", "outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_trade_transitions_total",
		Help: "Committed trade state transitions.",
	}, []string{"from", "to"})
	matchFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_match_failures_total",
		Help: "Settlement attempts rejected by the three-way match.",
	}, []string{"reason"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "escrow_operation_duration_seconds",
		Help:    "Duration of lifecycle operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	reg.MustRegister(operations, transitions, matchFailures, duration)
	return &EscrowMetrics{
		operations:    operations,
		transitions:   transitions,
		matchFailures: matchFailures,
		duration:      duration,
	}
}

// ObserveOperation records the outcome and duration of one operation. Match
// failures are additionally counted by reason.
func (m *EscrowMetrics) ObserveOperation(operation string, took time.Duration, err error) {
	if m == nil || m.operations == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.operations.WithLabelValues(normalizeLabel(operation), outcome).Inc()
	m.duration.WithLabelValues(normalizeLabel(operation)).Observe(took.Seconds())

	if reason := matchFailureReason(err); reason != "" {
		m.matchFailures.WithLabelValues(reason).Inc()
	}
}

// ObserveTransition counts a committed state change.
func (m *EscrowMetrics) ObserveTransition(from, to domain.TradeState) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(from.String(), to.String()).Inc()
}

func matchFailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrDescriptionMismatch):
		return "description"
	case errors.Is(err, domain.ErrQuantityVarianceTooHigh):
		return "quantity"
	case errors.Is(err, domain.ErrPriceVarianceTooHigh):
		return "price"
	}
	return ""
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
