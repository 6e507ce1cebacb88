package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics captures Prometheus collectors for the settlement engine:
// quote attempts, settlement pipeline outcomes and status-watcher polls.
type EngineMetrics struct {
	quoteAttempts *prometheus.CounterVec
	quoteOutcomes *prometheus.CounterVec
	settlements   *prometheus.CounterVec
	settleLatency *prometheus.HistogramVec
	watcherPolls  *prometheus.CounterVec
}

var (
	engineMetricsOnce sync.Once
	engineRegistry    *EngineMetrics
)

// Engine returns the lazily-initialised engine metrics registry.
func Engine() *EngineMetrics {
	engineMetricsOnce.Do(func() {
		engineRegistry = &EngineMetrics{
			quoteAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "loanrail",
				Subsystem: "quote",
				Name:      "attempts_total",
				Help:      "Estimate attempts segmented by destination network.",
			}, []string{"network"}),
			quoteOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "loanrail",
				Subsystem: "quote",
				Name:      "outcomes_total",
				Help:      "Estimate outcomes segmented by result (success, soft_miss, hard_error, rate_limited, no_route).",
			}, []string{"outcome"}),
			settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "loanrail",
				Subsystem: "settle",
				Name:      "pipelines_total",
				Help:      "Settlement pipeline runs segmented by kind and outcome.",
			}, []string{"kind", "outcome"}),
			settleLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "loanrail",
				Subsystem: "settle",
				Name:      "pipeline_duration_seconds",
				Help:      "Latency distribution of settlement pipeline runs.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"kind"}),
			watcherPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "loanrail",
				Subsystem: "watch",
				Name:      "polls_total",
				Help:      "Status watcher polls segmented by outcome.",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(
			engineRegistry.quoteAttempts,
			engineRegistry.quoteOutcomes,
			engineRegistry.settlements,
			engineRegistry.settleLatency,
			engineRegistry.watcherPolls,
		)
	})
	return engineRegistry
}

// RecordQuoteAttempt counts one estimate attempt against a candidate network.
func (m *EngineMetrics) RecordQuoteAttempt(network string) {
	if m == nil {
		return
	}
	if network == "" {
		network = "unknown"
	}
	m.quoteAttempts.WithLabelValues(network).Inc()
}

// RecordQuoteOutcome counts the terminal outcome of one estimate call.
func (m *EngineMetrics) RecordQuoteOutcome(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.quoteOutcomes.WithLabelValues(outcome).Inc()
}

// RecordSettlement records the outcome and duration of one pipeline run.
func (m *EngineMetrics) RecordSettlement(kind, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.settlements.WithLabelValues(kind, outcome).Inc()
	m.settleLatency.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordWatcherPoll counts one status poll. Outcomes are stable strings such
// as "ok", "error", "terminal".
func (m *EngineMetrics) RecordWatcherPoll(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.watcherPolls.WithLabelValues(outcome).Inc()
}
