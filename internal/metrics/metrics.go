// Package metrics exposes Prometheus metrics for the turn orchestrator.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the orchestrator's Prometheus collectors.
type Metrics struct {
	LaunchesTotal  *prometheus.CounterVec
	LaunchDuration *prometheus.HistogramVec

	CallbacksTotal *prometheus.CounterVec
	ChainsTotal    prometheus.Counter
	ChainFallbacks *prometheus.CounterVec

	KillFailuresTotal prometheus.Counter
	VotesTotal        *prometheus.CounterVec
	CommentsTotal     prometheus.Counter
}

// NewMetrics creates and registers the metrics once per process.
//
// Metrics:
//   - toron_launches_total{mode,result} - agent launches
//   - toron_launch_duration_seconds{provider} - time spent starting an agent
//   - toron_callbacks_total{status,outcome} - agent completion callbacks
//   - toron_chains_total - ai-vs-ai turns handed to the other side
//   - toron_chain_fallbacks_total{reason} - chaining attempts that fell back to completion
//   - toron_kill_failures_total - best-effort sandbox kills that failed
//   - toron_votes_total{side} - audience votes
//   - toron_comments_total - audience comments
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			LaunchesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "toron_launches_total",
					Help: "Total number of agent launches",
				},
				[]string{"mode", "result"}, // result: "ok" or "error"
			),

			LaunchDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "toron_launch_duration_seconds",
					Help:    "Duration of agent launches in seconds",
					Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
				},
				[]string{"provider"},
			),

			CallbacksTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "toron_callbacks_total",
					Help: "Total number of agent completion callbacks",
				},
				[]string{"status", "outcome"}, // outcome: "completed", "chained", "ignored"
			),

			ChainsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "toron_chains_total",
					Help: "Total number of ai-vs-ai turns chained to the next side",
				},
			),

			ChainFallbacks: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "toron_chain_fallbacks_total",
					Help: "Total number of chaining attempts that fell back to normal completion",
				},
				[]string{"reason"},
			),

			KillFailuresTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "toron_kill_failures_total",
					Help: "Total number of failed best-effort sandbox kills",
				},
			),

			VotesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "toron_votes_total",
					Help: "Total number of audience votes",
				},
				[]string{"side"},
			),

			CommentsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "toron_comments_total",
					Help: "Total number of audience comments",
				},
			),
		}
	})

	return globalMetrics
}

// RecordLaunch records one launch attempt.
func (m *Metrics) RecordLaunch(mode, provider string, durationSeconds float64, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.LaunchesTotal.WithLabelValues(mode, result).Inc()
	m.LaunchDuration.WithLabelValues(provider).Observe(durationSeconds)
}

// RecordCallback records a completion callback and what came of it.
func (m *Metrics) RecordCallback(status, outcome string) {
	m.CallbacksTotal.WithLabelValues(status, outcome).Inc()
}

// RecordChain records a successful hand-off.
func (m *Metrics) RecordChain() {
	m.ChainsTotal.Inc()
}

// RecordChainFallback records why chaining did not happen.
func (m *Metrics) RecordChainFallback(reason string) {
	m.ChainFallbacks.WithLabelValues(reason).Inc()
}

// RecordKillFailure records a swallowed kill error.
func (m *Metrics) RecordKillFailure() {
	m.KillFailuresTotal.Inc()
}

// RecordVote records an audience vote.
func (m *Metrics) RecordVote(side string) {
	m.VotesTotal.WithLabelValues(side).Inc()
}

// RecordComment records an audience comment.
func (m *Metrics) RecordComment() {
	m.CommentsTotal.Inc()
}
