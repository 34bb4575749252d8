// Package metrics provides Prometheus metrics for the forecasting engine.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// SimMetrics collects and exposes simulation-related Prometheus metrics.
type SimMetrics struct {
	registry *prometheus.Registry

	// Submission metrics
	SubmissionsTotal *prometheus.CounterVec
	MatchesResolved  *prometheus.CounterVec
	MatchesSkipped   *prometheus.CounterVec
	StaleWrites      *prometheus.CounterVec

	// Upstream fetch metrics
	FetchesTotal *prometheus.CounterVec
	FetchLatency *prometheus.HistogramVec
	CacheLookups *prometheus.CounterVec

	// Session metrics
	CurrentMatchday *prometheus.GaugeVec
	ActiveSessions  *prometheus.GaugeVec
	SeasonFinal     *prometheus.GaugeVec

	// Policy metrics
	PolicyRejections *prometheus.CounterVec

	// Outright simulation metrics
	OutrightRuns     *prometheus.CounterVec
	TitleProbability *prometheus.GaugeVec
}

// NewSimMetrics creates a new simulation metrics collector.
func NewSimMetrics() *SimMetrics {
	registry := prometheus.NewRegistry()

	sm := &SimMetrics{
		registry: registry,

		// Submission metrics
		SubmissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tablecast_submissions_total",
				Help: "Total number of matchday submissions",
			},
			[]string{"league", "status"},
		),
		MatchesResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tablecast_matches_resolved_total",
				Help: "Total number of match results folded into the table",
			},
			[]string{"league", "mode"},
		),
		MatchesSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tablecast_matches_skipped_total",
				Help: "Total number of matches skipped during accumulation",
			},
			[]string{"league", "reason"},
		),
		StaleWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tablecast_stale_writes_total",
				Help: "Fetch responses discarded because the session moved on",
			},
			[]string{"league"},
		),

		// Upstream fetch metrics
		FetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tablecast_fetches_total",
				Help: "Total number of upstream data fetches",
			},
			[]string{"endpoint", "outcome"},
		),
		FetchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tablecast_fetch_latency_seconds",
				Help:    "Upstream fetch latency in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
			[]string{"endpoint"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tablecast_cache_lookups_total",
				Help: "Fixture cache lookups by result",
			},
			[]string{"league", "result"},
		),

		// Session metrics
		CurrentMatchday: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tablecast_current_matchday",
				Help: "Matchday the session is currently presenting",
			},
			[]string{"league"},
		),
		ActiveSessions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tablecast_active_sessions",
				Help: "Number of live forecasting sessions",
			},
			[]string{},
		),
		SeasonFinal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tablecast_season_final",
				Help: "Whether the simulated season has ended (1=yes, 0=no)",
			},
			[]string{"league"},
		),

		// Policy metrics
		PolicyRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tablecast_policy_rejections_total",
				Help: "Submissions rejected by the validation policy",
			},
			[]string{"reason"},
		),

		// Outright simulation metrics
		OutrightRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tablecast_outright_runs_total",
				Help: "Monte Carlo outright simulations executed",
			},
			[]string{"league"},
		),
		TitleProbability: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tablecast_title_probability",
				Help: "Latest simulated title probability per team (0-1)",
			},
			[]string{"league", "team"},
		),
	}

	// Register all metrics
	sm.registerAll()

	return sm
}

func (sm *SimMetrics) registerAll() {
	sm.registry.MustRegister(
		sm.SubmissionsTotal,
		sm.MatchesResolved,
		sm.MatchesSkipped,
		sm.StaleWrites,
		sm.FetchesTotal,
		sm.FetchLatency,
		sm.CacheLookups,
		sm.CurrentMatchday,
		sm.ActiveSessions,
		sm.SeasonFinal,
		sm.PolicyRejections,
		sm.OutrightRuns,
		sm.TitleProbability,
	)
}

// Registry returns the prometheus registry.
func (sm *SimMetrics) Registry() *prometheus.Registry {
	return sm.registry
}

// --- Helper methods for recording metrics ---

// RecordSubmission records one matchday submission attempt.
func (sm *SimMetrics) RecordSubmission(league, status string) {
	sm.SubmissionsTotal.WithLabelValues(league, status).Inc()
}

// RecordResolved records match results folded into the table.
func (sm *SimMetrics) RecordResolved(league, mode string, n int) {
	if n > 0 {
		sm.MatchesResolved.WithLabelValues(league, mode).Add(float64(n))
	}
}

// RecordSkipped records matches dropped during accumulation.
func (sm *SimMetrics) RecordSkipped(league, reason string, n int) {
	if n > 0 {
		sm.MatchesSkipped.WithLabelValues(league, reason).Add(float64(n))
	}
}

// RecordStaleWrite records a discarded late fetch response.
func (sm *SimMetrics) RecordStaleWrite(league string) {
	sm.StaleWrites.WithLabelValues(league).Inc()
}

// RecordFetch records an upstream fetch.
func (sm *SimMetrics) RecordFetch(endpoint, outcome string, durationSec float64) {
	sm.FetchesTotal.WithLabelValues(endpoint, outcome).Inc()
	if durationSec > 0 {
		sm.FetchLatency.WithLabelValues(endpoint).Observe(durationSec)
	}
}

// RecordCacheLookup records a fixture cache lookup result.
func (sm *SimMetrics) RecordCacheLookup(league, result string) {
	sm.CacheLookups.WithLabelValues(league, result).Inc()
}

// UpdateSession updates the per-league session gauges.
func (sm *SimMetrics) UpdateSession(league string, matchday int, final bool) {
	sm.CurrentMatchday.WithLabelValues(league).Set(float64(matchday))
	if final {
		sm.SeasonFinal.WithLabelValues(league).Set(1)
	} else {
		sm.SeasonFinal.WithLabelValues(league).Set(0)
	}
}

// UpdateActiveSessions updates the live session count.
func (sm *SimMetrics) UpdateActiveSessions(count int) {
	sm.ActiveSessions.WithLabelValues().Set(float64(count))
}

// RecordPolicyRejection records a rejected submission.
func (sm *SimMetrics) RecordPolicyRejection(reason string) {
	sm.PolicyRejections.WithLabelValues(reason).Inc()
}

// RecordOutrightRun records one Monte Carlo simulation pass.
func (sm *SimMetrics) RecordOutrightRun(league string) {
	sm.OutrightRuns.WithLabelValues(league).Inc()
}

// UpdateTitleProbability publishes a team's simulated title probability.
func (sm *SimMetrics) UpdateTitleProbability(league, team string, p decimal.Decimal) {
	sm.TitleProbability.WithLabelValues(league, team).Set(DecimalToFloat64(p))
}

// --- Decimal helpers ---

// DecimalToFloat64 safely converts decimal.Decimal to float64 for metrics.
func DecimalToFloat64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// Global instance for convenience
var defaultMetrics *SimMetrics
var once sync.Once

// Default returns the default global metrics instance.
func Default() *SimMetrics {
	once.Do(func() {
		defaultMetrics = NewSimMetrics()
	})
	return defaultMetrics
}
