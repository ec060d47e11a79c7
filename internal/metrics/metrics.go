// Package metrics exposes Prometheus collectors for the discovery service.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchRequestsTotal       *prometheus.CounterVec
	fetchBytesTotal          *prometheus.CounterVec
	candidatesTotal          *prometheus.CounterVec
	upsertOutcomesTotal      *prometheus.CounterVec
	runsTotal                *prometheus.CounterVec
	runDurationSeconds       prometheus.Histogram
	sourceDurationSeconds    *prometheus.HistogramVec
	rateLimitDelaySeconds    *prometheus.HistogramVec
	matchScoreDistribution   prometheus.Histogram
	activeSourcesGauge       prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grants_fetch_requests_total",
				Help: "Total fetch attempts, labeled by domain and outcome.",
			},
			[]string{"domain", "outcome"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grants_fetch_bytes_total",
				Help: "Total bytes fetched, labeled by domain.",
			},
			[]string{"domain"},
		)

		candidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grants_candidates_total",
				Help: "Raw candidates produced, labeled by source and disposition.",
			},
			[]string{"source", "disposition"},
		)

		upsertOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grants_upsert_outcomes_total",
				Help: "Dedup resolver outcomes, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grants_collection_runs_total",
				Help: "Collection runs finished, labeled by status.",
			},
			[]string{"status"},
		)

		runDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "grants_run_duration_seconds",
				Help:    "Wall-clock duration of collection runs.",
				Buckets: []float64{1, 5, 15, 60, 120, 300, 600},
			},
		)

		sourceDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "grants_source_duration_seconds",
				Help:    "Wall-clock duration of one source within a run.",
				Buckets: []float64{1, 5, 15, 60, 120, 300},
			},
			[]string{"source"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "grants_rate_limit_delay_seconds",
				Help:    "Histogram of politeness wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		matchScoreDistribution = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "grants_match_score",
				Help:    "Distribution of computed match scores.",
				Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
			},
		)

		activeSourcesGauge = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "grants_active_sources",
				Help: "Number of source adapters currently executing.",
			},
		)
	})
}

// SanitizeDomain extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeDomain(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one fetch attempt.
func ObserveFetch(rawURL string, outcome string, bytesFetched int) {
	if fetchRequestsTotal == nil {
		return
	}
	domain := SanitizeDomain(rawURL)
	fetchRequestsTotal.WithLabelValues(domain, outcome).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(domain).Add(float64(bytesFetched))
	}
}

// ObserveCandidate records a produced, rejected or skipped candidate.
func ObserveCandidate(source string, disposition string) {
	if candidatesTotal == nil {
		return
	}
	candidatesTotal.WithLabelValues(source, disposition).Inc()
}

// ObserveUpsert records a dedup resolver outcome.
func ObserveUpsert(source string, outcome string) {
	if upsertOutcomesTotal == nil {
		return
	}
	upsertOutcomesTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveRun records a finished collection run.
func ObserveRun(status string, duration time.Duration) {
	if runsTotal == nil {
		return
	}
	runsTotal.WithLabelValues(status).Inc()
	runDurationSeconds.Observe(duration.Seconds())
}

// ObserveSourceDuration records how long one source took within a run.
func ObserveSourceDuration(source string, duration time.Duration) {
	if sourceDurationSeconds == nil {
		return
	}
	sourceDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records a politeness wait.
func ObserveRateLimitDelay(rawURL string, duration time.Duration) {
	if rateLimitDelaySeconds == nil {
		return
	}
	rateLimitDelaySeconds.WithLabelValues(SanitizeDomain(rawURL)).Observe(duration.Seconds())
}

// ObserveMatchScore records one computed match score.
func ObserveMatchScore(score float64) {
	if matchScoreDistribution == nil {
		return
	}
	matchScoreDistribution.Observe(score)
}

// SetActiveSources updates the active source gauge.
func SetActiveSources(n int) {
	if activeSourcesGauge == nil {
		return
	}
	activeSourcesGauge.Set(float64(n))
}
