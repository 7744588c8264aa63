package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ipcurator/curator/pkg/fetch"
	"github.com/ipcurator/curator/pkg/metrics"
	"github.com/ipcurator/curator/pkg/orchestrator"
)

func init() {
	metrics.RegisterOrchestratorMetricsConstructor(newOrchestratorMetrics)
}

// orchestratorMetrics is the Prometheus implementation of
// orchestrator.Metrics.
type orchestratorMetrics struct {
	runDuration     prometheus.Histogram
	runFeedCount    prometheus.Gauge
	fetchDuration   *prometheus.HistogramVec
	fetchTotal      *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	feedState       *prometheus.CounterVec
	backoffFailures *prometheus.GaugeVec
	entryCount      *prometheus.GaugeVec
	uniqueIPCount   *prometheus.GaugeVec
	version         *prometheus.GaugeVec
}

// NewOrchestratorMetrics creates a new Prometheus-backed orchestrator.Metrics
// instance. Returns nil if metrics are not enabled (InitRegistry not called).
func NewOrchestratorMetrics() orchestrator.Metrics {
	return newOrchestratorMetrics()
}

func newOrchestratorMetrics() orchestrator.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &orchestratorMetrics{
		runDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "curator_run_duration_seconds",
			Help:    "Duration of a full orchestrator run",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		runFeedCount: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "curator_run_feed_count",
			Help: "Number of feeds walked in the most recent run",
		}),
		fetchDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "curator_fetch_duration_seconds",
				Help:    "Duration of a feed fetch attempt",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"feed", "outcome"},
		),
		fetchTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "curator_fetch_total",
				Help: "Total fetch attempts by feed, outcome, and error code",
			},
			[]string{"feed", "outcome", "error_code"},
		),
		processDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "curator_process_duration_seconds",
				Help:    "Duration of parse-and-canonicalize for one feed",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"feed"},
		),
		feedState: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "curator_feed_state_total",
				Help: "Terminal state transitions of the per-feed run walk",
			},
			[]string{"feed", "state"},
		),
		backoffFailures: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "curator_feed_consecutive_download_failures",
				Help: "Consecutive download failures driving scheduler back-off",
			},
			[]string{"feed"},
		),
		entryCount: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "curator_feed_entry_count",
				Help: "Entry count of the last published canonical set",
			},
			[]string{"feed"},
		),
		uniqueIPCount: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "curator_feed_unique_ip_count",
				Help: "Unique IP count of the last published canonical set",
			},
			[]string{"feed"},
		),
		version: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "curator_feed_version",
				Help: "Published version number of a feed",
			},
			[]string{"feed"},
		),
	}
}

func (m *orchestratorMetrics) ObserveRun(duration time.Duration, feedCount int) {
	if m == nil {
		return
	}
	m.runDuration.Observe(duration.Seconds())
	m.runFeedCount.Set(float64(feedCount))
}

func (m *orchestratorMetrics) ObserveFetch(feed string, outcome fetch.Outcome, code fetch.DownloadErrorCode, duration time.Duration) {
	if m == nil {
		return
	}
	m.fetchDuration.WithLabelValues(feed, outcome.String()).Observe(duration.Seconds())
	m.fetchTotal.WithLabelValues(feed, outcome.String(), string(code)).Inc()
}

func (m *orchestratorMetrics) ObserveProcess(feed string, duration time.Duration) {
	if m == nil {
		return
	}
	m.processDuration.WithLabelValues(feed).Observe(duration.Seconds())
}

func (m *orchestratorMetrics) RecordState(feed string, state orchestrator.FeedState) {
	if m == nil {
		return
	}
	m.feedState.WithLabelValues(feed, string(state)).Inc()
}

func (m *orchestratorMetrics) RecordBackoff(feed string, consecutiveFailures int) {
	if m == nil {
		return
	}
	m.backoffFailures.WithLabelValues(feed).Set(float64(consecutiveFailures))
}

func (m *orchestratorMetrics) SetEntryCount(feed string, entries int, uniqueIPs uint64) {
	if m == nil {
		return
	}
	m.entryCount.WithLabelValues(feed).Set(float64(entries))
	m.uniqueIPCount.WithLabelValues(feed).Set(float64(uniqueIPs))
}

func (m *orchestratorMetrics) SetVersion(feed string, version int) {
	if m == nil {
		return
	}
	m.version.WithLabelValues(feed).Set(float64(version))
}
