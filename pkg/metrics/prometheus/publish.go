package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ipcurator/curator/pkg/metrics"
	"github.com/ipcurator/curator/pkg/publish"
)

func init() {
	metrics.RegisterPublishMetricsConstructor(newPublishMetrics)
}

// publishMetrics is the Prometheus implementation of publish.Metrics.
type publishMetrics struct {
	publishDuration *prometheus.HistogramVec
	publishTotal    *prometheus.CounterVec
	bytesWritten    *prometheus.HistogramVec
	kernelSwaps     *prometheus.CounterVec
	kernelEntries   *prometheus.HistogramVec
}

// NewPublishMetrics creates a new Prometheus-backed publish.Metrics
// instance. Returns nil if metrics are not enabled (InitRegistry not
// called).
func NewPublishMetrics() publish.Metrics {
	return newPublishMetrics()
}

func newPublishMetrics() publish.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &publishMetrics{
		publishDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "curator_publish_duration_seconds",
				Help:    "Duration of one Publish call, including any kernel swap",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"name", "kind"},
		),
		publishTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "curator_publish_total",
				Help: "Total publish attempts by name, kind, and outcome",
			},
			[]string{"name", "kind", "status"}, // status: "ok", "error"
		),
		bytesWritten: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "curator_publish_bytes",
				Help: "Size in bytes of a published canonical snapshot",
				Buckets: []float64{
					1024, 16384, 131072, 1048576, 8388608, 67108864,
				},
			},
			[]string{"name", "kind"},
		),
		kernelSwaps: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "curator_kernel_swap_total",
				Help: "Total kernel-visible set swaps performed",
			},
			[]string{"name"},
		),
		kernelEntries: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "curator_kernel_swap_entries",
				Help:    "Number of entries restored into the swapped-in kernel set",
				Buckets: prometheus.ExponentialBuckets(16, 4, 10),
			},
			[]string{"name"},
		),
	}
}

func (m *publishMetrics) ObservePublish(name, kind string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.publishDuration.WithLabelValues(name, kind).Observe(duration.Seconds())
	m.publishTotal.WithLabelValues(name, kind, status).Inc()
}

func (m *publishMetrics) RecordBytes(name, kind string, bytes int) {
	if m == nil {
		return
	}
	m.bytesWritten.WithLabelValues(name, kind).Observe(float64(bytes))
}

func (m *publishMetrics) RecordKernelSwap(name string, entries int) {
	if m == nil {
		return
	}
	m.kernelSwaps.WithLabelValues(name).Inc()
	m.kernelEntries.WithLabelValues(name).Observe(float64(entries))
}
