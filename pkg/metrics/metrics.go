// Package metrics is the nil-safe front door to the engine's Prometheus
// instrumentation. Consuming packages (pkg/orchestrator, pkg/publish) each
// declare their own small Metrics interface; this package only decides
// whether metrics are enabled at all and hands back the concrete
// implementation registered by pkg/metrics/prometheus.
//
// The indirection mirrors the teacher's pkg/metrics/pkg/metrics/prometheus
// split: pkg/metrics/prometheus imports both this package and the
// consuming packages' interfaces, then registers its constructors here via
// an init-time Register*Constructor call. That keeps pkg/orchestrator and
// pkg/publish free of any prometheus import.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ipcurator/curator/pkg/orchestrator"
	"github.com/ipcurator/curator/pkg/publish"
)

var (
	mu       sync.Mutex
	enabled  bool
	registry *prometheus.Registry
)

// InitRegistry enables metrics collection and creates the Prometheus
// registry that all New*Metrics constructors register their collectors
// into. Calling it more than once replaces the registry
// (intended for tests, not production callers).
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	registry = prometheus.NewRegistry()
	enabled = true
	return registry
}

// IsEnabled reports whether InitRegistry has been called. New*Metrics
// constructors return nil when it hasn't, so callers get zero-overhead,
// nil-safe metrics objects by default.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// GetRegistry returns the registry created by InitRegistry. Callers must
// not call it before InitRegistry; it is only reached from New*Metrics
// constructors, which already gate on IsEnabled.
func GetRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	return registry
}

// Handler returns the HTTP handler serving the registry in the Prometheus
// exposition format, for wiring into a *http.ServeMux at /metrics.
func Handler() http.Handler {
	reg := GetRegistry()
	if reg == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// newOrchestratorMetrics is implemented in pkg/metrics/prometheus/orchestrator.go.
var newOrchestratorMetrics func() orchestrator.Metrics

// RegisterOrchestratorMetricsConstructor is called by
// pkg/metrics/prometheus/orchestrator.go's init to wire its constructor in
// here without this package importing pkg/metrics/prometheus.
func RegisterOrchestratorMetricsConstructor(constructor func() orchestrator.Metrics) {
	newOrchestratorMetrics = constructor
}

// NewOrchestratorMetrics returns the Prometheus-backed orchestrator.Metrics
// implementation, or nil if metrics are disabled.
func NewOrchestratorMetrics() orchestrator.Metrics {
	if !IsEnabled() || newOrchestratorMetrics == nil {
		return nil
	}
	return newOrchestratorMetrics()
}

// newPublishMetrics is implemented in pkg/metrics/prometheus/publish.go.
var newPublishMetrics func() publish.Metrics

// RegisterPublishMetricsConstructor is called by
// pkg/metrics/prometheus/publish.go's init.
func RegisterPublishMetricsConstructor(constructor func() publish.Metrics) {
	newPublishMetrics = constructor
}

// NewPublishMetrics returns the Prometheus-backed publish.Metrics
// implementation, or nil if metrics are disabled.
func NewPublishMetrics() publish.Metrics {
	if !IsEnabled() || newPublishMetrics == nil {
		return nil
	}
	return newPublishMetrics()
}
