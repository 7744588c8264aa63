package metrics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ipcurator/curator/pkg/metrics"
	_ "github.com/ipcurator/curator/pkg/metrics/prometheus"
)

func TestDisabledByDefault(t *testing.T) {
	assert.Nil(t, metrics.NewOrchestratorMetrics())
	assert.Nil(t, metrics.NewPublishMetrics())
}

func TestInitRegistryEnablesConstructors(t *testing.T) {
	metrics.InitRegistry()
	t.Cleanup(func() { metrics.InitRegistry() })

	assert.True(t, metrics.IsEnabled())
	assert.NotNil(t, metrics.NewOrchestratorMetrics())
	assert.NotNil(t, metrics.NewPublishMetrics())
	assert.NotNil(t, metrics.Handler())
}
