package cmdutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipcurator/curator/pkg/config"
	"github.com/ipcurator/curator/pkg/fetch"
)

func writeFeedsYAML(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "feeds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
feeds:
  - name: demo
    source_url: https://example.com/demo.txt
    fetcher_kind: http
    update_period_minutes: 60
    representation: ip
    parser_chain:
      - name: strict-ipv4-filter
`), 0o644))
	return path
}

func TestBuildOrchestratorWiresEveryCollaborator(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.BaseDir = base
	cfg.FeedsFile = writeFeedsYAML(t, base)
	config.ApplyDerivedDefaults(cfg)

	orch, closeStores, err := BuildOrchestrator(cfg)
	require.NoError(t, err)
	defer closeStores()

	assert.Equal(t, 1, orch.Registry.Len())
	assert.NotNil(t, orch.Metacache)
	assert.NotNil(t, orch.History)
	assert.NotNil(t, orch.Retention)
	assert.NotNil(t, orch.Feed)
	assert.NotNil(t, orch.HTTPFetcher)
	assert.NotNil(t, orch.LocalFetcher)
	assert.NotNil(t, orch.Distributor)

	httpFetcher, ok := orch.HTTPFetcher.(*fetch.HTTPFetcher)
	require.True(t, ok)
	assert.Equal(t, int64(256*1024*1024), httpFetcher.MaxBodyBytes)
}

func TestBuildOrchestratorRejectsMissingFeedsFile(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.BaseDir = base
	cfg.FeedsFile = filepath.Join(base, "missing.yaml")
	config.ApplyDerivedDefaults(cfg)

	_, _, err := BuildOrchestrator(cfg)
	assert.Error(t, err)
}
