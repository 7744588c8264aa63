package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFeedsYAML(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "feeds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoadValidFeeds(t *testing.T) {
	path := writeFeedsYAML(t, `
feeds:
  - name: demo
    source_url: https://example.com/demo.txt
    fetcher_kind: http
    update_period_minutes: 60
    history_windows_minutes: [1440, 10080]
    representation: both
    parser_chain:
      - name: strip-hash-comments
      - name: trim-whitespace
`)
	reg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 1, reg.Len())

	fd, ok := reg.Get("demo")
	require.True(t, ok)
	assert.Equal(t, "ipv4", fd.AddressFamily)
	assert.Equal(t, 60*time.Minute, fd.Period())
	assert.Equal(t, []time.Duration{1440 * time.Minute, 10080 * time.Minute}, fd.Windows())
	assert.NotNil(t, fd.Chain())
}

func TestLoadRejectsUnknownTransformer(t *testing.T) {
	path := writeFeedsYAML(t, `
feeds:
  - name: demo
    source_url: https://example.com/demo.txt
    fetcher_kind: http
    update_period_minutes: 60
    representation: ip
    parser_chain:
      - name: not-a-real-transformer
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsDuplicateNames(t *testing.T) {
	path := writeFeedsYAML(t, `
feeds:
  - name: demo
    source_url: https://example.com/a.txt
    fetcher_kind: http
    update_period_minutes: 60
    representation: ip
  - name: demo
    source_url: https://example.com/b.txt
    fetcher_kind: http
    update_period_minutes: 60
    representation: ip
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingSourceForHTTP(t *testing.T) {
	path := writeFeedsYAML(t, `
feeds:
  - name: demo
    fetcher_kind: http
    update_period_minutes: 60
    representation: ip
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsCompositeWithoutSibling(t *testing.T) {
	path := writeFeedsYAML(t, `
feeds:
  - name: demo
    fetcher_kind: composite
    update_period_minutes: 60
    representation: ip
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestFeedsSortedByName(t *testing.T) {
	path := writeFeedsYAML(t, `
feeds:
  - name: zebra
    source_url: https://example.com/z.txt
    fetcher_kind: http
    update_period_minutes: 60
    representation: ip
  - name: alpha
    source_url: https://example.com/a.txt
    fetcher_kind: http
    update_period_minutes: 60
    representation: ip
`)
	reg, err := Load(path)
	require.NoError(t, err)
	feeds := reg.Feeds()
	require.Len(t, feeds, 2)
	assert.Equal(t, "alpha", feeds[0].Name)
	assert.Equal(t, "zebra", feeds[1].Name)
}
