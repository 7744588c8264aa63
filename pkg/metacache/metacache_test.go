package metacache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "db"), filepath.Join(dir, "metacache.json"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutThenGetRoundTrips(t *testing.T) {
	s := openTestStore(t)
	st := SetState{
		Enabled:                true,
		LastSourceTimestamp:    time.Unix(1_700_000_000, 0),
		LastCheckedTimestamp:   time.Unix(1_700_000_100, 0),
		LastProcessedTimestamp: time.Unix(1_700_000_050, 0),
		Version:                3,
		EntryCount:             10,
		UniqueIPCount:          20,
		MinEntryCount:          5,
		MaxEntryCount:          10,
		MinUniqueIPCount:       10,
		MaxUniqueIPCount:       20,
	}

	require.NoError(t, s.Put(context.Background(), "demo", st))

	got, ok, err := s.Get("demo")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, got.Version)
	assert.Equal(t, uint64(20), got.UniqueIPCount)
}

func TestGetMissingFeedReturnsNotFound(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.Get("nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPutRejectsInvalidState(t *testing.T) {
	s := openTestStore(t)
	err := s.Put(context.Background(), "demo", SetState{ConsecutiveDownloadFailures: -1})
	assert.Error(t, err)
}

func TestAllReturnsEveryFeed(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Put(context.Background(), "alpha", SetState{Version: 1}))
	require.NoError(t, s.Put(context.Background(), "beta", SetState{Version: 2}))

	all, err := s.All()
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, 1, all["alpha"].Version)
	assert.Equal(t, 2, all["beta"].Version)
}

func TestPutWritesJSONExportWithOldSidecar(t *testing.T) {
	dir := t.TempDir()
	exportPath := filepath.Join(dir, "metacache.json")
	s, err := Open(filepath.Join(dir, "db"), exportPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Put(context.Background(), "demo", SetState{Version: 1}))
	first, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	assert.Contains(t, string(first), `"demo"`)

	require.NoError(t, s.Put(context.Background(), "demo", SetState{Version: 2}))
	_, err = os.Stat(exportPath + ".old")
	require.NoError(t, err)

	second, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	assert.Contains(t, string(second), `"version": 2`)
}
