package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipcurator/curator/pkg/ipset"
	"github.com/ipcurator/curator/pkg/ipset/binary"
)

func TestKeepWritesSnapshotAtSourceTimestamp(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	ts := time.Unix(1_700_000_000, 0)
	set := ipset.Parse([]string{"10.0.0.1", "10.0.0.2"})

	require.NoError(t, s.Keep("demo", set, ts))

	path := filepath.Join(dir, "demo", "1700000000.set")
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, ts.Unix(), info.ModTime().Unix())
}

func TestKeepIsIdempotentForSameTimestamp(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	ts := time.Unix(1_700_000_000, 0)

	require.NoError(t, s.Keep("demo", ipset.Parse([]string{"10.0.0.1"}), ts))
	require.NoError(t, s.Keep("demo", ipset.Parse([]string{"10.0.0.1", "10.0.0.2"}), ts))

	got, err := binary.ReadFile(filepath.Join(dir, "demo", "1700000000.set"))
	require.NoError(t, err)
	entries, _ := got.Count()
	assert.Equal(t, 1, entries, "second Keep at the same timestamp must not overwrite")
}

func TestUnionSinceCombinesRecentSnapshots(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	now := time.Unix(1_700_100_000, 0)

	require.NoError(t, s.Keep("demo", ipset.Parse([]string{"10.0.0.1"}), now.Add(-30*time.Minute)))
	require.NoError(t, s.Keep("demo", ipset.Parse([]string{"10.0.0.2"}), now.Add(-2*time.Hour)))

	union, err := s.UnionSince("demo", time.Hour, now)
	require.NoError(t, err)
	assert.True(t, union.Contains(mustAddr(t, "10.0.0.1")))
	assert.False(t, union.Contains(mustAddr(t, "10.0.0.2")))
}

func TestUnionSinceOnEmptyArchiveReturnsEmptySet(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	union, err := s.UnionSince("never-seen", time.Hour, time.Now())
	require.NoError(t, err)
	assert.True(t, union.Empty())
}

func TestCleanupRemovesOlderThanMaxWindow(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	now := time.Unix(1_700_100_000, 0)

	require.NoError(t, s.Keep("demo", ipset.Parse([]string{"10.0.0.1"}), now.Add(-30*time.Minute)))
	require.NoError(t, s.Keep("demo", ipset.Parse([]string{"10.0.0.2"}), now.Add(-48*time.Hour)))

	require.NoError(t, s.Cleanup(context.Background(), "demo", 24*time.Hour, now))

	entries, err := os.ReadDir(filepath.Join(dir, "demo"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCleanupZeroWindowIsNoop(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	now := time.Unix(1_700_100_000, 0)
	require.NoError(t, s.Keep("demo", ipset.Parse([]string{"10.0.0.1"}), now.Add(-48*time.Hour)))

	require.NoError(t, s.Cleanup(context.Background(), "demo", 0, now))

	entries, err := os.ReadDir(filepath.Join(dir, "demo"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func mustAddr(t *testing.T, s string) uint32 {
	t.Helper()
	a, err := ipset.ParseAddr(s)
	require.NoError(t, err)
	return a
}
