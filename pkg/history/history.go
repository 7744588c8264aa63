// Package history implements the per-feed binary snapshot archive (C6):
// an append-only, time-indexed directory of canonical sets used to
// compose windowed unions and to feed the retention tracker.
package history

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ipcurator/curator/internal/logger"
	"github.com/ipcurator/curator/pkg/curatorerr"
	"github.com/ipcurator/curator/pkg/ipset"
	"github.com/ipcurator/curator/pkg/ipset/binary"
)

const dirMode = 0o700

const snapshotExt = ".set"

// Store is a filesystem-backed HistoryArchive rooted at baseDir, with one
// subdirectory per feed (baseDir/<feed>/<source-timestamp>.set).
type Store struct {
	baseDir string
}

// New returns a Store rooted at baseDir. baseDir is created lazily per
// feed by Keep, matching the teacher's lazy mkdir-on-write convention.
func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) feedDir(feed string) string {
	return filepath.Join(s.baseDir, feed)
}

func (s *Store) path(feed string, sourceTS int64) string {
	return filepath.Join(s.feedDir(feed), strconv.FormatInt(sourceTS, 10)+snapshotExt)
}

// Keep writes a new archive entry for set at sourceTS, unless an entry for
// that exact timestamp already exists (the feed's source did not actually
// advance).
func (s *Store) Keep(feed string, set *ipset.Set, sourceTS time.Time) error {
	dir := s.feedDir(feed)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return curatorerr.WrapFeed(curatorerr.ErrPublishFS, feed, "history: mkdir", err)
	}

	ts := sourceTS.Unix()
	path := s.path(feed, ts)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return curatorerr.WrapFeed(curatorerr.ErrPublishFS, feed, "history: stat", err)
	}

	if err := binary.WriteFile(path, set); err != nil {
		return curatorerr.WrapFeed(curatorerr.ErrPublishFS, feed, "history: write snapshot", err)
	}
	if err := os.Chtimes(path, sourceTS, sourceTS); err != nil {
		return curatorerr.WrapFeed(curatorerr.ErrPublishFS, feed, "history: set mtime", err)
	}
	return nil
}

// UnionSince returns the union of every archive entry newer than
// now-since. An empty or missing archive returns an empty set, not an
// error, so a freshly configured window composes cleanly on its first run.
func (s *Store) UnionSince(feed string, since time.Duration, now time.Time) (*ipset.Set, error) {
	cutoff := now.Add(-since)
	paths, err := s.entriesAfter(feed, cutoff)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return ipset.New(), nil
	}
	unioned, err := binary.UnionFiles(paths)
	if err != nil {
		return nil, curatorerr.WrapFeed(curatorerr.ErrPublishFS, feed, "history: union", err)
	}
	return unioned, nil
}

// Cleanup deletes archive entries older than the longest configured
// window for feed. maxWindow of zero is a no-op: a feed with no configured
// windows keeps its whole archive.
func (s *Store) Cleanup(ctx context.Context, feed string, maxWindow time.Duration, now time.Time) error {
	if maxWindow <= 0 {
		return nil
	}
	cutoff := now.Add(-maxWindow)

	entries, err := os.ReadDir(s.feedDir(feed))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return curatorerr.WrapFeed(curatorerr.ErrPublishFS, feed, "history: readdir", err)
	}

	removed := 0
	for _, e := range entries {
		ts, ok := timestampFromName(e.Name())
		if !ok {
			continue
		}
		if time.Unix(ts, 0).Before(cutoff) {
			if err := os.Remove(filepath.Join(s.feedDir(feed), e.Name())); err != nil && !os.IsNotExist(err) {
				return curatorerr.WrapFeed(curatorerr.ErrPublishFS, feed, "history: remove", err)
			}
			removed++
		}
	}
	if removed > 0 {
		logger.InfoCtx(ctx, "history: cleaned up stale snapshots", "feed", feed, "removed", removed)
	}
	return nil
}

func (s *Store) entriesAfter(feed string, cutoff time.Time) ([]string, error) {
	entries, err := os.ReadDir(s.feedDir(feed))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, curatorerr.WrapFeed(curatorerr.ErrPublishFS, feed, "history: readdir", err)
	}

	var out []string
	for _, e := range entries {
		ts, ok := timestampFromName(e.Name())
		if !ok {
			continue
		}
		if !time.Unix(ts, 0).Before(cutoff) {
			out = append(out, filepath.Join(s.feedDir(feed), e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func timestampFromName(name string) (int64, bool) {
	if !strings.HasSuffix(name, snapshotExt) {
		return 0, false
	}
	ts, err := strconv.ParseInt(strings.TrimSuffix(name, snapshotExt), 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}
