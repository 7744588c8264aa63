// Package retention implements the age-distribution tracker (C7): on each
// fresh snapshot it diffs against the last one it saw, retires any
// "new/<ts>" cohort whose members have fully disappeared, and rebuilds
// the histogram of how long currently-present IPs have survived.
package retention

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/ipcurator/curator/internal/logger"
	"github.com/ipcurator/curator/pkg/curatorerr"
	"github.com/ipcurator/curator/pkg/ipset"
	"github.com/ipcurator/curator/pkg/ipset/binary"
)

const dirMode = 0o700

// Store persists retention state under baseDir/<feed>/, matching the
// lib/<name>/{latest,new/<ts>,changesets.csv,retention.csv,histogram,
// metadata} layout.
type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) feedDir(feed string) string { return filepath.Join(s.baseDir, feed) }
func (s *Store) latestPath(feed string) string {
	return filepath.Join(s.feedDir(feed), "latest")
}
func (s *Store) newDir(feed string) string { return filepath.Join(s.feedDir(feed), "new") }
func (s *Store) metadataPath(feed string) string {
	return filepath.Join(s.feedDir(feed), "metadata")
}
func (s *Store) histogramPath(feed string) string {
	return filepath.Join(s.feedDir(feed), "histogram")
}
func (s *Store) changesetsPath(feed string) string {
	return filepath.Join(s.feedDir(feed), "changesets.csv")
}
func (s *Store) retentionCSVPath(feed string) string {
	return filepath.Join(s.feedDir(feed), "retention.csv")
}

// metadata is the persisted `started`/`incomplete` pair.
type metadata struct {
	Started    int64 `json:"started"`
	HasStarted bool  `json:"has_started"`
	Incomplete bool  `json:"incomplete"`
}

// histogramDoc is the persisted past/current age-in-hours histograms.
type histogramDoc struct {
	Past    map[int]uint64 `json:"past"`
	Current map[int]uint64 `json:"current"`
}

// Snapshot summarizes the histogram state after an Update, for callers
// that surface it (dashboard rendering, `curator status`).
type Snapshot struct {
	Started    time.Time
	Incomplete bool
	Past       map[int]uint64
	Current    map[int]uint64
}

// Update runs the §4.7 algorithm for feed against a fresh canonical set S
// observed at timestamp t. Returns the persisted Snapshot; on a stale or
// unchanged S (t not newer than latest), it is a no-op and returns the
// previously persisted state.
func (s *Store) Update(ctx context.Context, feed string, set *ipset.Set, t time.Time) (Snapshot, error) {
	if err := os.MkdirAll(s.newDir(feed), dirMode); err != nil {
		return Snapshot{}, curatorerr.WrapFeed(curatorerr.ErrPublishFS, feed, "retention: mkdir", err)
	}

	meta, err := s.loadMetadata(feed)
	if err != nil {
		return Snapshot{}, err
	}
	hist, err := s.loadHistogram(feed)
	if err != nil {
		return Snapshot{}, err
	}

	latest, hadLatest, err := s.loadLatest(feed)
	if err != nil {
		return Snapshot{}, err
	}
	latestTS, err := s.latestTimestamp(feed)
	if err != nil {
		return Snapshot{}, err
	}

	if hadLatest && !t.After(latestTS) {
		return snapshotFromState(meta, hist), nil
	}

	if !meta.HasStarted {
		meta.HasStarted = true
		meta.Started = t.Unix()
	}

	if hadLatest {
		added := ipset.Difference(set, latest)
		removedCount := countUnique(ipset.Difference(latest, set))
		if !added.Empty() {
			if err := binary.WriteFile(s.cohortPath(feed, t.Unix()), added); err != nil {
				return Snapshot{}, curatorerr.WrapFeed(curatorerr.ErrPublishFS, feed, "retention: write cohort", err)
			}
			if err := os.Chtimes(s.cohortPath(feed, t.Unix()), t, t); err != nil {
				return Snapshot{}, curatorerr.WrapFeed(curatorerr.ErrPublishFS, feed, "retention: set cohort mtime", err)
			}
		}
		if err := s.appendChangeset(feed, t.Unix(), countUnique(added), removedCount); err != nil {
			return Snapshot{}, err
		}
	} else {
		if !set.Empty() {
			if err := binary.WriteFile(s.cohortPath(feed, t.Unix()), set); err != nil {
				return Snapshot{}, curatorerr.WrapFeed(curatorerr.ErrPublishFS, feed, "retention: write cohort", err)
			}
			if err := os.Chtimes(s.cohortPath(feed, t.Unix()), t, t); err != nil {
				return Snapshot{}, curatorerr.WrapFeed(curatorerr.ErrPublishFS, feed, "retention: set cohort mtime", err)
			}
		}
		if err := s.appendChangeset(feed, t.Unix(), countUnique(set), 0); err != nil {
			return Snapshot{}, err
		}
	}

	cohorts, err := s.listCohorts(feed)
	if err != nil {
		return Snapshot{}, err
	}

	newPast := map[int]uint64{}
	for k, v := range hist.Past {
		newPast[k] = v
	}

	for _, x := range cohorts {
		if x == t.Unix() {
			continue
		}
		cohortSet, err := binary.ReadFile(s.cohortPath(feed, x))
		if err != nil {
			return Snapshot{}, curatorerr.WrapFeed(curatorerr.ErrPublishFS, feed, "retention: read cohort", err)
		}
		still := ipset.Intersection(cohortSet, set)
		removed := ipset.Difference(cohortSet, still)

		if !removed.Empty() {
			hours := int(math.Round(float64(t.Unix()-x) / 3600))
			if x > meta.Started {
				newPast[hours] += countUnique(removed)
			}
			if err := s.appendRetentionRow(feed, t.Unix(), x, hours, countUnique(removed)); err != nil {
				return Snapshot{}, err
			}
		}

		if still.Empty() {
			if err := os.Remove(s.cohortPath(feed, x)); err != nil && !os.IsNotExist(err) {
				return Snapshot{}, curatorerr.WrapFeed(curatorerr.ErrPublishFS, feed, "retention: remove cohort", err)
			}
		} else {
			if err := binary.WriteFile(s.cohortPath(feed, x), still); err != nil {
				return Snapshot{}, curatorerr.WrapFeed(curatorerr.ErrPublishFS, feed, "retention: rewrite cohort", err)
			}
			xt := time.Unix(x, 0)
			if err := os.Chtimes(s.cohortPath(feed, x), xt, xt); err != nil {
				return Snapshot{}, curatorerr.WrapFeed(curatorerr.ErrPublishFS, feed, "retention: set cohort mtime", err)
			}
		}
	}

	if err := binary.WriteFile(s.latestPath(feed), set); err != nil {
		return Snapshot{}, curatorerr.WrapFeed(curatorerr.ErrPublishFS, feed, "retention: write latest", err)
	}
	if err := os.Chtimes(s.latestPath(feed), t, t); err != nil {
		return Snapshot{}, curatorerr.WrapFeed(curatorerr.ErrPublishFS, feed, "retention: set latest mtime", err)
	}

	survivors, err := s.listCohorts(feed)
	if err != nil {
		return Snapshot{}, err
	}
	newCurrent := map[int]uint64{}
	incomplete := false
	for _, x := range survivors {
		cohortSet, err := binary.ReadFile(s.cohortPath(feed, x))
		if err != nil {
			return Snapshot{}, curatorerr.WrapFeed(curatorerr.ErrPublishFS, feed, "retention: read cohort", err)
		}
		hours := int(math.Round(float64(t.Unix()-x) / 3600))
		newCurrent[hours] += countUnique(cohortSet)
		if x <= meta.Started {
			incomplete = true
		}
	}
	meta.Incomplete = incomplete
	hist.Past = newPast
	hist.Current = newCurrent

	if err := s.saveMetadata(feed, meta); err != nil {
		return Snapshot{}, err
	}
	if err := s.saveHistogram(feed, hist); err != nil {
		return Snapshot{}, err
	}

	logger.InfoCtx(ctx, "retention: updated", "feed", feed, "cohorts", len(survivors), "incomplete", incomplete)
	return snapshotFromState(meta, hist), nil
}

func snapshotFromState(meta metadata, hist histogramDoc) Snapshot {
	return Snapshot{
		Started:    time.Unix(meta.Started, 0),
		Incomplete: meta.Incomplete,
		Past:       hist.Past,
		Current:    hist.Current,
	}
}

func countUnique(set *ipset.Set) uint64 {
	_, ips := set.Count()
	return ips
}

func (s *Store) cohortPath(feed string, ts int64) string {
	return filepath.Join(s.newDir(feed), strconv.FormatInt(ts, 10))
}

func (s *Store) listCohorts(feed string) ([]int64, error) {
	entries, err := os.ReadDir(s.newDir(feed))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, curatorerr.WrapFeed(curatorerr.ErrPublishFS, feed, "retention: readdir new/", err)
	}
	var out []int64
	for _, e := range entries {
		ts, err := strconv.ParseInt(e.Name(), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *Store) loadLatest(feed string) (*ipset.Set, bool, error) {
	path := s.latestPath(feed)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, curatorerr.WrapFeed(curatorerr.ErrPublishFS, feed, "retention: stat latest", err)
	}
	set, err := binary.ReadFile(path)
	if err != nil {
		return nil, false, curatorerr.WrapFeed(curatorerr.ErrPublishFS, feed, "retention: read latest", err)
	}
	return set, true, nil
}

func (s *Store) latestTimestamp(feed string) (time.Time, error) {
	info, err := os.Stat(s.latestPath(feed))
	if os.IsNotExist(err) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, curatorerr.WrapFeed(curatorerr.ErrPublishFS, feed, "retention: stat latest", err)
	}
	return info.ModTime(), nil
}

func (s *Store) loadMetadata(feed string) (metadata, error) {
	data, err := os.ReadFile(s.metadataPath(feed))
	if os.IsNotExist(err) {
		return metadata{}, nil
	}
	if err != nil {
		return metadata{}, curatorerr.WrapFeed(curatorerr.ErrPublishFS, feed, "retention: read metadata", err)
	}
	var m metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return metadata{}, curatorerr.WrapFeed(curatorerr.ErrPublishFS, feed, "retention: parse metadata", err)
	}
	return m, nil
}

func (s *Store) saveMetadata(feed string, m metadata) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return curatorerr.WrapFeed(curatorerr.ErrPublishFS, feed, "retention: marshal metadata", err)
	}
	return writeAtomic(s.metadataPath(feed), data)
}

func (s *Store) loadHistogram(feed string) (histogramDoc, error) {
	data, err := os.ReadFile(s.histogramPath(feed))
	if os.IsNotExist(err) {
		return histogramDoc{Past: map[int]uint64{}, Current: map[int]uint64{}}, nil
	}
	if err != nil {
		return histogramDoc{}, curatorerr.WrapFeed(curatorerr.ErrPublishFS, feed, "retention: read histogram", err)
	}
	var h histogramDoc
	if err := json.Unmarshal(data, &h); err != nil {
		return histogramDoc{}, curatorerr.WrapFeed(curatorerr.ErrPublishFS, feed, "retention: parse histogram", err)
	}
	if h.Past == nil {
		h.Past = map[int]uint64{}
	}
	if h.Current == nil {
		h.Current = map[int]uint64{}
	}
	return h, nil
}

func (s *Store) saveHistogram(feed string, h histogramDoc) error {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return curatorerr.WrapFeed(curatorerr.ErrPublishFS, feed, "retention: marshal histogram", err)
	}
	return writeAtomic(s.histogramPath(feed), data)
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("retention: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("retention: rename %s to %s: %w", tmp, path, err)
	}
	return nil
}

func (s *Store) appendChangeset(feed string, t int64, added, removedCount uint64) error {
	return appendCSVRow(s.changesetsPath(feed), []string{
		strconv.FormatInt(t, 10),
		strconv.FormatUint(added, 10),
		strconv.FormatUint(removedCount, 10),
	})
}

func (s *Store) appendRetentionRow(feed string, t, x int64, hours int, removed uint64) error {
	return appendCSVRow(s.retentionCSVPath(feed), []string{
		strconv.FormatInt(t, 10),
		strconv.FormatInt(x, 10),
		strconv.Itoa(hours),
		strconv.FormatUint(removed, 10),
	})
}

func appendCSVRow(path string, row []string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("retention: open %s: %w", path, err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(row); err != nil {
		return fmt.Errorf("retention: append %s: %w", path, err)
	}
	w.Flush()
	return w.Error()
}
