// Package metacache implements the per-feed metadata cache (C8): a
// badger-backed store of SetState records, exported to a human-auditable
// JSON sidecar via tmp+rename after every commit.
package metacache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/ipcurator/curator/internal/logger"
	"github.com/ipcurator/curator/pkg/curatorerr"
)

const feedPrefix = "feed:"

// SetState is the mutable, cross-run state of §3, owned exclusively by
// the metadata cache.
type SetState struct {
	Enabled                     bool      `json:"enabled"`
	LastSourceTimestamp         time.Time `json:"last_source_timestamp"`
	LastCheckedTimestamp        time.Time `json:"last_checked_timestamp"`
	LastProcessedTimestamp      time.Time `json:"last_processed_timestamp"`
	ConsecutiveDownloadFailures int       `json:"consecutive_download_failures"`
	Version                     int       `json:"version"`
	EntryCount                  int       `json:"entry_count"`
	UniqueIPCount               uint64    `json:"unique_ip_count"`
	MinEntryCount               int       `json:"min_entry_count"`
	MaxEntryCount               int       `json:"max_entry_count"`
	MinUniqueIPCount            uint64    `json:"min_unique_ip_count"`
	MaxUniqueIPCount            uint64    `json:"max_unique_ip_count"`
	AvgUpdateIntervalSeconds    float64   `json:"avg_update_interval_seconds"`
	MinUpdateIntervalSeconds    float64   `json:"min_update_interval_seconds"`
	MaxUpdateIntervalSeconds    float64   `json:"max_update_interval_seconds"`
	ClockSkewSeconds            float64   `json:"clock_skew_seconds"`
	// LastETag and LastModifiedHeader are the conditional-GET validators
	// from the most recent successful HTTP fetch, echoed back verbatim as
	// If-None-Match / If-Modified-Since on the next run.
	LastETag           string `json:"last_etag,omitempty"`
	LastModifiedHeader string `json:"last_modified_header,omitempty"`
}

// Validate enforces the §3 SetState invariants.
func (s SetState) Validate() error {
	if s.ConsecutiveDownloadFailures < 0 {
		return fmt.Errorf("metacache: negative failure count")
	}
	if s.MinEntryCount > s.MaxEntryCount {
		return fmt.Errorf("metacache: min entry count exceeds max")
	}
	if s.MinUniqueIPCount > s.MaxUniqueIPCount {
		return fmt.Errorf("metacache: min unique-IP count exceeds max")
	}
	if s.MinUpdateIntervalSeconds > s.AvgUpdateIntervalSeconds || s.AvgUpdateIntervalSeconds > s.MaxUpdateIntervalSeconds {
		if s.MaxUpdateIntervalSeconds != 0 {
			return fmt.Errorf("metacache: update interval min/avg/max out of order")
		}
	}
	if s.ClockSkewSeconds < 0 {
		return fmt.Errorf("metacache: negative clock skew")
	}
	if s.LastCheckedTimestamp.Before(s.LastProcessedTimestamp) || s.LastProcessedTimestamp.Before(s.LastSourceTimestamp) {
		if !s.LastCheckedTimestamp.IsZero() && !s.LastProcessedTimestamp.IsZero() && !s.LastSourceTimestamp.IsZero() {
			return fmt.Errorf("metacache: checked/processed/source ordering violated")
		}
	}
	return nil
}

// Stale reports whether st's last successful publication is older than
// threshold as of now, per §7's "DATA ARE TOO OLD" warning.
func (s SetState) Stale(threshold time.Duration, now time.Time) bool {
	if s.LastProcessedTimestamp.IsZero() || threshold <= 0 {
		return false
	}
	return now.Sub(s.LastProcessedTimestamp) > threshold
}

// Store is the badger-backed SetState cache with a JSON export sidecar.
type Store struct {
	db         *badger.DB
	exportPath string
	mu         sync.Mutex
}

// Open opens (or creates) the badger database at dbDir and sets up a JSON
// export sidecar at exportPath.
func Open(dbDir, exportPath string) (*Store, error) {
	opts := badger.DefaultOptions(dbDir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, curatorerr.Wrap(curatorerr.ErrConfig, "metacache: open badger db", err)
	}
	return &Store{db: db, exportPath: exportPath}, nil
}

// Close releases the underlying badger handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func key(feed string) []byte {
	return []byte(feedPrefix + feed)
}

// Get returns the persisted SetState for feed, if any.
func (s *Store) Get(feed string) (SetState, bool, error) {
	var st SetState
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(feed))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &st)
		})
	})
	if err != nil {
		return SetState{}, false, curatorerr.WrapFeed(curatorerr.ErrConfig, feed, "metacache: get", err)
	}
	return st, found, nil
}

// Put persists st for feed in one badger transaction, then refreshes the
// JSON export sidecar.
func (s *Store) Put(ctx context.Context, feed string, st SetState) error {
	if err := st.Validate(); err != nil {
		return curatorerr.WrapFeed(curatorerr.ErrConfig, feed, "metacache: invalid state", err)
	}

	data, err := json.Marshal(st)
	if err != nil {
		return curatorerr.WrapFeed(curatorerr.ErrConfig, feed, "metacache: marshal", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(feed), data)
	}); err != nil {
		return curatorerr.WrapFeed(curatorerr.ErrConfig, feed, "metacache: put", err)
	}

	if err := s.exportLocked(); err != nil {
		return err
	}
	logger.DebugCtx(ctx, "metacache: committed state", "feed", feed, "version", st.Version)
	return nil
}

// All returns every persisted SetState keyed by feed name.
func (s *Store) All() (map[string]SetState, error) {
	out := make(map[string]SetState)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(feedPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			item := it.Item()
			feed := string(item.Key()[len(feedPrefix):])
			var st SetState
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &st)
			}); err != nil {
				return err
			}
			out[feed] = st
		}
		return nil
	})
	if err != nil {
		return nil, curatorerr.Wrap(curatorerr.ErrConfig, "metacache: scan", err)
	}
	return out, nil
}

// exportLocked writes a full JSON snapshot of the cache to s.exportPath
// via tmp+rename, first preserving the current export as a sibling
// ".old" file. Callers must hold s.mu.
func (s *Store) exportLocked() error {
	all, err := s.All()
	if err != nil {
		return err
	}

	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)

	doc := make(map[string]SetState, len(all))
	for _, name := range names {
		doc[name] = all[name]
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return curatorerr.Wrap(curatorerr.ErrConfig, "metacache: marshal export", err)
	}

	if _, err := os.Stat(s.exportPath); err == nil {
		if err := os.Rename(s.exportPath, s.exportPath+".old"); err != nil {
			return curatorerr.Wrap(curatorerr.ErrPublishFS, "metacache: preserve previous export", err)
		}
	} else if !os.IsNotExist(err) {
		return curatorerr.Wrap(curatorerr.ErrPublishFS, "metacache: stat export", err)
	}

	tmp := s.exportPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return curatorerr.Wrap(curatorerr.ErrPublishFS, "metacache: write export", err)
	}
	if err := os.Rename(tmp, s.exportPath); err != nil {
		os.Remove(tmp)
		return curatorerr.Wrap(curatorerr.ErrPublishFS, "metacache: rename export", err)
	}
	return nil
}
