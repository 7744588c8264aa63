// Package orchestrator implements the run-level concerns of C10: the
// whole-run lock, workspace lifecycle, the per-feed state machine of §4.10,
// failure aggregation, and final dispatch to the kernel/distribution/VCS/
// dashboard collaborators.
package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ipcurator/curator/internal/logger"
	"github.com/ipcurator/curator/pkg/curatorerr"
	"github.com/ipcurator/curator/pkg/feed"
	"github.com/ipcurator/curator/pkg/fetch"
	"github.com/ipcurator/curator/pkg/history"
	"github.com/ipcurator/curator/pkg/metacache"
	"github.com/ipcurator/curator/pkg/parse"
	"github.com/ipcurator/curator/pkg/registry"
	"github.com/ipcurator/curator/pkg/retention"
	"github.com/ipcurator/curator/pkg/schedule"
)

// FeedState names one node of the §4.10 per-feed state machine.
type FeedState string

const (
	StateUnknown             FeedState = "unknown"
	StateDisabled            FeedState = "disabled"
	StateSkippedNotDue       FeedState = "skipped_not_due"
	StateSkippedNotRequested FeedState = "skipped_not_requested"
	StateNotModified         FeedState = "not_modified"
	StateFetchFailed         FeedState = "fetch_failed"
	StateEmptyRejected       FeedState = "empty_rejected"
	StateInvalid             FeedState = "invalid"
	StateSame                FeedState = "same"
	StatePublishFailed       FeedState = "publish_failed"
	StateDone                FeedState = "done"
)

// FeedResult is one feed's outcome for a run, aggregated into a RunReport.
type FeedResult struct {
	Feed      string
	State     FeedState
	Err       error
	Changed   bool
	Stale     bool
	Version   int
	Snapshots []feed.Snapshot
}

// RunReport aggregates every feed's outcome for one orchestrator run, per
// §5's "Per-feed failures are isolated; the run continues" propagation
// policy: the process only exits non-fatally on a per-feed basis, never by
// aborting the walk.
type RunReport struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []FeedResult
}

// Failures returns the subset of Results whose State indicates a per-feed
// failure (fetch, parse, or publish).
func (r *RunReport) Failures() []FeedResult {
	var out []FeedResult
	for _, res := range r.Results {
		switch res.State {
		case StateFetchFailed, StateInvalid, StatePublishFailed:
			out = append(out, res)
		}
	}
	return out
}

// RunOptions carries the §6 CLI flags that alter a single run's behavior.
type RunOptions struct {
	EnableAll bool
	Recheck   bool
	Reprocess bool
	Rebuild   bool
	PushGit   bool
	Cleanup   bool
	// Only, if non-empty, restricts the walk to these feed names
	// (Skipped(NotRequested) for everything else).
	Only []string
}

func (o RunOptions) requested(name string) bool {
	if len(o.Only) == 0 {
		return true
	}
	for _, n := range o.Only {
		if n == name {
			return true
		}
	}
	return false
}

// Orchestrator wires together every other component (C1-C9) into one run.
type Orchestrator struct {
	BaseDir   string
	TmpDir    string
	LockPath  string
	Registry  *registry.Registry
	Metacache *metacache.Store
	History   *history.Store
	Retention *retention.Store
	Feed      *feed.Processor

	HTTPFetcher  fetch.Fetcher
	LocalFetcher fetch.Fetcher

	Distributor Distributor
	Git         GitPublisher
	Dashboard   DashboardRenderer
	HasGitRepo  bool

	ParallelFeeds    int
	StaleThreshold   time.Duration
	FailureThreshold int
	ClockNow         func() time.Time

	// Metrics receives run- and feed-level observations (C10 domain-stack
	// wiring to pkg/metrics). Nil is the zero value and disables recording.
	Metrics Metrics

	// siblings holds, per run, the most recent fetch for each feed name so
	// CompositeFetcher-backed feeds can reuse a primary's already-fetched
	// bytes (§4.2, §5's shared-source serialization constraint).
	siblings   map[string]fetch.FetchResult
	siblingsMu sync.Mutex
}

func (o *Orchestrator) metrics() Metrics {
	if o.Metrics != nil {
		return o.Metrics
	}
	return noopMetrics{}
}

func (o *Orchestrator) now() time.Time {
	if o.ClockNow != nil {
		return o.ClockNow()
	}
	return time.Now()
}

func (o *Orchestrator) sourcePath(name string) string {
	return filepath.Join(o.BaseDir, name+".source")
}

// LastFetch implements fetch.SnapshotSource for CompositeFetcher feeds.
func (o *Orchestrator) LastFetch(name string) (fetch.FetchResult, bool) {
	o.siblingsMu.Lock()
	defer o.siblingsMu.Unlock()
	fr, ok := o.siblings[name]
	return fr, ok
}

func (o *Orchestrator) recordFetch(name string, fr fetch.FetchResult) {
	o.siblingsMu.Lock()
	defer o.siblingsMu.Unlock()
	if o.siblings == nil {
		o.siblings = make(map[string]fetch.FetchResult)
	}
	o.siblings[name] = fr
}

// Run acquires the whole-run lock, creates a namespaced workspace, walks
// the registry per the §4.10 state machine (sequentially, or with bounded
// parallelism when ParallelFeeds > 1), and dispatches the configured
// collaborators before releasing the lock and removing the workspace.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*RunReport, error) {
	lock, err := AcquireLock(o.LockPath)
	if err != nil {
		return nil, err
	}

	workspace, err := os.MkdirTemp(o.TmpDir, "curator-run-*")
	if err != nil {
		lock.Release()
		return nil, curatorerr.Wrap(curatorerr.ErrConfig, "orchestrator: create workspace", err)
	}

	report := &RunReport{StartedAt: o.now()}
	shutdown := func() {
		if err := os.RemoveAll(workspace); err != nil {
			logger.Warn("orchestrator: failed to remove workspace", "workspace", workspace, "error", err)
		}
		if err := lock.Release(); err != nil {
			logger.Warn("orchestrator: failed to release lock", "error", err)
		}
	}

	feeds := o.Registry.Feeds()
	now := o.now()
	o.siblings = make(map[string]fetch.FetchResult)

	parallel := o.ParallelFeeds
	if parallel <= 1 {
		for _, fd := range feeds {
			if ctx.Err() != nil {
				break
			}
			report.Results = append(report.Results, o.processFeed(ctx, fd, opts, now))
		}
	} else {
		results := make([]FeedResult, len(feeds))
		sem := semaphore.NewWeighted(int64(parallel))
		g, gctx := errgroup.WithContext(ctx)
		for i, fd := range feeds {
			g.Go(func() error {
				if err := sem.Acquire(gctx, 1); err != nil {
					return nil
				}
				defer sem.Release(1)
				results[i] = o.processFeed(gctx, fd, opts, now)
				return nil
			})
		}
		g.Wait()
		report.Results = results
	}

	if opts.Cleanup {
		o.cleanupRetired(ctx)
	}

	o.dispatchCollaborators(ctx, opts, report)

	report.FinishedAt = o.now()
	o.metrics().ObserveRun(report.FinishedAt.Sub(report.StartedAt), len(feeds))

	if ctx.Err() != nil {
		logger.Warn("orchestrator: run cancelled by signal, shutting down")
		shutdown()
		return report, curatorerr.Wrap(curatorerr.ErrConfig, "orchestrator: run cancelled", ctx.Err())
	}

	shutdown()
	return report, nil
}

// processFeed runs one feed through the §4.10 state machine. It never
// returns an error: every failure mode is represented in FeedResult.State
// and FeedResult.Err, so the caller can always continue the walk.
func (o *Orchestrator) processFeed(ctx context.Context, fd *registry.FeedDefinition, opts RunOptions, now time.Time) FeedResult {
	result := FeedResult{Feed: fd.Name, State: StateUnknown}
	defer func() { o.metrics().RecordState(fd.Name, result.State) }()

	enabled := opts.EnableAll || fileExists(o.sourcePath(fd.Name))
	if !enabled {
		result.State = StateDisabled
		return result
	}
	if !opts.requested(fd.Name) {
		result.State = StateSkippedNotRequested
		return result
	}

	st, _, err := o.Metacache.Get(fd.Name)
	if err != nil {
		result.State = StateFetchFailed
		result.Err = err
		return result
	}

	if !opts.Recheck {
		runNow, _ := schedule.NextRunWithThreshold(fd.Period(), st.LastCheckedTimestamp, st.ConsecutiveDownloadFailures, now, o.failureThreshold())
		if !runNow {
			result.State = StateSkippedNotDue
			return result
		}
	}

	fetchStart := o.now()
	fr, ferr := o.fetch(ctx, fd, st)
	o.recordFetch(fd.Name, fr)
	o.metrics().ObserveFetch(fd.Name, fr.Outcome, fr.ErrorCode, o.now().Sub(fetchStart))
	if ferr != nil {
		result.Err = ferr
		result.State = StateFetchFailed
		return result
	}

	switch fr.Outcome {
	case fetch.Failed:
		st.ConsecutiveDownloadFailures++
		st.LastCheckedTimestamp = now
		o.putState(ctx, fd.Name, st)
		o.metrics().RecordBackoff(fd.Name, st.ConsecutiveDownloadFailures)
		result.State = StateFetchFailed
		result.Err = fr.Err
		return result

	case fetch.NotModified:
		st.ConsecutiveDownloadFailures = 0
		st.LastCheckedTimestamp = now
		if !opts.Reprocess {
			o.putState(ctx, fd.Name, st)
			result.State = StateNotModified
			result.Stale = st.Stale(o.StaleThreshold, now)
			return result
		}
		body, rerr := os.ReadFile(o.sourcePath(fd.Name))
		if rerr != nil {
			o.putState(ctx, fd.Name, st)
			result.State = StateNotModified
			return result
		}
		fr.Body = body

	case fetch.Ok:
		st.ConsecutiveDownloadFailures = 0
		st.LastETag = fr.ETag
		st.LastModifiedHeader = fr.LastModified
		if err := writeSourceFile(o.sourcePath(fd.Name), fr.Body, fr.SourceTime); err != nil {
			logger.WarnCtx(ctx, "orchestrator: failed to persist source cache", "feed", fd.Name, "error", err)
		}
	}

	st.LastCheckedTimestamp = now
	st.LastSourceTimestamp = fr.SourceTime
	if fr.SourceTime.After(now) {
		st.ClockSkewSeconds = fr.SourceTime.Sub(now).Seconds()
		logger.WarnCtx(ctx, "orchestrator: source time is ahead of local clock", "feed", fd.Name, "skew_seconds", st.ClockSkewSeconds)
	}

	tokens := parse.Lines(fd.Chain().Transform(bytes.NewReader(fr.Body)))

	rc := feed.RunContext{
		Version:     st.Version + 1,
		GeneratedAt: now,
		SourceMTime: fr.SourceTime,
		SourceURL:   fd.SourceURL,
	}
	processStart := o.now()
	snaps, baseSet, perr := o.Feed.Process(ctx, fd, tokens, rc)
	o.metrics().ObserveProcess(fd.Name, o.now().Sub(processStart))
	if perr != nil {
		o.putState(ctx, fd.Name, st)
		result.Err = perr
		if code, ok := curatorerr.CodeOf(perr); ok && code == curatorerr.ErrParse {
			result.State = StateEmptyRejected
		} else {
			result.State = StateInvalid
		}
		return result
	}

	result.Snapshots = snaps
	changed := anyChanged(snaps)
	if !changed {
		o.putState(ctx, fd.Name, st)
		result.State = StateSame
		result.Stale = st.Stale(o.StaleThreshold, now)
		return result
	}

	entries, ips := baseSet.Count()
	st.Version++
	st.EntryCount = entries
	st.UniqueIPCount = ips
	o.metrics().SetEntryCount(fd.Name, entries, ips)
	o.metrics().SetVersion(fd.Name, st.Version)
	updateMinMax(&st, entries, ips)
	updateInterval(&st, st.LastProcessedTimestamp, fr.SourceTime)
	st.LastProcessedTimestamp = fr.SourceTime

	if err := o.History.Keep(fd.Name, baseSet, fr.SourceTime); err != nil {
		logger.WarnCtx(ctx, "orchestrator: history archive write failed", "feed", fd.Name, "error", err)
	}
	if _, err := o.Retention.Update(ctx, fd.Name, baseSet, fr.SourceTime); err != nil {
		logger.WarnCtx(ctx, "orchestrator: retention update failed", "feed", fd.Name, "error", err)
	}
	if err := o.History.Cleanup(ctx, fd.Name, fd.LongestWindow(), now); err != nil {
		logger.WarnCtx(ctx, "orchestrator: history cleanup failed", "feed", fd.Name, "error", err)
	}

	if anyPublishFailed(snaps) {
		o.putState(ctx, fd.Name, st)
		result.State = StatePublishFailed
		return result
	}

	o.putState(ctx, fd.Name, st)
	result.State = StateDone
	result.Changed = true
	result.Version = st.Version
	result.Stale = st.Stale(o.StaleThreshold, now)
	logger.InfoCtx(ctx, "orchestrator: feed published", "feed", fd.Name, "version", st.Version, "entries", entries, "ips", ips)
	return result
}

func (o *Orchestrator) putState(ctx context.Context, name string, st metacache.SetState) {
	if err := o.Metacache.Put(ctx, name, st); err != nil {
		logger.WarnCtx(ctx, "orchestrator: failed to persist metadata", "feed", name, "error", err)
	}
}

func (o *Orchestrator) failureThreshold() int {
	if o.FailureThreshold > 0 {
		return o.FailureThreshold
	}
	return schedule.DefaultFailureThreshold
}

func (o *Orchestrator) fetch(ctx context.Context, fd *registry.FeedDefinition, st metacache.SetState) (fetch.FetchResult, error) {
	req := fetch.FetchRequest{
		URL:         fd.SourceURL,
		AcceptEmpty: fd.AcceptEmpty,
		UserAgent:   fd.UserAgent,
	}

	switch fd.FetcherKind {
	case "local":
		req.URL = fd.SourcePath
		// LocalFetcher compares PrevLastModified (RFC3339) against the
		// source path's own mtime; it never sends an HTTP header, so the
		// locally-tracked timestamp is the right format here.
		req.PrevLastModified = st.LastSourceTimestamp.UTC().Format(time.RFC3339)
		return o.LocalFetcher.Fetch(ctx, req)
	case "composite":
		cf := fetch.CompositeFetcher{Source: o, OfFeed: fd.CompositeOf}
		return cf.Fetch(ctx, req)
	default:
		// HTTPFetcher sends both validators verbatim as If-None-Match /
		// If-Modified-Since; SetState persists the raw header strings from
		// the previous successful fetch rather than a reconstructed value.
		req.PrevETag = st.LastETag
		req.PrevLastModified = st.LastModifiedHeader
		return o.HTTPFetcher.Fetch(ctx, req)
	}
}

// dispatchCollaborators invokes the configured external collaborators
// once the walk is complete: kernel swaps already happened per-feed
// inside the publisher (C9), so what remains here is distribution, VCS,
// and dashboard regeneration.
func (o *Orchestrator) dispatchCollaborators(ctx context.Context, opts RunOptions, report *RunReport) {
	anyChange := false
	for _, res := range report.Results {
		if res.Changed {
			anyChange = true
		}
		if o.Distributor != nil {
			for _, s := range res.Snapshots {
				if !s.Changed {
					continue
				}
				if err := o.Distributor.Distribute(ctx, s.Name, s.Kind, s.Text); err != nil {
					logger.WarnCtx(ctx, "orchestrator: distribution failed", "feed", s.Name, "error", err)
				}
			}
		}
	}

	if (anyChange || opts.PushGit) && o.HasGitRepo && o.Git != nil {
		if err := o.Git.Commit(ctx, fmt.Sprintf("curator: run at %s", report.FinishedAt.UTC().Format(time.RFC3339))); err != nil {
			logger.WarnCtx(ctx, "orchestrator: git commit failed", "error", err)
		} else if opts.PushGit {
			if err := o.Git.Push(ctx); err != nil {
				logger.WarnCtx(ctx, "orchestrator: git push failed", "error", err)
			}
		}
	}

	if (anyChange || opts.Rebuild) && o.Dashboard != nil {
		if err := o.Dashboard.Render(ctx, report); err != nil {
			logger.WarnCtx(ctx, "orchestrator: dashboard render failed", "error", err)
		}
	}
}

// cleanupRetired removes history/retention/errors artifacts for feeds no
// longer present in the registry, per --cleanup.
func (o *Orchestrator) cleanupRetired(ctx context.Context) {
	known := make(map[string]bool)
	for _, fd := range o.Registry.Feeds() {
		known[fd.Name] = true
	}

	for _, sub := range []string{"history", "lib", "errors"} {
		dir := filepath.Join(o.BaseDir, sub)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			name := retiredFeedName(e.Name())
			if known[name] {
				continue
			}
			path := filepath.Join(dir, e.Name())
			if err := os.RemoveAll(path); err != nil {
				logger.WarnCtx(ctx, "orchestrator: cleanup failed to remove retired artifact", "path", path, "error", err)
			} else {
				logger.InfoCtx(ctx, "orchestrator: removed retired feed artifact", "path", path)
			}
		}
	}
}

func retiredFeedName(entryName string) string {
	for _, ext := range []string{".ipset", ".netset"} {
		if len(entryName) > len(ext) && entryName[len(entryName)-len(ext):] == ext {
			return entryName[:len(entryName)-len(ext)]
		}
	}
	return entryName
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func writeSourceFile(path string, body []byte, mtime time.Time) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return err
	}
	if err := os.Chtimes(tmp, mtime, mtime); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func anyChanged(snaps []feed.Snapshot) bool {
	for _, s := range snaps {
		if s.Changed {
			return true
		}
	}
	return false
}

// anyPublishFailed is a placeholder hook: today p.Feed.Process returns an
// error (handled above) rather than a partial per-snapshot publish
// failure, so this always reports false. It is kept as a named check
// point because §4.10 models Publishing -> PublishFailed as a distinct
// transition from Parsing failures.
func anyPublishFailed(snaps []feed.Snapshot) bool {
	return false
}

func updateMinMax(st *metacache.SetState, entries int, ips uint64) {
	if st.MinEntryCount == 0 || entries < st.MinEntryCount {
		st.MinEntryCount = entries
	}
	if entries > st.MaxEntryCount {
		st.MaxEntryCount = entries
	}
	if st.MinUniqueIPCount == 0 || ips < st.MinUniqueIPCount {
		st.MinUniqueIPCount = ips
	}
	if ips > st.MaxUniqueIPCount {
		st.MaxUniqueIPCount = ips
	}
}

func updateInterval(st *metacache.SetState, prev, cur time.Time) {
	if prev.IsZero() {
		return
	}
	interval := cur.Sub(prev).Seconds()
	if interval < 0 {
		return
	}
	if st.MinUpdateIntervalSeconds == 0 || interval < st.MinUpdateIntervalSeconds {
		st.MinUpdateIntervalSeconds = interval
	}
	if interval > st.MaxUpdateIntervalSeconds {
		st.MaxUpdateIntervalSeconds = interval
	}
	if st.AvgUpdateIntervalSeconds == 0 {
		st.AvgUpdateIntervalSeconds = interval
	} else {
		st.AvgUpdateIntervalSeconds = (st.AvgUpdateIntervalSeconds + interval) / 2
	}
}
