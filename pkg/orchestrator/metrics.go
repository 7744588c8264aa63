package orchestrator

import (
	"time"

	"github.com/ipcurator/curator/pkg/fetch"
)

// Metrics is the orchestrator's observability boundary: one place to wire
// counters and histograms for fetch (C2), scheduling back-off (C3), parsing
// (C5/C6), and the run loop (C10) itself, mirroring how the fetch/process
// steps already converge here. pkg/metrics provides the Prometheus-backed
// implementation; Orchestrator.Metrics is nil by default.
//
// Implementations need not be nil-receiver safe: Orchestrator always calls
// through o.metrics(), which substitutes noopMetrics when Metrics is nil.
type Metrics interface {
	// ObserveRun records one full Run call's wall-clock duration and the
	// number of feeds walked.
	ObserveRun(duration time.Duration, feedCount int)

	// ObserveFetch records one feed's fetch attempt.
	ObserveFetch(feed string, outcome fetch.Outcome, code fetch.DownloadErrorCode, duration time.Duration)

	// ObserveProcess records one feed's parse-and-canonicalize duration.
	ObserveProcess(feed string, duration time.Duration)

	// RecordState records the terminal §4.10 state a feed's walk landed on.
	RecordState(feed string, state FeedState)

	// RecordBackoff records a fetch failure and the resulting consecutive
	// failure count, for tracking scheduler back-off pressure.
	RecordBackoff(feed string, consecutiveFailures int)

	// SetEntryCount records the current canonical set's entry and unique-IP
	// counts after a successful publish.
	SetEntryCount(feed string, entries int, uniqueIPs uint64)

	// SetVersion records the published version number.
	SetVersion(feed string, version int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveRun(time.Duration, int)                                              {}
func (noopMetrics) ObserveFetch(string, fetch.Outcome, fetch.DownloadErrorCode, time.Duration) {}
func (noopMetrics) ObserveProcess(string, time.Duration)                                       {}
func (noopMetrics) RecordState(string, FeedState)                                              {}
func (noopMetrics) RecordBackoff(string, int)                                                  {}
func (noopMetrics) SetEntryCount(string, int, uint64)                                          {}
func (noopMetrics) SetVersion(string, int)                                                     {}
