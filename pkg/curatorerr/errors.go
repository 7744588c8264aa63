// Package curatorerr defines the domain error taxonomy shared across the
// feed-ingestion engine. Components never panic on expected failure modes;
// they return a *Error so callers (and the orchestrator's failure
// aggregation) can branch on Code without string matching.
package curatorerr

import "fmt"

// Code categorizes a domain error per the engine's error-handling design.
type Code int

const (
	// ErrConfig indicates a missing precondition: a directory, executable,
	// or configuration value required at startup. Fatal.
	ErrConfig Code = iota
	// ErrDownload indicates a fetcher-level failure (network, TLS, non-2xx,
	// timeout, disallowed empty body). Per-feed, non-fatal.
	ErrDownload
	// ErrParse indicates the parser pipeline produced nothing where the
	// feed disallows empty results, or a transformer failed outright.
	ErrParse
	// ErrPublishFS indicates a filesystem rename/copy failure while
	// publishing a canonical snapshot.
	ErrPublishFS
	// ErrPublishKernel indicates a kernel-adapter create/restore/swap
	// failure. The production set is left untouched.
	ErrPublishKernel
	// ErrLocked indicates the whole-run advisory lock is already held by
	// another process.
	ErrLocked
	// ErrStale indicates the last successful publication is older than the
	// configured staleness threshold. Non-fatal; the run continues.
	ErrStale
)

func (c Code) String() string {
	switch c {
	case ErrConfig:
		return "config"
	case ErrDownload:
		return "download"
	case ErrParse:
		return "parse"
	case ErrPublishFS:
		return "publish_fs"
	case ErrPublishKernel:
		return "publish_kernel"
	case ErrLocked:
		return "locked"
	case ErrStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Error is the engine's domain error type. Feed is empty for run-level
// (non-feed-scoped) errors such as ErrConfig or ErrLocked.
type Error struct {
	Code    Code
	Message string
	Feed    string
	Err     error
}

func (e *Error) Error() string {
	if e.Feed != "" {
		return fmt.Sprintf("%s[%s]: %s", e.Code, e.Feed, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a run-level error with no associated feed.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap constructs a run-level error wrapping an underlying cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// ForFeed constructs a feed-scoped error.
func ForFeed(code Code, feed, message string) *Error {
	return &Error{Code: code, Feed: feed, Message: message}
}

// WrapFeed constructs a feed-scoped error wrapping an underlying cause.
func WrapFeed(code Code, feed, message string, err error) *Error {
	return &Error{Code: code, Feed: feed, Message: message, Err: err}
}

// CodeOf extracts the Code from err if it (or something it wraps) is an
// *Error. Returns ok=false otherwise.
func CodeOf(err error) (Code, bool) {
	var e *Error
	for err != nil {
		if ce, ok := err.(*Error); ok {
			e = ce
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return 0, false
	}
	return e.Code, true
}
