package logger

import (
	"encoding/hex"
	"log/slog"
)

// Standard field keys for structured logging. Use these consistently
// across log statements so aggregation and querying stay uniform.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Domain error code
	KeyOperation  = "operation"   // Sub-operation type for complex operations
	KeyAttempt    = "attempt"     // Retry/poll attempt number
	KeyMaxRetries = "max_retries" // Maximum retry attempts

	// ========================================================================
	// Request Context (LogContext fields)
	// ========================================================================
	KeyProcedure = "procedure" // Procedure/operation name from LogContext
	KeyShare     = "share"     // Share path from LogContext
	KeyClientIP  = "client_ip" // Client IP address (without port)
	KeyUID       = "uid"       // Effective user ID
	KeyGID       = "gid"       // Effective group ID
	KeyHandle    = "handle"    // Opaque handle, hex-encoded

	// ========================================================================
	// Feed & Source
	// ========================================================================
	KeyFeed       = "feed"        // Feed name from the registry
	KeySourceURL  = "source_url"  // Feed source URL or path
	KeyKind       = "kind"        // Representation kind: ip, net, both
	KeyEntries    = "entries"     // Count of set entries (CIDRs or addresses)
	KeyAddresses  = "addresses"   // Count of individual addresses covered
	KeyEtag       = "etag"        // HTTP ETag/Last-Modified cache validator
	KeyBytes      = "bytes"       // Byte count of a fetched or written payload
	KeyPath       = "path"        // Filesystem path
	KeySnapshotTS = "snapshot_ts" // Snapshot/history timestamp

	// ========================================================================
	// Set Curation
	// ========================================================================
	KeySetName = "set_name" // Published set name
	KeyAdded   = "added"    // Entries added relative to the previous snapshot
	KeyRemoved = "removed"  // Entries removed relative to the previous snapshot
	KeyWindow  = "window"   // History window duration
	KeyAdapter = "adapter"  // Kernel adapter backend name
)

// ----------------------------------------------------------------------------
// Distributed Tracing
// ----------------------------------------------------------------------------

// TraceID returns a slog.Attr for OpenTelemetry trace ID.
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID.
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// ----------------------------------------------------------------------------
// Operation Metadata
// ----------------------------------------------------------------------------

// DurationMs returns a slog.Attr for duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a domain error code.
func ErrorCode(code string) slog.Attr {
	return slog.String(KeyErrorCode, code)
}

// Operation returns a slog.Attr for sub-operation type.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Attempt returns a slog.Attr for retry/poll attempt number.
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxRetries returns a slog.Attr for maximum retry attempts.
func MaxRetries(n int) slog.Attr {
	return slog.Int(KeyMaxRetries, n)
}

// Handle returns a slog.Attr for an opaque handle, formatted as hex.
func Handle(h []byte) slog.Attr {
	return slog.String(KeyHandle, hex.EncodeToString(h))
}

// ----------------------------------------------------------------------------
// Feed & Source
// ----------------------------------------------------------------------------

// Feed returns a slog.Attr for the feed name.
func Feed(name string) slog.Attr {
	return slog.String(KeyFeed, name)
}

// SourceURL returns a slog.Attr for a feed source URL or path.
func SourceURL(url string) slog.Attr {
	return slog.String(KeySourceURL, url)
}

// Kind returns a slog.Attr for the representation kind (ip, net, both).
func Kind(kind string) slog.Attr {
	return slog.String(KeyKind, kind)
}

// Entries returns a slog.Attr for a set entry count.
func Entries(n int) slog.Attr {
	return slog.Int(KeyEntries, n)
}

// Addresses returns a slog.Attr for an individual-address count.
func Addresses(n uint64) slog.Attr {
	return slog.Uint64(KeyAddresses, n)
}

// Etag returns a slog.Attr for an HTTP cache validator.
func Etag(tag string) slog.Attr {
	return slog.String(KeyEtag, tag)
}

// Bytes returns a slog.Attr for a byte count.
func Bytes(n int64) slog.Attr {
	return slog.Int64(KeyBytes, n)
}

// Path returns a slog.Attr for a filesystem path.
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// SnapshotTS returns a slog.Attr for a snapshot/history timestamp.
func SnapshotTS(ts string) slog.Attr {
	return slog.String(KeySnapshotTS, ts)
}

// ----------------------------------------------------------------------------
// Set Curation
// ----------------------------------------------------------------------------

// SetName returns a slog.Attr for the published set name.
func SetName(name string) slog.Attr {
	return slog.String(KeySetName, name)
}

// Added returns a slog.Attr for entries added relative to a prior snapshot.
func Added(n int) slog.Attr {
	return slog.Int(KeyAdded, n)
}

// Removed returns a slog.Attr for entries removed relative to a prior snapshot.
func Removed(n int) slog.Attr {
	return slog.Int(KeyRemoved, n)
}

// Window returns a slog.Attr for a history window duration string.
func Window(w string) slog.Attr {
	return slog.String(KeyWindow, w)
}

// Adapter returns a slog.Attr for the kernel adapter backend name.
func Adapter(name string) slog.Attr {
	return slog.String(KeyAdapter, name)
}
