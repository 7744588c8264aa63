package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	kpgzip "github.com/klauspost/compress/gzip"

	"github.com/ipcurator/curator/internal/logger"
)

var errEmptyBody = errors.New("fetch: empty response body")

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultTotalTimeout   = 300 * time.Second
	DefaultUserAgent      = "ipcurator-curator/1.0 (+https://github.com/ipcurator/curator)"
	// DefaultMaxBodyBytes caps a single feed's decompressed body; blocklist
	// feeds are line-oriented text and have no legitimate reason to exceed
	// this. Zero on HTTPFetcher.MaxBodyBytes falls back to this value.
	DefaultMaxBodyBytes = 256 * 1024 * 1024
)

// HTTPFetcher retrieves a feed over HTTP(S) with conditional GET and
// transparent gzip decompression. It never retries; the scheduler (C3)
// owns retry cadence across runs, not within one.
type HTTPFetcher struct {
	Client *http.Client
	// MaxBodyBytes caps the decompressed response body size; a feed whose
	// body would exceed it fails with ErrBodyTooLarge rather than being
	// read in full. Zero falls back to DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// NewHTTPFetcher builds an HTTPFetcher with the given total timeout and a
// dialer bounded by connectTimeout. Zero values fall back to the package
// defaults.
func NewHTTPFetcher(connectTimeout, totalTimeout time.Duration) *HTTPFetcher {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	if totalTimeout <= 0 {
		totalTimeout = DefaultTotalTimeout
	}
	return &HTTPFetcher{
		Client: &http.Client{
			Timeout: totalTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
		},
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, req FetchRequest) (FetchResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return failResult(ErrConnect, err), nil
	}

	ua := req.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	httpReq.Header.Set("User-Agent", ua)
	httpReq.Header.Set("Accept-Encoding", "gzip")
	if req.PrevETag != "" {
		httpReq.Header.Set("If-None-Match", req.PrevETag)
	}
	if req.PrevLastModified != "" {
		httpReq.Header.Set("If-Modified-Since", req.PrevLastModified)
	}

	client := f.Client
	if client == nil {
		client = NewHTTPFetcher(0, 0).Client
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		code := ErrConnect
		if ctx.Err() != nil {
			code = ErrTimeout
		}
		logger.WarnCtx(ctx, "fetch: request failed", "url", req.URL, "error", err)
		return failResult(code, err), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return FetchResult{Outcome: NotModified, SourceTime: time.Now()}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.WarnCtx(ctx, "fetch: non-2xx response", "url", req.URL, "status", resp.StatusCode)
		return failResult(ErrStatus, httpStatusError(resp.StatusCode)), nil
	}

	maxBody := f.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	body, truncated, err := decodeBody(resp, maxBody)
	if err != nil {
		return failResult(ErrDecompress, err), nil
	}
	if truncated {
		logger.WarnCtx(ctx, "fetch: body exceeded size limit", "url", req.URL, "limit", maxBody)
		return failResult(ErrBodyTooLarge, fmt.Errorf("fetch: body exceeds %d bytes", maxBody)), nil
	}

	if len(body) == 0 && !req.AcceptEmpty {
		return failResult(ErrEmptyBody, errEmptyBody), nil
	}

	sourceTime := time.Now()
	lastModified := resp.Header.Get("Last-Modified")
	if lastModified != "" {
		if t, err := http.ParseTime(lastModified); err == nil {
			sourceTime = t
		}
	}

	return FetchResult{
		Outcome:      Ok,
		Body:         body,
		ETag:         resp.Header.Get("ETag"),
		LastModified: lastModified,
		SourceTime:   sourceTime,
	}, nil
}

// decodeBody transparently inflates a gzip-encoded response body. Go's
// transport only auto-decompresses when it added Accept-Encoding itself;
// since we set the header explicitly to also see it echoed back, we
// decode ourselves via klauspost/compress for its faster inflate path.
// It reads at most maxBody+1 bytes; truncated is true if that limit was
// hit, meaning the real body is larger than maxBody.
func decodeBody(resp *http.Response, maxBody int64) (body []byte, truncated bool, err error) {
	var r io.Reader = resp.Body
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		gz, gzErr := kpgzip.NewReader(resp.Body)
		if gzErr != nil {
			return nil, false, gzErr
		}
		defer gz.Close()
		r = gz
	}

	limited := io.LimitReader(r, maxBody+1)
	body, err = io.ReadAll(limited)
	if err != nil {
		return nil, false, err
	}
	if int64(len(body)) > maxBody {
		return nil, true, nil
	}
	return body, false, nil
}

func failResult(code DownloadErrorCode, err error) FetchResult {
	return FetchResult{Outcome: Failed, ErrorCode: code, Err: err}
}

func httpStatusError(status int) error {
	return &statusError{status: status}
}

type statusError struct{ status int }

func (e *statusError) Error() string {
	return http.StatusText(e.status)
}
