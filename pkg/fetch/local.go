package fetch

import (
	"context"
	"os"
	"time"
)

// LocalFetcher reads a feed's source from a local filesystem path, used
// for feeds seeded from a file the operator maintains directly rather
// than an upstream URL.
type LocalFetcher struct{}

func (LocalFetcher) Fetch(ctx context.Context, req FetchRequest) (FetchResult, error) {
	info, err := os.Stat(req.URL)
	if err != nil {
		return failResult(ErrLocalMissing, err), nil
	}

	mtime := info.ModTime()
	if req.PrevLastModified != "" {
		if prev, perr := time.Parse(time.RFC3339, req.PrevLastModified); perr == nil && !mtime.After(prev) {
			return FetchResult{Outcome: NotModified, SourceTime: mtime}, nil
		}
	}

	body, err := os.ReadFile(req.URL)
	if err != nil {
		return failResult(ErrLocalMissing, err), nil
	}
	if len(body) == 0 && !req.AcceptEmpty {
		return failResult(ErrEmptyBody, errEmptyBody), nil
	}

	return FetchResult{
		Outcome:      Ok,
		Body:         body,
		LastModified: mtime.UTC().Format(time.RFC3339),
		SourceTime:   mtime,
	}, nil
}
