package fetch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	results map[string]FetchResult
}

func (f fakeSource) LastFetch(feed string) (FetchResult, bool) {
	res, ok := f.results[feed]
	return res, ok
}

func TestCompositeFetcherReusesSiblingSnapshot(t *testing.T) {
	src := fakeSource{results: map[string]FetchResult{
		"primary": {Outcome: Ok, Body: []byte("10.0.0.0/24\n")},
	}}
	c := CompositeFetcher{Source: src, OfFeed: "primary"}

	res, err := c.Fetch(context.Background(), FetchRequest{})
	require.NoError(t, err)
	assert.Equal(t, Ok, res.Outcome)
	assert.Equal(t, "10.0.0.0/24\n", string(res.Body))
}

func TestCompositeFetcherNoSibling(t *testing.T) {
	c := CompositeFetcher{Source: fakeSource{results: map[string]FetchResult{}}, OfFeed: "missing"}
	res, err := c.Fetch(context.Background(), FetchRequest{})
	require.NoError(t, err)
	assert.Equal(t, Failed, res.Outcome)
	assert.Equal(t, ErrNoSibling, res.ErrorCode)
}
