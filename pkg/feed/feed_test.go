package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipcurator/curator/pkg/ipset"
	"github.com/ipcurator/curator/pkg/registry"
)

type published struct {
	text  []byte
	mtime time.Time
}

type fakePublisher struct {
	store      map[string]published
	publishCnt map[string]int
	touchCnt   map[string]int
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{
		store:      make(map[string]published),
		publishCnt: make(map[string]int),
		touchCnt:   make(map[string]int),
	}
}

func key(name, kind string) string { return name + "." + kind }

func (f *fakePublisher) Current(ctx context.Context, name, kind string) ([]byte, bool, error) {
	p, ok := f.store[key(name, kind)]
	if !ok {
		return nil, false, nil
	}
	return p.text, true, nil
}

func (f *fakePublisher) Publish(ctx context.Context, name, kind string, canonical []byte, mtime time.Time) error {
	f.publishCnt[key(name, kind)]++
	f.store[key(name, kind)] = published{text: canonical, mtime: mtime}
	return nil
}

func (f *fakePublisher) Touch(ctx context.Context, name, kind string, mtime time.Time) error {
	f.touchCnt[key(name, kind)]++
	p := f.store[key(name, kind)]
	p.mtime = mtime
	f.store[key(name, kind)] = p
	return nil
}

type fakeHistory struct {
	unioned *ipset.Set
}

func (f *fakeHistory) UnionSince(feed string, since time.Duration, now time.Time) (*ipset.Set, error) {
	if f.unioned != nil {
		return f.unioned, nil
	}
	return ipset.New(), nil
}

func baseFeed(representation string) *registry.FeedDefinition {
	return &registry.FeedDefinition{
		Name:            "demo",
		FetcherKind:     "http",
		SourceURL:       "https://example.com/demo.txt",
		UpdatePeriodMin: 60,
		Representation:  representation,
		Description:     "demo feed",
		Maintainer:      "ops team",
		Category:        "test",
	}
}

func TestProcessIPRepresentation(t *testing.T) {
	pub := newFakePublisher()
	hist := &fakeHistory{}
	p := &Processor{Publisher: pub, History: hist}

	fd := baseFeed("ip")
	snaps, _, err := p.Process(context.Background(), fd, []string{"10.0.0.1", "10.0.0.2"}, RunContext{
		Version: 1, GeneratedAt: time.Now(), SourceMTime: time.Now(), SourceURL: fd.SourceURL,
	})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "ipset", snaps[0].Kind)
	assert.Equal(t, 2, snaps[0].Entries)
	assert.True(t, snaps[0].Changed)
	assert.Equal(t, 1, pub.publishCnt["demo.ipset"])
}

func TestProcessNetRepresentationDropsSlash32(t *testing.T) {
	pub := newFakePublisher()
	p := &Processor{Publisher: pub, History: &fakeHistory{}}

	fd := baseFeed("net")
	snaps, _, err := p.Process(context.Background(), fd, []string{"10.0.0.0/24", "10.0.1.5"}, RunContext{
		Version: 1, GeneratedAt: time.Now(), SourceMTime: time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "netset", snaps[0].Kind)
	assert.NotContains(t, string(snaps[0].Text), "10.0.1.5")
	assert.Contains(t, string(snaps[0].Text), "10.0.0.0/24")
}

func TestProcessBothRepresentationKeepsSlash32(t *testing.T) {
	pub := newFakePublisher()
	p := &Processor{Publisher: pub, History: &fakeHistory{}}

	fd := baseFeed("both")
	snaps, _, err := p.Process(context.Background(), fd, []string{"10.0.0.0/24", "10.0.1.5"}, RunContext{
		Version: 1, GeneratedAt: time.Now(), SourceMTime: time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Contains(t, string(snaps[0].Text), "10.0.1.5")
	assert.Contains(t, string(snaps[0].Text), "10.0.0.0/24")
}

func TestProcessSplitProducesTwoPeers(t *testing.T) {
	pub := newFakePublisher()
	p := &Processor{Publisher: pub, History: &fakeHistory{}}

	fd := baseFeed("split")
	snaps, _, err := p.Process(context.Background(), fd, []string{"10.0.0.0/24", "10.0.1.5"}, RunContext{
		Version: 1, GeneratedAt: time.Now(), SourceMTime: time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	names := map[string]string{}
	for _, s := range snaps {
		names[s.Name] = s.Kind
	}
	assert.Equal(t, "ipset", names["demo_ip"])
	assert.Equal(t, "netset", names["demo_net"])
}

func TestProcessIdempotentRunSkipsPublish(t *testing.T) {
	pub := newFakePublisher()
	p := &Processor{Publisher: pub, History: &fakeHistory{}}
	fd := baseFeed("ip")

	rc := RunContext{Version: 1, GeneratedAt: time.Now(), SourceMTime: time.Now()}
	_, _, err := p.Process(context.Background(), fd, []string{"10.0.0.1"}, rc)
	require.NoError(t, err)
	require.Equal(t, 1, pub.publishCnt["demo.ipset"])

	rc2 := RunContext{Version: 2, GeneratedAt: time.Now().Add(time.Hour), SourceMTime: time.Now().Add(time.Hour)}
	snaps, _, err := p.Process(context.Background(), fd, []string{"10.0.0.1"}, rc2)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.False(t, snaps[0].Changed)
	assert.Equal(t, 1, pub.publishCnt["demo.ipset"], "publish must not be invoked again")
	assert.Equal(t, 1, pub.touchCnt["demo.ipset"])
}

func TestProcessRejectsEmptyWhenNotAccepted(t *testing.T) {
	pub := newFakePublisher()
	p := &Processor{Publisher: pub, History: &fakeHistory{}}
	fd := baseFeed("ip")
	fd.AcceptEmpty = false

	_, _, err := p.Process(context.Background(), fd, nil, RunContext{Version: 1, GeneratedAt: time.Now(), SourceMTime: time.Now()})
	assert.Error(t, err)
}

func TestProcessWindowedHistoryProducesSyntheticFeed(t *testing.T) {
	pub := newFakePublisher()
	hist := &fakeHistory{unioned: ipset.Parse([]string{"192.168.1.1"})}
	p := &Processor{Publisher: pub, History: hist}

	fd := baseFeed("ip")
	fd.HistoryWindowsMin = []int{1440}

	snaps, _, err := p.Process(context.Background(), fd, []string{"10.0.0.1"}, RunContext{
		Version: 1, GeneratedAt: time.Now(), SourceMTime: time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	var windowName string
	for _, s := range snaps {
		if s.Name != "demo" {
			windowName = s.Name
		}
	}
	assert.Equal(t, "demo_1d", windowName)
}

func TestHumanizeWindow(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{time.Hour, "1h"},
		{6 * time.Hour, "6h"},
		{24 * time.Hour, "1d"},
		{7 * 24 * time.Hour, "7d"},
		{30 * 24 * time.Hour, "30d"},
		{25 * time.Hour, "1d1h"},
		{90 * time.Minute, "1h30m"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, humanizeWindow(c.d), c.d.String())
	}
}
