package publish

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKernel struct {
	names     []string
	created   []string
	restored  map[string][]string
	swapped   [][2]string
	destroyed []string
}

func newFakeKernel(existing ...string) *fakeKernel {
	return &fakeKernel{names: existing, restored: map[string][]string{}}
}

func (k *fakeKernel) ListNames(ctx context.Context) ([]string, error) { return k.names, nil }

func (k *fakeKernel) Create(ctx context.Context, name, kind string, maxElem int) error {
	k.created = append(k.created, name)
	return nil
}

func (k *fakeKernel) Restore(ctx context.Context, name string, entries []string) error {
	k.restored[name] = entries
	return nil
}

func (k *fakeKernel) Swap(ctx context.Context, a, b string) error {
	k.swapped = append(k.swapped, [2]string{a, b})
	return nil
}

func (k *fakeKernel) Destroy(ctx context.Context, name string) error {
	k.destroyed = append(k.destroyed, name)
	return nil
}

func TestPublishWritesFileWithSourceMtime(t *testing.T) {
	dir := t.TempDir()
	p := &Publisher{BaseDir: dir}
	mtime := time.Unix(1_700_000_000, 0)

	require.NoError(t, p.Publish(context.Background(), "demo", "ipset", []byte("# header\n10.0.0.1\n"), mtime))

	info, err := os.Stat(filepath.Join(dir, "demo.ipset"))
	require.NoError(t, err)
	assert.Equal(t, mtime.Unix(), info.ModTime().Unix())

	data, err := os.ReadFile(filepath.Join(dir, "demo.ipset"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "10.0.0.1")
}

func TestCurrentReturnsFalseWhenNotYetPublished(t *testing.T) {
	p := &Publisher{BaseDir: t.TempDir()}
	_, ok, err := p.Current(context.Background(), "demo", "ipset")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTouchRefreshesMtimeOnly(t *testing.T) {
	dir := t.TempDir()
	p := &Publisher{BaseDir: dir}
	mtime := time.Unix(1_700_000_000, 0)
	require.NoError(t, p.Publish(context.Background(), "demo", "ipset", []byte("# header\n10.0.0.1\n"), mtime))

	newMtime := mtime.Add(time.Hour)
	require.NoError(t, p.Touch(context.Background(), "demo", "ipset", newMtime))

	info, err := os.Stat(filepath.Join(dir, "demo.ipset"))
	require.NoError(t, err)
	assert.Equal(t, newMtime.Unix(), info.ModTime().Unix())

	data, err := os.ReadFile(filepath.Join(dir, "demo.ipset"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "10.0.0.1")
}

func TestPublishCreatesKernelSetWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	kernel := newFakeKernel()
	p := &Publisher{BaseDir: dir, Kernel: kernel}

	require.NoError(t, p.Publish(context.Background(), "demo", "ipset", []byte("# header\n10.0.0.1\n"), time.Now()))
	assert.Contains(t, kernel.created, "demo")
	assert.Empty(t, kernel.swapped)
	assert.Equal(t, []string{"10.0.0.1"}, kernel.restored["demo"])
}

func TestPublishSwapsExistingKernelSet(t *testing.T) {
	dir := t.TempDir()
	kernel := newFakeKernel("demo")
	p := &Publisher{BaseDir: dir, Kernel: kernel}

	require.NoError(t, p.Publish(context.Background(), "demo", "ipset", []byte("# header\n10.0.0.1\n10.0.0.2\n"), time.Now()))
	require.Len(t, kernel.swapped, 1)
	assert.Equal(t, "demo", kernel.swapped[0][0])
	assert.Contains(t, kernel.destroyed, kernel.swapped[0][1])
	assert.ElementsMatch(t, []string{"10.0.0.1", "10.0.0.2"}, kernel.restored[kernel.swapped[0][1]])
}

func TestPublishPreservesFailedArtifactWhenEnabled(t *testing.T) {
	dir := t.TempDir()
	errorsDir := t.TempDir()
	badBase := filepath.Join(dir, "does", "not", "exist")
	p := &Publisher{BaseDir: badBase, ErrorsDir: errorsDir, PreserveErrs: true}

	err := p.Publish(context.Background(), "demo", "netset", []byte("# header\n10.0.0.0/24\n"), time.Now())
	assert.Error(t, err)

	data, readErr := os.ReadFile(filepath.Join(errorsDir, "demo.netset"))
	require.NoError(t, readErr)
	assert.Contains(t, string(data), "10.0.0.0/24")
}

func TestNullKernelAdapterIsAllNoops(t *testing.T) {
	var k NullKernelAdapter
	names, err := k.ListNames(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.NoError(t, k.Create(context.Background(), "x", "ipset", 100))
	assert.NoError(t, k.Restore(context.Background(), "x", nil))
	assert.NoError(t, k.Swap(context.Background(), "a", "b"))
	assert.NoError(t, k.Destroy(context.Background(), "x"))
}

func TestBodyLinesStripsHeader(t *testing.T) {
	lines := bodyLines([]byte("# a\n# b\n10.0.0.1\n\n10.0.0.2\n"))
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, lines)
}
