package binary

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipcurator/curator/pkg/ipset"
)

func TestWriteReadRoundTrip(t *testing.T) {
	s := ipset.New(
		ipset.Range{Start: 1, End: 10},
		ipset.Range{Start: 100, End: 200},
	)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, s))

	got, err := Read(&buf)
	require.NoError(t, err)
	assert.True(t, ipset.Equal(s, got))
}

func TestReadRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("XXXX")
	buf.Write(make([]byte, 5))
	_, err := Read(&buf)
	assert.Error(t, err)
}

func TestWriteFileReadFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.bin")
	s := ipset.New(ipset.Range{Start: 5, End: 9})

	require.NoError(t, WriteFile(path, s))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.True(t, ipset.Equal(s, got))
}

func TestUnionFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.bin")
	b := filepath.Join(dir, "b.bin")

	require.NoError(t, WriteFile(a, ipset.New(ipset.Range{Start: 1, End: 5})))
	require.NoError(t, WriteFile(b, ipset.New(ipset.Range{Start: 10, End: 20})))

	union, err := UnionFiles([]string{a, b})
	require.NoError(t, err)

	want := ipset.New(ipset.Range{Start: 1, End: 5}, ipset.Range{Start: 10, End: 20})
	assert.True(t, ipset.Equal(want, union))
}

func TestUnionFilesOverlapping(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.bin")
	b := filepath.Join(dir, "b.bin")

	require.NoError(t, WriteFile(a, ipset.New(ipset.Range{Start: 1, End: 10})))
	require.NoError(t, WriteFile(b, ipset.New(ipset.Range{Start: 5, End: 15})))

	union, err := UnionFiles([]string{a, b})
	require.NoError(t, err)

	want := ipset.New(ipset.Range{Start: 1, End: 15})
	assert.True(t, ipset.Equal(want, union))
}
