package ipset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeMergesOverlapAndAdjacency(t *testing.T) {
	s := New(
		Range{Start: 10, End: 20},
		Range{Start: 21, End: 30}, // adjacent to the first
		Range{Start: 5, End: 9},   // adjacent on the other side
		Range{Start: 100, End: 200},
		Range{Start: 150, End: 160}, // fully contained, overlapping
	)

	require.Equal(t, []Range{
		{Start: 5, End: 30},
		{Start: 100, End: 200},
	}, s.Ranges())
}

func TestCanonicalizeIsIdempotent(t *testing.T) {
	s := New(Range{Start: 1, End: 5}, Range{Start: 6, End: 10})
	first := append([]Range(nil), s.Ranges()...)
	s.canonicalize()
	assert.Equal(t, first, s.Ranges())
}

func TestEqual(t *testing.T) {
	a := New(Range{Start: 1, End: 5}, Range{Start: 10, End: 20})
	b := New(Range{Start: 10, End: 20}, Range{Start: 1, End: 5})
	c := New(Range{Start: 1, End: 6}, Range{Start: 10, End: 20})

	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, c))
}

func TestContains(t *testing.T) {
	s := New(Range{Start: 10, End: 20}, Range{Start: 100, End: 100})
	assert.True(t, s.Contains(10))
	assert.True(t, s.Contains(15))
	assert.True(t, s.Contains(20))
	assert.True(t, s.Contains(100))
	assert.False(t, s.Contains(9))
	assert.False(t, s.Contains(21))
	assert.False(t, s.Contains(99))
}

func TestCount(t *testing.T) {
	s := New(Range{Start: 0, End: 255}) // exactly a /24
	entries, ips := s.Count()
	assert.Equal(t, 1, entries)
	assert.Equal(t, uint64(256), ips)
}

func TestEmptySet(t *testing.T) {
	var s *Set
	assert.True(t, s.Empty())
	assert.Nil(t, s.Ranges())
	assert.False(t, s.Contains(1))

	s2 := New()
	assert.True(t, s2.Empty())
}

func TestCloneIsIndependent(t *testing.T) {
	a := New(Range{Start: 1, End: 5})
	b := a.Clone()
	b.Add(Range{Start: 100, End: 200})

	assert.True(t, Equal(a, New(Range{Start: 1, End: 5})))
	assert.False(t, Equal(a, b))
}
