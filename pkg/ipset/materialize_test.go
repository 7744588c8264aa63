package ipset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaterialize(t *testing.T) {
	s := New(Range{Start: 10<<24 | 0, End: 10<<24 | 2})
	addrs, err := s.Materialize(100)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0", "10.0.0.1", "10.0.0.2"}, addrs)
}

func TestMaterializeRefusesOverCap(t *testing.T) {
	s := New(Range{Start: 0, End: 1 << 20})
	_, err := s.Materialize(10)
	assert.Error(t, err)
}
