package ipset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAddr(t *testing.T) {
	v, err := ParseAddr("192.168.1.1")
	assert.NoError(t, err)
	assert.Equal(t, uint32(192)<<24|uint32(168)<<16|uint32(1)<<8|uint32(1), v)

	assert.Equal(t, "192.168.1.1", FormatAddr(v))
}

func TestParseAddrRejectsZeroPrefixedOctets(t *testing.T) {
	_, err := ParseAddr("010.0.0.1")
	assert.Error(t, err)

	_, err = ParseAddr("10.0.00.1")
	assert.Error(t, err)
}

func TestParseAddrRejectsMalformed(t *testing.T) {
	cases := []string{"1.2.3", "1.2.3.4.5", "1.2.3.256", "a.b.c.d", ""}
	for _, c := range cases {
		_, err := ParseAddr(c)
		assert.Errorf(t, err, "expected error for %q", c)
	}
}

func TestParseLineBareAddress(t *testing.T) {
	r, ok := ParseLine("10.0.0.1")
	assert.True(t, ok)
	assert.Equal(t, r.Start, r.End)
}

func TestParseLineCIDRDecimal(t *testing.T) {
	r, ok := ParseLine("10.0.0.0/24")
	assert.True(t, ok)
	assert.Equal(t, Range{Start: 10 << 24, End: 10<<24 | 255}, r)
}

func TestParseLineCIDRDottedMask(t *testing.T) {
	r, ok := ParseLine("10.0.0.0/255.255.255.0")
	assert.True(t, ok)
	assert.Equal(t, Range{Start: 10 << 24, End: 10<<24 | 255}, r)
}

func TestParseLineDashRange(t *testing.T) {
	r, ok := ParseLine("10.0.0.5-10.0.0.10")
	assert.True(t, ok)
	assert.Equal(t, uint32(10)<<24|5, r.Start)
	assert.Equal(t, uint32(10)<<24|10, r.End)
}

func TestParseLineRejectsBackwardsRange(t *testing.T) {
	_, ok := ParseLine("10.0.0.10-10.0.0.5")
	assert.False(t, ok)
}

func TestParseLineRejectsZeroPrefixedPrefixLength(t *testing.T) {
	_, ok := ParseLine("10.0.0.0/024")
	assert.False(t, ok)
}

func TestParseLineRejectsNonContiguousMask(t *testing.T) {
	_, ok := ParseLine("10.0.0.0/255.0.255.0")
	assert.False(t, ok)
}

func TestParseDropsInvalidLines(t *testing.T) {
	s := Parse([]string{"10.0.0.1", "not-an-ip", "10.0.0.0/24", ""})
	entries, _ := s.Count()
	assert.Greater(t, entries, 0)
	assert.True(t, s.Contains(10<<24))
	assert.False(t, s.Contains(1))
}
