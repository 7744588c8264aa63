// Package ipset implements the canonical representation and algebra over
// IPv4 address sets that every downstream component (parser, set
// processor, history store, retention tracker, publisher) builds on.
//
// A Set is a sorted list of non-overlapping, non-adjacent closed integer
// ranges [a, b] over the uint32 address space. Equality is structural after
// canonicalize: two sets describing the same addresses always canonicalize
// to the same range slice.
package ipset

import (
	"sort"
)

// Range is a closed interval [Start, End] of uint32 IPv4 addresses,
// inclusive on both ends.
type Range struct {
	Start uint32
	End   uint32
}

// Set is a canonical (sorted, merged) collection of address ranges.
// The zero value is an empty set.
type Set struct {
	ranges []Range
}

// New builds a canonical Set from arbitrary (possibly overlapping,
// unsorted) ranges.
func New(ranges ...Range) *Set {
	s := &Set{ranges: append([]Range(nil), ranges...)}
	s.canonicalize()
	return s
}

// Empty reports whether the set contains no addresses.
func (s *Set) Empty() bool {
	return s == nil || len(s.ranges) == 0
}

// Ranges returns the canonical ranges in ascending order. The caller must
// not mutate the returned slice.
func (s *Set) Ranges() []Range {
	if s == nil {
		return nil
	}
	return s.ranges
}

// Add merges r into the set in place, re-canonicalizing.
func (s *Set) Add(r Range) {
	if r.Start > r.End {
		return
	}
	s.ranges = append(s.ranges, r)
	s.canonicalize()
}

// canonicalize sorts ranges by start address and merges any that overlap
// or are adjacent (End+1 == nextStart). This is the single place the
// invariant "sorted, non-overlapping, non-adjacent" is established.
func (s *Set) canonicalize() {
	if len(s.ranges) == 0 {
		return
	}
	sort.Slice(s.ranges, func(i, j int) bool {
		if s.ranges[i].Start != s.ranges[j].Start {
			return s.ranges[i].Start < s.ranges[j].Start
		}
		return s.ranges[i].End < s.ranges[j].End
	})

	out := s.ranges[:0:0]
	cur := s.ranges[0]
	for _, r := range s.ranges[1:] {
		if r.Start > cur.End && r.Start-cur.End > 1 {
			out = append(out, cur)
			cur = r
			continue
		}
		if r.End > cur.End {
			cur.End = r.End
		}
	}
	out = append(out, cur)
	s.ranges = out
}

// Clone returns a deep copy of the set.
func (s *Set) Clone() *Set {
	if s == nil {
		return New()
	}
	return &Set{ranges: append([]Range(nil), s.ranges...)}
}

// Equal reports whether two sets describe exactly the same addresses.
// Both sets are assumed canonical (true of any *Set returned by this
// package), so equality is a structural slice comparison.
func Equal(a, b *Set) bool {
	ar, br := a.Ranges(), b.Ranges()
	if len(ar) != len(br) {
		return false
	}
	for i := range ar {
		if ar[i] != br[i] {
			return false
		}
	}
	return true
}

// Count returns the number of minimal CIDRs needed to express the set
// (entries) and the total number of unique addresses it covers (ips).
func (s *Set) Count() (entries int, ips uint64) {
	for _, r := range s.Ranges() {
		entries += len(cidrsForRange(r))
		ips += uint64(r.End-r.Start) + 1
	}
	return entries, ips
}

// Contains reports whether addr falls within the set.
func (s *Set) Contains(addr uint32) bool {
	rs := s.Ranges()
	i := sort.Search(len(rs), func(i int) bool { return rs[i].End >= addr })
	return i < len(rs) && rs[i].Start <= addr
}
