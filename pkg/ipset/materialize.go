package ipset

import "fmt"

// Materialize expands the set into individual dotted-decimal addresses in
// ascending order. Because a /0 or a handful of large blocks can represent
// billions of hosts, Materialize refuses to expand a set whose total
// address count exceeds cap, returning an error instead of exhausting
// memory. Callers that legitimately need more should iterate Ranges
// directly rather than materializing every host.
func (s *Set) Materialize(cap uint64) ([]string, error) {
	_, ips := s.Count()
	if ips > cap {
		return nil, fmt.Errorf("ipset: materialize would expand %d addresses, exceeds cap %d", ips, cap)
	}

	out := make([]string, 0, ips)
	for _, r := range s.Ranges() {
		for a := r.Start; ; a++ {
			out = append(out, FormatAddr(a))
			if a == r.End {
				break
			}
		}
	}
	return out, nil
}
