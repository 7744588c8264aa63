package ipset

import "strings"

// ParseLine parses a single token into a Range. It accepts:
//   - bare addresses:     a.b.c.d
//   - CIDRs:               a.b.c.d/m      (1 <= m <= 32)
//   - dotted-mask CIDRs:   a.b.c.d/255.w.x.y
//   - dash ranges:         a.b.c.d-e.f.g.h
//
// Zero-prefixed octets are rejected. ParseLine never returns an error to
// the caller context beyond ok=false: malformed lines are meant to be
// silently dropped by Parse, per the engine's "parse errors are per-line
// and silent" contract.
func ParseLine(tok string) (Range, bool) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return Range{}, false
	}

	if i := strings.IndexByte(tok, '-'); i >= 0 && strings.IndexByte(tok, '/') < 0 {
		lo, err1 := ParseAddr(tok[:i])
		hi, err2 := ParseAddr(tok[i+1:])
		if err1 != nil || err2 != nil || lo > hi {
			return Range{}, false
		}
		return Range{Start: lo, End: hi}, true
	}

	if i := strings.IndexByte(tok, '/'); i >= 0 {
		addrPart, suffix := tok[:i], tok[i+1:]
		addr, err := ParseAddr(addrPart)
		if err != nil {
			return Range{}, false
		}
		if strings.IndexByte(suffix, '.') >= 0 {
			octets, err := splitOctets(suffix)
			if err != nil {
				return Range{}, false
			}
			prefix, err := maskToPrefix(octets)
			if err != nil || prefix < 1 || prefix > 32 {
				return Range{}, false
			}
			return rangeForCIDR(CIDR{Addr: addr, Prefix: prefix}), true
		}
		prefix, ok := parseDecimal(suffix)
		if !ok || prefix < 1 || prefix > 32 {
			return Range{}, false
		}
		return rangeForCIDR(CIDR{Addr: addr, Prefix: prefix}), true
	}

	addr, err := ParseAddr(tok)
	if err != nil {
		return Range{}, false
	}
	return Range{Start: addr, End: addr}, true
}

func parseDecimal(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, false // zero-prefixed prefix length, reject like octets
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

// Parse builds a canonical Set from a slice of tokens, one address, CIDR,
// range or dotted-mask entry each. Invalid tokens are silently dropped; the caller
// decides whether an empty result is an error.
func Parse(tokens []string) *Set {
	s := &Set{}
	for _, tok := range tokens {
		if r, ok := ParseLine(tok); ok {
			s.ranges = append(s.ranges, r)
		}
	}
	s.canonicalize()
	return s
}
