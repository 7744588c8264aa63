package parse

import (
	"regexp"
	"strconv"
	"strings"
)

// StripHashComments drops everything from the first '#' onward
// and discards lines that become empty.
func StripHashComments() Transformer {
	return LineTransformer(func(line string) (string, bool) {
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		return line, line != ""
	})
}

// StripSemicolonComments drops everything from the first ';' onward.
func StripSemicolonComments() Transformer {
	return LineTransformer(func(line string) (string, bool) {
		if i := strings.IndexByte(line, ';'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		return line, line != ""
	})
}

// TrimWhitespace strips leading/trailing whitespace and drops blank lines.
func TrimWhitespace() Transformer {
	return LineTransformer(func(line string) (string, bool) {
		line = strings.TrimSpace(line)
		return line, line != ""
	})
}

// AppendSlash32 appends "/32" to a bare address (one with no '/' suffix),
// leaving CIDRs and ranges untouched.
func AppendSlash32() Transformer {
	return LineTransformer(func(line string) (string, bool) {
		if !strings.Contains(line, "/") && !strings.Contains(line, "-") {
			line += "/32"
		}
		return line, true
	})
}

// StripSlash32 removes a trailing "/32" suffix, the inverse of AppendSlash32.
func StripSlash32() Transformer {
	return LineTransformer(func(line string) (string, bool) {
		return strings.TrimSuffix(line, "/32"), true
	})
}

var dottedMaskRegexp = regexp.MustCompile(`^(\d{1,3}(?:\.\d{1,3}){3})/(\d{1,3}(?:\.\d{1,3}){3})$`)

// DottedMaskToBitmask rewrites "a.b.c.d/w.x.y.z" into "a.b.c.d/N",
// leaving lines that aren't a dotted-mask CIDR untouched.
func DottedMaskToBitmask() Transformer {
	return LineTransformer(func(line string) (string, bool) {
		m := dottedMaskRegexp.FindStringSubmatch(line)
		if m == nil {
			return line, true
		}
		prefix, ok := maskOctetsToPrefix(m[2])
		if !ok {
			return line, true
		}
		return m[1] + "/" + strconv.Itoa(prefix), true
	})
}

func maskOctetsToPrefix(mask string) (int, bool) {
	parts := strings.Split(mask, ".")
	if len(parts) != 4 {
		return 0, false
	}
	var v uint32
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return 0, false
		}
		v = v<<8 | uint32(n)
	}
	ones := 0
	seenZero := false
	for i := 31; i >= 0; i-- {
		bit := (v >> uint(i)) & 1
		if bit == 1 {
			if seenZero {
				return 0, false
			}
			ones++
		} else {
			seenZero = true
		}
	}
	return ones, true
}

// CSVColumn extracts column n (0-indexed) from a comma-separated line.
func CSVColumn(n int) Transformer {
	return LineTransformer(func(line string) (string, bool) {
		cols := strings.Split(line, ",")
		if n < 0 || n >= len(cols) {
			return "", false
		}
		return strings.TrimSpace(cols[n]), true
	})
}

// strictIPv4OrCIDR matches a dotted-quad address with an optional mask,
// anchored so embedded substrings of longer dotted numbers can't match.
var strictIPv4OrCIDR = regexp.MustCompile(
	`^(?:[0-9]|[1-9][0-9]|1[0-9]{2}|2[0-4][0-9]|25[0-5])(?:\.(?:[0-9]|[1-9][0-9]|1[0-9]{2}|2[0-4][0-9]|25[0-5])){3}(?:/(?:[0-9]|[12][0-9]|3[0-2]))?$`,
)

// StrictIPv4Filter keeps only lines that are a well-formed dotted-quad
// address with an optional /prefix, dropping everything else.
func StrictIPv4Filter() Transformer {
	return LineTransformer(func(line string) (string, bool) {
		return line, strictIPv4OrCIDR.MatchString(line)
	})
}

// ValidityFilter drops 0.0.0.0 and any explicit /0, the two entries that
// are syntactically valid but never a legitimate denylist member.
func ValidityFilter() Transformer {
	return LineTransformer(func(line string) (string, bool) {
		if line == "0.0.0.0" || strings.HasSuffix(line, "/0") {
			return "", false
		}
		return line, true
	})
}
