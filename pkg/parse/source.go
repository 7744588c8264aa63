package parse

import (
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/buger/jsonparser"
)

// SnortRuleExtractor pulls the bracketed source-address list out of Snort
// "alert ip [a,b,c] any -> ..." rules, one address per output line.
func SnortRuleExtractor() Transformer {
	return LineTransformer(func(line string) (string, bool) {
		if !strings.HasPrefix(strings.TrimSpace(line), "alert") {
			return "", false
		}
		start := strings.IndexByte(line, '[')
		end := strings.IndexByte(line, ']')
		if start < 0 || end < 0 || end < start {
			return "", false
		}
		return strings.Join(strings.Split(line[start+1:end], ","), "\n"), true
	})
}

var pfDenyRegexp = regexp.MustCompile(`access-list\s+\S+\s+deny\s+ip\s+(\S+)\s+(\S+)\s+any`)

// PacketFilterDenyExtractor keeps "access-list ... deny ip HOST/NET any"
// lines and rewrites the host/wildcard pair to a CIDR. Only the common
// "host A.B.C.D" and "A.B.C.D W.X.Y.Z" wildcard-mask forms are handled;
// anything else is dropped.
func PacketFilterDenyExtractor() Transformer {
	return LineTransformer(func(line string) (string, bool) {
		m := pfDenyRegexp.FindStringSubmatch(line)
		if m == nil {
			return "", false
		}
		first, second := m[1], m[2]
		if first == "host" {
			return second, true
		}
		prefix, ok := wildcardMaskToPrefix(second)
		if !ok {
			return "", false
		}
		return first + "/" + strconv.Itoa(prefix), true
	})
}

// wildcardMaskToPrefix converts a Cisco-style inverted wildcard mask
// (0.0.0.255 means /24) to a prefix length.
func wildcardMaskToPrefix(wildcard string) (int, bool) {
	parts := strings.Split(wildcard, ".")
	if len(parts) != 4 {
		return 0, false
	}
	var v uint32
	for _, p := range parts {
		n := 0
		for _, c := range p {
			if c < '0' || c > '9' {
				return 0, false
			}
			n = n*10 + int(c-'0')
		}
		if n > 255 {
			return 0, false
		}
		v = v<<8 | uint32(n)
	}
	netmask := ^v
	return maskValueToPrefix(netmask)
}

func maskValueToPrefix(v uint32) (int, bool) {
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

// XMLTagFilter is a minimal XML/RSS reader that keeps only the text
// content of the named tag, splitting on '<'/'>' rather than pulling in a
// full XML parser for feeds that are really just RSS lists of addresses.
func XMLTagFilter(tag string) Transformer {
	open := "<" + tag + ">"
	closeTag := "</" + tag + ">"
	return LineTransformer(func(line string) (string, bool) {
		start := strings.Index(line, open)
		if start < 0 {
			return "", false
		}
		rest := line[start+len(open):]
		end := strings.Index(rest, closeTag)
		if end < 0 {
			return "", false
		}
		return strings.TrimSpace(rest[:end]), true
	})
}

// ColumnSelector splits each line on sep and returns column n (0-indexed).
func ColumnSelector(sep string, n int) Transformer {
	return LineTransformer(func(line string) (string, bool) {
		cols := strings.Split(line, sep)
		if n < 0 || n >= len(cols) {
			return "", false
		}
		return strings.TrimSpace(cols[n]), true
	})
}

// CSVStatusFilter keeps only CSV rows whose statusCol equals one of the
// accepted values (e.g. "online"), then returns ipCol from the surviving
// rows.
func CSVStatusFilter(statusCol int, accept []string, ipCol int) Transformer {
	accepted := make(map[string]bool, len(accept))
	for _, a := range accept {
		accepted[strings.ToLower(a)] = true
	}
	return LineTransformer(func(line string) (string, bool) {
		cols := strings.Split(line, ",")
		if statusCol >= len(cols) || ipCol >= len(cols) {
			return "", false
		}
		if !accepted[strings.ToLower(strings.TrimSpace(cols[statusCol]))] {
			return "", false
		}
		return strings.TrimSpace(cols[ipCol]), true
	})
}

// JSONExtractor pulls addresses out of a feed that publishes a JSON array
// of strings, or an array of objects with the given field holding the
// address, using jsonparser's streaming ArrayEach rather than unmarshaling
// into an intermediate struct slice.
func JSONExtractor(field string) Transformer {
	return jsonTransformer{field: field}
}

type jsonTransformer struct{ field string }

func (j jsonTransformer) Transform(r io.Reader) io.Reader {
	pr, pw := io.Pipe()
	go func() {
		data, err := io.ReadAll(r)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		_, err = jsonparser.ArrayEach(data, func(value []byte, dataType jsonparser.ValueType, offset int, err error) {
			if err != nil {
				return
			}
			var addr string
			switch dataType {
			case jsonparser.String:
				addr = string(value)
			case jsonparser.Object:
				if j.field == "" {
					return
				}
				if v, verr := jsonparser.GetString(value, j.field); verr == nil {
					addr = v
				}
			}
			if addr != "" {
				pw.Write([]byte(addr + "\n"))
			}
		})
		pw.CloseWithError(err)
	}()
	return pr
}
