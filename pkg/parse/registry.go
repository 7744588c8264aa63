package parse

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/ipcurator/curator/pkg/curatorerr"
)

// Spec names one step of a feed's parser chain and its positional
// arguments, as decoded straight from feeds.yaml. Building a Chain from a
// []Spec resolves every name against the registry up front, so an unknown
// transformer name fails the run at config load rather than mid-fetch.
type Spec struct {
	Name string
	Args []string
}

// Factory builds a Transformer from a Spec's arguments.
type Factory func(args []string) (Transformer, error)

var factories = map[string]Factory{
	"strip-hash-comments":      noArgs(StripHashComments),
	"strip-semicolon-comments": noArgs(StripSemicolonComments),
	"trim-whitespace":          noArgs(TrimWhitespace),
	"append-slash32":           noArgs(AppendSlash32),
	"strip-slash32":            noArgs(StripSlash32),
	"dotted-mask-to-bitmask":   noArgs(DottedMaskToBitmask),
	"gzip-decompress":          noArgs(GzipDecompress),
	"zip-decompress":           noArgs(ZipDecompress),
	"strict-ipv4-filter":       noArgs(StrictIPv4Filter),
	"validity-filter":          noArgs(ValidityFilter),
	"snort-rule-extractor":     noArgs(SnortRuleExtractor),
	"pf-deny-extractor":        noArgs(PacketFilterDenyExtractor),

	"csv-column": func(args []string) (Transformer, error) {
		n, err := intArg(args, 0, "csv-column")
		if err != nil {
			return nil, err
		}
		return CSVColumn(n), nil
	},
	"xml-tag-filter": func(args []string) (Transformer, error) {
		tag, err := strArg(args, 0, "xml-tag-filter")
		if err != nil {
			return nil, err
		}
		return XMLTagFilter(tag), nil
	},
	"column-selector": func(args []string) (Transformer, error) {
		sep, err := strArg(args, 0, "column-selector")
		if err != nil {
			return nil, err
		}
		n, err := intArg(args, 1, "column-selector")
		if err != nil {
			return nil, err
		}
		return ColumnSelector(sep, n), nil
	},
	"csv-status-filter": func(args []string) (Transformer, error) {
		statusCol, err := intArg(args, 0, "csv-status-filter")
		if err != nil {
			return nil, err
		}
		ipCol, err := intArg(args, 1, "csv-status-filter")
		if err != nil {
			return nil, err
		}
		if len(args) < 3 {
			return nil, curatorerr.New(curatorerr.ErrConfig, "csv-status-filter: requires statusCol, ipCol, and at least one accepted value")
		}
		return CSVStatusFilter(statusCol, args[2:], ipCol), nil
	},
	"json-extractor": func(args []string) (Transformer, error) {
		field := ""
		if len(args) > 0 {
			field = args[0]
		}
		return JSONExtractor(field), nil
	},
}

func noArgs(f func() Transformer) Factory {
	return func(args []string) (Transformer, error) { return f(), nil }
}

func strArg(args []string, i int, name string) (string, error) {
	if i >= len(args) {
		return "", curatorerr.New(curatorerr.ErrConfig, fmt.Sprintf("%s: missing argument %d", name, i))
	}
	return args[i], nil
}

func intArg(args []string, i int, name string) (int, error) {
	s, err := strArg(args, i, name)
	if err != nil {
		return 0, err
	}
	n, convErr := strconv.Atoi(s)
	if convErr != nil {
		return 0, curatorerr.Wrap(curatorerr.ErrConfig, fmt.Sprintf("%s: argument %d %q is not an integer", name, i, s), convErr)
	}
	return n, nil
}

// Names returns every registered transformer name, sorted, for use by
// config validation and `curator` CLI help output.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build resolves each Spec in order against the registry and composes the
// result into a Chain. It fails on the first unknown transformer name or
// malformed argument list, rather than deferring that failure to the first
// feed that actually runs the chain.
func Build(specs []Spec) (Chain, error) {
	chain := make(Chain, 0, len(specs))
	for _, spec := range specs {
		factory, ok := factories[spec.Name]
		if !ok {
			return nil, curatorerr.New(curatorerr.ErrConfig, fmt.Sprintf("parse: unknown transformer %q", spec.Name))
		}
		t, err := factory(spec.Args)
		if err != nil {
			return nil, err
		}
		chain = append(chain, t)
	}
	return chain, nil
}
