// Package registry loads and validates the feeds.yaml document: the
// in-memory collection of FeedDefinitions for a run. It is deliberately
// separate from pkg/config's run-level Config, mirroring the split the
// teacher draws between static server Config and its dynamically-managed
// control-plane state — here the equivalent split is "how the engine
// runs" versus "what it curates".
package registry

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ipcurator/curator/pkg/curatorerr"
	"github.com/ipcurator/curator/pkg/parse"
)

// TransformerSpec names one parser-chain step as written in feeds.yaml.
type TransformerSpec struct {
	Name string   `yaml:"name" validate:"required"`
	Args []string `yaml:"args,omitempty"`
}

// FeedDefinition is immutable within a run. See spec §3.
type FeedDefinition struct {
	Name              string            `yaml:"name" validate:"required"`
	SourceURL         string            `yaml:"source_url,omitempty"`
	SourcePath        string            `yaml:"source_path,omitempty"`
	FetcherKind       string            `yaml:"fetcher_kind" validate:"required,oneof=http local composite"`
	CompositeOf       string            `yaml:"composite_of,omitempty" validate:"required_if=FetcherKind composite"`
	UserAgent         string            `yaml:"user_agent,omitempty"`
	AcceptEmpty       bool              `yaml:"accept_empty,omitempty"`
	UpdatePeriodMin   int               `yaml:"update_period_minutes" validate:"required,gt=0"`
	HistoryWindowsMin []int             `yaml:"history_windows_minutes,omitempty"`
	AddressFamily     string            `yaml:"address_family,omitempty"`
	Representation    string            `yaml:"representation" validate:"required,oneof=ip net both split"`
	ParserChain       []TransformerSpec `yaml:"parser_chain"`
	Category          string            `yaml:"category,omitempty"`
	Maintainer        string            `yaml:"maintainer,omitempty"`
	License           string            `yaml:"license,omitempty"`
	IntendedUse       string            `yaml:"intended_use,omitempty"`
	Description       string            `yaml:"description,omitempty"`
	MaxElem           int               `yaml:"max_elem,omitempty"`

	chain parse.Chain
}

// Chain returns the parser chain resolved at load time.
func (fd *FeedDefinition) Chain() parse.Chain { return fd.chain }

// Period returns the feed's configured update period as a time.Duration.
func (fd *FeedDefinition) Period() time.Duration {
	return time.Duration(fd.UpdatePeriodMin) * time.Minute
}

// Windows returns the feed's configured history windows as time.Durations.
func (fd *FeedDefinition) Windows() []time.Duration {
	out := make([]time.Duration, len(fd.HistoryWindowsMin))
	for i, m := range fd.HistoryWindowsMin {
		out[i] = time.Duration(m) * time.Minute
	}
	return out
}

// LongestWindow returns the largest configured history window, or 0 if
// none are configured.
func (fd *FeedDefinition) LongestWindow() time.Duration {
	var max time.Duration
	for _, w := range fd.Windows() {
		if w > max {
			max = w
		}
	}
	return max
}

// document is the top-level shape of feeds.yaml.
type document struct {
	Feeds []FeedDefinition `yaml:"feeds"`
}

// Registry is the in-memory, read-only collection of FeedDefinitions for
// this run. Every other component treats it as owned-and-read-only, per
// spec §3's ownership rules.
type Registry struct {
	byName map[string]*FeedDefinition
	names  []string // sorted by name, stable iteration
}

// Load reads and validates path as a feeds.yaml document. Every
// FeedDefinition's parser chain is resolved against pkg/parse's registry
// immediately: an unknown transformer name or malformed argument list
// fails Load, not the first run that touches the feed.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, curatorerr.Wrap(curatorerr.ErrConfig, fmt.Sprintf("registry: read %s", path), err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, curatorerr.Wrap(curatorerr.ErrConfig, fmt.Sprintf("registry: parse %s", path), err)
	}

	return build(doc.Feeds)
}

// validate is shared across Load and tests that construct a Registry
// from an in-memory []FeedDefinition.
var validate = validator.New()

func build(feeds []FeedDefinition) (*Registry, error) {
	r := &Registry{byName: make(map[string]*FeedDefinition, len(feeds))}

	for i := range feeds {
		fd := &feeds[i]
		if err := validate.Struct(fd); err != nil {
			return nil, curatorerr.New(curatorerr.ErrConfig, fmt.Sprintf("registry: feed %q: %s", fd.Name, err))
		}
		if _, dup := r.byName[fd.Name]; dup {
			return nil, curatorerr.New(curatorerr.ErrConfig, fmt.Sprintf("registry: duplicate feed name %q", fd.Name))
		}
		if fd.FetcherKind == "http" && fd.SourceURL == "" {
			return nil, curatorerr.New(curatorerr.ErrConfig, fmt.Sprintf("registry: feed %q: fetcher_kind http requires source_url", fd.Name))
		}
		if fd.FetcherKind == "local" && fd.SourcePath == "" {
			return nil, curatorerr.New(curatorerr.ErrConfig, fmt.Sprintf("registry: feed %q: fetcher_kind local requires source_path", fd.Name))
		}
		if fd.AddressFamily == "" {
			fd.AddressFamily = "ipv4"
		}
		if fd.AddressFamily != "ipv4" {
			return nil, curatorerr.New(curatorerr.ErrConfig, fmt.Sprintf("registry: feed %q: address family %q not implemented", fd.Name, fd.AddressFamily))
		}

		specs := make([]parse.Spec, len(fd.ParserChain))
		for j, t := range fd.ParserChain {
			specs[j] = parse.Spec{Name: t.Name, Args: t.Args}
		}
		chain, err := parse.Build(specs)
		if err != nil {
			return nil, curatorerr.Wrap(curatorerr.ErrConfig, fmt.Sprintf("registry: feed %q: parser chain", fd.Name), err)
		}
		fd.chain = chain

		r.byName[fd.Name] = fd
		r.names = append(r.names, fd.Name)
	}

	sort.Strings(r.names)
	return r, nil
}

// Feeds returns every FeedDefinition, sorted by name for deterministic
// registry walks.
func (r *Registry) Feeds() []*FeedDefinition {
	out := make([]*FeedDefinition, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.byName[name])
	}
	return out
}

// Get looks up a single feed by name.
func (r *Registry) Get(name string) (*FeedDefinition, bool) {
	fd, ok := r.byName[name]
	return fd, ok
}

// Len returns the number of feeds in the registry.
func (r *Registry) Len() int { return len(r.names) }
