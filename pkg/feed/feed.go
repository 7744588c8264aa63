// Package feed applies a parsed token stream to the IP-range engine and
// produces the canonical on-disk snapshot the publisher writes, per
// spec §4.5: representation policy, canonical-form header, idempotence,
// and windowed history composition.
package feed

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ipcurator/curator/internal/logger"
	"github.com/ipcurator/curator/pkg/curatorerr"
	"github.com/ipcurator/curator/pkg/ipset"
	"github.com/ipcurator/curator/pkg/registry"
)

// Publisher is the narrow interface the set processor needs from C9. It
// is satisfied by pkg/publish.Publisher; defining it here (rather than
// importing pkg/publish) keeps the set processor ignorant of filesystem
// and kernel mechanics.
type Publisher interface {
	// Current returns the previously published canonical text for
	// name.kind, if any.
	Current(ctx context.Context, name, kind string) (canonical []byte, ok bool, err error)
	// Publish atomically writes canonical as name.kind with mtime set to
	// mtime; a non-nil error means the publication did not complete.
	Publish(ctx context.Context, name, kind string, canonical []byte, mtime time.Time) error
	// Touch refreshes name.kind's mtime without changing its content,
	// used on the idempotent path.
	Touch(ctx context.Context, name, kind string, mtime time.Time) error
}

// HistoryStore is the narrow interface the set processor needs from C6.
type HistoryStore interface {
	UnionSince(feed string, since time.Duration, now time.Time) (*ipset.Set, error)
}

// RunContext carries the per-run values the set processor needs but does
// not own: the metadata cache assigns the candidate version and the
// orchestrator stamps the run's generation time and the source's mtime.
type RunContext struct {
	Version     int
	GeneratedAt time.Time
	SourceMTime time.Time
	SourceURL   string
}

// Snapshot describes one published (or idempotently-skipped) output of a
// Process call: the base feed itself, one of its _ip/_net split peers, or
// one of its _<window> windowed aggregates.
type Snapshot struct {
	Name    string
	Kind    string // "ipset" or "netset"
	Text    []byte
	Entries int
	IPs     uint64
	Changed bool // false when idempotent: publisher was not invoked
	Version int
}

// Processor implements C5 over a Publisher and HistoryStore collaborator.
type Processor struct {
	Publisher        Publisher
	History          HistoryStore
	ReduceFactor     int
	ReduceMinEntries int
}

// Process parses tokens, canonicalizes through pkg/ipset, applies the
// feed's representation policy, and composes any configured history
// windows, publishing each resulting snapshot through p.Publisher. It
// also returns the base canonical Set (pre-representation-split), which
// the orchestrator feeds to the history archive and retention tracker.
func (p *Processor) Process(ctx context.Context, fd *registry.FeedDefinition, tokens []string, rc RunContext) ([]Snapshot, *ipset.Set, error) {
	set := ipset.Parse(tokens)
	if set.Empty() && !fd.AcceptEmpty {
		return nil, nil, curatorerr.ForFeed(curatorerr.ErrParse, fd.Name, "parsed token stream is empty and feed does not accept-empty")
	}

	out, err := p.processSet(ctx, fd.Name, fd.Representation, set, fd, rc)
	if err != nil {
		return nil, nil, err
	}

	for _, w := range fd.Windows() {
		unioned, err := p.History.UnionSince(fd.Name, w, rc.GeneratedAt)
		if err != nil {
			return nil, nil, curatorerr.WrapFeed(curatorerr.ErrParse, fd.Name, "windowed union", err)
		}
		winName := fd.Name + "_" + humanizeWindow(w)
		winSnaps, err := p.processSet(ctx, winName, fd.Representation, unioned, fd, rc)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, winSnaps...)
	}

	return out, set, nil
}

// processSet applies the representation policy to an already-canonical
// set under the given publication name, recursing for split.
func (p *Processor) processSet(ctx context.Context, name, representation string, set *ipset.Set, fd *registry.FeedDefinition, rc RunContext) ([]Snapshot, error) {
	switch representation {
	case "split":
		ipSnaps, err := p.processSet(ctx, name+"_ip", "ip", set, fd, rc)
		if err != nil {
			return nil, err
		}
		netSnaps, err := p.processSet(ctx, name+"_net", "net", set, fd, rc)
		if err != nil {
			return nil, err
		}
		return append(ipSnaps, netSnaps...), nil
	case "ip":
		return p.publishOne(ctx, name, "ipset", ipOnlyLines(set), set, fd, rc)
	case "net":
		return p.publishOne(ctx, name, "netset", netOnlyLines(set), set, fd, rc)
	case "both":
		return p.publishOne(ctx, name, "netset", allLines(set), set, fd, rc)
	default:
		return nil, curatorerr.New(curatorerr.ErrConfig, fmt.Sprintf("feed: unknown representation %q", representation))
	}
}

func ipOnlyLines(set *ipset.Set) []string {
	var lines []string
	for _, r := range set.Ranges() {
		if r.Start == r.End {
			lines = append(lines, ipset.FormatAddr(r.Start))
			continue
		}
		for a := r.Start; ; a++ {
			lines = append(lines, ipset.FormatAddr(a))
			if a == r.End {
				break
			}
		}
	}
	return lines
}

func netOnlyLines(set *ipset.Set) []string {
	var lines []string
	for _, c := range set.CIDRs() {
		if c.Prefix == 32 {
			continue
		}
		lines = append(lines, c.String())
	}
	return lines
}

func allLines(set *ipset.Set) []string {
	var lines []string
	for _, c := range set.CIDRs() {
		lines = append(lines, c.String())
	}
	return lines
}

func (p *Processor) publishOne(ctx context.Context, name, kind string, lines []string, set *ipset.Set, fd *registry.FeedDefinition, rc RunContext) ([]Snapshot, error) {
	entries, ips := set.Count()
	if kind == "ipset" {
		entries = len(lines)
	}

	body := strings.Join(lines, "\n")
	if body != "" {
		body += "\n"
	}

	header := headerFields{
		Name:        name,
		Family:      "IPv4",
		HashKind:    kind,
		Description: fd.Description,
		Maintainer:  fd.Maintainer,
		License:     fd.License,
		Category:    fd.Category,
		SourceURL:   rc.SourceURL,
		SourceMTime: rc.SourceMTime,
		PeriodMin:   fd.UpdatePeriodMin,
		Entries:     entries,
		IPs:         ips,
	}

	digest := bodyDigest(header, body)
	full := renderSnapshot(header, digest, rc.Version, rc.GeneratedAt, body)

	prev, found, err := p.Publisher.Current(ctx, name, kind)
	if err != nil {
		return nil, curatorerr.WrapFeed(curatorerr.ErrPublishFS, name, "read current snapshot", err)
	}

	if found && extractDigest(prev) == digest {
		if err := p.Publisher.Touch(ctx, name, kind, rc.SourceMTime); err != nil {
			return nil, curatorerr.WrapFeed(curatorerr.ErrPublishFS, name, "touch snapshot", err)
		}
		logger.DebugCtx(ctx, "feed: idempotent, skipping publish", "name", name, "kind", kind)
		return []Snapshot{{Name: name, Kind: kind, Text: prev, Entries: entries, IPs: ips, Changed: false}}, nil
	}

	if err := p.Publisher.Publish(ctx, name, kind, full, rc.SourceMTime); err != nil {
		return nil, curatorerr.WrapFeed(curatorerr.ErrPublishFS, name, "publish snapshot", err)
	}
	logger.InfoCtx(ctx, "feed: published snapshot", "name", name, "kind", kind, "entries", entries, "ips", ips)
	return []Snapshot{{Name: name, Kind: kind, Text: full, Entries: entries, IPs: ips, Changed: true, Version: rc.Version}}, nil
}

type headerFields struct {
	Name        string
	Family      string
	HashKind    string
	Description string
	Maintainer  string
	License     string
	Category    string
	SourceURL   string
	SourceMTime time.Time
	PeriodMin   int
	Entries     int
	IPs         uint64
}

// bodyDigest hashes the header fields that are stable across idempotent
// re-runs (everything except Version and the generation timestamp) plus
// the body, so Process can detect "nothing changed" without re-parsing
// the previously published header.
func bodyDigest(h headerFields, body string) string {
	sum := sha256.New()
	fmt.Fprintf(sum, "%s\x00%s\x00%s\x00%s\x00%s\x00%s\x00%s\x00%s\x00%d\x00%s",
		h.Name, h.Family, h.HashKind, h.Description, h.Maintainer, h.License,
		h.Category, h.SourceURL, h.PeriodMin, body)
	fmt.Fprintf(sum, "\x00%d", h.SourceMTime.Unix())
	return hex.EncodeToString(sum.Sum(nil))
}

const digestPrefix = "# body-digest: "

func extractDigest(text []byte) string {
	for _, line := range strings.Split(string(text), "\n") {
		if strings.HasPrefix(line, digestPrefix) {
			return strings.TrimPrefix(line, digestPrefix)
		}
	}
	return ""
}

// renderSnapshot writes the §6 canonical header followed by one CIDR/
// address per line. Header lines begin with '#'.
func renderSnapshot(h headerFields, digest string, version int, generated time.Time, body string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# Name: %s\n", h.Name)
	fmt.Fprintf(&buf, "# Family: %s (%s)\n", h.Family, h.HashKind)
	fmt.Fprintf(&buf, "# Description: %s\n", h.Description)
	fmt.Fprintf(&buf, "# Maintainer: %s\n", h.Maintainer)
	if h.License != "" {
		fmt.Fprintf(&buf, "# License: %s\n", h.License)
	}
	fmt.Fprintf(&buf, "# Source-URL: %s\n", h.SourceURL)
	fmt.Fprintf(&buf, "# Source-Mtime: %s\n", h.SourceMTime.UTC().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "# Category: %s\n", h.Category)
	fmt.Fprintf(&buf, "# Version: %d\n", version)
	fmt.Fprintf(&buf, "# Generated: %s\n", generated.UTC().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "# Period-Minutes: %d\n", h.PeriodMin)
	fmt.Fprintf(&buf, "# Entries: %d\n", h.Entries)
	fmt.Fprintf(&buf, "# Unique-IPs: %d\n", h.IPs)
	fmt.Fprintf(&buf, "%s%s\n", digestPrefix, digest)
	buf.WriteString(body)
	return buf.Bytes()
}

// humanizeWindow renders a duration as a compact window suffix without
// the leading underscore: whole days as "Nd", whole hours as "Nh", whole
// minutes under an hour as "Nm", otherwise "NdMh" (minutes dropped) when
// there are days, or "NhMm" when there are none.
func humanizeWindow(d time.Duration) string {
	totalMinutes := int64(d / time.Minute)
	days := totalMinutes / (24 * 60)
	rem := totalMinutes % (24 * 60)
	hours := rem / 60
	mins := rem % 60

	switch {
	case days > 0 && hours == 0 && mins == 0:
		return fmt.Sprintf("%dd", days)
	case days == 0 && mins == 0 && hours > 0:
		return fmt.Sprintf("%dh", hours)
	case days == 0 && hours == 0 && mins > 0:
		return fmt.Sprintf("%dm", mins)
	case days > 0:
		return fmt.Sprintf("%dd%dh", days, hours)
	default:
		return fmt.Sprintf("%dh%dm", hours, mins)
	}
}
