// Package publish implements the publisher (C9): it makes a new canonical
// snapshot visible on disk and, if a kernel adapter is configured, swaps
// it into the kernel-visible named set atomically.
package publish

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ipcurator/curator/internal/logger"
	"github.com/ipcurator/curator/pkg/curatorerr"
	"github.com/ipcurator/curator/pkg/ipset"
)

// KernelAdapter is the documented §6 interface to the packet-filter
// kernel boundary. All operations are expected to be atomic there.
type KernelAdapter interface {
	ListNames(ctx context.Context) ([]string, error)
	Create(ctx context.Context, name, kind string, maxElem int) error
	Restore(ctx context.Context, name string, entries []string) error
	Swap(ctx context.Context, a, b string) error
	Destroy(ctx context.Context, name string) error
}

// Publisher writes canonical snapshots to baseDir via the teacher's
// tmp+rename idiom and, when a non-nil KernelAdapter is configured, swaps
// the result into the kernel-visible named set.
type Publisher struct {
	BaseDir      string
	ErrorsDir    string
	PreserveErrs bool
	Kernel       KernelAdapter
	ReduceFactor int
	ReduceMinEnt int
	MaxElem      int
	Metrics      Metrics
}

func (p *Publisher) metrics() Metrics {
	if p.Metrics != nil {
		return p.Metrics
	}
	return noopMetrics{}
}

func (p *Publisher) path(name, kind string) string {
	return filepath.Join(p.BaseDir, name+"."+kind)
}

// Current returns the previously published canonical text for name.kind,
// satisfying pkg/feed.Publisher.
func (p *Publisher) Current(ctx context.Context, name, kind string) ([]byte, bool, error) {
	data, err := os.ReadFile(p.path(name, kind))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, curatorerr.WrapFeed(curatorerr.ErrPublishFS, name, "publish: read current", err)
	}
	return data, true, nil
}

// Touch refreshes name.kind's mtime to mtime without rewriting its
// content, used when the set processor finds the new canonical form
// byte-identical to the one already on disk.
func (p *Publisher) Touch(ctx context.Context, name, kind string, mtime time.Time) error {
	path := p.path(name, kind)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		return curatorerr.WrapFeed(curatorerr.ErrPublishFS, name, "publish: touch", err)
	}
	return nil
}

// Publish atomically writes canonical as name.kind, set to mtime, then
// (if a kernel adapter is configured) swaps it into the kernel-visible
// named set. On filesystem failure, canonical is optionally preserved
// under errors/name.kind for diagnosis.
func (p *Publisher) Publish(ctx context.Context, name, kind string, canonical []byte, mtime time.Time) error {
	start := time.Now()
	target := p.path(name, kind)
	tmp := target + ".tmp"

	if err := os.WriteFile(tmp, canonical, 0o644); err != nil {
		p.preserveOnFailure(name, kind, canonical)
		p.metrics().ObservePublish(name, kind, time.Since(start), err)
		return curatorerr.WrapFeed(curatorerr.ErrPublishFS, name, "publish: write tmp", err)
	}
	if err := os.Chtimes(tmp, mtime, mtime); err != nil {
		os.Remove(tmp)
		p.preserveOnFailure(name, kind, canonical)
		p.metrics().ObservePublish(name, kind, time.Since(start), err)
		return curatorerr.WrapFeed(curatorerr.ErrPublishFS, name, "publish: set mtime", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		p.preserveOnFailure(name, kind, canonical)
		p.metrics().ObservePublish(name, kind, time.Since(start), err)
		return curatorerr.WrapFeed(curatorerr.ErrPublishFS, name, "publish: rename", err)
	}

	logger.InfoCtx(ctx, "publish: wrote snapshot", "name", name, "kind", kind, "path", target)
	p.metrics().RecordBytes(name, kind, len(canonical))

	if p.Kernel == nil {
		p.metrics().ObservePublish(name, kind, time.Since(start), nil)
		return nil
	}
	if err := p.swapKernel(ctx, name, kind, canonical); err != nil {
		p.metrics().ObservePublish(name, kind, time.Since(start), err)
		return curatorerr.WrapFeed(curatorerr.ErrPublishKernel, name, "publish: kernel swap", err)
	}
	p.metrics().ObservePublish(name, kind, time.Since(start), nil)
	return nil
}

func (p *Publisher) preserveOnFailure(name, kind string, canonical []byte) {
	if !p.PreserveErrs || p.ErrorsDir == "" {
		return
	}
	path := filepath.Join(p.ErrorsDir, name+"."+kind)
	if err := os.WriteFile(path, canonical, 0o644); err != nil {
		logger.Warn("publish: failed to preserve errored artifact", "name", name, "kind", kind, "error", err)
	}
}

// swapKernel runs the §4.9 kernel-atomicity algorithm: build a temp set,
// load restore directives, atomically swap it with the production set,
// then destroy the temp. On any step failure the temp set is destroyed
// and the production set is left untouched.
func (p *Publisher) swapKernel(ctx context.Context, name, kind string, canonical []byte) error {
	entries := bodyLines(canonical)
	maxElem := p.MaxElem
	if maxElem <= 0 {
		maxElem = 65536
	}

	if kind == "netset" {
		entries = reduceIfNeeded(entries, p.ReduceFactor, p.ReduceMinEnt, maxElem)
	}
	if len(entries) > maxElem {
		maxElem = len(entries) * 2
	}

	names, err := p.Kernel.ListNames(ctx)
	if err != nil {
		return err
	}
	if !contains(names, name) {
		if err := p.Kernel.Create(ctx, name, kind, maxElem); err != nil {
			return err
		}
		if err := p.Kernel.Restore(ctx, name, entries); err != nil {
			return err
		}
		p.metrics().RecordKernelSwap(name, len(entries))
		return nil
	}

	tmpName := name + ".tmp-swap"
	if err := p.Kernel.Create(ctx, tmpName, kind, maxElem); err != nil {
		return err
	}
	if err := p.Kernel.Restore(ctx, tmpName, entries); err != nil {
		_ = p.Kernel.Destroy(ctx, tmpName)
		return err
	}
	if err := p.Kernel.Swap(ctx, name, tmpName); err != nil {
		_ = p.Kernel.Destroy(ctx, tmpName)
		return err
	}
	if err := p.Kernel.Destroy(ctx, tmpName); err != nil {
		logger.WarnCtx(ctx, "publish: failed to destroy swapped-out temp set", "name", tmpName, "error", err)
	}
	p.metrics().RecordKernelSwap(name, len(entries))
	return nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// bodyLines extracts the non-header (non "#"-prefixed) lines of a
// canonical snapshot.
func bodyLines(canonical []byte) []string {
	var out []string
	sc := bufio.NewScanner(strings.NewReader(string(canonical)))
	for sc.Scan() {
		line := sc.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// reduceIfNeeded applies the prefix-reduction algorithm to keep the
// kernel-visible entry count under maxElem, per §4.9 step 1.
func reduceIfNeeded(lines []string, factor, minEntries, maxElem int) []string {
	if len(lines) <= maxElem {
		return lines
	}
	set := ipset.Parse(lines)
	reduced := set.ReducePrefixes(factor, minEntries)
	out := make([]string, 0, len(reduced.CIDRs()))
	for _, c := range reduced.CIDRs() {
		out = append(out, c.String())
	}
	return out
}
