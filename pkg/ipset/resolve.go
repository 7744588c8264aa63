package ipset

import (
	"context"
	"net"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/ipcurator/curator/internal/logger"
)

// DefaultResolveConcurrency is the default ceiling on in-flight DNS
// lookups performed by ResolveHostnames (PARALLEL_DNS_QUERIES).
const DefaultResolveConcurrency = 10

// Resolver abstracts hostname-to-address lookup so tests can substitute a
// fake without touching the network. *net.Resolver satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// ResolveHostnames performs a bounded-concurrency DNS lookup of hostnames
// and returns the union of their A records as a Set. Unresolvable names
// are dropped with a logged warning rather than failing the whole
// operation, matching the feed parser's general "skip what doesn't parse"
// posture.
func ResolveHostnames(ctx context.Context, r Resolver, hostnames []string, concurrency int) *Set {
	if concurrency <= 0 {
		concurrency = DefaultResolveConcurrency
	}
	sem := semaphore.NewWeighted(int64(concurrency))

	var mu sync.Mutex
	acc := &Set{}
	var wg sync.WaitGroup

	for _, host := range hostnames {
		host := host
		if err := sem.Acquire(ctx, 1); err != nil {
			break // context cancelled; stop launching new lookups
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			addrs, err := r.LookupIPAddr(ctx, host)
			if err != nil {
				logger.WarnCtx(ctx, "ipset: dns lookup failed", "host", host, "error", err)
				return
			}
			var rs []Range
			for _, a := range addrs {
				if v, ok := addrToUint32(a.IP); ok {
					rs = append(rs, Range{Start: v, End: v})
				}
			}
			if len(rs) == 0 {
				return
			}
			mu.Lock()
			acc.ranges = append(acc.ranges, rs...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	acc.canonicalize()
	return acc
}
