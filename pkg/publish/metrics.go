package publish

import "time"

// Metrics is the publisher's (C9) observability boundary: filesystem
// publish outcomes and, when a kernel adapter is configured, swap sizes.
// Defined here (the consuming package) rather than in pkg/metrics so that
// pkg/metrics/prometheus can import both without a cycle.
type Metrics interface {
	// ObservePublish records one Publish call's outcome and duration.
	ObservePublish(name, kind string, duration time.Duration, err error)

	// RecordBytes records the size of a written canonical snapshot.
	RecordBytes(name, kind string, bytes int)

	// RecordKernelSwap records a completed kernel swap and the number of
	// entries restored into the swapped-in set.
	RecordKernelSwap(name string, entries int)
}

type noopMetrics struct{}

func (noopMetrics) ObservePublish(string, string, time.Duration, error) {}
func (noopMetrics) RecordBytes(string, string, int)                     {}
func (noopMetrics) RecordKernelSwap(string, int)                        {}
