// Package telemetry provides the process-wide metrics registry and
// logger construction shared by every component in this module.
package telemetry

import "sync"

// Registry is a process-wide collection of counters and histograms
// guarded by a single mutex. Contention is expected to be cheap: the
// critical section is a map lookup plus an int64 add, never I/O.
type Registry struct {
	mu         sync.Mutex
	counters   map[string]int64
	histograms map[string]*Histogram
}

// Histogram accumulates a fixed set of bucket boundaries plus a sum
// and count, the minimum needed to compute average and bucket
// occupancy without a third-party metrics SDK.
type Histogram struct {
	bounds  []float64
	buckets []int64
	sum     float64
	count   int64
}

func newHistogram(bounds []float64) *Histogram {
	b := make([]float64, len(bounds))
	copy(b, bounds)
	return &Histogram{bounds: b, buckets: make([]int64, len(b)+1)}
}

func (h *Histogram) observe(v float64) {
	h.sum += v
	h.count++
	for i, bound := range h.bounds {
		if v <= bound {
			h.buckets[i]++
			return
		}
	}
	h.buckets[len(h.buckets)-1]++
}

// Snapshot is a point-in-time copy of a histogram's accumulated state.
type Snapshot struct {
	Bounds  []float64
	Buckets []int64
	Sum     float64
	Count   int64
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the process-wide registry, constructing it lazily
// on first use. There is no teardown: the registry lives for the
// duration of the process.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultReg = NewRegistry()
	})
	return defaultReg
}

// NewRegistry constructs an empty registry. Most callers want
// Default(); NewRegistry exists for tests that need isolation.
func NewRegistry() *Registry {
	return &Registry{
		counters:   make(map[string]int64),
		histograms: make(map[string]*Histogram),
	}
}

// IncCounter adds delta to the named counter, creating it at zero if
// this is the first observation.
func (r *Registry) IncCounter(name string, delta int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name] += delta
}

// Counter returns the current value of a counter, or 0 if it has
// never been observed.
func (r *Registry) Counter(name string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[name]
}

// ObserveHistogram records v against the named histogram, creating it
// with bounds on first use. Subsequent calls reuse the bounds from
// the first observation; the bounds argument is ignored afterward.
func (r *Registry) ObserveHistogram(name string, bounds []float64, v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.histograms[name]
	if !ok {
		h = newHistogram(bounds)
		r.histograms[name] = h
	}
	h.observe(v)
}

// Histogram returns a snapshot of the named histogram's accumulated
// state, or the zero Snapshot if it has never been observed.
func (r *Registry) Histogram(name string) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.histograms[name]
	if !ok {
		return Snapshot{}
	}
	buckets := make([]int64, len(h.buckets))
	copy(buckets, h.buckets)
	bounds := make([]float64, len(h.bounds))
	copy(bounds, h.bounds)
	return Snapshot{Bounds: bounds, Buckets: buckets, Sum: h.sum, Count: h.count}
}

// Names used by the parser and pipeline packages for the metrics this
// registry tracks. Keeping them here avoids typo drift between the
// producer and any future consumer of these names.
const (
	MetricReceiverAccepted  = "receiver_messages_accepted"
	MetricReceiverRejected  = "receiver_messages_rejected"
	MetricRetryScheduled    = "retry_messages_scheduled"
	MetricRetryExhausted    = "retry_messages_exhausted"
	MetricBatchFlushed      = "batch_flushed_total"
	MetricSegmentBytes      = "segment_bytes_written"
	HistogramBatchSize      = "batch_size_messages"
	HistogramFlushLatencyMs = "batch_flush_latency_ms"
)
