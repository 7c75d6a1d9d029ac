package sampling

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ranxian/peloton-1/utils"
)

// Overflows counts, per table, how many samples were evicted to make
// room for a newer one — spec.md §7's SampleOverflow, "counted in
// metrics, otherwise silent".
var Overflows = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "indextuner",
	Subsystem: "sampling",
	Name:      "ring_overflows_total",
}, []string{"table"})

// Ring is a bounded, mutex-protected circular buffer of Samples. record
// never blocks: when full, the oldest sample is evicted to make room for
// the newest, per spec.md §4.1 ("newer samples are more relevant").
// This is deliberately not the teacher's FDQueue — that queue blocks
// writers under backpressure and treats overflow as a sticky closed
// state, the opposite of the drop-oldest, always-available policy this
// component needs (see DESIGN.md).
type Ring struct {
	mu     sync.Mutex
	buf    []Sample
	head   int // index of the oldest sample
	count  int
	seq    atomic.Uint64
	table  string
	avgLat *utils.AvgVal
}

// New creates a Ring holding at most capacity samples.
func New(table string, capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{
		buf:    make([]Sample, capacity),
		table:  table,
		avgLat: &utils.AvgVal{},
	}
}

// Record appends a sample, evicting the oldest one if the ring is full.
// Safe for concurrent callers; never blocks for unbounded time
// (spec.md §8 P8).
func (r *Ring) Record(s Sample) {
	s.Seq = r.seq.Add(1)
	r.avgLat.Add(s.Latency)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = s
		r.count++
		return
	}
	// full: overwrite the oldest slot and advance head, dropping it.
	r.buf[r.head] = s
	r.head = (r.head + 1) % len(r.buf)
	Overflows.WithLabelValues(r.table).Inc()
}

// DrainUpTo removes and returns up to n samples in insertion order.
// Intended to be called exclusively by the Analyzer; concurrent drains
// would race on which samples each one observes, which spec.md §4.1
// does not promise to resolve.
func (r *Ring) DrainUpTo(n int) []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n > r.count {
		n = r.count
	}
	out := make([]Sample, n)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	r.head = (r.head + n) % len(r.buf)
	r.count -= n
	return out
}

// Len reports how many samples are currently buffered.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// AvgLatency reports the running mean of every Latency ever passed to
// Record, independent of how many samples the ring still holds. It is a
// cheap operational signal the Analyzer does not otherwise compute
// (spec.md §9's utility-units note), not an input to the utility
// formula.
func (r *Ring) AvgLatency() float64 {
	return r.avgLat.Val()
}
