// Package catalog implements the per-table Index Catalog: the mutable
// set of indexes a table currently has, published to readers as
// immutable snapshots so executors never block behind the Tuner.
package catalog

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ranxian/peloton-1/schema"
)

// Kind tags whether an index must cover every extent before it may
// serve a scan (FULL) or may serve a scan over a prefix (PARTIAL).
type Kind byte

const (
	Partial Kind = iota
	Full
)

// State is an index's build/drop lifecycle state.
type State int32

const (
	Active State = iota
	Dropping
)

// Index is one table's secondary index: an immutable identity (oid, key
// schema, kind) plus the mutable state (indexed-prefix length, smoothed
// utility, build state) that the Builder and Analyzer advance. The
// mutable fields are atomics rather than behind a per-index mutex so
// that scans reading p and u never block the Tuner's writer goroutine —
// spec.md §5's "no reader blocks the writer".
type Index struct {
	oid       uuid.UUID
	keySchema schema.KeySchema
	kind      Kind

	p           atomic.Uint64
	uBits       atomic.Uint64
	state       atomic.Int32
	refs        atomic.Int64
	lowStreak   atomic.Int64
	corrupted   atomic.Bool
	corruptedAt atomic.Int64 // unix nanos, valid only when corrupted is true
}

func newIndex(keySchema schema.KeySchema, kind Kind) *Index {
	idx := &Index{oid: uuid.New(), keySchema: keySchema.Canonical(), kind: kind}
	idx.state.Store(int32(Active))
	return idx
}

func (idx *Index) OID() uuid.UUID          { return idx.oid }
func (idx *Index) KeySchema() schema.KeySchema { return idx.keySchema }
func (idx *Index) Kind() Kind              { return idx.kind }
func (idx *Index) State() State            { return State(idx.state.Load()) }
func (idx *Index) P() uint64               { return idx.p.Load() }
func (idx *Index) Utility() float64        { return math.Float64frombits(idx.uBits.Load()) }

// AdvancePrefix moves the indexed-prefix length forward. Rejects
// non-increasing updates, per spec.md §4.2 — p only ever increases
// until the index is retired (I2).
func (idx *Index) AdvancePrefix(newP uint64) bool {
	for {
		cur := idx.p.Load()
		if newP <= cur {
			return false
		}
		if idx.p.CompareAndSwap(cur, newP) {
			return true
		}
	}
}

// SetUtility overwrites the smoothed utility score. Smoothing itself is
// the Analyzer's responsibility (spec.md §4.2: "smoothing is performed
// by the Analyzer, not here").
func (idx *Index) SetUtility(u float64) {
	idx.uBits.Store(math.Float64bits(u))
}

// BumpUtility atomically adds delta to the current utility score.
func (idx *Index) BumpUtility(delta float64) {
	for {
		old := idx.uBits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if idx.uBits.CompareAndSwap(old, next) {
			return
		}
	}
}

// BumpLowStreak records one more consecutive analyze batch in which this
// index's smoothed utility was below index_utility_threshold, and
// returns the new streak length. The Analyzer is stateless between
// batches (spec.md §4.4) except for the smoothed utility and this
// counter, both of which live on the index entry for the same reason.
func (idx *Index) BumpLowStreak() int64 {
	return idx.lowStreak.Add(1)
}

// ResetLowStreak clears the consecutive-low-utility counter, called
// whenever a batch finds the index's utility at or above threshold.
func (idx *Index) ResetLowStreak() {
	idx.lowStreak.Store(0)
}

// LowStreak reports the current consecutive-low-utility batch count.
func (idx *Index) LowStreak() int64 {
	return idx.lowStreak.Load()
}

// MarkDropping transitions the index out of ACTIVE. Idempotent. Called by
// Catalog.Retire, and by MarkCorrupted, which the Builder calls on
// structural corruption (spec.md §4.3's "a structural index failure
// transitions the index to DROPPING") without going through the owning
// Catalog.
func (idx *Index) MarkDropping() {
	idx.state.CompareAndSwap(int32(Active), int32(Dropping))
}

// MarkCorrupted transitions the index to DROPPING and flags it as having
// failed structurally rather than having been retired for low utility —
// the distinction the self-healing scheduler needs to decide which
// DROPPING indexes are worth rebuilding under a fresh oid later.
func (idx *Index) MarkCorrupted(at time.Time) {
	idx.corrupted.Store(true)
	idx.corruptedAt.Store(at.UnixNano())
	idx.MarkDropping()
}

// Corrupted reports whether this index was retired due to a structural
// build failure rather than a normal utility-driven drop.
func (idx *Index) Corrupted() bool { return idx.corrupted.Load() }

// CorruptedAt reports when MarkCorrupted was called. Only meaningful if
// Corrupted() is true.
func (idx *Index) CorruptedAt() time.Time {
	return time.Unix(0, idx.corruptedAt.Load())
}

// Idle reports whether no scan currently holds a reference via Acquire.
// The self-healing scheduler checks this before evicting a DROPPING
// index retired by IndexCorruption; it does not itself change refs.
func (idx *Index) Idle() bool { return idx.refs.Load() == 0 }

// Acquire/Release implement the reference-count scheme spec.md §3
// requires before a DROPPING index's storage is physically reclaimed:
// a scan holding a reference keeps the index's entries alive even after
// retire() has hidden it from new scans.
func (idx *Index) Acquire() { idx.refs.Add(1) }

// Release returns true once the last outstanding reference on a
// DROPPING index has been released, signaling the caller it is now
// safe to reclaim the index's storage.
func (idx *Index) Release() bool {
	left := idx.refs.Add(-1)
	return left == 0 && idx.State() == Dropping
}
