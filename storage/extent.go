package storage

import (
	"sync"

	"github.com/ranxian/peloton-1/schema"
)

// Row is a table row's column values. Production callers may wrap any
// row representation that satisfies Row; tests and the demo CLI use
// MapRow.
type Row interface {
	Get(id schema.ColumnID) (any, bool)
}

// MapRow is the reference Row implementation: a plain map of column id
// to value, good enough for tests and synthetic workloads.
type MapRow map[schema.ColumnID]any

func (r MapRow) Get(id schema.ColumnID) (any, bool) {
	v, ok := r[id]
	return v, ok
}

func (r MapRow) Clone() MapRow {
	out := make(MapRow, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// slot holds one row version plus its liveness bit. A slot is live from
// the moment its row is installed until Extent.Delete clears it; builders
// and scans only ever read live slots, never mutate liveness directly.
type slot struct {
	row  Row
	live bool
}

// Extent is a fixed-capacity, append-only slab of row slots. Extents are
// never reordered or deleted once appended to a Table.
type Extent struct {
	mu    sync.RWMutex
	id    ExtentID
	slots []slot
	cap   int
}

func newExtent(id ExtentID, capacity int) *Extent {
	return &Extent{id: id, slots: make([]slot, 0, capacity), cap: capacity}
}

func (e *Extent) ID() ExtentID { return e.id }

// Append installs row in the next free slot and marks it live. Returns
// the row's new ItemPointer, or ok=false if the extent is full.
func (e *Extent) Append(row Row) (ItemPointer, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.slots) >= e.cap {
		return ItemPointer{}, false
	}
	off := SlotOffset(len(e.slots))
	e.slots = append(e.slots, slot{row: row, live: true})
	return ItemPointer{Extent: e.id, Slot: off}, true
}

// Row returns the row currently stored at off, and whether the slot is
// live. A slot that was never written, or was deleted, returns
// ok=false; readers must treat that as "no row here", not an error.
func (e *Extent) Row(off SlotOffset) (row Row, live bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if int(off) >= len(e.slots) {
		return nil, false
	}
	s := e.slots[off]
	return s.row, s.live
}

// SetRow overwrites the row stored at off in place, preserving liveness.
// Callers must hold ownership of the slot (see TransactionManager)
// before calling this.
func (e *Extent) SetRow(off SlotOffset, row Row) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if int(off) < len(e.slots) {
		e.slots[off].row = row
	}
}

// Delete marks the slot at off dead. A deleted slot still counts toward
// Len() — slot positions are never reused — but LiveSlots and Row skip
// it from then on.
func (e *Extent) Delete(off SlotOffset) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if int(off) < len(e.slots) {
		e.slots[off].live = false
	}
}

// LiveSlots iterates every live (slot offset, row) pair currently in the
// extent, in slot order. This is the iterator the Incremental Index
// Builder drives over each extent it indexes.
func (e *Extent) LiveSlots(yield func(off SlotOffset, row Row) bool) {
	e.mu.RLock()
	snapshot := make([]slot, len(e.slots))
	copy(snapshot, e.slots)
	e.mu.RUnlock()
	for i, s := range snapshot {
		if !s.live {
			continue
		}
		if !yield(SlotOffset(i), s.row) {
			return
		}
	}
}

// Len reports how many slots (live or not) have been written so far.
func (e *Extent) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.slots)
}
