// Package storage implements the minimal in-memory table store the
// index tuner subsystem operates over: append-only extents of row
// slots, addressed by stable ItemPointers, with an optimistic slot
// ownership manager for the update path.
package storage

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/ranxian/peloton-1/schema"
)

// TableID opaquely identifies a table.
type TableID uuid.UUID

func NewTableID() TableID { return TableID(uuid.New()) }

func (id TableID) String() string { return uuid.UUID(id).String() }

// Table is an append-mostly collection of fixed-size Extents.
// spec.md §3 leaves the Index Catalog and Sample Ring as "held by" the
// table; this package only carries the raw extent/row mechanics —
// catalog and sampling are composed onto it by the tuner package, which
// avoids storage depending on the packages that depend on storage.
type Table struct {
	id            TableID
	columns       schema.Columns
	extentCap     int
	mu            sync.RWMutex
	extents       []*Extent
	extentCount   atomic.Uint64
	transactions  *TransactionManager
}

// NewTable creates an empty table with the given column set and a fixed
// per-extent row capacity.
func NewTable(id TableID, columns schema.Columns, extentCapacity int) *Table {
	return &Table{
		id:           id,
		columns:      columns,
		extentCap:    extentCapacity,
		transactions: NewTransactionManager(),
	}
}

func (t *Table) ID() TableID           { return t.id }
func (t *Table) Columns() schema.Columns { return t.columns }

// ExtentCount returns the table's current extent count. Monotonically
// non-decreasing, per spec.md §3.
func (t *Table) ExtentCount() uint64 {
	return t.extentCount.Load()
}

// Extent returns the extent at position e. Panics if e is out of range;
// callers are expected to bound e by ExtentCount() first, as the spec's
// external interface contract requires.
func (t *Table) Extent(e ExtentID) *Extent {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.extents[e]
}

// Transactions returns the table's transaction manager, used by the
// update and delete paths to take slot ownership. The builder does not
// use it; it coordinates through builder.Coordinator.
func (t *Table) Transactions() *TransactionManager {
	return t.transactions
}

// AppendExtent adds a new, empty extent to the table and returns its id.
// Extents are never reordered or removed once appended.
func (t *Table) AppendExtent() ExtentID {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := ExtentID(len(t.extents))
	t.extents = append(t.extents, newExtent(id, t.extentCap))
	t.extentCount.Store(uint64(len(t.extents)))
	return id
}

// Insert appends row to the table, growing the extent list if the
// current tail extent is full. Returns the row's new ItemPointer.
func (t *Table) Insert(row Row) ItemPointer {
	for {
		t.mu.RLock()
		n := len(t.extents)
		t.mu.RUnlock()
		if n == 0 {
			t.AppendExtent()
			continue
		}
		tail := t.Extent(ExtentID(n - 1))
		if ptr, ok := tail.Append(row); ok {
			return ptr
		}
		t.AppendExtent()
	}
}
