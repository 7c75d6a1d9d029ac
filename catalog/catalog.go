package catalog

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ranxian/peloton-1/schema"
	"github.com/ranxian/peloton-1/tunererr"
	"github.com/ranxian/peloton-1/utils"
)

// Catalog is one table's Index Catalog: a single-writer (the Tuner),
// many-reader set of indexes, published as an immutable snapshot swapped
// atomically under writeMu — spec.md §9's design note, implemented
// directly rather than worked around with a library, since the spec
// itself prescribes the primitive (sync/atomic, no concurrent-map
// library improves on a plain RCU slice swap here).
type Catalog struct {
	writeMu sync.Mutex
	indexes atomic.Pointer[[]*Index]

	// byOID mirrors indexes for O(1) Get lookups. Get is on PickIndex's
	// and the self-healing scheduler's hot path; List()'s snapshot slice
	// is a linear scan, fine for the handful of entries a fresh catalog
	// holds but needless once a table has accumulated many retired
	// DROPPING entries still awaiting eviction.
	byOID utils.CMap[uuid.UUID, *Index]
}

func New() *Catalog {
	c := &Catalog{}
	empty := make([]*Index, 0)
	c.indexes.Store(&empty)
	return c
}

// List returns a snapshot of every index currently in the catalog,
// including ones in state DROPPING (callers that need only ACTIVE
// indexes, like pick_index, filter it themselves). The returned slice
// is never mutated in place; callers may retain it for the duration of
// one scan.
func (c *Catalog) List() []*Index {
	return *c.indexes.Load()
}

// Get returns the index with the given oid, if the catalog still knows
// about it (ACTIVE or DROPPING).
func (c *Catalog) Get(oid uuid.UUID) (*Index, bool) {
	return c.byOID.Load(oid)
}

// Add creates a new ACTIVE index with the given key schema and kind.
// Fails with ErrDuplicateSchema if an ACTIVE index with the same
// (canonical key schema, kind) already exists — spec.md §4.2, I3.
func (c *Catalog) Add(keySchema schema.KeySchema, kind Kind) (*Index, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	canon := keySchema.Canonical()
	cur := c.List()
	for _, idx := range cur {
		if idx.State() == Active && idx.kind == kind && idx.keySchema.Equal(canon) {
			return nil, tunererr.ErrDuplicateSchema
		}
	}

	idx := newIndex(canon, kind)
	next := append(append([]*Index{}, cur...), idx)
	c.indexes.Store(&next)
	c.byOID.Store(idx.oid, idx)
	return idx, nil
}

// Retire transitions oid to DROPPING. It remains in List()'s result
// (callers filter by State), but pick_index must no longer select it.
// Physical deletion of its storage is the caller's responsibility once
// Index.Release reports the last reference is gone.
func (c *Catalog) Retire(oid uuid.UUID) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	idx, ok := c.Get(oid)
	if !ok {
		return tunererr.ErrIndexNotFound
	}
	idx.MarkDropping()
	return nil
}

// Evict physically removes oid from the catalog's index list. Callers
// must only do this after the index has been DROPPING and every
// outstanding scan reference has been released.
func (c *Catalog) Evict(oid uuid.UUID) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	cur := c.List()
	next := make([]*Index, 0, len(cur))
	for _, idx := range cur {
		if idx.oid != oid {
			next = append(next, idx)
		}
	}
	c.indexes.Store(&next)
	c.byOID.Delete(oid)
}

// ActiveCount returns the number of ACTIVE indexes, the quantity
// index_count_threshold bounds.
func (c *Catalog) ActiveCount() int {
	n := 0
	for _, idx := range c.List() {
		if idx.State() == Active {
			n++
		}
	}
	return n
}
