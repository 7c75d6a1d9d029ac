package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ranxian/peloton-1/schema"
)

func testColumns() schema.Columns {
	return schema.Columns{{ID: 1, Name: "v", Type: schema.Int64}}
}

func TestTable_InsertGrowsExtentsAsNeeded(t *testing.T) {
	tbl := NewTable(NewTableID(), testColumns(), 2)
	assert.Equal(t, uint64(0), tbl.ExtentCount())

	for i := 0; i < 5; i++ {
		tbl.Insert(MapRow{1: int64(i)})
	}

	assert.Equal(t, uint64(3), tbl.ExtentCount(), "5 rows at capacity 2 must span 3 extents")
}

func TestTable_InsertReturnsPointersThatRoundTrip(t *testing.T) {
	tbl := NewTable(NewTableID(), testColumns(), 2)
	ptr := tbl.Insert(MapRow{1: int64(42)})

	row, live := tbl.Extent(ptr.Extent).Row(ptr.Slot)
	require.True(t, live)
	v, _ := row.Get(1)
	assert.Equal(t, int64(42), v)
}

func TestTable_AppendExtentAssignsSequentialIDs(t *testing.T) {
	tbl := NewTable(NewTableID(), testColumns(), 4)
	id0 := tbl.AppendExtent()
	id1 := tbl.AppendExtent()

	assert.Equal(t, ExtentID(0), id0)
	assert.Equal(t, ExtentID(1), id1)
	assert.Equal(t, uint64(2), tbl.ExtentCount())
}

func TestTable_TransactionsAcquireOwnershipIsExclusive(t *testing.T) {
	tbl := NewTable(NewTableID(), testColumns(), 4)
	ptr := tbl.Insert(MapRow{1: int64(1)})

	tm := tbl.Transactions()
	assert.True(t, tm.AcquireOwnership(ptr, TxnID(1)))
	assert.False(t, tm.AcquireOwnership(ptr, TxnID(2)), "a second transaction must not acquire an already-owned slot")
	assert.True(t, tm.IsOwner(ptr, TxnID(1)))

	tm.PerformUpdate(ptr, TxnID(1))
	assert.True(t, tm.IsOwnable(ptr))
	assert.True(t, tm.AcquireOwnership(ptr, TxnID(2)), "ownership is released once the owning transaction performs its update")
}

func TestTable_MapRowClone(t *testing.T) {
	r := MapRow{1: int64(1)}
	c := r.Clone()
	c[1] = int64(2)

	assert.Equal(t, int64(1), r[1], "Clone must not let a mutation on the copy leak back into the original")
}
