package indextuner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ranxian/peloton-1/catalog"
	"github.com/ranxian/peloton-1/indexstore"
	"github.com/ranxian/peloton-1/schema"
	"github.com/ranxian/peloton-1/storage"
)

// P3 (spec.md §8): after update_row completes, every ACTIVE index whose
// prefix already covers the row's extent must resolve the row's new key,
// and, where the update changed that index's key columns, must no
// longer resolve its old key.
func TestUpdateRow_P3_ChangedKeyMovesTheEntry(t *testing.T) {
	tu := newTestTuner(t)
	tbl, ptrs := newSingleColumnTable(t, 1, 5)
	require.NoError(t, tu.AddTable(tbl))

	cat, _ := tu.Catalog(tbl.ID())
	idx, err := cat.Add(schema.KeySchema{1}, catalog.Partial)
	require.NoError(t, err)
	idx.AdvancePrefix(1) // p (1) > ptr.Extent (0): fully covered already

	ts, _ := tu.tableState(tbl.ID())
	target := ptrs[2]

	require.NoError(t, tu.UpdateRow(tbl.ID(), target, func(old storage.Row) storage.Row {
		return storage.MapRow{1: int64(999)}
	}))

	cols := tbl.Columns()
	oldKey, ok := indexstore.EncodeRowKey(cols, idx.KeySchema(), storage.MapRow{1: int64(2)})
	require.True(t, ok)
	newKey, ok := indexstore.EncodeRowKey(cols, idx.KeySchema(), storage.MapRow{1: int64(999)})
	require.True(t, ok)

	newOut, err := ts.store.Lookup(idx.OID(), newKey)
	require.NoError(t, err)
	assert.Equal(t, []storage.ItemPointer{target}, newOut, "a lookup on the new key must return the row")

	oldOut, err := ts.store.Lookup(idx.OID(), oldKey)
	require.NoError(t, err)
	assert.Empty(t, oldOut, "a lookup on the old key must no longer return the row")
}

// Regression for the insert-then-delete-of-an-identical-key bug: updating
// a column outside an index's key schema must leave that index's entry
// for the row intact, not delete it.
func TestUpdateRow_P3_UnchangedKeySurvivesTheUpdate(t *testing.T) {
	tu := newTestTuner(t)
	cols := schema.Columns{
		{ID: 1, Name: "status", Type: schema.Int64},
		{ID: 2, Name: "amount", Type: schema.Int64},
	}
	tbl := storage.NewTable(storage.NewTableID(), cols, 5)
	var ptrs []storage.ItemPointer
	for i := 0; i < 5; i++ {
		ptrs = append(ptrs, tbl.Insert(storage.MapRow{1: int64(7), 2: int64(i)}))
	}
	require.NoError(t, tu.AddTable(tbl))

	cat, _ := tu.Catalog(tbl.ID())
	idx, err := cat.Add(schema.KeySchema{1}, catalog.Partial) // indexed on status only
	require.NoError(t, err)
	idx.AdvancePrefix(1)

	ts, _ := tu.tableState(tbl.ID())
	target := ptrs[2]

	// Update only the amount column; status (the indexed column) is
	// unchanged.
	require.NoError(t, tu.UpdateRow(tbl.ID(), target, func(old storage.Row) storage.Row {
		return storage.MapRow{1: int64(7), 2: int64(12345)}
	}))

	key, ok := indexstore.EncodeRowKey(cols, idx.KeySchema(), storage.MapRow{1: int64(7)})
	require.True(t, ok)

	out, err := ts.store.Lookup(idx.OID(), key)
	require.NoError(t, err)
	assert.Contains(t, out, target, "updating a non-indexed column must not drop the row from the index")
}

// Regression for the currentlyBuilding coherence bug: an updater that
// classifies an index as i.p == e (currentlyBuilding) must re-check P()
// once it actually holds the (oid, e) lock. If the builder won the lock
// race first, indexed the old row, and advanced p past e in the meantime,
// the updater must repair the index (insert new key, delete old key)
// instead of leaving it pointing at the value the row no longer has.
func TestUpdateRow_P3_SurvivesBuilderWinningTheCurrentlyBuildingRace(t *testing.T) {
	tu := newTestTuner(t)
	tbl, ptrs := newSingleColumnTable(t, 1, 5)
	require.NoError(t, tu.AddTable(tbl))

	cat, _ := tu.Catalog(tbl.ID())
	idx, err := cat.Add(schema.KeySchema{1}, catalog.Partial)
	require.NoError(t, err)
	// idx.P() == 0 == target.Extent: UpdateRow will classify idx as
	// currentlyBuilding.

	ts, _ := tu.tableState(tbl.ID())
	target := ptrs[2]
	cols := tbl.Columns()
	oldKey, ok := indexstore.EncodeRowKey(cols, idx.KeySchema(), storage.MapRow{1: int64(2)})
	require.True(t, ok)
	newKey, ok := indexstore.EncodeRowKey(cols, idx.KeySchema(), storage.MapRow{1: int64(999)})
	require.True(t, ok)

	// Simulate the builder winning the (oid, e) lock race: hold the lock,
	// let the update goroutine block acquiring it, then index the old row
	// and advance p past e before releasing.
	unlock := ts.coord.Lock(idx.OID(), target.Extent)

	done := make(chan error, 1)
	go func() {
		done <- tu.UpdateRow(tbl.ID(), target, func(old storage.Row) storage.Row {
			return storage.MapRow{1: int64(999)}
		})
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, ts.store.Insert(idx.OID(), oldKey, target))
	require.True(t, idx.AdvancePrefix(uint64(target.Extent)+1))
	unlock()

	require.NoError(t, <-done)

	newOut, err := ts.store.Lookup(idx.OID(), newKey)
	require.NoError(t, err)
	assert.Equal(t, []storage.ItemPointer{target}, newOut, "the index must resolve the new key once the update completes")

	oldOut, err := ts.store.Lookup(idx.OID(), oldKey)
	require.NoError(t, err)
	assert.Empty(t, oldOut, "the index must not still resolve the old key after the builder race is repaired")
}

func TestUpdateRow_SkipsIndexesNotYetCoveringTheExtent(t *testing.T) {
	tu := newTestTuner(t)
	tbl, ptrs := newSingleColumnTable(t, 2, 5) // 2 extents
	require.NoError(t, tu.AddTable(tbl))

	cat, _ := tu.Catalog(tbl.ID())
	idx, err := cat.Add(schema.KeySchema{1}, catalog.Partial)
	require.NoError(t, err)
	// p stays at 0: the builder has not reached extent 1 yet.

	target := ptrs[6] // extent 1
	require.NoError(t, tu.UpdateRow(tbl.ID(), target, func(old storage.Row) storage.Row {
		return storage.MapRow{1: int64(777)}
	}))

	ts, _ := tu.tableState(tbl.ID())
	key, ok := indexstore.EncodeRowKey(tbl.Columns(), idx.KeySchema(), storage.MapRow{1: int64(777)})
	require.True(t, ok)
	out, err := ts.store.Lookup(idx.OID(), key)
	require.NoError(t, err)
	assert.Empty(t, out, "an index that hasn't reached this extent yet must not gain an entry from the update")
}

func TestUpdateRow_UnknownTable(t *testing.T) {
	tu := newTestTuner(t)
	err := tu.UpdateRow(storage.NewTableID(), storage.ItemPointer{}, func(old storage.Row) storage.Row { return old })
	assert.Error(t, err)
}

func TestUpdateRow_RowNotFound(t *testing.T) {
	tu := newTestTuner(t)
	tbl, _ := newSingleColumnTable(t, 1, 5)
	require.NoError(t, tu.AddTable(tbl))

	err := tu.UpdateRow(tbl.ID(), storage.ItemPointer{Extent: 0, Slot: 99}, func(old storage.Row) storage.Row { return old })
	assert.Error(t, err)
}

func TestDeleteRow_RemovesEntryFromCoveredIndexesAndMarksRowDead(t *testing.T) {
	tu := newTestTuner(t)
	tbl, ptrs := newSingleColumnTable(t, 1, 5)
	require.NoError(t, tu.AddTable(tbl))

	cat, _ := tu.Catalog(tbl.ID())
	idx, err := cat.Add(schema.KeySchema{1}, catalog.Partial)
	require.NoError(t, err)
	idx.AdvancePrefix(1)

	ts, _ := tu.tableState(tbl.ID())
	target := ptrs[3]
	key, ok := indexstore.EncodeRowKey(tbl.Columns(), idx.KeySchema(), storage.MapRow{1: int64(3)})
	require.True(t, ok)
	require.NoError(t, ts.store.Insert(idx.OID(), key, target))

	require.NoError(t, tu.DeleteRow(tbl.ID(), target))

	_, live := tbl.Extent(0).Row(target.Slot)
	assert.False(t, live, "a deleted row must no longer be live")

	out, err := ts.store.Lookup(idx.OID(), key)
	require.NoError(t, err)
	assert.Empty(t, out, "the index entry for a deleted row must be removed")
}

func TestDeleteRow_RowNotFound(t *testing.T) {
	tu := newTestTuner(t)
	tbl, _ := newSingleColumnTable(t, 1, 5)
	require.NoError(t, tu.AddTable(tbl))

	err := tu.DeleteRow(tbl.ID(), storage.ItemPointer{Extent: 0, Slot: 99})
	assert.Error(t, err)
}

func TestDeleteRow_UnknownTable(t *testing.T) {
	tu := newTestTuner(t)
	err := tu.DeleteRow(storage.NewTableID(), storage.ItemPointer{})
	assert.Error(t, err)
}
