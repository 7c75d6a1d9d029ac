// Package testutil builds synthetic tables and workloads for testing
// and demonstrating the index tuner without a real storage engine
// behind it — the role the teacher's test_utils/ filled for spinning up
// a pair of CRDT replicas, rebuilt from scratch since there is nothing
// here to replicate.
package testutil

import (
	"math/rand"

	"github.com/ranxian/peloton-1/sampling"
	"github.com/ranxian/peloton-1/schema"
	"github.com/ranxian/peloton-1/storage"
)

// Column ids for the fixed synthetic schema every helper in this
// package assumes: an identity column, a low-cardinality tenant
// column, a low-cardinality status column, and a high-cardinality
// amount column.
const (
	ColID     schema.ColumnID = 0
	ColTenant schema.ColumnID = 1
	ColStatus schema.ColumnID = 2
	ColAmount schema.ColumnID = 3
)

var statuses = []string{"pending", "active", "closed", "failed"}

// Columns returns the fixed synthetic column set.
func Columns() schema.Columns {
	return schema.Columns{
		{ID: ColID, Name: "id", Type: schema.Int64},
		{ID: ColTenant, Name: "tenant", Type: schema.Int64},
		{ID: ColStatus, Name: "status", Type: schema.String},
		{ID: ColAmount, Name: "amount", Type: schema.Float64},
	}
}

// NewTable creates an empty table over Columns() with the given
// per-extent row capacity.
func NewTable(id storage.TableID, extentCapacity int) *storage.Table {
	return storage.NewTable(id, Columns(), extentCapacity)
}

// RowGen deterministically generates synthetic rows from a seeded
// random source, so a workload replay is reproducible across runs
// given the same seed.
type RowGen struct {
	rnd       *rand.Rand
	tenants   int64
}

// NewRowGen seeds a generator that spreads rows across tenantCount
// distinct tenant ids.
func NewRowGen(seed int64, tenantCount int64) *RowGen {
	if tenantCount <= 0 {
		tenantCount = 1
	}
	return &RowGen{rnd: rand.New(rand.NewSource(seed)), tenants: tenantCount}
}

// Row builds one synthetic row for the given identity.
func (g *RowGen) Row(id int64) storage.MapRow {
	return storage.MapRow{
		ColID:     id,
		ColTenant: g.rnd.Int63n(g.tenants),
		ColStatus: statuses[g.rnd.Intn(len(statuses))],
		ColAmount: g.rnd.Float64() * 1000,
	}
}

// SeedRows inserts n freshly generated rows into table and returns
// their item pointers in insertion order.
func SeedRows(table *storage.Table, g *RowGen, n int) []storage.ItemPointer {
	ptrs := make([]storage.ItemPointer, n)
	for i := 0; i < n; i++ {
		ptrs[i] = table.Insert(g.Row(int64(i)))
	}
	return ptrs
}

// ReadSample builds a read-access Sample over cols with the given
// observed selectivity, for feeding RecordSample directly in a test or
// demo without driving an actual scan.
func ReadSample(cols schema.KeySchema, selectivity float64) sampling.Sample {
	return sampling.Sample{Kind: sampling.ReadAccess, Columns: cols, Selectivity: selectivity}
}

// UpdateSample builds an update-access Sample, used only to weight the
// Analyzer's write ratio; cols is typically the table's full column set
// since an update does not target a particular key schema.
func UpdateSample(cols schema.KeySchema) sampling.Sample {
	return sampling.Sample{Kind: sampling.UpdateAccess, Columns: cols}
}
