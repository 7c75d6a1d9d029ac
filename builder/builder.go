// Package builder implements the Incremental Index Builder: the routine
// that populates an index over a bounded number of extents per call, so
// a build never starves reads and writes (spec.md §4.3).
package builder

import (
	"time"

	"github.com/pkg/errors"

	"github.com/ranxian/peloton-1/catalog"
	"github.com/ranxian/peloton-1/indexstore"
	"github.com/ranxian/peloton-1/schema"
	"github.com/ranxian/peloton-1/storage"
	"github.com/ranxian/peloton-1/utils"
)

// Builder drives build_step for a single table's indexes against a
// shared Coordinator and Store.
type Builder struct {
	store  *indexstore.Store
	coord  *Coordinator
	logger utils.Logger
}

func New(store *indexstore.Store, coord *Coordinator, logger utils.Logger) *Builder {
	if logger == nil {
		logger = utils.NewDefaultLogger(0)
	}
	return &Builder{store: store, coord: coord, logger: logger}
}

// BuildStep indexes up to budgetExtents extents of table into idx,
// starting from idx's current indexed-prefix length, and returns the
// number of extents it newly indexed. Per spec.md §4.3:
//   - if idx is DROPPING, returns 0 immediately;
//   - if budgetExtents == 0, returns 0 and does not advance;
//   - extents appended to the table after E was read are left for a
//     later call;
//   - p advances one extent at a time so concurrent scans see monotonic
//     progress, not a jump at the end of the whole step;
//   - a per-row key-construction error is logged and skipped;
//   - a structural store failure retires the index and returns 0.
func (b *Builder) BuildStep(table *storage.Table, idx *catalog.Index, budgetExtents int) int {
	if idx.State() != catalog.Active {
		return 0
	}
	if budgetExtents <= 0 {
		return 0
	}

	start := idx.P()
	end := table.ExtentCount()
	if end > start+uint64(budgetExtents) {
		end = start + uint64(budgetExtents)
	}
	if end <= start {
		return 0
	}

	started := time.Now()
	defer func() {
		StepDuration.WithLabelValues(table.ID().String()).Observe(time.Since(started).Seconds())
	}()

	cols := table.Columns()
	keySchema := idx.KeySchema()
	tableLabel := table.ID().String()
	indexLabel := idx.OID().String()

	built := 0
	for e := start; e < end; e++ {
		extentID := storage.ExtentID(e)
		unlock := b.coord.Lock(idx.OID(), extentID)
		structuralErr := b.indexExtent(table, idx, extentID, cols, keySchema, tableLabel, indexLabel)
		unlock()

		if structuralErr != nil {
			Corruptions.WithLabelValues(tableLabel, indexLabel).Inc()
			idx.MarkCorrupted(time.Now())
			b.logger.Error("index build hit a structural failure, retiring index",
				"table", tableLabel, "index", indexLabel, "extent", e, "error", structuralErr)
			return 0
		}

		if !idx.AdvancePrefix(e + 1) {
			// Another writer already advanced p past this extent
			// (shouldn't happen under build-then-patch locking, but
			// AdvancePrefix's CAS makes it safe either way).
			break
		}
		ExtentsIndexed.WithLabelValues(tableLabel, indexLabel).Inc()
		built++
	}
	return built
}

// indexExtent inserts entries for every live row in extent e into idx.
// Returns the first structural store error encountered, if any; per-row
// key-encoding failures are logged and skipped, not structural.
func (b *Builder) indexExtent(
	table *storage.Table,
	idx *catalog.Index,
	e storage.ExtentID,
	cols schema.Columns,
	keySchema schema.KeySchema,
	tableLabel, indexLabel string,
) error {
	ext := table.Extent(e)
	var structuralErr error

	ext.LiveSlots(func(off storage.SlotOffset, row storage.Row) bool {
		ptr := storage.ItemPointer{Extent: e, Slot: off}

		encKey, ok := indexstore.EncodeRowKey(cols, keySchema, row)
		if !ok {
			RowErrors.WithLabelValues(tableLabel, indexLabel).Inc()
			b.logger.Warn("skipping row with unencodable key",
				"table", tableLabel, "index", indexLabel, "pointer", ptr.String())
			return true
		}

		if err := b.store.Insert(idx.OID(), encKey, ptr); err != nil {
			structuralErr = errors.WithStack(err)
			b.logger.Error("index store insert failed, treating as structural corruption",
				"table", tableLabel, "index", indexLabel, "pointer", ptr.String(), "error", structuralErr)
			return false
		}
		return true
	})

	return structuralErr
}
