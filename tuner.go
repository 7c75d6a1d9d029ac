// Package indextuner is the online, self-tuning index subsystem's
// control-plane entry point: an explicit handle an application owns and
// passes around, rather than the teacher's process-wide singleton
// (spec.md §9's first Open Question resolution).
package indextuner

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/ranxian/peloton-1/analyzer"
	"github.com/ranxian/peloton-1/builder"
	"github.com/ranxian/peloton-1/catalog"
	"github.com/ranxian/peloton-1/indexstore"
	"github.com/ranxian/peloton-1/sampling"
	"github.com/ranxian/peloton-1/schema"
	"github.com/ranxian/peloton-1/storage"
	"github.com/ranxian/peloton-1/tunererr"
	"github.com/ranxian/peloton-1/utils"
)

// tableState is everything the Tuner keeps per managed table: the
// table's raw storage handle plus the Index Catalog, Sample Ring, index
// entry store, and Builder that ride along with it.
type tableState struct {
	table   *storage.Table
	catalog *catalog.Catalog
	ring    *sampling.Ring
	store   *indexstore.Store
	coord   *builder.Coordinator
	build   *builder.Builder
	nextTxn atomic.Uint64
}

// IndexTuner is the subsystem's control-plane handle: one long-lived
// background task (Start/Stop) orchestrating the Analyzer and Builder
// across every table handed to it via AddTable.
type IndexTuner struct {
	logger utils.Logger

	opts atomic.Pointer[Options] // RCU, same discipline as catalog.Catalog

	tablesMu sync.RWMutex
	tables   map[storage.TableID]*tableState

	totalSamples      atomic.Int64
	lastAnalyzeSample atomic.Int64
	lastBuildSample   atomic.Int64

	running atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	convMu        sync.Mutex
	convLastKey   string
	convStreak    int64
	convConverged atomic.Bool
}

// New creates an IndexTuner with the given options (zero-valued fields
// are filled via Options.SetDefaults).
func New(opts Options, logger utils.Logger) *IndexTuner {
	opts.SetDefaults()
	if logger == nil {
		logger = utils.NewDefaultLogger(0)
	}
	tu := &IndexTuner{
		logger: logger,
		tables: make(map[storage.TableID]*tableState),
	}
	tu.opts.Store(&opts)
	return tu
}

func (tu *IndexTuner) options() Options {
	return *tu.opts.Load()
}

func (tu *IndexTuner) mutateOptions(f func(*Options)) {
	cur := tu.options()
	f(&cur)
	tu.opts.Store(&cur)
}

// AddTable begins managing table: opens its index entry store, catalog,
// and sample ring. Safe to call while the loop is running.
func (tu *IndexTuner) AddTable(table *storage.Table) error {
	store, err := indexstore.Open()
	if err != nil {
		return err
	}
	coord := builder.NewCoordinator()
	ts := &tableState{
		table:   table,
		catalog: catalog.New(),
		ring:    sampling.New(table.ID().String(), tu.options().SampleRingCapacity),
		store:   store,
		coord:   coord,
		build:   builder.New(store, coord, tu.logger),
	}

	tu.tablesMu.Lock()
	defer tu.tablesMu.Unlock()
	tu.tables[table.ID()] = ts
	return nil
}

// ClearTables stops managing every table, closing each one's index
// entry store. Safe to call while the loop is running.
func (tu *IndexTuner) ClearTables() {
	tu.tablesMu.Lock()
	defer tu.tablesMu.Unlock()
	for _, ts := range tu.tables {
		ts.store.Close()
	}
	tu.tables = make(map[storage.TableID]*tableState)
}

func (tu *IndexTuner) tableState(id storage.TableID) (*tableState, bool) {
	tu.tablesMu.RLock()
	defer tu.tablesMu.RUnlock()
	ts, ok := tu.tables[id]
	return ts, ok
}

// Catalog exposes a managed table's Index Catalog for inspection (used
// by tests and cmd/tunersim's progress reporting).
func (tu *IndexTuner) Catalog(id storage.TableID) (*catalog.Catalog, bool) {
	ts, ok := tu.tableState(id)
	if !ok {
		return nil, false
	}
	return ts.catalog, true
}

// Start spawns the Tuner Loop as a background goroutine.
func (tu *IndexTuner) Start(ctx context.Context) error {
	if !tu.running.CompareAndSwap(false, true) {
		return tunererr.ErrAlreadyRunning
	}
	tu.stopCh = make(chan struct{})
	tu.doneCh = make(chan struct{})
	go tu.loop(ctx)
	return nil
}

// Stop cooperatively signals the loop to exit and waits for it. The loop
// checks the signal only between ticks: a tick already in progress,
// including every build_step in it, runs to completion first; a
// build_step does not stop after its current extent.
func (tu *IndexTuner) Stop() error {
	if !tu.running.CompareAndSwap(true, false) {
		return tunererr.ErrNotRunning
	}
	close(tu.stopCh)
	<-tu.doneCh
	return nil
}

func (tu *IndexTuner) loop(ctx context.Context) {
	defer close(tu.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-tu.stopCh:
			return
		case <-time.After(tu.options().SleepDuration):
		}

		select {
		case <-tu.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		tu.tick()
	}
}

// tick runs one Tuner Loop iteration: spec.md §4.5 steps 3-6, plus the
// self-healing reschedule and convergence check supplementing it.
func (tu *IndexTuner) tick() {
	opts := tu.options()
	sampleCount := tu.totalSamples.Load()

	tu.tablesMu.RLock()
	states := make([]*tableState, 0, len(tu.tables))
	for _, ts := range tu.tables {
		states = append(states, ts)
	}
	tu.tablesMu.RUnlock()

	if sampleCount-tu.lastAnalyzeSample.Load() >= opts.AnalyzeSampleCountThreshold {
		for _, ts := range states {
			tu.analyzeTable(ts, opts)
		}
		tu.lastAnalyzeSample.Store(sampleCount)
	}

	if sampleCount-tu.lastBuildSample.Load() >= opts.BuildSampleCountThreshold {
		for _, ts := range states {
			tu.buildTable(ts, opts)
		}
		tu.lastBuildSample.Store(sampleCount)
	}

	for _, ts := range states {
		tu.healTable(ts, opts)
	}

	tu.observePhase(states, opts)
}

func (tu *IndexTuner) analyzeTable(ts *tableState, opts Options) {
	res := analyzer.Analyze(ts.ring, ts.catalog, analyzer.Params{
		Alpha:                 opts.Alpha,
		Epsilon:               opts.Epsilon,
		IndexUtilityThreshold: opts.IndexUtilityThreshold,
		IndexCountThreshold:   opts.IndexCountThreshold,
		WriteRatioThreshold:   opts.WriteRatioThreshold,
		DropGracePeriod:       opts.DropGracePeriod,
		MaxDrainPerBatch:      opts.MaxDrainPerBatch,
	})

	for _, ks := range res.Added {
		if _, err := ts.catalog.Add(ks, catalog.Partial); err != nil {
			// DuplicateSchema is a swallowed no-op, per spec.md §7's
			// error policy; anything else is unexpected but non-fatal.
			tu.logger.Debug("analyzer candidate not added", "schema", ks.String(), "error", err)
		}
	}
	for _, idx := range res.Retired {
		if err := ts.catalog.Retire(idx.OID()); err != nil {
			tu.logger.Warn("failed to retire index marked by analyzer", "index", idx.OID().String(), "error", err)
		}
	}
}

// buildTable invokes build_step once per ACTIVE, not-yet-fully-built
// index on ts, in round-robin order across the wave (spec.md §4.5 step
// 5 — one call per index per wave is exactly one round of round-robin).
func (tu *IndexTuner) buildTable(ts *tableState, opts Options) {
	extentCount := ts.table.ExtentCount()
	for _, idx := range ts.catalog.List() {
		if idx.State() != catalog.Active {
			continue
		}
		if idx.P() >= extentCount {
			continue
		}
		ts.build.BuildStep(ts.table, idx, opts.TileGroupsIndexedPerIteration)
	}
}

// healTable reschedules indexes that were retired by IndexCorruption:
// once BuilderRetryInterval has elapsed and no scan still holds a
// reference, it evicts the corrupted entry and creates a fresh index
// with the same key schema, giving the builder a clean slate rather
// than leaving the schema permanently unindexed on one bad extent.
func (tu *IndexTuner) healTable(ts *tableState, opts Options) {
	for _, idx := range ts.catalog.List() {
		if idx.State() != catalog.Dropping || !idx.Corrupted() {
			continue
		}
		if time.Since(idx.CorruptedAt()) < opts.BuilderRetryInterval {
			continue
		}
		if !idx.Idle() {
			continue // still referenced by an in-flight scan, try again later
		}
		if err := ts.store.DropIndex(idx.OID()); err != nil {
			tu.logger.Warn("failed to drop storage for corrupted index", "index", idx.OID().String(), "error", err)
			continue
		}
		ts.catalog.Evict(idx.OID())
		if _, err := ts.catalog.Add(idx.KeySchema(), idx.Kind()); err != nil {
			tu.logger.Debug("self-healing rebuild skipped", "schema", idx.KeySchema().String(), "error", err)
		}
	}
}

// observePhase feeds the convergence detector (spec.md §4.8): the
// ACTIVE index set across every managed table, sorted into a stable
// key. ConvergenceOpThreshold/PhaseLength consecutive identical phases
// declare convergence.
func (tu *IndexTuner) observePhase(states []*tableState, opts Options) bool {
	var oids []string
	for _, ts := range states {
		for _, idx := range ts.catalog.List() {
			if idx.State() == catalog.Active {
				oids = append(oids, idx.OID().String())
			}
		}
	}
	sort.Strings(oids)
	key := strings.Join(oids, ",")

	tu.convMu.Lock()
	defer tu.convMu.Unlock()
	if key == tu.convLastKey {
		tu.convStreak++
	} else {
		tu.convLastKey = key
		tu.convStreak = 1
	}
	converged := tu.convStreak*opts.PhaseLength >= opts.ConvergenceOpThreshold
	tu.convConverged.Store(converged)
	return converged
}

// Converged reports whether the index set has been stable for at least
// ConvergenceOpThreshold/PhaseLength consecutive Tuner Loop phases.
func (tu *IndexTuner) Converged() bool { return tu.convConverged.Load() }

// PickIndex implements spec.md §4.6: given a query's column set, return
// the best ACTIVE index with an exactly matching key schema, or false if
// none qualifies under policy. On success the caller owns a reference
// (PickIndex calls Acquire on its behalf) and must call Release once its
// scan is done.
func (tu *IndexTuner) PickIndex(tableID storage.TableID, columnSet []uint32, policy ScanPolicy) (*catalog.Index, uint64, bool) {
	if policy == PolicyNever {
		return nil, 0, false
	}
	ts, ok := tu.tableState(tableID)
	if !ok {
		return nil, 0, false
	}
	want := toKeySchema(columnSet)

	var best *catalog.Index
	for _, idx := range ts.catalog.List() {
		if idx.State() != catalog.Active {
			continue
		}
		if !idx.KeySchema().Equal(want) {
			continue
		}
		if best == nil || idx.P() > best.P() || (idx.P() == best.P() && idx.Utility() > best.Utility()) {
			best = idx
		}
	}
	if best == nil {
		return nil, 0, false
	}
	pAtPick := best.P()
	if policy == PolicyFull && pAtPick < ts.table.ExtentCount() {
		return nil, 0, false
	}
	best.Acquire()
	return best, pAtPick, true
}

// RecordSample appends one workload observation to tableID's Sample
// Ring (spec.md §4.1's record()), and advances the aggregate,
// cross-table sample count the Tuner Loop's wave thresholds are
// measured against (spec.md §4.5 step 3).
func (tu *IndexTuner) RecordSample(tableID storage.TableID, s sampling.Sample) error {
	ts, ok := tu.tableState(tableID)
	if !ok {
		return tunererr.ErrTableNotFound
	}
	ts.ring.Record(s)
	tu.totalSamples.Add(1)
	return nil
}

// UpdateRow performs an in-place update of the row at ptr: it
// materializes the old row, computes the new row by applying project to
// it, then repairs every ACTIVE index whose indexed prefix already
// covers ptr.Extent, per spec.md §4.7's protocol. The new key is
// inserted before the row is overwritten, and the old key is deleted
// only after — so a concurrent index scan never misses ptr mid-update,
// and a reader that sees both versions briefly dedups them by item
// pointer.
func (tu *IndexTuner) UpdateRow(tableID storage.TableID, ptr storage.ItemPointer, project func(old storage.Row) storage.Row) error {
	ts, ok := tu.tableState(tableID)
	if !ok {
		return tunererr.ErrTableNotFound
	}

	txn := storage.TxnID(ts.nextTxn.Add(1))
	if !ts.table.Transactions().AcquireOwnership(ptr, txn) {
		return tunererr.ErrWriteConflict
	}
	defer ts.table.Transactions().PerformUpdate(ptr, txn)

	ext := ts.table.Extent(ptr.Extent)
	oldRow, live := ext.Row(ptr.Slot)
	if !live {
		return tunererr.ErrRowNotFound
	}
	newRow := project(oldRow)

	cols := ts.table.Columns()
	type touchedIndex struct {
		idx            *catalog.Index
		newKey, oldKey []byte
		hasNew, hasOld bool
	}
	// already covers ptr.Extent (i.p > e): repair both keys, as below.
	// currentlyBuilding (i.p == e): classified before any lock is taken,
	// so the builder may win the (oid, e) coordinator-lock race first,
	// index the old row, and AdvancePrefix past e before we get the
	// lock. The lock loop below re-reads P() once it actually holds the
	// lock and promotes any index that advanced into the alreadyIndexed
	// repair, so it never permanently maps the old key.
	var alreadyIndexed []touchedIndex
	var currentlyBuilding []*catalog.Index
	for _, idx := range ts.catalog.List() {
		if idx.State() != catalog.Active {
			continue
		}
		p := idx.P()
		switch {
		case uint64(ptr.Extent) < p:
			newKey, okNew := indexstore.EncodeRowKey(cols, idx.KeySchema(), newRow)
			oldKey, okOld := indexstore.EncodeRowKey(cols, idx.KeySchema(), oldRow)
			alreadyIndexed = append(alreadyIndexed, touchedIndex{idx, newKey, oldKey, okNew, okOld})
		case uint64(ptr.Extent) == p:
			currentlyBuilding = append(currentlyBuilding, idx)
		default:
			// p < e: the builder has not reached this extent yet and
			// will index whichever row version it finds when it does.
		}
	}

	for _, t := range alreadyIndexed {
		if !t.hasNew {
			continue
		}
		unlock := ts.coord.Lock(t.idx.OID(), ptr.Extent)
		if err := ts.store.Insert(t.idx.OID(), t.newKey, ptr); err != nil {
			tu.logger.Error("index entry insert failed during update", "index", t.idx.OID().String(), "pointer", ptr.String(), "error", errors.WithStack(err))
		}
		unlock()
	}

	unlocks := make([]func(), 0, len(currentlyBuilding))
	for _, idx := range currentlyBuilding {
		unlock := ts.coord.Lock(idx.OID(), ptr.Extent)
		if idx.P() > uint64(ptr.Extent) {
			// The builder won the lock race first, indexed the old row,
			// and advanced p past e while we were waiting: this index is
			// no longer currentlyBuilding, it's alreadyIndexed, and needs
			// the same insert/delete repair that branch gets, or it would
			// permanently resolve the old key instead of the new one.
			newKey, okNew := indexstore.EncodeRowKey(cols, idx.KeySchema(), newRow)
			oldKey, okOld := indexstore.EncodeRowKey(cols, idx.KeySchema(), oldRow)
			if okNew {
				if err := ts.store.Insert(idx.OID(), newKey, ptr); err != nil {
					tu.logger.Error("index entry insert failed during update", "index", idx.OID().String(), "pointer", ptr.String(), "error", errors.WithStack(err))
				}
			}
			alreadyIndexed = append(alreadyIndexed, touchedIndex{idx, newKey, oldKey, okNew, okOld})
			unlock()
			continue
		}
		unlocks = append(unlocks, unlock)
	}
	ext.SetRow(ptr.Slot, newRow)
	for i := len(unlocks) - 1; i >= 0; i-- {
		unlocks[i]()
	}

	for _, t := range alreadyIndexed {
		if !t.hasOld {
			continue
		}
		if t.hasNew && bytes.Equal(t.newKey, t.oldKey) {
			// The update didn't touch this index's key columns: the
			// insert above already wrote this exact entry, so deleting
			// it here would drop the row from the index entirely.
			continue
		}
		unlock := ts.coord.Lock(t.idx.OID(), ptr.Extent)
		if err := ts.store.Delete(t.idx.OID(), t.oldKey, ptr); err != nil {
			tu.logger.Error("index entry delete failed during update", "index", t.idx.OID().String(), "pointer", ptr.String(), "error", errors.WithStack(err))
		}
		unlock()
	}

	return nil
}

// DeleteRow removes ptr from the live row set and repairs every ACTIVE
// index whose indexed prefix already covers its extent. Row slots are
// never reused, per storage.Extent, so this only clears liveness and
// index entries, not the slot itself.
func (tu *IndexTuner) DeleteRow(tableID storage.TableID, ptr storage.ItemPointer) error {
	ts, ok := tu.tableState(tableID)
	if !ok {
		return tunererr.ErrTableNotFound
	}

	txn := storage.TxnID(ts.nextTxn.Add(1))
	if !ts.table.Transactions().AcquireOwnership(ptr, txn) {
		return tunererr.ErrWriteConflict
	}
	defer ts.table.Transactions().PerformUpdate(ptr, txn)

	ext := ts.table.Extent(ptr.Extent)
	row, live := ext.Row(ptr.Slot)
	if !live {
		return tunererr.ErrRowNotFound
	}
	cols := ts.table.Columns()

	ext.Delete(ptr.Slot)

	for _, idx := range ts.catalog.List() {
		if idx.State() != catalog.Active {
			continue
		}
		if uint64(ptr.Extent) >= idx.P() {
			continue
		}
		key, ok := indexstore.EncodeRowKey(cols, idx.KeySchema(), row)
		if !ok {
			continue
		}
		unlock := ts.coord.Lock(idx.OID(), ptr.Extent)
		if err := ts.store.Delete(idx.OID(), key, ptr); err != nil {
			tu.logger.Error("index entry delete failed during row delete", "index", idx.OID().String(), "pointer", ptr.String(), "error", errors.WithStack(err))
		}
		unlock()
	}

	return nil
}

func toKeySchema(cols []uint32) schema.KeySchema {
	ks := make(schema.KeySchema, len(cols))
	for i, c := range cols {
		ks[i] = schema.ColumnID(c)
	}
	return ks.Canonical()
}

// Set* mutators let callers retune a running Tuner without a restart,
// each performing one RCU swap of the Options snapshot.

func (tu *IndexTuner) SetSleepDuration(d time.Duration) {
	tu.mutateOptions(func(o *Options) { o.SleepDuration = d })
}

func (tu *IndexTuner) SetBuildSampleCountThreshold(n int64) {
	tu.mutateOptions(func(o *Options) { o.BuildSampleCountThreshold = n })
}

func (tu *IndexTuner) SetAnalyzeSampleCountThreshold(n int64) {
	tu.mutateOptions(func(o *Options) { o.AnalyzeSampleCountThreshold = n })
}

func (tu *IndexTuner) SetTileGroupsIndexedPerIteration(n int) {
	tu.mutateOptions(func(o *Options) { o.TileGroupsIndexedPerIteration = n })
}

func (tu *IndexTuner) SetAlpha(a float64) {
	tu.mutateOptions(func(o *Options) { o.Alpha = a })
}

func (tu *IndexTuner) SetIndexUtilityThreshold(t float64) {
	tu.mutateOptions(func(o *Options) { o.IndexUtilityThreshold = t })
}

func (tu *IndexTuner) SetIndexCountThreshold(n int) {
	tu.mutateOptions(func(o *Options) { o.IndexCountThreshold = n })
}

func (tu *IndexTuner) SetWriteRatioThreshold(t float64) {
	tu.mutateOptions(func(o *Options) { o.WriteRatioThreshold = t })
}

func (tu *IndexTuner) SetDropGracePeriod(n int64) {
	tu.mutateOptions(func(o *Options) { o.DropGracePeriod = n })
}

func (tu *IndexTuner) SetBuilderRetryInterval(d time.Duration) {
	tu.mutateOptions(func(o *Options) { o.BuilderRetryInterval = d })
}
