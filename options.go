package indextuner

import "time"

// ScanPolicy governs how pick_index treats partially-built indexes,
// spec.md §4.6's index_usage_policy.
type ScanPolicy int

const (
	// PolicyPartial accepts an index whose p is less than the table's
	// extent count; the scan executor falls back to a sequential scan
	// for the unindexed tail.
	PolicyPartial ScanPolicy = iota
	// PolicyFull rejects any index that does not yet cover the whole
	// table.
	PolicyFull
	// PolicyNever disables index-assisted scans entirely.
	PolicyNever
)

// Options collects every Tuner Loop knob from spec.md §4.5's table plus
// the implementation-level defaults spec.md leaves open (the drop grace
// period, a concrete selectivity floor, self-healing cadence). Mirrors
// the teacher's Options-struct-with-defaults idiom (chotki.Options).
type Options struct {
	// SleepDuration is the Tuner Loop's tick period (spec.md §4.5 step 1).
	SleepDuration time.Duration

	// BuildSampleCountThreshold is the number of samples observed,
	// summed across all managed tables, before the next build wave.
	BuildSampleCountThreshold int64
	// AnalyzeSampleCountThreshold is the same, for the next analyze pass.
	AnalyzeSampleCountThreshold int64
	// TileGroupsIndexedPerIteration bounds extents built per index per
	// wave (spec.md's "budget_extents" to build_step).
	TileGroupsIndexedPerIteration int

	// Alpha is the utility smoothing weight for old samples, spec.md
	// §4.4 step 5's α (default 0.2, as the spec recommends).
	Alpha float64
	// Epsilon floors observed selectivity before inverting it, avoiding
	// a divide-by-zero on a perfectly selective sample (spec.md §4.4
	// step 1's max(selectivity, ε)).
	Epsilon float64
	// IndexUtilityThreshold is the minimum smoothed utility to keep an
	// index, and the multiplier applied to a batch's baseline raw
	// benefit when admitting new candidates.
	IndexUtilityThreshold float64
	// IndexCountThreshold is the max ACTIVE indexes per table.
	IndexCountThreshold int
	// WriteRatioThreshold: above this update/(update+read) ratio, new
	// index additions are suppressed for the batch.
	WriteRatioThreshold float64
	// DropGracePeriod is the number of consecutive analyze batches an
	// index's smoothed utility must stay below IndexUtilityThreshold
	// before it is retired. spec.md §4.4 step 6 requires a grace period
	// but does not pin a number; this implementation defaults to 3.
	DropGracePeriod int64
	// MaxDrainPerBatch bounds how many samples one Analyze call drains
	// from a table's ring, per spec.md §4.4 step 1's "bounded number".
	MaxDrainPerBatch int

	// SampleRingCapacity is each table's Sample Ring capacity.
	SampleRingCapacity int

	// BuilderRetryInterval governs the self-healing reschedule of an
	// index retired by IndexCorruption (SUPPLEMENTED FEATURES), mirroring
	// the teacher's ten-minute reindex-task reschedule window.
	BuilderRetryInterval time.Duration

	// ConvergenceOpThreshold and PhaseLength together define the
	// convergence detector's required run length, spec.md §4.8:
	// converged once the index set has been identical for
	// ConvergenceOpThreshold / PhaseLength consecutive phases.
	ConvergenceOpThreshold int64
	PhaseLength            int64
}

// DefaultOptions returns an Options populated with this implementation's
// defaults for every knob spec.md §4.5 leaves to the implementer.
func DefaultOptions() Options {
	o := Options{}
	o.SetDefaults()
	return o
}

// SetDefaults fills any zero-valued field with its default, so callers
// can start from a partially-specified Options (the teacher's
// chotki.Options convention — a plain struct literal, no builder).
func (o *Options) SetDefaults() {
	if o.SleepDuration == 0 {
		o.SleepDuration = 50 * time.Millisecond
	}
	if o.BuildSampleCountThreshold == 0 {
		o.BuildSampleCountThreshold = 100
	}
	if o.AnalyzeSampleCountThreshold == 0 {
		o.AnalyzeSampleCountThreshold = 100
	}
	if o.TileGroupsIndexedPerIteration == 0 {
		o.TileGroupsIndexedPerIteration = 4
	}
	if o.Alpha == 0 {
		o.Alpha = 0.2
	}
	if o.Epsilon == 0 {
		o.Epsilon = 1e-6
	}
	if o.IndexUtilityThreshold == 0 {
		o.IndexUtilityThreshold = 0.1
	}
	if o.IndexCountThreshold == 0 {
		o.IndexCountThreshold = 8
	}
	if o.WriteRatioThreshold == 0 {
		o.WriteRatioThreshold = 0.75
	}
	if o.DropGracePeriod == 0 {
		o.DropGracePeriod = 3
	}
	if o.MaxDrainPerBatch == 0 {
		o.MaxDrainPerBatch = 10000
	}
	if o.SampleRingCapacity == 0 {
		o.SampleRingCapacity = 100000
	}
	if o.BuilderRetryInterval == 0 {
		o.BuilderRetryInterval = 10 * time.Minute
	}
	if o.ConvergenceOpThreshold == 0 {
		o.ConvergenceOpThreshold = 1000
	}
	if o.PhaseLength == 0 {
		o.PhaseLength = 1
	}
}
