// Package sampling implements the per-table Sample Ring: a bounded,
// non-blocking log of workload events the Analyzer drains on a cadence.
package sampling

import (
	"github.com/ranxian/peloton-1/schema"
)

// Kind distinguishes a read access from an update access, the split
// the Analyzer uses to compute the workload write ratio (spec.md §4.4
// step 3).
type Kind byte

const (
	ReadAccess Kind = iota
	UpdateAccess
)

// Sample is one workload event: which columns an access touched, how
// selective it was, and when it happened. Latency is retained for
// operational visibility (spec.md §9's "utility units" note allows
// substituting it for selectivity) but the Analyzer's utility formula
// is selectivity-based, as spec.md §4.4 standardizes.
type Sample struct {
	Kind        Kind
	Columns     schema.KeySchema
	Selectivity float64
	Latency     float64
	Seq         uint64
}
