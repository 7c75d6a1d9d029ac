// Package analyzer implements the Analyzer: it drains a table's sample
// ring on a cadence and turns the batch into suggested new key schemas
// plus refreshed per-index utility scores, per spec.md §4.4.
package analyzer

import (
	"sort"

	"github.com/ranxian/peloton-1/catalog"
	"github.com/ranxian/peloton-1/sampling"
	"github.com/ranxian/peloton-1/schema"
	"github.com/ranxian/peloton-1/utils"
)

// Params carries the Tuner Loop's configuration knobs that govern one
// Analyze call (spec.md §4.5's table, the subset the Analyzer consults).
type Params struct {
	Alpha                 float64
	Epsilon               float64
	IndexUtilityThreshold float64
	IndexCountThreshold   int
	WriteRatioThreshold   float64
	DropGracePeriod       int64
	MaxDrainPerBatch      int
}

// Result is what one Analyze call produces: schemas worth building, and
// indexes that have been below threshold long enough to retire. Neither
// list is applied to the catalog here — the Tuner Loop owns add()/
// retire() calls (spec.md §4.5 steps 4 and 6).
type Result struct {
	Added   []schema.KeySchema
	Retired []*catalog.Index
}

type candidate struct {
	schema     schema.KeySchema
	rawBenefit float64
}

// Analyze drains up to Params.MaxDrainPerBatch samples from ring and
// produces a Result. The Analyzer is stateless across calls except for
// the state it mutates directly on each Index (smoothed utility and
// low-utility streak), per spec.md §4.4's closing note.
func Analyze(ring *sampling.Ring, cat *catalog.Catalog, p Params) Result {
	samples := ring.DrainUpTo(p.MaxDrainPerBatch)
	if len(samples) == 0 {
		return Result{}
	}

	benefitBySchema := map[string]float64{}
	schemaByKey := map[string]schema.KeySchema{}
	var reads, updates int

	eps := p.Epsilon
	if eps <= 0 {
		eps = 1e-6
	}

	for _, s := range samples {
		switch s.Kind {
		case sampling.UpdateAccess:
			updates++
		default:
			reads++
			canon := s.Columns.Canonical()
			if len(canon) == 0 {
				continue
			}
			key := canon.String()
			schemaByKey[key] = canon
			sel := s.Selectivity
			if sel < eps {
				sel = eps
			}
			benefitBySchema[key] += 1.0 / sel
		}
	}

	var w float64
	if total := reads + updates; total > 0 {
		w = float64(updates) / float64(total)
	}

	activeByKey := map[string]*catalog.Index{}
	indexes := cat.List()
	for i := range indexes {
		idx := indexes[i]
		if idx.State() != catalog.Active {
			continue
		}
		activeByKey[idx.KeySchema().String()] = idx
	}

	// Step 5: refresh smoothed utility for every existing ACTIVE index,
	// and step 6: track/declare drop-grace expiry. Runs regardless of
	// the write-ratio suppression below — only new candidates are
	// suppressed by a write-heavy workload, not maintenance of existing
	// indexes (spec.md §8 scenario 5).
	retireCount := 0
	var retired []*catalog.Index
	for key, idx := range activeByKey {
		observed := benefitBySchema[key]
		newU := p.Alpha*idx.Utility() + (1-p.Alpha)*observed
		idx.SetUtility(newU)

		if newU < p.IndexUtilityThreshold {
			streak := idx.BumpLowStreak()
			if streak >= p.DropGracePeriod {
				retired = append(retired, idx)
				retireCount++
			}
		} else {
			idx.ResetLowStreak()
		}
	}

	result := Result{Retired: retired}

	if w > p.WriteRatioThreshold {
		return result
	}

	// Step 4: build the candidate list, excluding schemas that already
	// have an ACTIVE index (whether or not that index is among those
	// just retired above — a retirement this batch doesn't free a slot
	// for the very same schema within the same batch).
	var cands []candidate
	for key, benefit := range benefitBySchema {
		if _, exists := activeByKey[key]; exists {
			continue
		}
		cands = append(cands, candidate{schema: schemaByKey[key], rawBenefit: benefit})
	}
	if len(cands) == 0 {
		return result
	}

	baseline := median(cands)
	threshold := p.IndexUtilityThreshold * baseline

	var qualified []candidate
	for _, c := range cands {
		if c.rawBenefit > threshold {
			qualified = append(qualified, c)
		}
	}
	if len(qualified) == 0 {
		return result
	}

	// P6: indexes retired this batch free a slot before new candidates
	// are admitted, even though the catalog's own Retire() call happens
	// later in the Tuner Loop's tick.
	roomLeft := p.IndexCountThreshold - (len(activeByKey) - retireCount)
	if roomLeft <= 0 {
		return result
	}

	for _, c := range topCandidates(qualified, roomLeft) {
		result.Added = append(result.Added, c.schema)
	}
	return result
}

// median returns the median raw_benefit across cands, the baseline
// spec.md §4.4 step 4 measures candidates against to stay scale-free.
func median(cands []candidate) float64 {
	vals := make([]float64, len(cands))
	for i, c := range cands {
		vals[i] = c.rawBenefit
	}
	sort.Float64s(vals)
	n := len(vals)
	if n%2 == 1 {
		return vals[n/2]
	}
	return (vals[n/2-1] + vals[n/2]) / 2
}

// topCandidates returns the limit highest-rawBenefit candidates in
// descending order, using the same generic binary heap the catalog's
// retirement ranking could draw on, rather than a bespoke sort — ties
// broken arbitrarily among equal-benefit candidates.
func topCandidates(cands []candidate, limit int) []candidate {
	if limit <= 0 {
		return nil
	}
	h := &utils.Heap[float64]{}
	byKey := map[float64][]candidate{}
	for _, c := range cands {
		key := -c.rawBenefit // min-heap, so negate for max-first pop order
		h.Push(key)
		byKey[key] = append(byKey[key], c)
	}
	out := make([]candidate, 0, limit)
	for h.Len() > 0 && len(out) < limit {
		k := h.Pop()
		bucket := byKey[k]
		out = append(out, bucket[0])
		byKey[k] = bucket[1:]
	}
	return out
}
