package recommend

import (
	"math"
	"sort"
)

// RankedEntry is one ranked recommendation, published on com.fee.mindiff.
// Valid is always true — only valid entries are ever emitted.
type RankedEntry struct {
	TargetBlock int     `json:"targetBlock"`
	FeeRate     float64 `json:"feeRate"`
	Timestamp   int64   `json:"timestamp"`
	Diff        float64 `json:"diff"`
	CumDiff     float64 `json:"cumDiff"`
	Valid       bool    `json:"valid"`
}

// Recommend ranks the retained FeeDiff series by cost, keeping only
// entries that clear minSavingsRate's relative-improvement bar, per
// spec.md §4.7. entries must be ascending by TargetBlock, as produced by
// FeeDiff. The first entry (the diff_0 = 0 baseline target) anchors the
// cumDiff running sum but is never itself a ranking candidate — it
// represents "no wait", not a recommendation to wait.
func Recommend(entries []DiffEntry, minSavingsRate float64) []RankedEntry {
	var cumDiff float64
	var candidates []RankedEntry

	for i, e := range entries {
		cumDiff += e.Diff
		if i == 0 {
			continue
		}
		prev := entries[i-1]
		valid := e.Diff == 0
		if !valid && prev.FeeRate != 0 {
			valid = math.Abs(e.Diff)/prev.FeeRate >= minSavingsRate
		}
		if !valid {
			continue
		}
		candidates = append(candidates, RankedEntry{
			TargetBlock: e.TargetBlock,
			FeeRate:     e.FeeRate,
			Timestamp:   e.Timestamp,
			Diff:        e.Diff,
			CumDiff:     cumDiff,
			Valid:       true,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return cost(candidates[i]) < cost(candidates[j])
	})
	return candidates
}

// cost is √(diff·cumDiff) / targetBlock, per spec.md §4.7.
func cost(e RankedEntry) float64 {
	product := e.Diff * e.CumDiff
	if product < 0 {
		// Shouldn't arise for a well-formed, non-increasing fee curve
		// (diff and cumDiff share sign), but guard against the sqrt of a
		// negative number degenerating the whole ranking.
		product = 0
	}
	if e.TargetBlock == 0 {
		return math.Inf(1)
	}
	return math.Sqrt(product) / float64(e.TargetBlock)
}
