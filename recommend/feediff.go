// Package recommend computes the marginal fee-rate slope between
// successive target blocks and ranks the resulting candidates by a cost
// function that trades off marginal savings against wait time, per
// spec.md §4.7.
package recommend

import "github.com/zkao/btc-congestion-manager/kinematics"

// DiffEntry is one target block's marginal-slope entry, published on
// com.fee.feediff.
type DiffEntry struct {
	TargetBlock int
	FeeRate     float64
	Timestamp   int64
	Diff        float64
}

// FeeDiff combines the latest FeeEstimate for each target in a fixed,
// ascending target range into a series of marginal slopes:
// diff_i = (feeRate_i - feeRate_{i-1}) / (target_i - target_{i-1}), with
// diff_0 = 0. Only entries with diff_i <= 0 (fee non-increasing with
// longer wait) are retained, per spec.md §4.7. estimates must be sorted
// ascending by TargetBlock and contain no duplicate targets.
func FeeDiff(estimates []kinematics.FeeEstimate) []DiffEntry {
	var out []DiffEntry
	for i, e := range estimates {
		var diff float64
		if i > 0 {
			prev := estimates[i-1]
			denom := float64(e.TargetBlock - prev.TargetBlock)
			if denom != 0 {
				diff = (e.FeeRate - prev.FeeRate) / denom
			}
		}
		if diff <= 0 {
			out = append(out, DiffEntry{
				TargetBlock: e.TargetBlock,
				FeeRate:     e.FeeRate,
				Timestamp:   e.Timestamp,
				Diff:        diff,
			})
		}
	}
	return out
}
