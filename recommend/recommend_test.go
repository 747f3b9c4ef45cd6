package recommend

import (
	"testing"

	"github.com/zkao/btc-congestion-manager/kinematics"
)

func estimates(rates ...float64) []kinematics.FeeEstimate {
	out := make([]kinematics.FeeEstimate, len(rates))
	for i, r := range rates {
		out[i] = kinematics.FeeEstimate{TargetBlock: i + 1, FeeRate: r, Timestamp: 1000}
	}
	return out
}

func TestFeeDiffMonotoneDecreasing(t *testing.T) {
	// spec.md §8 scenario 5: feeRates [100, 95, 94, 94].
	out := FeeDiff(estimates(100, 95, 94, 94))
	if len(out) != 4 {
		t.Fatalf("FeeDiff len = %d, want 4 (every diff is non-increasing)", len(out))
	}
	want := []float64{0, -5, -1, 0}
	for i, e := range out {
		if e.Diff != want[i] {
			t.Errorf("out[%d].Diff = %v, want %v", i, e.Diff, want[i])
		}
	}
}

func TestFeeDiffFiltersIncreasing(t *testing.T) {
	// spec.md §8 scenario 6: degenerate increasing curve [90, 95, ...].
	out := FeeDiff(estimates(90, 95, 100, 105))
	for _, e := range out {
		if e.TargetBlock == 2 {
			t.Errorf("target 2 has diff +5 and must be filtered out of the retained series")
		}
	}
	if len(out) != 1 {
		t.Fatalf("FeeDiff len = %d, want 1 (only the target-1 baseline survives)", len(out))
	}
	if out[0].TargetBlock != 1 {
		t.Errorf("out[0].TargetBlock = %d, want 1", out[0].TargetBlock)
	}
}

func TestRecommendScenario5(t *testing.T) {
	diffs := FeeDiff(estimates(100, 95, 94, 94))
	ranked := Recommend(diffs, 0.02)

	byTarget := map[int]RankedEntry{}
	for _, r := range ranked {
		byTarget[r.TargetBlock] = r
	}

	if _, ok := byTarget[3]; ok {
		t.Errorf("target 3 has |diff|/prev = 1/95 = 0.0105 < 0.02 and must be invalid")
	}
	if _, ok := byTarget[1]; ok {
		t.Errorf("target 1 is the baseline anchor, not a ranking candidate")
	}
	if _, ok := byTarget[2]; !ok {
		t.Errorf("target 2 has |diff|/prev = 5/100 = 0.05 >= 0.02 and must be valid")
	}
	if _, ok := byTarget[4]; !ok {
		t.Errorf("target 4 has diff == 0 and must be valid")
	}
	if len(ranked) != 2 {
		t.Fatalf("ranked len = %d, want 2", len(ranked))
	}

	// target 4's diff is exactly 0, so its cost is 0 and it ranks first.
	if ranked[0].TargetBlock != 4 {
		t.Errorf("ranked[0].TargetBlock = %d, want 4 (cost 0 from a zero diff)", ranked[0].TargetBlock)
	}
	if ranked[1].TargetBlock != 2 {
		t.Errorf("ranked[1].TargetBlock = %d, want 2", ranked[1].TargetBlock)
	}
}

func TestRecommendScenario6(t *testing.T) {
	diffs := FeeDiff(estimates(90, 95, 100, 105))
	ranked := Recommend(diffs, 0.02)
	if len(ranked) != 0 {
		t.Fatalf("ranked = %+v, want none: the increasing curve leaves nothing past the baseline", ranked)
	}
}
