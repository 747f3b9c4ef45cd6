package kinematics

import (
	"fmt"
	"sort"
	"time"

	"github.com/zkao/btc-congestion-manager/mempool"
)

// UndershootFactor is the deliberate undershoot applied to the naively
// computed fee rate, per spec.md §3/§4.6.
const UndershootFactor = 0.999

// InitialPosition back-projects the queue position kinematically:
// x0 = xFinal - (v*target + 0.5*a*target^2), time measured in blocks.
func InitialPosition(xFinal, v, a float64, target int) float64 {
	t := float64(target)
	return xFinal - (v*t + 0.5*a*t*t)
}

// FeeEstimate is the payload produced for a single target block, per
// spec.md §3 "FeeRecommendation" / §4.6.
type FeeEstimate struct {
	TargetBlock int
	FeeRate     float64
	Timestamp   int64
}

// EstimateFee selects, from snap, the transaction nearest to position x0
// and returns the undershot fee-rate estimate for target. ok is false if
// the snapshot is empty.
func EstimateFee(snap *mempool.SortedMempoolSnapshot, x0 float64, target int, timestamp int64) (FeeEstimate, bool) {
	tx, found := snap.NearestByPosition(x0)
	if !found {
		return FeeEstimate{}, false
	}
	return FeeEstimate{
		TargetBlock: target,
		FeeRate:     tx.FeeRate * UndershootFactor,
		Timestamp:   timestamp,
	}, true
}

// Pipeline is the memoized per-target chain of velocity, acceleration,
// and position state (spec.md §9 "per-target memoization"): repeated
// calls for the same target share one chain of buffered windows instead
// of rebuilding it.
type Pipeline struct {
	Target int

	Added    *AddedWindow
	Removed  *RemovedWindow
	Velocity Velocity
	Accel    Acceleration

	lastInitialPosition float64
	haveInitialPosition bool
}

// OnAdded feeds a batch of newly-added transactions (already scoped to
// this target's blockEffectiveSize window via AheadOf) into the Added
// window and advances Velocity/Acceleration if the window's rate changed.
// Returns the new velocity and acceleration plus whether either advanced.
func (p *Pipeline) OnAdded(aheadTxs []mempool.MempoolTx) (v, a float64, ok bool) {
	rate, changed := p.Added.Push(aheadTxs)
	if !changed {
		return 0, 0, false
	}
	vv, vchanged, vok := p.Velocity.UpdateAdded(rate)
	if !vok || !vchanged {
		return 0, 0, false
	}
	return vv, p.Accel.Update(vv), true
}

// OnRemoved feeds a block event's removed-ahead transactions and the
// inter-block interval (ms) into the Removed window, advancing
// Velocity/Acceleration on change.
func (p *Pipeline) OnRemoved(aheadTxs []mempool.MempoolTx, ibiMs float64) (v, a float64, ok bool) {
	rate, changed := p.Removed.Push(aheadTxs, ibiMs)
	if !changed {
		return 0, 0, false
	}
	vv, vchanged, vok := p.Velocity.UpdateRemoved(rate)
	if !vok || !vchanged {
		return 0, 0, false
	}
	return vv, p.Accel.Update(vv), true
}

// InitialPositionFor computes x0 for the current (v, a, xFinal) and
// reports whether it changed from the last call (spec.md §4.6 "emit only
// on change").
func (p *Pipeline) InitialPositionFor(xFinal, v, a float64) (x0 float64, changed bool) {
	x0 = InitialPosition(xFinal, v, a, p.Target)
	changed = !p.haveInitialPosition || x0 != p.lastInitialPosition
	p.lastInitialPosition, p.haveInitialPosition = x0, true
	return x0, changed
}

// Pipelines is a single-logical-scheduler (per spec.md §5) cache of
// per-target Pipeline instances, keyed by target block number, so that
// repeated subscription with the same target shares its buffered windows
// instead of duplicating them (spec.md §9's per-target memoization).
type Pipelines struct {
	addedWindow     time.Duration
	removedCapacity int
	clock           func() time.Time

	pipelines map[int]*Pipeline
}

// NewPipelines returns a Pipelines cache. addedWindow is the trailing
// wall-clock width for AddedWindow (spec.md's intTimeAdded);
// removedCapacity is the number of block events coalesced by
// RemovedWindow (spec.md's intBlocksRemoved). A nil clock defaults to
// time.Now.
func NewPipelines(addedWindow time.Duration, removedCapacity int, clock func() time.Time) *Pipelines {
	return &Pipelines{
		addedWindow:     addedWindow,
		removedCapacity: removedCapacity,
		clock:           clock,
		pipelines:       make(map[int]*Pipeline),
	}
}

// Target returns the memoized Pipeline for the given target block,
// creating it on first use.
func (ps *Pipelines) Target(target int) *Pipeline {
	if p, ok := ps.pipelines[target]; ok {
		return p
	}
	p := &Pipeline{
		Target:  target,
		Added:   NewAddedWindow(ps.addedWindow, ps.clock),
		Removed: NewRemovedWindow(ps.removedCapacity),
	}
	ps.pipelines[target] = p
	return p
}

// Targets returns every target block currently memoized, ascending.
func (ps *Pipelines) Targets() []int {
	out := make([]int, 0, len(ps.pipelines))
	for t := range ps.pipelines {
		out = append(out, t)
	}
	sort.Ints(out)
	return out
}

// ErrNoFinalPosition describes a target that cannot yet produce a
// FeeEstimate (no FinalPosition available) — suppression, not a hard
// error, per spec.md §4.6. Nothing in this repository returns it:
// App.updateEstimate skips such a target without an error.
type ErrNoFinalPosition struct {
	Target int
}

func (e ErrNoFinalPosition) Error() string {
	return fmt.Sprintf("kinematics: no FinalPosition available yet for target %d", e.Target)
}
