// Package kinematics implements the velocity/acceleration estimator and
// the kinematic inversion that turns (position, velocity, acceleration)
// into a recommended fee rate per target block, per spec.md §4.5/§4.6.
package kinematics

import (
	"time"

	"github.com/zkao/btc-congestion-manager/mempool"
)

// AddedWindow accumulates, over a trailing wall-clock window, the total
// size of Added transactions ahead of a target block (cumSize < target *
// effectiveBlockSize), rescaled to bytes per 10 minutes.
type AddedWindow struct {
	window time.Duration
	clock  func() time.Time
	items  []addedItem
	last   float64
	have   bool
}

type addedItem struct {
	at   time.Time
	size int64
}

// NewAddedWindow returns an AddedWindow with the given trailing width. A
// nil clock defaults to time.Now.
func NewAddedWindow(window time.Duration, clock func() time.Time) *AddedWindow {
	if clock == nil {
		clock = time.Now
	}
	return &AddedWindow{window: window, clock: clock}
}

// Push records a batch of transactions added ahead of target (the caller
// is expected to have already filtered to cumSize < target *
// effectiveBlockSize), prunes entries outside the trailing window, and
// returns the rescaled byte rate (bytes per 10 minutes) plus whether it
// changed from the previous call.
func (w *AddedWindow) Push(ahead []mempool.MempoolTx) (rate float64, changed bool) {
	now := w.clock()
	for _, tx := range ahead {
		w.items = append(w.items, addedItem{at: now, size: tx.Size})
	}

	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.items) && w.items[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.items = w.items[i:]
	}

	var sum int64
	for _, it := range w.items {
		sum += it.size
	}

	windowSecs := w.window.Seconds()
	if windowSecs <= 0 {
		return w.last, false
	}
	rate = float64(sum) / windowSecs * 600
	changed = !w.have || rate != w.last
	w.last, w.have = rate, true
	return rate, changed
}

// removedBatch is one block interval's worth of removed-ahead bytes, with
// its associated inter-block interval.
type removedBatch struct {
	sumSize int64
	ibiMs   float64
}

// RemovedWindow coalesces the last N block events' removed-ahead byte
// totals, each carrying the inter-block interval it was observed over,
// and rescales the combined total to bytes per 10 minutes.
type RemovedWindow struct {
	capacity int
	batches  []removedBatch
	last     float64
	have     bool
}

// NewRemovedWindow returns a RemovedWindow coalescing the last capacity
// block events (spec.md's intBlocksRemoved).
func NewRemovedWindow(capacity int) *RemovedWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &RemovedWindow{capacity: capacity}
}

// Push records one block event's removed-ahead byte total (the caller is
// expected to have already filtered to cumSize < target *
// effectiveBlockSize) and its inter-block interval in milliseconds, then
// returns the rescaled byte rate (bytes per 10 minutes) over the last
// `capacity` events, plus whether it changed.
func (w *RemovedWindow) Push(ahead []mempool.MempoolTx, ibiMs float64) (rate float64, changed bool) {
	var sum int64
	for _, tx := range ahead {
		sum += tx.Size
	}

	w.batches = append(w.batches, removedBatch{sumSize: sum, ibiMs: ibiMs})
	if len(w.batches) > w.capacity {
		w.batches = w.batches[len(w.batches)-w.capacity:]
	}

	var sumSize int64
	var sumIBI float64
	for _, b := range w.batches {
		sumSize += b.sumSize
		sumIBI += b.ibiMs
	}
	if sumIBI <= 0 {
		return w.last, false
	}
	rate = float64(sumSize) / (sumIBI / 60000) * 10
	changed = !w.have || rate != w.last
	w.last, w.have = rate, true
	return rate, changed
}

// AheadOf filters txs to those whose CumSize is strictly less than
// target * effectiveBlockSize, the scoping rule shared by both velocity
// windows (spec.md §3 "Velocity windows").
func AheadOf(txs []mempool.MempoolTx, target int, effectiveBlockSize int64) []mempool.MempoolTx {
	threshold := int64(target) * effectiveBlockSize
	var out []mempool.MempoolTx
	for _, tx := range txs {
		if tx.CumSize < threshold {
			out = append(out, tx)
		}
	}
	return out
}

// Velocity combines the latest AddedWindow and RemovedWindow rates into
// addV - rmV, sampled on whichever side last updated (spec.md §4.5).
type Velocity struct {
	addV, rmV         float64
	haveAdd, haveRm   bool
	last              float64
	have              bool
}

// UpdateAdded feeds a new AddedWindow rate into the velocity combiner and
// returns the recomputed velocity plus whether it changed. No value is
// produced (ok=false) until both sides have reported at least once.
func (v *Velocity) UpdateAdded(addV float64) (value float64, changed bool, ok bool) {
	v.addV, v.haveAdd = addV, true
	return v.recompute()
}

// UpdateRemoved feeds a new RemovedWindow rate into the velocity combiner.
func (v *Velocity) UpdateRemoved(rmV float64) (value float64, changed bool, ok bool) {
	v.rmV, v.haveRm = rmV, true
	return v.recompute()
}

func (v *Velocity) recompute() (value float64, changed bool, ok bool) {
	if !v.haveAdd || !v.haveRm {
		return 0, false, false
	}
	value = v.addV - v.rmV
	changed = !v.have || value != v.last
	v.last, v.have = value, true
	return value, changed, true
}
