// Package diff derives Added/Removed transaction sets from successive
// mempool snapshots and classifies large removals as mined-block events.
// It generalizes the txid-set subtraction in package collect's
// MempoolState.Sub from the simulation-based predecessor of this daemon.
package diff

import "github.com/zkao/btc-congestion-manager/mempool"

// MinedThreshold is the number of removed transactions above which a
// snapshot-to-snapshot removal is classified as a mined block, per
// spec.md §4.2. |Removed| == 500 is NOT classified as mined;
// |Removed| == 501 is.
const MinedThreshold = 500

// Result holds the outcome of diffing two successive snapshots.
type Result struct {
	Added   []mempool.MempoolTx
	Removed []mempool.MempoolTx
	Mined   bool
}

// Pairwise computes Added = cur \ prev and Removed = prev \ cur by Txid,
// and classifies the removal as a mined-block event when more than
// MinedThreshold transactions disappeared. prev may be nil, in which case
// Added is every tx in cur and Removed is empty.
func Pairwise(prev, cur *mempool.SortedMempoolSnapshot) Result {
	if cur == nil {
		return Result{}
	}
	if prev == nil {
		return Result{Added: append([]mempool.MempoolTx(nil), cur.Txs...)}
	}

	prevByID := prev.TxByID()
	curByID := cur.TxByID()

	var added, removed []mempool.MempoolTx
	for txid, tx := range curByID {
		if _, ok := prevByID[txid]; !ok {
			added = append(added, tx)
		}
	}
	for txid, tx := range prevByID {
		if _, ok := curByID[txid]; !ok {
			removed = append(removed, tx)
		}
	}

	return Result{
		Added:   added,
		Removed: removed,
		Mined:   len(removed) > MinedThreshold,
	}
}

// LastTwo buffers the two most recent snapshots and yields the Pairwise
// diff between them on each Push. A snapshot older than the currently
// buffered pair (i.e. pushed out of order) is rejected and the buffer is
// left unchanged, per spec.md §5's "a snapshot older than the current
// pair is discarded".
type LastTwo struct {
	prev, cur *mempool.SortedMempoolSnapshot
}

// Push buffers snap as the new "cur", demoting the old "cur" to "prev",
// and returns the diff against the old "cur". A snap with Time earlier
// than the currently buffered cur is ignored (ok=false).
func (b *LastTwo) Push(snap *mempool.SortedMempoolSnapshot) (Result, bool) {
	if snap == nil {
		return Result{}, false
	}
	if b.cur != nil && snap.Time < b.cur.Time {
		return Result{}, false
	}
	prev := b.cur
	b.prev, b.cur = prev, snap
	return Pairwise(prev, snap), true
}

// Latest returns the most recently pushed snapshot, or nil.
func (b *LastTwo) Latest() *mempool.SortedMempoolSnapshot {
	return b.cur
}
