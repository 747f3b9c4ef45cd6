package mempool

import (
	"hash/fnv"
	"sort"
	"strconv"
)

// SortedMempoolSnapshot is an ordered sequence of MempoolTx in descending
// FeeRate, with CumSize and TargetBlock assigned deterministically by
// Pack. Ties in FeeRate are broken by ascending Txid so that repeated
// packing of the same mempool contents is reproducible.
type SortedMempoolSnapshot struct {
	Txs    []MempoolTx
	Height int64
	Time   int64

	hash uint64
}

// EffectiveBlockSize returns blockSize * (1 - minersReservedBlockRatio),
// the portion of a block available to fee-paying transactions.
func EffectiveBlockSize(blockSize int64, minersReservedBlockRatio float64) int64 {
	return int64(float64(blockSize) * (1 - minersReservedBlockRatio))
}

// Pack sorts txs descending by FeeRate (ties broken by ascending Txid),
// then walks the sorted list accumulating CumSize and assigning
// TargetBlock: TargetBlock starts at 1 and increments, together with a
// block counter n starting at 1, whenever CumSize crosses n *
// effectiveBlockSize.
func Pack(txs []MempoolTx, height, timeNow int64, effectiveBlockSize int64) *SortedMempoolSnapshot {
	sorted := make([]MempoolTx, len(txs))
	copy(sorted, txs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].FeeRate != sorted[j].FeeRate {
			return sorted[i].FeeRate > sorted[j].FeeRate
		}
		return sorted[i].Txid < sorted[j].Txid
	})

	var cum int64
	target := 1
	n := int64(1)
	for i := range sorted {
		cum += sorted[i].Size
		for effectiveBlockSize > 0 && cum > n*effectiveBlockSize {
			target++
			n++
		}
		sorted[i].CumSize = cum
		sorted[i].TargetBlock = target
	}

	s := &SortedMempoolSnapshot{Txs: sorted, Height: height, Time: timeNow}
	s.hash = contentHash(sorted)
	return s
}

// contentHash computes an FNV-1a64 hash over the sorted (txid, size,
// descendantFees) triples, used by Equal to short-circuit structural
// comparison instead of deep-equaling the whole snapshot on every poll
// (the cheaper alternative spec.md's design notes call out).
func contentHash(sorted []MempoolTx) uint64 {
	h := fnv.New64a()
	for _, tx := range sorted {
		h.Write([]byte(tx.Txid))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatInt(tx.Size, 10)))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatFloat(tx.DescendantFees, 'g', -1, 64)))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// Equal reports whether two snapshots are structurally identical (same
// content hash). A poller should suppress re-emission when Equal reports
// true against the previously emitted snapshot.
func (s *SortedMempoolSnapshot) Equal(other *SortedMempoolSnapshot) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.hash == other.hash
}

// TxByID returns a map from txid to the packed MempoolTx, for use by diff
// and kinematics lookups that need random access.
func (s *SortedMempoolSnapshot) TxByID() map[string]MempoolTx {
	m := make(map[string]MempoolTx, len(s.Txs))
	for _, tx := range s.Txs {
		m[tx.Txid] = tx
	}
	return m
}

// FinalPosition returns the CumSize of the first tx whose TargetBlock
// equals target+1 — the boundary between target and the next hypothetical
// block — and true. If no such tx exists (the mempool doesn't reach that
// far), it returns (0, false).
func (s *SortedMempoolSnapshot) FinalPosition(target int) (int64, bool) {
	for _, tx := range s.Txs {
		if tx.TargetBlock == target+1 {
			return tx.CumSize, true
		}
	}
	return 0, false
}

// NearestByPosition returns the tx minimizing |CumSize - x0|. Ties are
// broken by higher FeeRate, then by lexicographically smaller Txid.
func (s *SortedMempoolSnapshot) NearestByPosition(x0 float64) (MempoolTx, bool) {
	var best MempoolTx
	bestDist := -1.0
	found := false
	for _, tx := range s.Txs {
		d := absFloat(float64(tx.CumSize) - x0)
		switch {
		case !found || d < bestDist:
			best, bestDist, found = tx, d, true
		case d == bestDist:
			if tx.FeeRate > best.FeeRate || (tx.FeeRate == best.FeeRate && tx.Txid < best.Txid) {
				best = tx
			}
		}
	}
	return best, found
}

func absFloat(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
