// Package minedsummary builds the MinedSummary published whenever
// package diff classifies a removal as a mined block: aggregate size,
// inter-block interval, and quantile mean fee rates of the tail (lowest
// feeRate) transactions, per spec.md §4.4.
package minedsummary

import (
	"sort"
	"strconv"

	"github.com/zkao/btc-congestion-manager/mempool"
)

// Quantiles is the fixed set of tail fractions spec.md §4.4 reports mean
// fee rates for.
var Quantiles = []float64{0.4, 0.2, 0.1, 0.05, 0.01, 0.005, 0.001}

// Summary is the payload published on com.fee.minedtxssummary.
type Summary struct {
	IBI       float64            // Inter-block interval, in minutes.
	Timestamp int64              // Unix time in seconds.
	Txs       int                // Number of removed transactions.
	BlockSize float64            // Aggregate size, in megabytes.
	Fee       map[string]float64 // Quantile (as string key) -> mean feeRate of the tail.
	MinFeeTx  mempool.MempoolTx  // The single transaction with the lowest feeRate.
}

// Build computes a Summary from a mined event's removed transaction set,
// the wall-clock inter-block interval (milliseconds, per spec.md §3/§6),
// and the timestamp of the mined event.
func Build(removed []mempool.MempoolTx, interBlockIntervalMs float64, timestamp int64) Summary {
	sorted := make([]mempool.MempoolTx, len(removed))
	copy(sorted, removed)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].FeeRate > sorted[j].FeeRate // Descending.
	})

	var sizeSum int64
	for _, tx := range sorted {
		sizeSum += tx.Size
	}

	fee := make(map[string]float64, len(Quantiles))
	for _, q := range Quantiles {
		fee[quantileKey(q)] = tailMean(sorted, q)
	}

	var minFeeTx mempool.MempoolTx
	if len(sorted) > 0 {
		minFeeTx = sorted[len(sorted)-1]
	}

	return Summary{
		IBI:       interBlockIntervalMs / 60000,
		Timestamp: timestamp,
		Txs:       len(sorted),
		BlockSize: float64(sizeSum) / 1000000,
		Fee:       fee,
		MinFeeTx:  minFeeTx,
	}
}

// tailMean computes the arithmetic mean of feeRate over the tail of
// sorted (sorted descending by feeRate, i.e. the lowest-feeRate tail):
// the entries whose index i satisfies i > len(sorted) * (1 - q). That is
// one entry fewer than the last ceil(len(sorted) * q) entries; when it
// leaves no entry, the single lowest-feeRate entry's feeRate is returned.
//
// The index test below is ">" rather than ">=", matching the (accidental,
// per spec.md's design notes) off-by-one in the original min-quantile
// helper: this is preserved for behavioral parity rather than "fixed",
// since the spec flags it without prescribing a resolution.
func tailMean(sorted []mempool.MempoolTx, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	var sum float64
	var count int
	for i := range sorted {
		if float64(i) > float64(n)*(1-q) {
			sum += sorted[i].FeeRate
			count++
		}
	}
	if count == 0 {
		// Always include at least the single lowest-feeRate tx.
		return sorted[n-1].FeeRate
	}
	return sum / float64(count)
}

func quantileKey(q float64) string {
	switch q {
	case 0.4:
		return "0.4"
	case 0.2:
		return "0.2"
	case 0.1:
		return "0.1"
	case 0.05:
		return "0.05"
	case 0.01:
		return "0.01"
	case 0.005:
		return "0.005"
	case 0.001:
		return "0.001"
	default:
		return strconv.FormatFloat(q, 'g', -1, 64)
	}
}
