// Package mempool models a single RPC-polled mempool snapshot: the raw
// per-tx fields reported by the node, the package fee rate derived from
// them, and the fee-ordered packing that assigns each tx to a hypothetical
// target block.
package mempool

import (
	"fmt"
	"math"
)

// DescendantSpelling selects which JSON key spelling FromRaw tries first
// when resolving a mempool entry's package size/fees. bitcoind has always
// used "descendant"; the daemon this system was distilled from reads the
// older "descendent" spelling. Both are always accepted regardless of
// this setting — it only decides which one wins when both are populated;
// a preferred field left at its zero value falls back to the other
// spelling.
type DescendantSpelling string

const (
	SpellingDescendant DescendantSpelling = "descendant"
	SpellingDescendent DescendantSpelling = "descendent"
)

// RawMempoolEntry is the wire shape of one entry in a getrawmempool
// verbose=true response. Both the modern "descendant*" and the legacy
// "descendent*" fields are decoded as plain JSON; FromRaw resolves which
// one to use.
type RawMempoolEntry struct {
	Size           int64    `json:"size"`
	VSize          int64    `json:"vsize"`
	Fee            float64  `json:"fee"`
	Time           int64    `json:"time"`
	Depends        []string `json:"depends"`
	DescendantSize int64    `json:"descendantsize"`
	DescendantFees float64  `json:"descendantfees"`
	DescendentSize int64    `json:"descendentsize"`
	DescendentFees float64  `json:"descendentfees"`
}

// descendant resolves the package size/fees to use for ordering, trying
// the spelling named by preferred first, falling back to the other
// spelling, and finally to the transaction's own size/fee (a childless
// transaction is its own sole descendant).
func (e RawMempoolEntry) descendant(preferred DescendantSpelling) (size int64, fees float64) {
	size, fees = e.DescendantSize, e.DescendantFees
	altSize, altFees := e.DescendentSize, e.DescendentFees
	if preferred == SpellingDescendent {
		size, fees, altSize, altFees = altSize, altFees, size, fees
	}
	if size == 0 {
		size = altSize
	}
	if fees == 0 {
		fees = altFees
	}

	ownSize := e.Size
	if ownSize == 0 {
		ownSize = e.VSize
	}
	if size == 0 {
		size = ownSize
	}
	if fees == 0 {
		fees = e.Fee
	}
	return size, fees
}

// MempoolTx is a single transaction as projected from a RawMempoolEntry
// plus the fields derived during packing (see Pack).
type MempoolTx struct {
	Txid           string
	Size           int64
	Fee            float64
	DescendantSize int64
	DescendantFees float64

	FeeRate     float64
	CumSize     int64
	TargetBlock int
}

// FromRaw builds a MempoolTx from a decoded RawMempoolEntry, resolving
// the descendant-package fields under the given spelling preference and
// computing FeeRate. Returns an error (to be counted and skipped by the
// caller) if the entry is malformed.
func FromRaw(txid string, e RawMempoolEntry, preferred DescendantSpelling) (MempoolTx, error) {
	ownSize := e.Size
	if ownSize == 0 {
		ownSize = e.VSize
	}
	if ownSize <= 0 {
		return MempoolTx{}, fmt.Errorf("mempool: %s has non-positive size", txid)
	}

	descSize, descFees := e.descendant(preferred)
	if descSize <= 0 {
		return MempoolTx{}, fmt.Errorf("mempool: %s has non-positive descendant size", txid)
	}
	rate := descFees / float64(descSize)
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return MempoolTx{}, fmt.Errorf("mempool: %s: non-finite fee rate", txid)
	}

	return MempoolTx{
		Txid:           txid,
		Size:           ownSize,
		Fee:            e.Fee,
		DescendantSize: descSize,
		DescendantFees: descFees,
		FeeRate:        rate,
	}, nil
}
