package mempool

import "testing"

func TestFromRawPrefersDescendantSpellingByDefault(t *testing.T) {
	e := RawMempoolEntry{
		Size:           250,
		DescendantSize: 500,
		DescendantFees: 0.0001,
		DescendentSize: 999999,
		DescendentFees: 0.0009,
	}
	tx, err := FromRaw("tx1", e, "")
	if err != nil {
		t.Fatal(err)
	}
	if tx.DescendantSize != 500 || tx.DescendantFees != 0.0001 {
		t.Fatalf("got size=%d fees=%v, want the descendant* fields", tx.DescendantSize, tx.DescendantFees)
	}
}

func TestFromRawPrefersDescendentSpellingWhenConfigured(t *testing.T) {
	e := RawMempoolEntry{
		Size:           250,
		DescendantSize: 999999,
		DescendantFees: 0.0009,
		DescendentSize: 500,
		DescendentFees: 0.0001,
	}
	tx, err := FromRaw("tx1", e, SpellingDescendent)
	if err != nil {
		t.Fatal(err)
	}
	if tx.DescendantSize != 500 || tx.DescendantFees != 0.0001 {
		t.Fatalf("got size=%d fees=%v, want the descendent* fields", tx.DescendantSize, tx.DescendantFees)
	}
}

func TestFromRawFallsBackToOtherSpellingWhenPreferredIsZero(t *testing.T) {
	// Preferred ("descendant") is entirely unset; only the legacy
	// spelling is populated. FromRaw must still resolve it.
	e := RawMempoolEntry{
		Size:           250,
		DescendentSize: 500,
		DescendentFees: 0.0001,
	}
	tx, err := FromRaw("tx1", e, SpellingDescendant)
	if err != nil {
		t.Fatal(err)
	}
	if tx.DescendantSize != 500 || tx.DescendantFees != 0.0001 {
		t.Fatalf("got size=%d fees=%v, want fallback to descendent* fields", tx.DescendantSize, tx.DescendantFees)
	}
}

func TestFromRawFallsBackToOwnSizeAndFeeForChildlessTx(t *testing.T) {
	// Neither spelling is populated: a childless transaction is its own
	// sole descendant.
	e := RawMempoolEntry{
		Size: 300,
		Fee:  0.00003,
	}
	tx, err := FromRaw("tx1", e, SpellingDescendant)
	if err != nil {
		t.Fatal(err)
	}
	if tx.DescendantSize != 300 || tx.DescendantFees != 0.00003 {
		t.Fatalf("got size=%d fees=%v, want fallback to the tx's own size/fee", tx.DescendantSize, tx.DescendantFees)
	}
	// Divide at run time in float64, as FromRaw does; a constant
	// expression would be evaluated exactly and round differently.
	fee, size := 0.00003, 300.0
	wantRate := fee / size
	if tx.FeeRate != wantRate {
		t.Fatalf("FeeRate = %v, want %v", tx.FeeRate, wantRate)
	}
}

func TestFromRawUsesVSizeWhenSizeIsZero(t *testing.T) {
	e := RawMempoolEntry{
		VSize:          280,
		DescendantSize: 280,
		DescendantFees: 0.000028,
	}
	tx, err := FromRaw("tx1", e, SpellingDescendant)
	if err != nil {
		t.Fatal(err)
	}
	if tx.Size != 280 {
		t.Fatalf("Size = %d, want fallback to vsize 280", tx.Size)
	}
}

func TestFromRawRejectsNonPositiveSize(t *testing.T) {
	e := RawMempoolEntry{DescendantSize: 500, DescendantFees: 0.0001}
	if _, err := FromRaw("tx1", e, SpellingDescendant); err == nil {
		t.Fatal("expected an error for a zero-size entry, got nil")
	}
}

