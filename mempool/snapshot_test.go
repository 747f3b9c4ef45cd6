package mempool

import "testing"

func mktx(txid string, size int64, feeRate float64) MempoolTx {
	return MempoolTx{
		Txid:           txid,
		Size:           size,
		DescendantSize: size,
		DescendantFees: feeRate * float64(size),
		FeeRate:        feeRate,
	}
}

func TestPackInvariants(t *testing.T) {
	txs := []MempoolTx{
		mktx("a", 300000, 50),
		mktx("b", 300000, 40),
		mktx("c", 300000, 30),
		mktx("d", 300000, 20),
		mktx("e", 300000, 10),
	}
	s := Pack(txs, 100, 1000, EffectiveBlockSize(1000000, 0))

	var lastCum int64 = -1
	var lastTarget int
	var lastRate float64 = 1e18
	for i, tx := range s.Txs {
		if tx.CumSize < lastCum {
			t.Fatalf("cumSize decreased at %d", i)
		}
		if tx.TargetBlock < lastTarget {
			t.Fatalf("targetBlock decreased at %d", i)
		}
		if tx.TargetBlock-lastTarget > 1 && lastTarget != 0 {
			t.Fatalf("targetBlock jumped by more than 1 at %d", i)
		}
		if tx.FeeRate > lastRate {
			t.Fatalf("feeRate not non-increasing at %d", i)
		}
		lastCum, lastTarget, lastRate = tx.CumSize, tx.TargetBlock, tx.FeeRate
	}
}

func TestPackBoundaryScenario(t *testing.T) {
	// spec.md scenario 3: blockEffectiveSize = 1,000,000; three txs of
	// sizes 600000, 500000, 100000 with descending feeRate.
	txs := []MempoolTx{
		mktx("a", 600000, 30),
		mktx("b", 500000, 20),
		mktx("c", 100000, 10),
	}
	s := Pack(txs, 1, 1, 1000000)

	wantTarget := []int{1, 2, 2}
	wantCum := []int64{600000, 1100000, 1200000}
	for i, tx := range s.Txs {
		if tx.TargetBlock != wantTarget[i] {
			t.Errorf("tx %d: targetBlock = %d, want %d", i, tx.TargetBlock, wantTarget[i])
		}
		if tx.CumSize != wantCum[i] {
			t.Errorf("tx %d: cumSize = %d, want %d", i, tx.CumSize, wantCum[i])
		}
	}
}

func TestPackSingleTxAboveEffectiveSize(t *testing.T) {
	txs := []MempoolTx{mktx("a", 1500000, 50)}
	s := Pack(txs, 1, 1, 1000000)
	if len(s.Txs) != 1 {
		t.Fatalf("expected 1 tx")
	}
	// Documented decision (DESIGN.md #4): the check-then-assign order
	// validated by scenario 3 yields TargetBlock=2 here, not the prose
	// boundary bullet's TargetBlock=1.
	if s.Txs[0].TargetBlock != 2 {
		t.Errorf("targetBlock = %d, want 2", s.Txs[0].TargetBlock)
	}
	if s.Txs[0].CumSize != 1500000 {
		t.Errorf("cumSize = %d, want 1500000", s.Txs[0].CumSize)
	}
}

func TestPackTieBreakByTxid(t *testing.T) {
	txs := []MempoolTx{
		mktx("zzz", 100, 10),
		mktx("aaa", 100, 10),
	}
	s := Pack(txs, 1, 1, 1000000)
	if s.Txs[0].Txid != "aaa" || s.Txs[1].Txid != "zzz" {
		t.Errorf("tie not broken by ascending txid: got %s, %s", s.Txs[0].Txid, s.Txs[1].Txid)
	}
}

func TestSnapshotEqual(t *testing.T) {
	txs := []MempoolTx{mktx("a", 100, 10)}
	s1 := Pack(txs, 1, 1, 1000000)
	s2 := Pack(txs, 1, 2, 1000000) // different Time, same contents
	if !s1.Equal(s2) {
		t.Errorf("expected structurally-equal snapshots to be Equal")
	}

	txs2 := []MempoolTx{mktx("a", 200, 10)}
	s3 := Pack(txs2, 1, 1, 1000000)
	if s1.Equal(s3) {
		t.Errorf("expected differing snapshots to not be Equal")
	}
}

func TestFinalPosition(t *testing.T) {
	txs := []MempoolTx{
		mktx("a", 600000, 30),
		mktx("b", 500000, 20),
		mktx("c", 100000, 10),
	}
	s := Pack(txs, 1, 1, 1000000)
	pos, ok := s.FinalPosition(1)
	if !ok || pos != 1100000 {
		t.Errorf("FinalPosition(1) = (%d, %v), want (1100000, true)", pos, ok)
	}
	if _, ok := s.FinalPosition(5); ok {
		t.Errorf("FinalPosition(5) should be absent")
	}
}

func TestNearestByPosition(t *testing.T) {
	txs := []MempoolTx{
		mktx("a", 100, 30),
		mktx("b", 100, 20),
		mktx("c", 100, 10),
	}
	s := Pack(txs, 1, 1, 1000000)
	// CumSize is 100, 200, 300: a and b are both 50 away from 150, and the
	// tie goes to the higher FeeRate, a.
	tx, ok := s.NearestByPosition(150)
	if !ok || tx.Txid != "a" {
		t.Errorf("NearestByPosition(150) = %+v, want a", tx)
	}
}
