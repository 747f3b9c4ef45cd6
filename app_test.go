package main

import (
	"log"
	"testing"
	"time"

	"github.com/zkao/btc-congestion-manager/kinematics"
	"github.com/zkao/btc-congestion-manager/mempool"
	"github.com/zkao/btc-congestion-manager/minedsummary"
	"github.com/zkao/btc-congestion-manager/recommend"
)

// fakePublisher records every published channel/value pair instead of
// talking to a broker, mirroring the teacher's own in-memory test doubles.
type fakePublisher struct {
	published []fakePublication
}

type fakePublication struct {
	channel string
	value   interface{}
}

func (p *fakePublisher) Publish(channel string, v interface{}) error {
	p.published = append(p.published, fakePublication{channel, v})
	return nil
}

func newTestApp(pub publisher) *App {
	cfg := AppConfig{
		Constants: Constants{
			BlockSize:                1000000,
			MinersReservedBlockRatio: 0,
			PollPeriod:               time.Second,
			AddedWindow:              10 * time.Minute,
			RemovedCapacity:          3,
			MinSavingsRate:           0.02,
			Targets:                  []int{1, 2},
		},
		logger: log.New(log.Writer(), "", 0),
	}
	return &App{
		cfg:       cfg,
		pub:       pub,
		pipelines: kinematics.NewPipelines(cfg.AddedWindow, cfg.RemovedCapacity, nil),
		estimates: make(map[int]kinematics.FeeEstimate),
		pause:     make(chan bool),
		done:      make(chan struct{}),
	}
}

func tx(txid string, size int64, feeRate float64) mempool.MempoolTx {
	return mempool.MempoolTx{
		Txid:           txid,
		Size:           size,
		Fee:            feeRate * float64(size) / 1000,
		DescendantSize: size,
		DescendantFees: feeRate * float64(size) / 1000,
		FeeRate:        feeRate,
	}
}

func TestStatusReportsNoSnapshotInitially(t *testing.T) {
	a := newTestApp(&fakePublisher{})
	status := a.Status()
	if status["mempool"] != errNoSnapshot.Error() {
		t.Fatalf("mempool status = %q, want %q", status["mempool"], errNoSnapshot.Error())
	}
	if status["app"] != "OK" {
		t.Fatalf("app status = %q, want OK", status["app"])
	}
}

func TestEstimateFeeErrorsWithoutData(t *testing.T) {
	a := newTestApp(&fakePublisher{})
	if _, err := a.EstimateFee(1); err != errNoSnapshot {
		t.Fatalf("EstimateFee err = %v, want %v", err, errNoSnapshot)
	}
}

func TestProcessMinedPublishesSummary(t *testing.T) {
	pub := &fakePublisher{}
	a := newTestApp(pub)

	removed := []mempool.MempoolTx{
		tx("a", 500, 50),
		tx("b", 500, 40),
	}
	a.processMined(removed, 1000, 900000)

	found := false
	for _, p := range pub.published {
		if p.channel == channelMinedSummary {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a publish on %s, got %v", channelMinedSummary, pub.published)
	}
}

func TestOnBlockHashDerivesIBI(t *testing.T) {
	a := newTestApp(&fakePublisher{})

	a.onBlockHash(1000)
	if got := a.ibiMs(); got != 600000 {
		t.Fatalf("ibiMs before a second hash = %v, want default 600000", got)
	}

	a.onBlockHash(1300) // 300s later
	if got := a.ibiMs(); got != 300000 {
		t.Fatalf("ibiMs after second hash = %v, want 300000", got)
	}
}

func TestProcessMinedUsesBlockHashDerivedIBI(t *testing.T) {
	pub := &fakePublisher{}
	a := newTestApp(pub)

	a.onBlockHash(1000)
	a.onBlockHash(1600) // 600s later -> 600000ms IBI

	a.processMined([]mempool.MempoolTx{tx("a", 500, 50)}, 1600, 900000)

	for _, p := range pub.published {
		if p.channel != channelMinedSummary {
			continue
		}
		summary, ok := p.value.(minedsummary.Summary)
		if !ok {
			t.Fatalf("published value is %T, want minedsummary.Summary", p.value)
		}
		if summary.IBI != 10 { // 600000ms / 60000 = 10 minutes
			t.Fatalf("summary.IBI = %v, want 10", summary.IBI)
		}
		return
	}
	t.Fatalf("expected a publish on %s, got %v", channelMinedSummary, pub.published)
}

func TestIngestSkipsStructurallyIdenticalSnapshot(t *testing.T) {
	a := newTestApp(&fakePublisher{})

	txs := []mempool.MempoolTx{tx("a", 500, 50), tx("b", 500, 40)}
	effective := mempool.EffectiveBlockSize(a.cfg.BlockSize, a.cfg.MinersReservedBlockRatio)

	snap1 := mempool.Pack(txs, 100, 1000, effective)
	if _, changed := a.ingest(snap1); !changed {
		t.Fatal("first-ever snapshot should always be treated as changed")
	}

	// Same content, freshly packed (a distinct *SortedMempoolSnapshot,
	// same underlying txs/height/time): must dedup.
	snap2 := mempool.Pack(txs, 100, 1000, effective)
	if _, changed := a.ingest(snap2); changed {
		t.Fatal("structurally identical snapshot should be deduplicated, got changed=true")
	}

	// A genuinely different snapshot (a tx removed) must not be
	// suppressed.
	snap3 := mempool.Pack(txs[:1], 100, 1001, effective)
	result, changed := a.ingest(snap3)
	if !changed {
		t.Fatal("structurally different snapshot should not be deduplicated")
	}
	if len(result.Removed) != 1 || result.Removed[0].Txid != "b" {
		t.Fatalf("result.Removed = %v, want just tx b", result.Removed)
	}
}

func TestPauseTogglesWithoutRun(t *testing.T) {
	a := newTestApp(&fakePublisher{})
	// Pause blocks on a.pause <- p until someone is listening; Run isn't
	// started here, so drain it manually the way the select in Run would.
	go a.Pause(true)
	select {
	case p := <-a.pause:
		if !p {
			t.Fatalf("expected pause request true, got false")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pause request")
	}
}

func TestRecomputeRanksAndPublishes(t *testing.T) {
	pub := &fakePublisher{}
	a := newTestApp(pub)

	a.estimates[1] = kinematics.FeeEstimate{TargetBlock: 1, FeeRate: 100}
	a.estimates[2] = kinematics.FeeEstimate{TargetBlock: 2, FeeRate: 95}

	a.recompute(1000)

	if len(a.feeDiffs) != 2 {
		t.Fatalf("len(feeDiffs) = %d, want 2", len(a.feeDiffs))
	}
	if len(a.ranked) != 1 {
		t.Fatalf("len(ranked) = %d, want 1 (only target 2 crosses minSavingsRate)", len(a.ranked))
	}
	if a.ranked[0].TargetBlock != 2 {
		t.Fatalf("ranked[0].TargetBlock = %d, want 2", a.ranked[0].TargetBlock)
	}

	var sawFeeDiff, sawMinDiff bool
	for _, p := range pub.published {
		switch p.channel {
		case channelFeeDiff:
			sawFeeDiff = true
		case channelMinDiff:
			sawMinDiff = true
		}
	}
	if !sawFeeDiff || !sawMinDiff {
		t.Fatalf("expected publishes on both %s and %s, got %v", channelFeeDiff, channelMinDiff, pub.published)
	}
}

func TestMinDiffReturnsCopy(t *testing.T) {
	a := newTestApp(&fakePublisher{})
	a.ranked = []recommend.RankedEntry{{TargetBlock: 2, FeeRate: 95}}

	out := a.MinDiff()
	if len(out) != 1 || out[0].TargetBlock != 2 {
		t.Fatalf("MinDiff() = %v, want a copy of the ranked list", out)
	}
	out[0].TargetBlock = 999
	if a.ranked[0].TargetBlock != 2 {
		t.Fatalf("mutating MinDiff's result changed App's own state: %v", a.ranked)
	}
}
