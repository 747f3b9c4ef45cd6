package main

import (
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"

	"github.com/zkao/btc-congestion-manager/blockfeed"
	"github.com/zkao/btc-congestion-manager/diff"
	"github.com/zkao/btc-congestion-manager/kinematics"
	"github.com/zkao/btc-congestion-manager/mempool"
	"github.com/zkao/btc-congestion-manager/minedsummary"
	"github.com/zkao/btc-congestion-manager/pubsub/kafkabus"
	"github.com/zkao/btc-congestion-manager/recommend"
	"github.com/zkao/btc-congestion-manager/rpc/corerpc"
)

var errPause = errors.New("app is paused")
var errNoSnapshot = errors.New("no mempool snapshot available yet")
var errShutdown = errors.New("app is shutting down")

const (
	channelMinedSummary = "com.fee.minedtxssummary"
	channelFeeDiff      = "com.fee.feediff"
	channelMinDiff      = "com.fee.mindiff"
)

// AppConfig is the assembled runtime config for the estimator pipeline,
// the new domain's analog of the teacher's FeeSimConfig.
type AppConfig struct {
	Constants `yaml:"constants" json:"constants"`

	logger *log.Logger `yaml:"-" json:"-"`
}

// Constants holds the tunable estimation parameters named in spec.md
// §6's Configuration table plus SPEC_FULL §9's supplemented
// constants.targets, all read from the daemon's yaml config under the
// constants: key, the way the teacher's own FeeSimConfig gives every
// domain constant a real yaml tag (feesim.go's simperiod/txmaxage/…)
// rather than hiding it behind yaml:"-".
type Constants struct {
	BlockSize                int64         `yaml:"blockSize" json:"blockSize"`
	MinersReservedBlockRatio float64       `yaml:"minersReservedBlockRatio" json:"minersReservedBlockRatio"`
	PollPeriod               time.Duration `yaml:"timeRes" json:"timeRes"`
	AddedWindow              time.Duration `yaml:"intTimeAdded" json:"intTimeAdded"`
	RemovedCapacity          int           `yaml:"intBlocksRemoved" json:"intBlocksRemoved"`
	MinSavingsRate           float64       `yaml:"minSavingsRate" json:"minSavingsRate"`
	Targets                  []int         `yaml:"targets" json:"targets"`
}

// App is the root of the estimation pipeline: it polls the node, packs
// and diffs mempool snapshots, drives the per-target kinematics
// pipelines, ranks recommendations, and publishes the result, per
// spec.md §4-§6.
type App struct {
	cfg AppConfig
	rpc *corerpc.Client
	feed *blockfeed.Feed
	pub  publisher
	pipelines *kinematics.Pipelines

	lastTwo diff.LastTwo

	lastHashTime int64   // unix seconds of the previous block-hash notification
	lastIBIMs    float64 // most recent inter-block interval, derived from blockfeed arrivals

	snapshot *mempool.SortedMempoolSnapshot
	estimates map[int]kinematics.FeeEstimate
	mined     minedsummary.Summary
	feeDiffs  []recommend.DiffEntry
	ranked    []recommend.RankedEntry

	err error

	pause chan bool
	done  chan struct{}
	wg    sync.WaitGroup
	mux   sync.RWMutex
}

// publisher is the pub/sub bus port (spec.md §6). kafkabus.Publisher
// satisfies it; tests can substitute a fake.
type publisher interface {
	Publish(channel string, v interface{}) error
}

// NewApp wires an App around the given node RPC client, block-hash feed,
// and publisher.
func NewApp(rpc *corerpc.Client, feed *blockfeed.Feed, pub publisher, cfg AppConfig) *App {
	return &App{
		cfg:       cfg,
		rpc:       rpc,
		feed:      feed,
		pub:       pub,
		pipelines: kinematics.NewPipelines(cfg.AddedWindow, cfg.RemovedCapacity, nil),
		estimates: make(map[int]kinematics.FeeEstimate),
		pause:     make(chan bool),
		done:      make(chan struct{}),
	}
}

// Run starts the poll loop and the block-hash feed, and blocks until Stop
// is called, then returns nil. Poll errors and a terminal block-feed error
// are logged, not returned; the block-hash feed is not restarted after a
// terminal error.
func (a *App) Run() error {
	logger := a.cfg.logger
	a.wg.Add(1)
	defer logger.Println("Estimator stopped.")
	defer a.wg.Done()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.feed.Run(); err != nil {
			logger.Println("[ERROR] blockfeed:", err)
		}
	}()

	pollTimer := metrics.NewCustomTimer(
		metrics.NewHistogram(metrics.NewSimpleExpDecaySample(1024)), metrics.NewMeter())
	metrics.Register("pollmempool", pollTimer)

	if err := a.poll(pollTimer); err != nil {
		logger.Println("[ERROR] initial poll:", err)
	}

	ticker := time.NewTicker(a.cfg.PollPeriod)
	defer ticker.Stop()

	paused := false
	logger.Println("Estimator startup complete.")
	for {
		select {
		case <-ticker.C:
			if paused {
				continue
			}
			if err := a.poll(pollTimer); err != nil {
				logger.Println("[ERROR] poll:", err)
			}
		case <-a.feed.Hashes():
			// A new block hash notification: this is the IBI clock per
			// spec.md §4.3 (wall-clock time between consecutive
			// block-hash notifications, independent of the poller), so
			// timestamp it before doing anything else. Then re-poll
			// immediately instead of waiting out the fixed delay, per
			// spec.md §9's suggestion of correlating on the block-hash
			// feed.
			a.onBlockHash(time.Now().Unix())
			if paused {
				continue
			}
			if err := a.poll(pollTimer); err != nil {
				logger.Println("[ERROR] post-block poll:", err)
			}
		case p := <-a.pause:
			paused = p
			a.setErr(nil)
			if p {
				a.setErr(errPause)
				logger.Println("Paused.")
			} else {
				logger.Println("Unpaused.")
			}
		case <-a.done:
			a.setErr(errShutdown)
			return nil
		}
	}
}

// Stop tears down the poll loop and the block-hash feed.
func (a *App) Stop() {
	a.mux.Lock()
	stopped := false
	select {
	case <-a.done:
		stopped = true
	default:
		close(a.done)
	}
	a.mux.Unlock()
	if !stopped {
		a.feed.Stop()
	}
	a.wg.Wait()
}

// Pause pauses (p=true) or resumes (p=false) the estimator, per SPEC_FULL
// §6's supplemented operator control. While paused, Run skips every
// mempool poll, so neither collection nor publishing happens; the ZMQ
// block-hash feed stays subscribed and keeps updating the inter-block
// interval.
func (a *App) Pause(p bool) {
	select {
	case a.pause <- p:
	case <-a.done:
	}
}

func (a *App) poll(timer metrics.Timer) error {
	start := time.Now()
	defer timer.UpdateSince(start)

	height, txs, err := a.rpc.PollMempool()
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	effective := mempool.EffectiveBlockSize(a.cfg.BlockSize, a.cfg.MinersReservedBlockRatio)
	snap := mempool.Pack(txs, height, now, effective)

	result, changed := a.ingest(snap)
	if !changed {
		return nil
	}

	if result.Mined {
		a.processMined(result.Removed, now, effective)
	}
	a.processAdded(result.Added, effective)
	a.recompute(now)
	return nil
}

// ingest buffers snap into the diff pipeline, recording it as the current
// snapshot and returning the Added/Removed diff against the previously
// emitted one. It returns changed=false, doing nothing else, when snap is
// structurally identical to the last emitted snapshot (via
// SortedMempoolSnapshot.Equal) or older than it — no downstream emission
// in either case, per spec.md §4.1 point 4 / §8's idempotence property.
func (a *App) ingest(snap *mempool.SortedMempoolSnapshot) (diff.Result, bool) {
	if a.lastTwo.Latest().Equal(snap) {
		return diff.Result{}, false
	}

	result, ok := a.lastTwo.Push(snap)
	if !ok {
		return diff.Result{}, false
	}

	a.mux.Lock()
	a.snapshot = snap
	a.mux.Unlock()
	return result, true
}

// onBlockHash records the elapsed time since the previous block-hash
// notification as the current inter-block interval (spec.md §4.3:
// "wall-clock time between two consecutive block-hash notifications"),
// independent of the mempool poller's own cadence.
func (a *App) onBlockHash(now int64) {
	a.mux.Lock()
	if a.lastHashTime != 0 {
		a.lastIBIMs = float64(now-a.lastHashTime) * 1000
	}
	a.lastHashTime = now
	a.mux.Unlock()
}

// ibiMs returns the most recently observed inter-block interval, or a
// 10-minute default before the first pair of block-hash notifications
// has been observed.
func (a *App) ibiMs() float64 {
	a.mux.RLock()
	defer a.mux.RUnlock()
	if a.lastIBIMs > 0 {
		return a.lastIBIMs
	}
	return 600000
}

func (a *App) processAdded(added []mempool.MempoolTx, effective int64) {
	for _, target := range a.cfg.Targets {
		p := a.pipelines.Target(target)
		ahead := kinematics.AheadOf(added, target, effective)
		if v, acc, ok := p.OnAdded(ahead); ok {
			a.updateEstimate(p, target, v, acc)
		}
	}
}

func (a *App) processMined(removed []mempool.MempoolTx, now int64, effective int64) {
	ibiMs := a.ibiMs()

	summary := minedsummary.Build(removed, ibiMs, now)
	a.mux.Lock()
	a.mined = summary
	a.mux.Unlock()
	if a.pub != nil {
		if err := a.pub.Publish(channelMinedSummary, summary); err != nil {
			a.cfg.logger.Println("[ERROR] publishing mined summary:", err)
		}
	}

	for _, target := range a.cfg.Targets {
		p := a.pipelines.Target(target)
		ahead := kinematics.AheadOf(removed, target, effective)
		if v, acc, ok := p.OnRemoved(ahead, ibiMs); ok {
			a.updateEstimate(p, target, v, acc)
		}
	}
}

func (a *App) updateEstimate(p *kinematics.Pipeline, target int, v, acc float64) {
	a.mux.RLock()
	snap := a.snapshot
	a.mux.RUnlock()
	if snap == nil {
		return
	}
	xFinal, ok := snap.FinalPosition(target)
	if !ok {
		return
	}
	x0, changed := p.InitialPositionFor(float64(xFinal), v, acc)
	if !changed {
		return
	}
	est, ok := kinematics.EstimateFee(snap, x0, target, snap.Time)
	if !ok {
		return
	}
	a.mux.Lock()
	a.estimates[target] = est
	a.mux.Unlock()
}

func (a *App) recompute(now int64) {
	a.mux.RLock()
	ests := make([]kinematics.FeeEstimate, 0, len(a.cfg.Targets))
	for _, target := range a.cfg.Targets {
		if e, ok := a.estimates[target]; ok {
			ests = append(ests, e)
		}
	}
	a.mux.RUnlock()
	if len(ests) == 0 {
		return
	}
	sort.Slice(ests, func(i, j int) bool { return ests[i].TargetBlock < ests[j].TargetBlock })

	diffs := recommend.FeeDiff(ests)
	ranked := recommend.Recommend(diffs, a.cfg.MinSavingsRate)

	a.mux.Lock()
	a.feeDiffs, a.ranked = diffs, ranked
	a.mux.Unlock()

	if a.pub == nil {
		return
	}
	if err := a.pub.Publish(channelFeeDiff, diffs); err != nil {
		a.cfg.logger.Println("[ERROR] publishing feediff:", err)
	}
	if err := a.pub.Publish(channelMinDiff, ranked); err != nil {
		a.cfg.logger.Println("[ERROR] publishing mindiff:", err)
	}
}

// Status reports the readiness of each stage, for the "status" control
// command.
func (a *App) Status() map[string]string {
	status := make(map[string]string)
	a.mux.RLock()
	defer a.mux.RUnlock()

	if a.snapshot == nil {
		status["mempool"] = errNoSnapshot.Error()
	} else {
		status["mempool"] = "OK"
	}
	if len(a.estimates) == 0 {
		status["estimate"] = "no estimate available yet"
	} else {
		status["estimate"] = "OK"
	}
	if a.err != nil {
		status["app"] = a.err.Error()
	} else {
		status["app"] = "OK"
	}
	return status
}

// EstimateFee returns the last computed FeeEstimate for target, or
// errNoSnapshot if none is available for that target.
func (a *App) EstimateFee(target int) (kinematics.FeeEstimate, error) {
	a.mux.RLock()
	defer a.mux.RUnlock()
	e, ok := a.estimates[target]
	if !ok {
		return kinematics.FeeEstimate{}, errNoSnapshot
	}
	return e, nil
}

// MinDiff returns the last ranked recommendation list.
func (a *App) MinDiff() []recommend.RankedEntry {
	a.mux.RLock()
	defer a.mux.RUnlock()
	out := make([]recommend.RankedEntry, len(a.ranked))
	copy(out, a.ranked)
	return out
}

func (a *App) setErr(err error) {
	a.mux.Lock()
	a.err = err
	a.mux.Unlock()
}
