package resolve

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/rerouteio/reroute/internal/store"
)

// HitStore is the slice of the store the tracker flushes to.
type HitStore interface {
	IncrementHits(ctx context.Context, deltas []store.HitDelta) error
}

// HitTracker aggregates rule hit counts in memory and flushes them to the
// store in the background. Recording never blocks on I/O; a failed flush is
// logged and dropped, so counts can undercount under store outages. This is
// a telemetry counter, not a ledger.
type HitTracker struct {
	store        HitStore
	interval     time.Duration
	flushTimeout time.Duration

	pending *xsync.Map[string, *hitCell]

	stopCh chan struct{}
	wg     sync.WaitGroup
}

type hitCell struct {
	count  int64
	lastNs int64
}

// NewHitTracker creates a tracker that flushes every interval.
func NewHitTracker(hitStore HitStore, interval time.Duration) *HitTracker {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &HitTracker{
		store:        hitStore,
		interval:     interval,
		flushTimeout: 5 * time.Second,
		pending:      xsync.NewMap[string, *hitCell](),
		stopCh:       make(chan struct{}),
	}
}

// Record notes one hit for ruleID. Safe for concurrent use.
func (t *HitTracker) Record(ruleID string) {
	now := time.Now().UnixNano()
	t.pending.Compute(ruleID, func(cur *hitCell, loaded bool) (*hitCell, xsync.ComputeOp) {
		if !loaded {
			return &hitCell{count: 1, lastNs: now}, xsync.UpdateOp
		}
		return &hitCell{count: cur.count + 1, lastNs: now}, xsync.UpdateOp
	})
}

// Start launches the background flush goroutine.
func (t *HitTracker) Start() {
	t.wg.Add(1)
	go t.flushLoop()
}

// Stop flushes remaining deltas and returns.
func (t *HitTracker) Stop() {
	close(t.stopCh)
	t.wg.Wait()
}

func (t *HitTracker) flushLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.Flush()
		case <-t.stopCh:
			t.Flush()
			return
		}
	}
}

// Flush drains the pending map and applies one batched update. Exported so
// callers that need deterministic telemetry (shutdown, tests) can force it.
func (t *HitTracker) Flush() {
	var deltas []store.HitDelta
	t.pending.Range(func(ruleID string, _ *hitCell) bool {
		if cell, ok := t.pending.LoadAndDelete(ruleID); ok {
			deltas = append(deltas, store.HitDelta{RuleID: ruleID, Count: cell.count, LastHitAtNs: cell.lastNs})
		}
		return true
	})
	if len(deltas) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.flushTimeout)
	defer cancel()
	if err := t.store.IncrementHits(ctx, deltas); err != nil {
		log.Printf("[resolve] hit flush failed, dropping %d deltas: %v", len(deltas), err)
	}
}
