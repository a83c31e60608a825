package resolve

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rerouteio/reroute/internal/store"
)

type fakeHitStore struct {
	mu      sync.Mutex
	batches [][]store.HitDelta
	err     error
}

func (f *fakeHitStore) IncrementHits(ctx context.Context, deltas []store.HitDelta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, deltas)
	return nil
}

func (f *fakeHitStore) total(ruleID string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, batch := range f.batches {
		for _, d := range batch {
			if d.RuleID == ruleID {
				n += d.Count
			}
		}
	}
	return n
}

func TestHitTracker_AggregatesBeforeFlush(t *testing.T) {
	hs := &fakeHitStore{}
	tracker := NewHitTracker(hs, time.Hour)

	tracker.Record("r1")
	tracker.Record("r1")
	tracker.Record("r1")
	tracker.Record("r2")
	tracker.Flush()

	if got := hs.total("r1"); got != 3 {
		t.Errorf("r1 total: got %d, want 3", got)
	}
	if got := hs.total("r2"); got != 1 {
		t.Errorf("r2 total: got %d, want 1", got)
	}
	if len(hs.batches) != 1 {
		t.Errorf("batches: got %d, want 1", len(hs.batches))
	}
}

func TestHitTracker_FlushDrainsPending(t *testing.T) {
	hs := &fakeHitStore{}
	tracker := NewHitTracker(hs, time.Hour)

	tracker.Record("r1")
	tracker.Flush()
	tracker.Flush() // nothing pending, no extra batch

	if len(hs.batches) != 1 {
		t.Errorf("batches: got %d, want 1", len(hs.batches))
	}
}

func TestHitTracker_FailedFlushDropsDeltas(t *testing.T) {
	hs := &fakeHitStore{err: errors.New("store down")}
	tracker := NewHitTracker(hs, time.Hour)

	tracker.Record("r1")
	tracker.Flush()

	// Telemetry is lossy on purpose: the failed batch is not retried.
	hs.mu.Lock()
	hs.err = nil
	hs.mu.Unlock()
	tracker.Flush()

	if got := hs.total("r1"); got != 0 {
		t.Errorf("dropped deltas must not reappear, got %d", got)
	}
}

func TestHitTracker_StopFlushesRemaining(t *testing.T) {
	hs := &fakeHitStore{}
	tracker := NewHitTracker(hs, time.Hour)
	tracker.Start()

	tracker.Record("r1")
	tracker.Stop()

	if got := hs.total("r1"); got != 1 {
		t.Errorf("r1 total after Stop: got %d, want 1", got)
	}
}

func TestHitTracker_ConcurrentRecord(t *testing.T) {
	hs := &fakeHitStore{}
	tracker := NewHitTracker(hs, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tracker.Record("r1")
			}
		}()
	}
	wg.Wait()
	tracker.Flush()

	if got := hs.total("r1"); got != 800 {
		t.Errorf("r1 total: got %d, want 800", got)
	}
}
