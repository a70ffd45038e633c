package scheduler

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/example/quantum-lotto/internal/tuning"
	"github.com/example/quantum-lotto/internal/universe"
)

type fakeUniverse struct {
	instability float64
	resets      int
	adjusts     []float64
	resetErr    error
}

func (f *fakeUniverse) Instability() float64 { return f.instability }

func (f *fakeUniverse) AdjustInstability(delta float64) (float64, error) {
	f.adjusts = append(f.adjusts, delta)
	f.instability += delta
	return f.instability, nil
}

func (f *fakeUniverse) TriggerCollapseReset(now time.Time) (universe.CollapseReset, error) {
	if f.resetErr != nil {
		return universe.CollapseReset{}, f.resetErr
	}
	f.resets++
	f.instability = 0
	return universe.CollapseReset{CollapseCount: f.resets, At: now}, nil
}

type fakeInventory struct {
	removed, total int
	err            error
	calls          int
}

func (f *fakeInventory) BulkCollapseDelete(rng *rand.Rand) (int, int, error) {
	f.calls++
	if f.err != nil {
		return 0, 0, f.err
	}
	return f.removed, f.total, nil
}

func newTestScheduler(uni Universe, inv Inventory, listener func(CollapseEvent)) *Scheduler {
	return New(uni, inv, tuning.Default(), rand.New(rand.NewSource(1)), listener)
}

func TestThresholdStartsInRange(t *testing.T) {
	s := newTestScheduler(&fakeUniverse{}, &fakeInventory{}, nil)
	if s.threshold < 95 || s.threshold >= 99 {
		t.Fatalf("initial threshold %v outside [95, 99)", s.threshold)
	}
}

func TestCheckBelowThresholdDoesNothing(t *testing.T) {
	uni := &fakeUniverse{instability: 50}
	inv := &fakeInventory{}
	s := newTestScheduler(uni, inv, nil)

	s.CheckNow(time.Now())

	if inv.calls != 0 || uni.resets != 0 {
		t.Fatalf("collapse ran below threshold: %d deletes, %d resets", inv.calls, uni.resets)
	}
}

func TestCheckAboveThresholdCollapses(t *testing.T) {
	uni := &fakeUniverse{instability: 96}
	inv := &fakeInventory{removed: 70, total: 100}
	var got *CollapseEvent
	s := newTestScheduler(uni, inv, func(ev CollapseEvent) { got = &ev })
	s.threshold = 95

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	s.CheckNow(now)

	if uni.resets != 1 {
		t.Fatalf("resets = %d, want 1", uni.resets)
	}
	if uni.instability != 0 {
		t.Fatalf("instability after collapse = %v, want 0", uni.instability)
	}
	if got == nil {
		t.Fatal("listener not notified")
	}
	if got.Removed != 70 || got.Total != 100 || got.CollapseCount != 1 || !got.At.Equal(now) {
		t.Fatalf("bad event: %+v", got)
	}
	if s.threshold < 95 || s.threshold >= 99 {
		t.Fatalf("re-rolled threshold %v outside [95, 99)", s.threshold)
	}
}

func TestFailedDeleteKeepsThresholdAndSkipsReset(t *testing.T) {
	uni := &fakeUniverse{instability: 98}
	inv := &fakeInventory{err: errors.New("disk on fire")}
	notified := false
	s := newTestScheduler(uni, inv, func(CollapseEvent) { notified = true })
	s.threshold = 95

	s.CheckNow(time.Now())

	if uni.resets != 0 {
		t.Fatalf("reset ran despite delete failure")
	}
	if notified {
		t.Fatal("listener notified despite failure")
	}
	if s.threshold != 95 {
		t.Fatalf("threshold re-rolled after failure: %v", s.threshold)
	}

	// Next tick retries against the same threshold and succeeds.
	inv.err = nil
	inv.removed, inv.total = 3, 5
	s.CheckNow(time.Now())
	if uni.resets != 1 {
		t.Fatalf("retry did not collapse: resets = %d", uni.resets)
	}
	if s.threshold == 95 {
		t.Fatal("threshold not re-rolled after successful retry")
	}
}

func TestFailedResetKeepsThreshold(t *testing.T) {
	uni := &fakeUniverse{instability: 98, resetErr: errors.New("store down")}
	inv := &fakeInventory{removed: 1, total: 2}
	s := newTestScheduler(uni, inv, nil)
	s.threshold = 95

	s.CheckNow(time.Now())

	if s.threshold != 95 {
		t.Fatalf("threshold re-rolled after reset failure: %v", s.threshold)
	}
}

func TestDriftStaysInRange(t *testing.T) {
	uni := &fakeUniverse{}
	s := newTestScheduler(uni, &fakeInventory{}, nil)

	for i := 0; i < 50; i++ {
		s.Drift()
	}
	if len(uni.adjusts) != 50 {
		t.Fatalf("got %d drift adjustments, want 50", len(uni.adjusts))
	}
	for _, d := range uni.adjusts {
		if d < 0.5 || d > 2.0 {
			t.Fatalf("drift delta %v outside [0.5, 2.0]", d)
		}
	}
}
