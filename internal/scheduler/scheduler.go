// Package scheduler drives the two background timers of the chaos economy:
// the collapse threshold check and the passive instability drift.
package scheduler

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/example/quantum-lotto/internal/tuning"
	"github.com/example/quantum-lotto/internal/universe"
)

// Universe is the slice of the universe owner the scheduler needs.
type Universe interface {
	Instability() float64
	AdjustInstability(delta float64) (float64, error)
	TriggerCollapseReset(now time.Time) (universe.CollapseReset, error)
}

// Inventory is the slice of the ledger the collapse procedure needs.
type Inventory interface {
	BulkCollapseDelete(rng *rand.Rand) (removed, total int, err error)
}

// CollapseEvent is delivered to the registered listener after a successful
// collapse.
type CollapseEvent struct {
	Removed       int       `json:"removed"`
	Total         int       `json:"total"`
	CollapseCount int       `json:"collapseCount"`
	At            time.Time `json:"timestamp"`
}

// Scheduler owns the collapse threshold. The threshold never leaves this
// package; it is re-rolled only after a collapse actually succeeds, so a
// failed attempt retries against the same threshold on the next tick.
type Scheduler struct {
	uni      Universe
	inv      Inventory
	cfg      tuning.Tuning
	rng      *rand.Rand
	listener func(CollapseEvent)

	threshold float64
}

// New seeds the first threshold from rng. rng is used only from the Run
// goroutine (or from CheckNow in tests); it must not be shared.
func New(uni Universe, inv Inventory, cfg tuning.Tuning, rng *rand.Rand, listener func(CollapseEvent)) *Scheduler {
	s := &Scheduler{uni: uni, inv: inv, cfg: cfg, rng: rng, listener: listener}
	s.threshold = s.rollThreshold()
	return s
}

func (s *Scheduler) rollThreshold() float64 {
	return s.cfg.ThresholdMin + s.rng.Float64()*(s.cfg.ThresholdMax-s.cfg.ThresholdMin)
}

// Run blocks until ctx is cancelled, firing the threshold check and the
// passive drift on their own tickers. Errors are logged and never stop the
// loop.
func (s *Scheduler) Run(ctx context.Context) {
	check := time.NewTicker(s.cfg.CheckInterval())
	defer check.Stop()
	drift := time.NewTicker(s.cfg.DriftInterval())
	defer drift.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-check.C:
			s.CheckNow(time.Now())
		case <-drift.C:
			s.Drift()
		}
	}
}

// CheckNow runs one threshold check: if instability has reached the current
// threshold, execute the collapse procedure and re-roll the threshold.
func (s *Scheduler) CheckNow(now time.Time) {
	current := s.uni.Instability()
	if current < s.threshold {
		return
	}

	removed, total, err := s.inv.BulkCollapseDelete(s.rng)
	if err != nil {
		log.Printf("collapse aborted (threshold %.2f kept): %v", s.threshold, err)
		return
	}
	reset, err := s.uni.TriggerCollapseReset(now)
	if err != nil {
		log.Printf("collapse reset failed (threshold %.2f kept): %v", s.threshold, err)
		return
	}

	log.Printf("universe collapse #%d: removed %d of %d items", reset.CollapseCount, removed, total)
	s.threshold = s.rollThreshold()

	if s.listener != nil {
		s.listener(CollapseEvent{
			Removed:       removed,
			Total:         total,
			CollapseCount: reset.CollapseCount,
			At:            reset.At,
		})
	}
}

// Drift applies one passive instability increase.
func (s *Scheduler) Drift() {
	delta := s.cfg.DriftMin + s.rng.Float64()*(s.cfg.DriftMax-s.cfg.DriftMin)
	if _, err := s.uni.AdjustInstability(delta); err != nil {
		log.Printf("passive drift failed: %v", err)
	}
}
