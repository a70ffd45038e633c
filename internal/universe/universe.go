// Package universe owns the global universe state: the instability scalar,
// the collapse counter, and the activity counter. Every mutation goes through
// one mutex so concurrent adjusts, message ticks, and collapse resets apply
// in a total order with no lost updates.
package universe

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

const persistAttempts = 3

// Snapshot is a consistent point-in-time read of the whole universe state.
type Snapshot struct {
	Instability   float64
	CollapseCount int
	LastCollapse  time.Time // zero if the universe has never collapsed
	TotalMessages int
}

// CollapseReset reports the outcome of a collapse reset.
type CollapseReset struct {
	CollapseCount int
	At            time.Time
}

// State is the single authority over the universe row. The in-memory fields
// are authoritative; each mutation persists first and commits to memory only
// on success, so a failed write leaves both memory and disk unchanged.
type State struct {
	db *sql.DB

	mu            sync.Mutex
	instability   float64
	collapseCount int
	lastCollapse  time.Time
	totalMessages int
}

// Load reads the universe row and returns its owner, seeding a fresh row if
// one is not there yet. The schema normally seeds it, but Load stays correct
// against a database that predates the seed.
func Load(db *sql.DB) (*State, error) {
	s := &State{db: db}

	row := db.QueryRow(`SELECT instability, collapse_count, last_collapse, total_messages FROM universe_state WHERE id = 1`)
	var lastCollapse sql.NullString
	if err := row.Scan(&s.instability, &s.collapseCount, &lastCollapse, &s.totalMessages); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, err := db.Exec(`INSERT OR IGNORE INTO universe_state (id, instability, last_collapse, collapse_count, total_messages)
				VALUES (1, 0.0, NULL, 0, 0)`); err != nil {
				return nil, fmt.Errorf("seed universe state: %w", err)
			}
			return s, nil
		}
		return nil, fmt.Errorf("load universe state: %w", err)
	}
	if lastCollapse.Valid {
		t, err := time.Parse(time.RFC3339Nano, lastCollapse.String)
		if err != nil {
			return nil, fmt.Errorf("load universe state: bad last_collapse %q: %w", lastCollapse.String, err)
		}
		s.lastCollapse = t
	}
	return s, nil
}

// Instability returns the current instability value.
func (s *State) Instability() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instability
}

// Snapshot returns all four state fields from a single critical section.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Instability:   s.instability,
		CollapseCount: s.collapseCount,
		LastCollapse:  s.lastCollapse,
		TotalMessages: s.totalMessages,
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// AdjustInstability atomically applies clamp(current+delta, 0, 100) and
// returns the new value. Two concurrent calls serialize; both deltas land.
func (s *State) AdjustInstability(delta float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := clamp(s.instability + delta)
	if err := s.persist(`UPDATE universe_state SET instability = ? WHERE id = 1`, next); err != nil {
		return s.instability, err
	}
	s.instability = next
	return next, nil
}

// RecordMessage increments the activity counter.
func (s *State) RecordMessage() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persist(`UPDATE universe_state SET total_messages = total_messages + 1 WHERE id = 1`); err != nil {
		return err
	}
	s.totalMessages++
	return nil
}

// TriggerCollapseReset zeroes instability, bumps the collapse counter, and
// stamps the collapse time, all as one state transition. It shares the mutex
// with AdjustInstability, so an in-flight adjust can never overwrite the
// reset with a pre-collapse value.
func (s *State) TriggerCollapseReset(now time.Time) (CollapseReset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp := now.UTC()
	err := s.persist(
		`UPDATE universe_state SET instability = 0.0, collapse_count = collapse_count + 1, last_collapse = ? WHERE id = 1`,
		stamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return CollapseReset{}, err
	}
	s.instability = 0
	s.collapseCount++
	s.lastCollapse = stamp
	return CollapseReset{CollapseCount: s.collapseCount, At: stamp}, nil
}

// persist runs one UPDATE with bounded retry for transient store errors.
// Single-statement writes are all-or-nothing, so a failure here means the
// row is untouched.
func (s *State) persist(query string, args ...any) error {
	var err error
	for attempt := 0; attempt < persistAttempts; attempt++ {
		if _, err = s.db.Exec(query, args...); err == nil {
			return nil
		}
	}
	return fmt.Errorf("persist universe state: %w", err)
}
