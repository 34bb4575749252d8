// Package schedule decides which matchday a season simulation presents next.
//
// The sequencer walks forward through [1, MaxMatchday], skipping matchdays
// that were already submitted and ranges the competition marks unplayable.
// Matchdays whose fixture lists turn out empty are advanced past through a
// bounded lookahead window rather than an exhaustive scan.
package schedule

import (
	"errors"
	"fmt"
	"sort"

	"github.com/phenomenon0/tablecast/pkg/league"
)

// MatchdayState tracks the lifecycle of the current candidate matchday.
type MatchdayState int

const (
	StateUnseen MatchdayState = iota
	StatePresented
	StateSubmitted
)

func (s MatchdayState) String() string {
	switch s {
	case StateUnseen:
		return "unseen"
	case StatePresented:
		return "presented"
	case StateSubmitted:
		return "submitted"
	default:
		return "unknown"
	}
}

// SeasonPhase is the global state of the simulated season.
type SeasonPhase int

const (
	PhaseInProgress SeasonPhase = iota
	PhaseFinal
)

func (p SeasonPhase) String() string {
	if p == PhaseFinal {
		return "final"
	}
	return "in_progress"
}

var (
	// ErrLookaheadExhausted means the lookahead window was spent on empty
	// matchdays. The sequencer keeps its position; callers may retry later.
	ErrLookaheadExhausted = errors.New("schedule: no fixtures within lookahead window")
	// ErrSeasonComplete means no playable matchday remains.
	ErrSeasonComplete = errors.New("schedule: no playable matchday remains")
)

// DefaultLookahead bounds how many consecutive empty matchdays are skipped
// before the scan gives up for this round.
const DefaultLookahead = 5

// Sequencer is the per-session matchday state machine. Not safe for
// concurrent use; the session engine serializes access.
type Sequencer struct {
	max       int
	excluded  []league.MatchdayRange
	lookahead int

	current   int
	state     MatchdayState
	completed map[int]bool
	phase     SeasonPhase
	skipped   int
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithLookahead overrides the empty-matchday lookahead window.
func WithLookahead(n int) Option {
	return func(s *Sequencer) {
		if n > 0 {
			s.lookahead = n
		}
	}
}

// New creates a sequencer for a competition.
func New(cfg league.Config, opts ...Option) *Sequencer {
	s := &Sequencer{
		max:       cfg.MaxMatchday,
		excluded:  cfg.Excluded,
		lookahead: DefaultLookahead,
		completed: make(map[int]bool),
		phase:     PhaseInProgress,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reset seeds the sequencer at the season's current matchday with the given
// already-completed matchdays, discarding any previous state.
func (s *Sequencer) Reset(start int, completed []int) {
	s.completed = make(map[int]bool, len(completed))
	for _, md := range completed {
		if md >= 1 && md <= s.max {
			s.completed[md] = true
		}
	}
	s.phase = PhaseInProgress
	s.state = StateUnseen
	s.skipped = 0
	if start < 1 {
		start = 1
	}
	s.current = s.nextPlayable(start)
	if s.current == 0 {
		s.phase = PhaseFinal
	}
}

// Candidate returns the matchday to present next. The second return is false
// once the season is final.
func (s *Sequencer) Candidate() (int, bool) {
	if s.phase == PhaseFinal || s.current == 0 {
		return 0, false
	}
	return s.current, true
}

// MarkPresented records that the candidate's fixture list resolved non-empty
// and was shown. Resets the empty-matchday window.
func (s *Sequencer) MarkPresented(md int) {
	if md == s.current && s.phase == PhaseInProgress {
		s.state = StatePresented
		s.skipped = 0
	}
}

// AdvanceEmpty records that the current candidate had no fixtures and moves
// to the next playable matchday. After lookahead consecutive empty advances
// it returns ErrLookaheadExhausted with the window reset, so a later retry
// can scan again from the new position. Submitted progress is never touched.
func (s *Sequencer) AdvanceEmpty() (int, error) {
	if s.phase == PhaseFinal {
		return 0, ErrSeasonComplete
	}
	next := s.nextPlayable(s.current + 1)
	if next == 0 {
		s.phase = PhaseFinal
		s.current = 0
		s.state = StateUnseen
		return 0, ErrSeasonComplete
	}
	s.current = next
	s.state = StateUnseen
	s.skipped++
	if s.skipped >= s.lookahead {
		s.skipped = 0
		return next, ErrLookaheadExhausted
	}
	return next, nil
}

// Submit marks the presented matchday as completed and scans forward for the
// next playable one. When none remains the season turns final.
func (s *Sequencer) Submit(md int) error {
	if s.phase == PhaseFinal {
		return ErrSeasonComplete
	}
	if md != s.current {
		return fmt.Errorf("schedule: matchday %d is not the current candidate %d", md, s.current)
	}
	s.completed[md] = true
	s.state = StateSubmitted
	s.skipped = 0

	next := s.nextPlayable(md + 1)
	if next == 0 {
		s.phase = PhaseFinal
		s.current = 0
		return nil
	}
	s.current = next
	s.state = StateUnseen
	return nil
}

// Phase returns the season phase.
func (s *Sequencer) Phase() SeasonPhase {
	return s.phase
}

// State returns the lifecycle state of the current candidate.
func (s *Sequencer) State() MatchdayState {
	return s.state
}

// IsCompleted reports whether a matchday was already submitted.
func (s *Sequencer) IsCompleted(md int) bool {
	return s.completed[md]
}

// Completed returns the submitted matchdays in ascending order.
func (s *Sequencer) Completed() []int {
	out := make([]int, 0, len(s.completed))
	for md := range s.completed {
		out = append(out, md)
	}
	sort.Ints(out)
	return out
}

func (s *Sequencer) nextPlayable(from int) int {
	if from < 1 {
		from = 1
	}
	for md := from; md <= s.max; md++ {
		if s.completed[md] || s.excludes(md) {
			continue
		}
		return md
	}
	return 0
}

func (s *Sequencer) excludes(md int) bool {
	for _, r := range s.excluded {
		if r.Contains(md) {
			return true
		}
	}
	return false
}
