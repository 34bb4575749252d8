// Package policy validates prediction submissions before the simulation
// engine commits them.
package policy

import (
	"fmt"
	"sync"
	"time"

	"github.com/phenomenon0/tablecast/pkg/league"
)

// Limits defines the validation parameters for prediction submissions.
type Limits struct {
	// Per-prediction limits
	MaxGoalsPerSide int // Max goals one side of a custom scoreline may carry

	// Per-submission limits
	RequireFullMatchday  bool // Every presented fixture must be predicted
	MaxCustomPerMatchday int  // Max custom scorelines in one submission

	// Daily limits
	MaxDailySubmissions int // Max matchday submissions per day
}

// DefaultLimits returns permissive defaults for interactive use.
func DefaultLimits() *Limits {
	return &Limits{
		MaxGoalsPerSide:      10,
		RequireFullMatchday:  true,
		MaxCustomPerMatchday: 20,
		MaxDailySubmissions:  200,
	}
}

// StrictLimits returns tight limits for shared deployments.
func StrictLimits() *Limits {
	return &Limits{
		MaxGoalsPerSide:      5,
		RequireFullMatchday:  true,
		MaxCustomPerMatchday: 3,
		MaxDailySubmissions:  50,
	}
}

// Engine enforces limits and tracks validation state.
type Engine struct {
	limits *Limits

	mu               sync.RWMutex
	checked          int
	rejected         int
	dailySubmissions int
	lastDay          int // Day of year
}

// NewEngine creates a policy engine with the given limits.
func NewEngine(limits *Limits) *Engine {
	if limits == nil {
		limits = DefaultLimits()
	}
	return &Engine{
		limits:  limits,
		lastDay: time.Now().YearDay(),
	}
}

// CheckPrediction validates a single prediction against the limits.
func (e *Engine) CheckPrediction(p league.Prediction) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checkPrediction(p)
}

// CheckSubmission validates a full matchday submission against the presented
// fixture list. It does not commit anything; call RecordSubmission after the
// engine applies the results.
func (e *Engine) CheckSubmission(preds []league.Prediction, fixtures []league.Match) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.resetDailyIfNeeded()
	e.checked++

	if err := e.checkSubmission(preds, fixtures); err != nil {
		e.rejected++
		return err
	}
	return nil
}

func (e *Engine) checkSubmission(preds []league.Prediction, fixtures []league.Match) error {
	if e.dailySubmissions >= e.limits.MaxDailySubmissions {
		return fmt.Errorf("%w: daily submission limit reached: %d", league.ErrInvalidPrediction, e.limits.MaxDailySubmissions)
	}
	if len(preds) == 0 {
		return fmt.Errorf("%w: empty submission", league.ErrInvalidPrediction)
	}

	known := make(map[league.MatchID]bool, len(fixtures))
	for _, m := range fixtures {
		known[m.ID] = true
	}

	seen := make(map[league.MatchID]bool, len(preds))
	custom := 0
	for _, p := range preds {
		if seen[p.MatchID] {
			return fmt.Errorf("%w: duplicate prediction for match %s", league.ErrInvalidPrediction, p.MatchID)
		}
		seen[p.MatchID] = true

		if !known[p.MatchID] {
			return fmt.Errorf("%w: prediction for unknown match %s", league.ErrInvalidPrediction, p.MatchID)
		}
		if err := e.checkPrediction(p); err != nil {
			return err
		}
		if p.Outcome == league.OutcomeCustom {
			custom++
		}
	}

	if custom > e.limits.MaxCustomPerMatchday {
		return fmt.Errorf("%w: %d custom scorelines exceed limit %d", league.ErrInvalidPrediction, custom, e.limits.MaxCustomPerMatchday)
	}
	if e.limits.RequireFullMatchday && len(seen) != len(fixtures) {
		return fmt.Errorf("%w: matchday not fully covered: %d of %d fixtures predicted", league.ErrInvalidPrediction, len(seen), len(fixtures))
	}

	return nil
}

func (e *Engine) checkPrediction(p league.Prediction) error {
	if !p.Outcome.Valid() {
		return fmt.Errorf("%w: unknown outcome %q for match %s", league.ErrInvalidPrediction, p.Outcome, p.MatchID)
	}
	if p.Outcome != league.OutcomeCustom {
		return nil
	}
	if p.HomeGoals == nil || p.AwayGoals == nil {
		return fmt.Errorf("%w: custom outcome for match %s requires both goal counts", league.ErrInvalidPrediction, p.MatchID)
	}
	if *p.HomeGoals < 0 || *p.AwayGoals < 0 {
		return fmt.Errorf("%w: negative goals for match %s", league.ErrInvalidPrediction, p.MatchID)
	}
	if *p.HomeGoals > e.limits.MaxGoalsPerSide || *p.AwayGoals > e.limits.MaxGoalsPerSide {
		return fmt.Errorf("%w: scoreline %d-%d exceeds %d goals per side for match %s",
			league.ErrInvalidPrediction, *p.HomeGoals, *p.AwayGoals, e.limits.MaxGoalsPerSide, p.MatchID)
	}
	return nil
}

// RecordSubmission records a committed matchday submission.
func (e *Engine) RecordSubmission() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetDailyIfNeeded()
	e.dailySubmissions++
}

func (e *Engine) resetDailyIfNeeded() {
	now := time.Now()
	if e.lastDay != now.YearDay() {
		e.dailySubmissions = 0
		e.lastDay = now.YearDay()
	}
}

// Status summarizes the current policy state.
type Status struct {
	Checked             int  `json:"checked"`
	Rejected            int  `json:"rejected"`
	DailySubmissions    int  `json:"daily_submissions"`
	MaxDailySubmissions int  `json:"max_daily_submissions"`
	MaxGoalsPerSide     int  `json:"max_goals_per_side"`
	RequireFullMatchday bool `json:"require_full_matchday"`
}

// Status returns the current policy status.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return Status{
		Checked:             e.checked,
		Rejected:            e.rejected,
		DailySubmissions:    e.dailySubmissions,
		MaxDailySubmissions: e.limits.MaxDailySubmissions,
		MaxGoalsPerSide:     e.limits.MaxGoalsPerSide,
		RequireFullMatchday: e.limits.RequireFullMatchday,
	}
}
