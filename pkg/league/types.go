package league

import (
	"time"
)

// TeamID is a stable per-season team identifier.
type TeamID string

// MatchID is a stable fixture identifier.
type MatchID string

// Team is one competing club. Immutable once loaded.
type Team struct {
	ID        TeamID `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
	Crest     string `json:"crest,omitempty"`
}

// Standing is one row of a league table snapshot.
type Standing struct {
	Team           Team `json:"team"`
	Position       int  `json:"position"`
	PlayedGames    int  `json:"played_games"`
	Won            int  `json:"won"`
	Draw           int  `json:"draw"`
	Lost           int  `json:"lost"`
	GoalsFor       int  `json:"goals_for"`
	GoalsAgainst   int  `json:"goals_against"`
	GoalDifference int  `json:"goal_difference"`
	Points         int  `json:"points"`
}

// Match is one fixture of a matchday.
type Match struct {
	ID       MatchID   `json:"id"`
	Matchday int       `json:"matchday"`
	HomeTeam Team      `json:"home_team"`
	AwayTeam Team      `json:"away_team"`
	Kickoff  time.Time `json:"kickoff"`
	// HeadToHead marks a fixture between two tracked teams (race mode).
	HeadToHead bool `json:"head_to_head,omitempty"`
}

// FinishedMatch is a fixture with its real full-time score.
type FinishedMatch struct {
	Match
	HomeGoals int `json:"home_goals"`
	AwayGoals int `json:"away_goals"`
}

// Result converts the finished match into a MatchResult.
func (m FinishedMatch) Result() MatchResult {
	return MatchResult{
		MatchID:    m.ID,
		HomeTeamID: m.HomeTeam.ID,
		AwayTeamID: m.AwayTeam.ID,
		HomeGoals:  m.HomeGoals,
		AwayGoals:  m.AwayGoals,
	}
}

// Outcome is the kind of a prediction.
type Outcome string

const (
	OutcomeHome   Outcome = "HOME"
	OutcomeDraw   Outcome = "DRAW"
	OutcomeAway   Outcome = "AWAY"
	OutcomeCustom Outcome = "CUSTOM"
)

// Valid reports whether the outcome is one of the four known kinds.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeHome, OutcomeDraw, OutcomeAway, OutcomeCustom:
		return true
	default:
		return false
	}
}

// Prediction is a user forecast for one fixture. HomeGoals and AwayGoals
// are set only for OutcomeCustom.
type Prediction struct {
	MatchID   MatchID `json:"match_id"`
	Outcome   Outcome `json:"outcome"`
	HomeGoals *int    `json:"home_goals,omitempty"`
	AwayGoals *int    `json:"away_goals,omitempty"`
}

// MatchResult is a concrete scoreline for one fixture.
type MatchResult struct {
	MatchID    MatchID `json:"match_id"`
	HomeTeamID TeamID  `json:"home_team_id"`
	AwayTeamID TeamID  `json:"away_team_id"`
	HomeGoals  int     `json:"home_goals"`
	AwayGoals  int     `json:"away_goals"`
}

// Winner returns the outcome implied by the scoreline.
func (r MatchResult) Winner() Outcome {
	switch {
	case r.HomeGoals > r.AwayGoals:
		return OutcomeHome
	case r.HomeGoals < r.AwayGoals:
		return OutcomeAway
	default:
		return OutcomeDraw
	}
}
