package footdata

import (
	"fmt"
	"time"

	"github.com/phenomenon0/tablecast/pkg/league"
)

// LeagueData is the combined seed for a session: the official table and
// the competition's current matchday, taken from one standings call.
type LeagueData struct {
	Standings       []league.Standing `json:"standings"`
	CurrentMatchday int               `json:"current_matchday"`
}

// Match status values used by the provider.
const (
	statusFinished  = "FINISHED"
	statusCancelled = "CANCELLED"
)

// Standings table types; TOTAL is the full home+away table.
const (
	tableTypeTotal = "TOTAL"
)

// --- wire types (provider JSON, camelCase) ---

type teamEntry struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"shortName"`
	TLA       string `json:"tla"`
	Crest     string `json:"crest"`
}

type tableEntry struct {
	Position       int       `json:"position"`
	Team           teamEntry `json:"team"`
	PlayedGames    int       `json:"playedGames"`
	Won            int       `json:"won"`
	Draw           int       `json:"draw"`
	Lost           int       `json:"lost"`
	Points         int       `json:"points"`
	GoalsFor       int       `json:"goalsFor"`
	GoalsAgainst   int       `json:"goalsAgainst"`
	GoalDifference int       `json:"goalDifference"`
}

type standingsBlock struct {
	Stage string       `json:"stage"`
	Type  string       `json:"type"`
	Table []tableEntry `json:"table"`
}

type seasonInfo struct {
	CurrentMatchday int `json:"currentMatchday"`
}

type standingsResponse struct {
	Season    seasonInfo       `json:"season"`
	Standings []standingsBlock `json:"standings"`
}

type competitionResponse struct {
	Code          string     `json:"code"`
	Name          string     `json:"name"`
	CurrentSeason seasonInfo `json:"currentSeason"`
}

type scorePair struct {
	Home *int `json:"home"`
	Away *int `json:"away"`
}

type scoreEntry struct {
	Winner   string    `json:"winner"`
	FullTime scorePair `json:"fullTime"`
}

type matchEntry struct {
	ID       int64      `json:"id"`
	Matchday int        `json:"matchday"`
	UTCDate  time.Time  `json:"utcDate"`
	Status   string     `json:"status"`
	HomeTeam teamEntry  `json:"homeTeam"`
	AwayTeam teamEntry  `json:"awayTeam"`
	Score    scoreEntry `json:"score"`
}

type matchesResponse struct {
	Matches []matchEntry `json:"matches"`
}

// --- conversions ---

func (t teamEntry) team() league.Team {
	short := t.ShortName
	if short == "" {
		short = t.TLA
	}
	return league.Team{
		ID:        league.TeamID(fmt.Sprintf("%d", t.ID)),
		Name:      t.Name,
		ShortName: short,
		Crest:     t.Crest,
	}
}

func (e tableEntry) standing() league.Standing {
	return league.Standing{
		Team:           e.Team.team(),
		Position:       e.Position,
		PlayedGames:    e.PlayedGames,
		Won:            e.Won,
		Draw:           e.Draw,
		Lost:           e.Lost,
		GoalsFor:       e.GoalsFor,
		GoalsAgainst:   e.GoalsAgainst,
		GoalDifference: e.GoalDifference,
		Points:         e.Points,
	}
}

func (m matchEntry) match() league.Match {
	return league.Match{
		ID:       league.MatchID(fmt.Sprintf("%d", m.ID)),
		Matchday: m.Matchday,
		HomeTeam: m.HomeTeam.team(),
		AwayTeam: m.AwayTeam.team(),
		Kickoff:  m.UTCDate,
	}
}

// finished converts a FINISHED match entry; ok is false when the
// full-time score is incomplete.
func (m matchEntry) finished() (league.FinishedMatch, bool) {
	if m.Status != statusFinished || m.Score.FullTime.Home == nil || m.Score.FullTime.Away == nil {
		return league.FinishedMatch{}, false
	}
	return league.FinishedMatch{
		Match:     m.match(),
		HomeGoals: *m.Score.FullTime.Home,
		AwayGoals: *m.Score.FullTime.Away,
	}, true
}
