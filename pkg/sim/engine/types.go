package engine

import (
	"context"
	"time"

	"github.com/phenomenon0/tablecast/pkg/footdata"
	"github.com/phenomenon0/tablecast/pkg/league"
	"github.com/phenomenon0/tablecast/pkg/sim/schedule"
)

// DataSource provides league data for the session. *footdata.Client satisfies
// it; tests inject fakes.
type DataSource interface {
	GetLeagueData(ctx context.Context, lg league.League) (*footdata.LeagueData, error)
	GetMatches(ctx context.Context, lg league.League, matchday int) ([]league.Match, error)
	GetFinishedMatches(ctx context.Context, lg league.League, upto int) ([]league.FinishedMatch, error)
}

// Clock supplies the current time. Injected so cache staleness is testable.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Config holds engine-wide settings.
type Config struct {
	Leagues      map[league.League]league.Config
	FixtureTTL   time.Duration // Cached fixture lists older than this are refetched
	FetchTimeout time.Duration // Per upstream call
	Lookahead    int           // Empty-matchday scan window
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *Config {
	return &Config{
		Leagues:      league.DefaultConfigs(),
		FixtureTTL:   6 * time.Hour,
		FetchTimeout: 15 * time.Second,
		Lookahead:    schedule.DefaultLookahead,
	}
}

// StartOptions selects the forecasting mode for a new session.
type StartOptions struct {
	RaceMode      bool
	Tracked       []league.TeamID
	Resolution    string // race.Policy; empty means auto-by-position
	StartMatchday int    // 0 uses the provider's current matchday
}

// MatchdayView is the fixture list and table a client renders for the
// current matchday.
type MatchdayView struct {
	League    league.League     `json:"league"`
	Matchday  int               `json:"matchday"`
	Fixtures  []league.Match    `json:"fixtures"`
	Untracked int               `json:"untracked"` // Fixtures hidden by race mode
	Table     []league.Standing `json:"table"`
	Phase     string            `json:"phase"`
}

// SubmitOutcome reports what one submission changed.
type SubmitOutcome struct {
	League       league.League        `json:"league"`
	Matchday     int                  `json:"matchday"`
	Applied      int                  `json:"applied"`
	AutoResolved int                  `json:"auto_resolved"`
	Skipped      []league.MatchResult `json:"skipped,omitempty"`
	Table        []league.Standing    `json:"table"`
	NextMatchday int                  `json:"next_matchday"` // 0 once final
	Phase        string               `json:"phase"`
}

// Status summarizes the live session.
type Status struct {
	SessionID       string          `json:"session_id"`
	League          league.League   `json:"league"`
	Matchday        int             `json:"matchday"`
	PendingMatchday int             `json:"pending_matchday,omitempty"`
	Phase           string          `json:"phase"`
	Completed       []int           `json:"completed"`
	RaceMode        bool            `json:"race_mode"`
	Tracked         []league.TeamID `json:"tracked,omitempty"`
	Resolution      string          `json:"resolution_policy"`
	StartedAt       time.Time       `json:"started_at"`
}

// cachedFixtures is the stored shape of a per-(league, matchday) fixture
// list, with the fetch time for staleness checks.
type cachedFixtures struct {
	Matches   []league.Match `json:"matches"`
	FetchedAt time.Time      `json:"fetched_at"`
}

// storedPrediction is the persisted form of one submitted prediction.
type storedPrediction struct {
	Matchday   int               `json:"matchday"`
	Prediction league.Prediction `json:"prediction"`
}

func copyTable(table []league.Standing) []league.Standing {
	if table == nil {
		return nil
	}
	return append([]league.Standing(nil), table...)
}
