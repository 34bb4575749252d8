// Package league defines competitions, teams, and the standings math
// for a football league season.
package league

import (
	"fmt"
	"strings"
)

// League identifies a competition by its data-provider code.
type League string

const (
	LeaguePremierLeague League = "PL"
	LeagueChampionship  League = "ELC"
	LeagueLaLiga        League = "PD"
	LeagueSerieA        League = "SA"
	LeagueBundesliga    League = "BL1"
	LeagueLigue1        League = "FL1"
	LeagueEredivisie    League = "DED"
	LeaguePrimeira      League = "PPL"
	LeagueBrasileirao   League = "BSA"
	LeagueChampions     League = "CL"
)

func (l League) String() string {
	return string(l)
}

// MatchdayRange is an inclusive range of matchday numbers.
type MatchdayRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Contains reports whether md falls inside the range.
func (r MatchdayRange) Contains(md int) bool {
	return md >= r.From && md <= r.To
}

// Config holds per-competition configuration.
type Config struct {
	Name        string          // Human-readable competition name
	MaxMatchday int             // Last matchday of the season
	TeamCount   int             // Teams in the competition
	Excluded    []MatchdayRange // Matchdays never presented for prediction
	Enabled     bool            // Whether the competition is selectable
}

// Excludes reports whether md falls inside a configured exclusion range.
func (c Config) Excludes(md int) bool {
	for _, r := range c.Excluded {
		if r.Contains(md) {
			return true
		}
	}
	return false
}

// DefaultConfigs returns the default competition configurations.
func DefaultConfigs() map[League]Config {
	return map[League]Config{
		LeaguePremierLeague: {
			Name:        "Premier League",
			MaxMatchday: 38,
			TeamCount:   20,
			Enabled:     true,
		},
		LeagueChampionship: {
			Name:        "Championship",
			MaxMatchday: 46,
			TeamCount:   24,
			Enabled:     true,
		},
		LeagueLaLiga: {
			Name:        "La Liga",
			MaxMatchday: 38,
			TeamCount:   20,
			Enabled:     true,
		},
		LeagueSerieA: {
			Name:        "Serie A",
			MaxMatchday: 38,
			TeamCount:   20,
			Enabled:     true,
		},
		LeagueBundesliga: {
			Name:        "Bundesliga",
			MaxMatchday: 34,
			TeamCount:   18,
			Enabled:     true,
		},
		LeagueLigue1: {
			Name:        "Ligue 1",
			MaxMatchday: 34,
			TeamCount:   18,
			Enabled:     true,
		},
		LeagueEredivisie: {
			Name:        "Eredivisie",
			MaxMatchday: 34,
			TeamCount:   18,
			Enabled:     true,
		},
		LeaguePrimeira: {
			Name:        "Primeira Liga",
			MaxMatchday: 34,
			TeamCount:   18,
			Enabled:     true,
		},
		LeagueBrasileirao: {
			Name:        "Campeonato Brasileiro Serie A",
			MaxMatchday: 38,
			TeamCount:   20,
			Enabled:     true,
		},
		LeagueChampions: {
			// League phase only; knockout rounds are not a table race.
			Name:        "Champions League",
			MaxMatchday: 8,
			TeamCount:   36,
			Enabled:     false,
		},
	}
}

// ParseLeague resolves a competition code (case-insensitive) to a League.
func ParseLeague(code string) (League, error) {
	l := League(strings.ToUpper(strings.TrimSpace(code)))
	if _, ok := DefaultConfigs()[l]; !ok {
		return "", fmt.Errorf("unknown league code: %q", code)
	}
	return l, nil
}
