// Package race implements race mode: following a subset of teams through a
// season while every other fixture is resolved automatically, so the full
// table stays internally consistent.
package race

import (
	"github.com/phenomenon0/tablecast/pkg/league"
)

// TeamSet is the set of followed team IDs.
type TeamSet map[league.TeamID]bool

// NewTeamSet builds a set from the given IDs.
func NewTeamSet(ids ...league.TeamID) TeamSet {
	s := make(TeamSet, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}

// Has reports whether id is followed. Safe on a nil set.
func (s TeamSet) Has(id league.TeamID) bool {
	return s[id]
}

// IDs returns the members of the set.
func (s TeamSet) IDs() []league.TeamID {
	out := make([]league.TeamID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}

// Partition splits a matchday's fixtures into those involving at least one
// followed team and the remainder. Followed fixtures between two tracked
// teams get HeadToHead set on the returned copy; the input is not modified.
// Untracked fixtures are returned rather than dropped because their results
// still move the table.
func Partition(matches []league.Match, tracked TeamSet) (followed, rest []league.Match) {
	for _, m := range matches {
		home := tracked.Has(m.HomeTeam.ID)
		away := tracked.Has(m.AwayTeam.ID)
		if !home && !away {
			rest = append(rest, m)
			continue
		}
		m.HeadToHead = home && away
		followed = append(followed, m)
	}
	return followed, rest
}
