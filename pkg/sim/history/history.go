// Package history rebuilds a league table as it stood after a past matchday
// by replaying real results over a starting table.
package history

import (
	"sort"

	"github.com/phenomenon0/tablecast/pkg/league"
)

// Reconstruction is the outcome of one replay.
type Reconstruction struct {
	Table    []league.Standing    `json:"table"`
	Matchday int                  `json:"matchday"`
	Applied  int                  `json:"applied"`
	Skipped  []league.MatchResult `json:"skipped,omitempty"`
}

// Reconstruct folds the finished matches for matchdays 1..upto over the
// starting table, in matchday order. Matches referencing teams missing from
// the table are skipped and reported rather than failing the replay. The
// inputs are not modified; calling again with the same inputs produces the
// same table.
func Reconstruct(start []league.Standing, matches []league.FinishedMatch, upto int) Reconstruction {
	replay := make([]league.FinishedMatch, 0, len(matches))
	for _, m := range matches {
		if m.Matchday >= 1 && m.Matchday <= upto {
			replay = append(replay, m)
		}
	}
	sort.SliceStable(replay, func(i, j int) bool {
		return replay[i].Matchday < replay[j].Matchday
	})

	results := make([]league.MatchResult, 0, len(replay))
	for _, m := range replay {
		results = append(results, m.Result())
	}

	table, skipped := league.FoldResults(start, results)
	return Reconstruction{
		Table:    table,
		Matchday: upto,
		Applied:  len(results) - len(skipped),
		Skipped:  skipped,
	}
}

// MaxMatchday returns the highest matchday among the given matches, or 0.
func MaxMatchday(matches []league.FinishedMatch) int {
	max := 0
	for _, m := range matches {
		if m.Matchday > max {
			max = m.Matchday
		}
	}
	return max
}
