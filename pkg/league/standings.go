package league

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrTeamNotFound is returned when a result references a team that has
// no row in the table.
var ErrTeamNotFound = errors.New("team not found in table")

// ApplyResult folds one match result into the table and returns a fresh,
// re-sorted snapshot. The input table is never mutated; if either team is
// missing the result is rejected with ErrTeamNotFound and the caller
// keeps its table.
func ApplyResult(table []Standing, res MatchResult) ([]Standing, error) {
	homeIdx, awayIdx := -1, -1
	for i := range table {
		switch table[i].Team.ID {
		case res.HomeTeamID:
			homeIdx = i
		case res.AwayTeamID:
			awayIdx = i
		}
	}
	if homeIdx < 0 {
		return nil, fmt.Errorf("%w: %s (match %s)", ErrTeamNotFound, res.HomeTeamID, res.MatchID)
	}
	if awayIdx < 0 {
		return nil, fmt.Errorf("%w: %s (match %s)", ErrTeamNotFound, res.AwayTeamID, res.MatchID)
	}

	next := make([]Standing, len(table))
	copy(next, table)

	applySide(&next[homeIdx], res.HomeGoals, res.AwayGoals)
	applySide(&next[awayIdx], res.AwayGoals, res.HomeGoals)

	return SortTable(next), nil
}

func applySide(row *Standing, scored, conceded int) {
	row.PlayedGames++
	switch {
	case scored > conceded:
		row.Won++
	case scored < conceded:
		row.Lost++
	default:
		row.Draw++
	}
	row.GoalsFor += scored
	row.GoalsAgainst += conceded
	row.GoalDifference = row.GoalsFor - row.GoalsAgainst
	row.Points = 3*row.Won + row.Draw
}

// SortTable returns a fresh snapshot ordered by points, goal difference
// and goals scored (all descending), with remaining ties broken by team
// name ascending, case-insensitive. Positions are reassigned 1..N.
func SortTable(table []Standing) []Standing {
	next := make([]Standing, len(table))
	copy(next, table)

	sort.Slice(next, func(i, j int) bool {
		a, b := next[i], next[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if a.GoalDifference != b.GoalDifference {
			return a.GoalDifference > b.GoalDifference
		}
		if a.GoalsFor != b.GoalsFor {
			return a.GoalsFor > b.GoalsFor
		}
		return strings.ToLower(a.Team.Name) < strings.ToLower(b.Team.Name)
	})

	for i := range next {
		next[i].Position = i + 1
	}
	return next
}

// FoldResults applies a batch of results in order. A result referencing
// an unknown team skips only that match; skipped results are returned so
// the caller can report them.
func FoldResults(table []Standing, results []MatchResult) ([]Standing, []MatchResult) {
	out := SortTable(table)
	var skipped []MatchResult
	for _, res := range results {
		next, err := ApplyResult(out, res)
		if err != nil {
			skipped = append(skipped, res)
			continue
		}
		out = next
	}
	return out, skipped
}

// ZeroTable builds the official season-start table for a set of teams:
// every tally zero, ordered by the tie-break rule.
func ZeroTable(teams []Team) []Standing {
	table := make([]Standing, 0, len(teams))
	for _, t := range teams {
		table = append(table, Standing{Team: t})
	}
	return SortTable(table)
}

// Teams returns the teams of a snapshot in table order.
func Teams(table []Standing) []Team {
	teams := make([]Team, 0, len(table))
	for _, row := range table {
		teams = append(teams, row.Team)
	}
	return teams
}
