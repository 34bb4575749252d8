package race

import (
	"fmt"

	"github.com/phenomenon0/tablecast/pkg/league"
)

// Policy selects how untracked fixtures are resolved.
type Policy string

const (
	// PolicyByPosition gives the win to the better-placed team unless the
	// two sides are within positionGap places of each other.
	PolicyByPosition Policy = "auto-by-position"
	// PolicyForceDraw resolves every untracked fixture as a draw.
	PolicyForceDraw Policy = "force-draw"
)

// Teams this close in the table draw under PolicyByPosition. A fixed
// heuristic, not a prediction model.
const positionGap = 2

// ParsePolicy validates a policy string from config or an API request.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyByPosition, PolicyForceDraw:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("unknown resolution policy %q", s)
	}
}

// Resolve derives the outcome of a fixture from the two sides' current table
// positions. Pure: the same inputs always produce the same outcome.
func Resolve(policy Policy, homePos, awayPos int) league.Outcome {
	if policy == PolicyForceDraw {
		return league.OutcomeDraw
	}
	gap := homePos - awayPos
	if gap < 0 {
		gap = -gap
	}
	if gap <= positionGap {
		return league.OutcomeDraw
	}
	if homePos < awayPos {
		return league.OutcomeHome
	}
	return league.OutcomeAway
}

// AutoPredict builds the prediction for an untracked match from the teams'
// positions in the current predicted table. Unknown positions resolve to a
// draw.
func AutoPredict(policy Policy, m league.Match, positions map[league.TeamID]int) league.Prediction {
	homePos, homeOK := positions[m.HomeTeam.ID]
	awayPos, awayOK := positions[m.AwayTeam.ID]

	outcome := league.OutcomeDraw
	if homeOK && awayOK {
		outcome = Resolve(policy, homePos, awayPos)
	}
	return league.Prediction{MatchID: m.ID, Outcome: outcome}
}

// Positions maps each team to its 1-based rank in the given table.
func Positions(table []league.Standing) map[league.TeamID]int {
	pos := make(map[league.TeamID]int, len(table))
	for _, row := range table {
		pos[row.Team.ID] = row.Position
	}
	return pos
}
