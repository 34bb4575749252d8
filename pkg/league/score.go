package league

import (
	"errors"
	"fmt"
)

// ErrInvalidPrediction is returned when a prediction cannot be resolved
// into a concrete scoreline.
var ErrInvalidPrediction = errors.New("invalid prediction")

// Nominal scorelines for the non-custom outcomes.
const (
	nominalWinnerGoals = 1
	nominalLoserGoals  = 0
)

// ResolveResult converts a prediction into a concrete result for the
// fixture between homeID and awayID. HOME resolves to 1-0, AWAY to 0-1,
// DRAW to 0-0. CUSTOM takes the supplied goals, clamped to zero; both
// goal counts must be present.
func ResolveResult(p Prediction, homeID, awayID TeamID) (MatchResult, error) {
	res := MatchResult{
		MatchID:    p.MatchID,
		HomeTeamID: homeID,
		AwayTeamID: awayID,
	}

	switch p.Outcome {
	case OutcomeHome:
		res.HomeGoals = nominalWinnerGoals
		res.AwayGoals = nominalLoserGoals
	case OutcomeAway:
		res.HomeGoals = nominalLoserGoals
		res.AwayGoals = nominalWinnerGoals
	case OutcomeDraw:
		res.HomeGoals = 0
		res.AwayGoals = 0
	case OutcomeCustom:
		if p.HomeGoals == nil || p.AwayGoals == nil {
			return MatchResult{}, fmt.Errorf("%w: custom outcome for match %s requires both goal counts", ErrInvalidPrediction, p.MatchID)
		}
		res.HomeGoals = clampGoals(*p.HomeGoals)
		res.AwayGoals = clampGoals(*p.AwayGoals)
	default:
		return MatchResult{}, fmt.Errorf("%w: unknown outcome %q for match %s", ErrInvalidPrediction, p.Outcome, p.MatchID)
	}

	return res, nil
}

func clampGoals(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
