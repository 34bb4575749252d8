package league

import (
	"errors"
	"testing"
)

func intp(n int) *int {
	return &n
}

func TestResolveResultNominalScorelines(t *testing.T) {
	cases := []struct {
		outcome   Outcome
		homeGoals int
		awayGoals int
		winner    Outcome
	}{
		{OutcomeHome, 1, 0, OutcomeHome},
		{OutcomeAway, 0, 1, OutcomeAway},
		{OutcomeDraw, 0, 0, OutcomeDraw},
	}

	for _, c := range cases {
		res, err := ResolveResult(Prediction{MatchID: "m1", Outcome: c.outcome}, "57", "402")
		if err != nil {
			t.Fatalf("ResolveResult(%s) failed: %v", c.outcome, err)
		}
		if res.HomeGoals != c.homeGoals || res.AwayGoals != c.awayGoals {
			t.Errorf("%s: got %d-%d, want %d-%d", c.outcome, res.HomeGoals, res.AwayGoals, c.homeGoals, c.awayGoals)
		}
		if res.Winner() != c.winner {
			t.Errorf("%s: wrong winner %s", c.outcome, res.Winner())
		}
		if res.HomeTeamID != "57" || res.AwayTeamID != "402" {
			t.Errorf("%s: team identity lost: %s vs %s", c.outcome, res.HomeTeamID, res.AwayTeamID)
		}
	}
}

func TestResolveResultCustom(t *testing.T) {
	res, err := ResolveResult(Prediction{
		MatchID:   "m1",
		Outcome:   OutcomeCustom,
		HomeGoals: intp(3),
		AwayGoals: intp(1),
	}, "57", "402")
	if err != nil {
		t.Fatalf("ResolveResult failed: %v", err)
	}

	if res.HomeGoals != 3 || res.AwayGoals != 1 {
		t.Errorf("Custom goals not taken verbatim: %d-%d", res.HomeGoals, res.AwayGoals)
	}
	if res.Winner() != OutcomeHome {
		t.Errorf("3-1 should be a home win, got %s", res.Winner())
	}
}

func TestResolveResultCustomClampsNegatives(t *testing.T) {
	res, err := ResolveResult(Prediction{
		MatchID:   "m1",
		Outcome:   OutcomeCustom,
		HomeGoals: intp(-2),
		AwayGoals: intp(4),
	}, "57", "402")
	if err != nil {
		t.Fatalf("ResolveResult failed: %v", err)
	}

	if res.HomeGoals != 0 {
		t.Errorf("Negative goals should clamp to 0, got %d", res.HomeGoals)
	}
	if res.AwayGoals != 4 {
		t.Errorf("Wrong away goals: %d", res.AwayGoals)
	}
}

func TestResolveResultCustomMissingGoals(t *testing.T) {
	cases := []Prediction{
		{MatchID: "m1", Outcome: OutcomeCustom},
		{MatchID: "m1", Outcome: OutcomeCustom, HomeGoals: intp(2)},
		{MatchID: "m1", Outcome: OutcomeCustom, AwayGoals: intp(2)},
	}

	for i, p := range cases {
		_, err := ResolveResult(p, "57", "402")
		if !errors.Is(err, ErrInvalidPrediction) {
			t.Errorf("Case %d: expected ErrInvalidPrediction, got %v", i, err)
		}
	}
}

func TestResolveResultUnknownOutcome(t *testing.T) {
	_, err := ResolveResult(Prediction{MatchID: "m1", Outcome: "BANANA"}, "57", "402")
	if !errors.Is(err, ErrInvalidPrediction) {
		t.Errorf("Expected ErrInvalidPrediction, got %v", err)
	}
}

func TestOutcomeValid(t *testing.T) {
	for _, o := range []Outcome{OutcomeHome, OutcomeDraw, OutcomeAway, OutcomeCustom} {
		if !o.Valid() {
			t.Errorf("%s should be valid", o)
		}
	}
	if Outcome("").Valid() || Outcome("BANANA").Valid() {
		t.Error("Unknown outcomes should be invalid")
	}
}
