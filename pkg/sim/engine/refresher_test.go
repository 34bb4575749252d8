package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/phenomenon0/tablecast/pkg/kvstore"
	"github.com/phenomenon0/tablecast/pkg/league"
	"github.com/phenomenon0/tablecast/pkg/sim/outright"
)

type fakeScheduleSource struct {
	mu    sync.Mutex
	list  []league.Match
	calls int
}

func (f *fakeScheduleSource) GetScheduledMatches(ctx context.Context, lg league.League) ([]league.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.list, nil
}

func testRefresher(sess *Session, schedules ScheduleSource) *Refresher {
	sim := outright.New(outright.WithRuns(200), outright.WithSeed(1))
	return NewRefresher(&RefresherConfig{
		FixtureInterval: time.Hour,
		OddsInterval:    time.Hour,
	}, sess, schedules, sim)
}

func TestRefresherIdleWithoutSession(t *testing.T) {
	sess := NewSession(testConfig(10), newFakeSource(), kvstore.NewMem())
	schedules := &fakeScheduleSource{}
	r := testRefresher(sess, schedules)

	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if schedules.calls != 0 {
		t.Errorf("Idle refresher fetched schedules: %d calls", schedules.calls)
	}
	odds, _, _ := r.Odds()
	if len(odds) != 0 {
		t.Errorf("Idle refresher produced odds: %d entries", len(odds))
	}
}

func TestRefresherOddsAfterSubmission(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	teams := testTeams()
	sess := startSession(t, src, kvstore.NewMem(), StartOptions{})

	if _, err := sess.PresentMatchday(ctx); err != nil {
		t.Fatalf("PresentMatchday failed: %v", err)
	}
	if _, err := sess.SubmitPredictions(ctx, 6, []league.Prediction{
		{MatchID: "601", Outcome: league.OutcomeHome},
	}); err != nil {
		t.Fatalf("SubmitPredictions failed: %v", err)
	}

	// The provider still lists the simulated fixture; the refresher must
	// drop it before running odds.
	schedules := &fakeScheduleSource{list: []league.Match{
		fixture("601", 6, teams[0], teams[1]),
		fixture("701", 7, teams[2], teams[3]),
	}}
	r := testRefresher(sess, schedules)

	if err := r.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	odds, lg, at := r.Odds()
	if lg != league.LeaguePremierLeague || at.IsZero() {
		t.Errorf("Wrong odds metadata: league %s at %v", lg, at)
	}
	if len(odds) != 6 {
		t.Fatalf("Wrong odds size: got %d, want 6", len(odds))
	}

	// Arsenal sit on 13 with every rival out of reach, so the title is
	// settled no matter how the remaining games land.
	var arsenal, chelsea outright.Odds
	for _, o := range odds {
		switch o.Team.Name {
		case "Arsenal":
			arsenal = o
		case "Chelsea":
			chelsea = o
		}
	}
	if !arsenal.Title.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Wrong title odds for runaway leader: %s", arsenal.Title)
	}
	if !chelsea.Title.IsZero() {
		t.Errorf("Unreachable team has title odds: %s", chelsea.Title)
	}

	status := r.Status()
	if status.Refreshes != 1 || status.Failures != 0 || status.OddsTeams != 6 {
		t.Errorf("Wrong status: %+v", status)
	}
}

func TestRefresherStartStop(t *testing.T) {
	sess := NewSession(testConfig(10), newFakeSource(), kvstore.NewMem())
	r := testRefresher(sess, &fakeScheduleSource{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !r.IsRunning() {
		t.Error("Refresher not running after Start")
	}
	if err := r.Start(ctx); err == nil {
		t.Error("Second Start did not fail")
	}

	r.Stop()
	if r.IsRunning() {
		t.Error("Refresher still running after Stop")
	}
}
