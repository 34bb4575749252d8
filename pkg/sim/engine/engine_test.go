package engine

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phenomenon0/tablecast/pkg/footdata"
	"github.com/phenomenon0/tablecast/pkg/kvstore"
	"github.com/phenomenon0/tablecast/pkg/league"
	"github.com/phenomenon0/tablecast/pkg/sim/schedule"
)

// --- Fakes ---

type fakeSource struct {
	mu            sync.Mutex
	data          *footdata.LeagueData
	matches       map[int][]league.Match
	finished      []league.FinishedMatch
	matchErr      error
	dataCalls     int
	matchCalls    int
	finishedCalls int
	lastUpto      int

	onLeagueData func()
}

func (f *fakeSource) GetLeagueData(ctx context.Context, lg league.League) (*footdata.LeagueData, error) {
	if f.onLeagueData != nil {
		f.onLeagueData()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dataCalls++
	d := *f.data
	return &d, nil
}

func (f *fakeSource) GetMatches(ctx context.Context, lg league.League, matchday int) ([]league.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matchCalls++
	if f.matchErr != nil {
		return nil, f.matchErr
	}
	return f.matches[matchday], nil
}

func (f *fakeSource) GetFinishedMatches(ctx context.Context, lg league.League, upto int) ([]league.FinishedMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finishedCalls++
	f.lastUpto = upto
	return f.finished, nil
}

func (f *fakeSource) setMatchErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matchErr = err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// failingStore rejects Set calls once its allowance runs out, to
// exercise the all-or-nothing commit.
type failingStore struct {
	kvstore.Store
	mu        sync.Mutex
	remaining int
}

func (s *failingStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	ok := s.remaining > 0
	if ok {
		s.remaining--
	}
	s.mu.Unlock()
	if !ok {
		return errors.New("disk full")
	}
	return s.Store.Set(ctx, key, value)
}

func (s *failingStore) allow(n int) {
	s.mu.Lock()
	s.remaining = n
	s.mu.Unlock()
}

// --- Fixtures ---

func testTeams() []league.Team {
	names := []string{"Arsenal", "Brentford", "Chelsea", "Derby County", "Everton", "Fulham"}
	teams := make([]league.Team, len(names))
	for i, name := range names {
		teams[i] = league.Team{ID: league.TeamID(strconv.Itoa(i + 1)), Name: name, ShortName: name}
	}
	return teams
}

func tableRow(team league.Team, won, draw, lost, gf, ga int) league.Standing {
	return league.Standing{
		Team:           team,
		PlayedGames:    won + draw + lost,
		Won:            won,
		Draw:           draw,
		Lost:           lost,
		GoalsFor:       gf,
		GoalsAgainst:   ga,
		GoalDifference: gf - ga,
		Points:         3*won + draw,
	}
}

// officialTable is the seed table: Arsenal 10 pts down to Fulham 2, all
// on five games.
func officialTable() []league.Standing {
	teams := testTeams()
	return league.SortTable([]league.Standing{
		tableRow(teams[0], 3, 1, 1, 9, 5),
		tableRow(teams[1], 2, 2, 1, 8, 6),
		tableRow(teams[2], 2, 1, 2, 7, 7),
		tableRow(teams[3], 1, 2, 2, 5, 7),
		tableRow(teams[4], 1, 1, 3, 4, 8),
		tableRow(teams[5], 0, 2, 3, 3, 9),
	})
}

func fixture(id string, md int, home, away league.Team) league.Match {
	return league.Match{
		ID:       league.MatchID(id),
		Matchday: md,
		HomeTeam: home,
		AwayTeam: away,
		Kickoff:  time.Date(2025, 8, 16, 15, 0, 0, 0, time.UTC),
	}
}

func finishedFixture(id string, md int, home, away league.Team, hg, ag int) league.FinishedMatch {
	return league.FinishedMatch{Match: fixture(id, md, home, away), HomeGoals: hg, AwayGoals: ag}
}

func newFakeSource() *fakeSource {
	teams := testTeams()
	return &fakeSource{
		data: &footdata.LeagueData{Standings: officialTable(), CurrentMatchday: 6},
		matches: map[int][]league.Match{
			6: {fixture("601", 6, teams[0], teams[1])},
			7: {fixture("701", 7, teams[2], teams[3])},
		},
	}
}

func testConfig(maxMD int) *Config {
	return &Config{
		Leagues: map[league.League]league.Config{
			league.LeaguePremierLeague: {
				Name:        "Premier League",
				MaxMatchday: maxMD,
				TeamCount:   6,
				Enabled:     true,
			},
		},
		FixtureTTL:   time.Hour,
		FetchTimeout: time.Second,
		Lookahead:    3,
	}
}

func startSession(t *testing.T, src *fakeSource, store kvstore.Store, opts StartOptions) *Session {
	t.Helper()
	sess := NewSession(testConfig(10), src, store)
	if _, err := sess.StartSession(context.Background(), league.LeaguePremierLeague, opts); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	return sess
}

func findRow(t *testing.T, table []league.Standing, name string) league.Standing {
	t.Helper()
	for _, row := range table {
		if row.Team.Name == name {
			return row
		}
	}
	t.Fatalf("No table row for %s", name)
	return league.Standing{}
}

func intp(n int) *int { return &n }

// --- Tests ---

func TestStartSession(t *testing.T) {
	src := newFakeSource()
	sess := startSession(t, src, kvstore.NewMem(), StartOptions{})

	status, err := sess.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.League != league.LeaguePremierLeague {
		t.Errorf("Wrong league: got %s, want PL", status.League)
	}
	if status.Matchday != 6 {
		t.Errorf("Wrong matchday: got %d, want 6", status.Matchday)
	}
	if status.Phase != "in_progress" {
		t.Errorf("Wrong phase: got %s", status.Phase)
	}
	if len(status.Completed) != 0 {
		t.Errorf("Fresh session has completed matchdays: %v", status.Completed)
	}

	table, err := sess.ViewStandings(context.Background(), 0)
	if err != nil {
		t.Fatalf("ViewStandings failed: %v", err)
	}
	if got := findRow(t, table, "Arsenal"); got.Points != 10 || got.Position != 1 {
		t.Errorf("Wrong seed row: got %d pts pos %d, want 10 pts pos 1", got.Points, got.Position)
	}
}

func TestStartSessionDisabledLeague(t *testing.T) {
	sess := NewSession(testConfig(10), newFakeSource(), kvstore.NewMem())

	_, err := sess.StartSession(context.Background(), league.LeagueChampionship, StartOptions{})
	if !errors.Is(err, ErrLeagueDisabled) {
		t.Errorf("Wrong error: got %v, want ErrLeagueDisabled", err)
	}
}

func TestSubmitHomeWin(t *testing.T) {
	ctx := context.Background()
	sess := startSession(t, newFakeSource(), kvstore.NewMem(), StartOptions{})

	view, err := sess.PresentMatchday(ctx)
	if err != nil {
		t.Fatalf("PresentMatchday failed: %v", err)
	}
	if view.Matchday != 6 || len(view.Fixtures) != 1 {
		t.Fatalf("Wrong view: matchday %d with %d fixtures", view.Matchday, len(view.Fixtures))
	}

	outcome, err := sess.SubmitPredictions(ctx, 6, []league.Prediction{
		{MatchID: "601", Outcome: league.OutcomeHome},
	})
	if err != nil {
		t.Fatalf("SubmitPredictions failed: %v", err)
	}
	if outcome.Applied != 1 || outcome.AutoResolved != 0 {
		t.Errorf("Wrong outcome counts: applied %d auto %d", outcome.Applied, outcome.AutoResolved)
	}
	if outcome.NextMatchday != 7 {
		t.Errorf("Wrong next matchday: got %d, want 7", outcome.NextMatchday)
	}

	arsenal := findRow(t, outcome.Table, "Arsenal")
	if arsenal.Points != 13 || arsenal.Position != 1 {
		t.Errorf("Wrong winner row: got %d pts pos %d, want 13 pts pos 1", arsenal.Points, arsenal.Position)
	}
	if arsenal.PlayedGames != 6 || arsenal.Won != 4 {
		t.Errorf("Wrong winner tallies: played %d won %d", arsenal.PlayedGames, arsenal.Won)
	}
	brentford := findRow(t, outcome.Table, "Brentford")
	if brentford.Points != 8 || brentford.Lost != 2 {
		t.Errorf("Wrong loser row: %d pts %d lost", brentford.Points, brentford.Lost)
	}
}

func TestSubmitCustomScoreline(t *testing.T) {
	ctx := context.Background()
	sess := startSession(t, newFakeSource(), kvstore.NewMem(), StartOptions{})

	if _, err := sess.PresentMatchday(ctx); err != nil {
		t.Fatalf("PresentMatchday failed: %v", err)
	}
	outcome, err := sess.SubmitPredictions(ctx, 6, []league.Prediction{
		{MatchID: "601", Outcome: league.OutcomeCustom, HomeGoals: intp(3), AwayGoals: intp(1)},
	})
	if err != nil {
		t.Fatalf("SubmitPredictions failed: %v", err)
	}

	arsenal := findRow(t, outcome.Table, "Arsenal")
	if arsenal.GoalsFor != 12 || arsenal.GoalsAgainst != 6 || arsenal.GoalDifference != 6 {
		t.Errorf("Wrong winner goals: %d-%d gd %d", arsenal.GoalsFor, arsenal.GoalsAgainst, arsenal.GoalDifference)
	}
	if arsenal.Points != 13 {
		t.Errorf("Wrong winner points: got %d, want 13", arsenal.Points)
	}
	brentford := findRow(t, outcome.Table, "Brentford")
	if brentford.GoalsFor != 9 || brentford.GoalsAgainst != 9 || brentford.GoalDifference != 0 {
		t.Errorf("Wrong loser goals: %d-%d gd %d", brentford.GoalsFor, brentford.GoalsAgainst, brentford.GoalDifference)
	}
}

func TestRaceModeAutoResolution(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	teams := testTeams()
	src.matches[6] = []league.Match{
		fixture("601", 6, teams[0], teams[1]), // Arsenal v Brentford, both tracked
		fixture("602", 6, teams[2], teams[5]), // Chelsea (3rd) v Fulham (6th)
		fixture("603", 6, teams[3], teams[4]), // Derby (4th) v Everton (5th)
	}
	sess := startSession(t, src, kvstore.NewMem(), StartOptions{
		RaceMode: true,
		Tracked:  []league.TeamID{"1", "2"},
	})

	view, err := sess.PresentMatchday(ctx)
	if err != nil {
		t.Fatalf("PresentMatchday failed: %v", err)
	}
	if len(view.Fixtures) != 1 || view.Untracked != 2 {
		t.Fatalf("Wrong race split: %d shown, %d hidden", len(view.Fixtures), view.Untracked)
	}
	if !view.Fixtures[0].HeadToHead {
		t.Errorf("Tracked derby not flagged head-to-head")
	}

	outcome, err := sess.SubmitPredictions(ctx, 6, []league.Prediction{
		{MatchID: "601", Outcome: league.OutcomeHome},
	})
	if err != nil {
		t.Fatalf("SubmitPredictions failed: %v", err)
	}
	if outcome.Applied != 3 || outcome.AutoResolved != 2 {
		t.Errorf("Wrong outcome counts: applied %d auto %d", outcome.Applied, outcome.AutoResolved)
	}

	// Position gap 3: Chelsea beat Fulham, both rows advance a game.
	chelsea := findRow(t, outcome.Table, "Chelsea")
	if chelsea.Points != 10 || chelsea.PlayedGames != 6 {
		t.Errorf("Wrong auto winner: %d pts %d played", chelsea.Points, chelsea.PlayedGames)
	}
	fulham := findRow(t, outcome.Table, "Fulham")
	if fulham.Points != 2 || fulham.PlayedGames != 6 || fulham.Lost != 4 {
		t.Errorf("Wrong auto loser: %d pts %d played %d lost", fulham.Points, fulham.PlayedGames, fulham.Lost)
	}

	// Position gap 1: Derby and Everton draw.
	derby := findRow(t, outcome.Table, "Derby County")
	if derby.Points != 6 || derby.Draw != 3 {
		t.Errorf("Wrong auto draw home: %d pts %d draws", derby.Points, derby.Draw)
	}
	everton := findRow(t, outcome.Table, "Everton")
	if everton.Points != 5 || everton.Draw != 2 {
		t.Errorf("Wrong auto draw away: %d pts %d draws", everton.Points, everton.Draw)
	}

	if chelsea.Position != 2 {
		t.Errorf("Chelsea should climb to 2nd, got %d", chelsea.Position)
	}
}

func TestFinalMatchday(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	sess := NewSession(testConfig(6), src, kvstore.NewMem())
	if _, err := sess.StartSession(ctx, league.LeaguePremierLeague, StartOptions{}); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	if _, err := sess.PresentMatchday(ctx); err != nil {
		t.Fatalf("PresentMatchday failed: %v", err)
	}
	outcome, err := sess.SubmitPredictions(ctx, 6, []league.Prediction{
		{MatchID: "601", Outcome: league.OutcomeDraw},
	})
	if err != nil {
		t.Fatalf("SubmitPredictions failed: %v", err)
	}
	if outcome.Phase != "final" || outcome.NextMatchday != 0 {
		t.Errorf("Season not final after last matchday: phase %s next %d", outcome.Phase, outcome.NextMatchday)
	}

	view, err := sess.PresentMatchday(ctx)
	if err != nil {
		t.Fatalf("PresentMatchday after final failed: %v", err)
	}
	if view.Phase != "final" || len(view.Fixtures) != 0 {
		t.Errorf("Final view still has fixtures: phase %s, %d fixtures", view.Phase, len(view.Fixtures))
	}

	_, err = sess.SubmitPredictions(ctx, 6, nil)
	if !errors.Is(err, ErrSeasonFinal) {
		t.Errorf("Wrong error after final: got %v, want ErrSeasonFinal", err)
	}
}

func TestSubmitWrongMatchday(t *testing.T) {
	ctx := context.Background()
	sess := startSession(t, newFakeSource(), kvstore.NewMem(), StartOptions{})

	if _, err := sess.PresentMatchday(ctx); err != nil {
		t.Fatalf("PresentMatchday failed: %v", err)
	}
	_, err := sess.SubmitPredictions(ctx, 7, []league.Prediction{
		{MatchID: "601", Outcome: league.OutcomeHome},
	})
	if !errors.Is(err, ErrMatchdayMismatch) {
		t.Errorf("Wrong error: got %v, want ErrMatchdayMismatch", err)
	}
}

func TestSubmitWithoutPresentation(t *testing.T) {
	sess := startSession(t, newFakeSource(), kvstore.NewMem(), StartOptions{})

	_, err := sess.SubmitPredictions(context.Background(), 6, []league.Prediction{
		{MatchID: "601", Outcome: league.OutcomeHome},
	})
	if !errors.Is(err, ErrMatchdayMismatch) {
		t.Errorf("Wrong error: got %v, want ErrMatchdayMismatch", err)
	}
}

func TestSubmitInvalidPredictionKeepsState(t *testing.T) {
	ctx := context.Background()
	sess := startSession(t, newFakeSource(), kvstore.NewMem(), StartOptions{})

	if _, err := sess.PresentMatchday(ctx); err != nil {
		t.Fatalf("PresentMatchday failed: %v", err)
	}
	_, err := sess.SubmitPredictions(ctx, 6, []league.Prediction{
		{MatchID: "601", Outcome: "COIN_FLIP"},
	})
	if !errors.Is(err, league.ErrInvalidPrediction) {
		t.Fatalf("Wrong error: got %v, want ErrInvalidPrediction", err)
	}

	table, err := sess.ViewStandings(ctx, 0)
	if err != nil {
		t.Fatalf("ViewStandings failed: %v", err)
	}
	if got := findRow(t, table, "Arsenal"); got.Points != 10 {
		t.Errorf("Rejected submission changed the table: %d pts", got.Points)
	}

	// The presented matchday survives a rejection; a corrected submission
	// goes through without re-presenting.
	outcome, err := sess.SubmitPredictions(ctx, 6, []league.Prediction{
		{MatchID: "601", Outcome: league.OutcomeHome},
	})
	if err != nil {
		t.Fatalf("Corrected submission failed: %v", err)
	}
	if got := findRow(t, outcome.Table, "Arsenal"); got.Points != 13 {
		t.Errorf("Wrong points after corrected submission: %d", got.Points)
	}
}

func TestSubmitAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{Store: kvstore.NewMem()}
	store.allow(3) // fixture cache write plus two of the five commit writes
	sess := startSession(t, newFakeSource(), store, StartOptions{})

	if _, err := sess.PresentMatchday(ctx); err != nil {
		t.Fatalf("PresentMatchday failed: %v", err)
	}
	_, err := sess.SubmitPredictions(ctx, 6, []league.Prediction{
		{MatchID: "601", Outcome: league.OutcomeHome},
	})
	if err == nil {
		t.Fatal("Submission succeeded despite store failure")
	}

	status, err := sess.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Matchday != 6 || len(status.Completed) != 0 {
		t.Errorf("Failed submission advanced the session: matchday %d completed %v", status.Matchday, status.Completed)
	}
	table, err := sess.ViewStandings(ctx, 0)
	if err != nil {
		t.Fatalf("ViewStandings failed: %v", err)
	}
	if got := findRow(t, table, "Arsenal"); got.Points != 10 {
		t.Errorf("Failed submission changed the table: %d pts", got.Points)
	}

	// Store recovers; the same presented matchday commits cleanly.
	store.allow(100)
	outcome, err := sess.SubmitPredictions(ctx, 6, []league.Prediction{
		{MatchID: "601", Outcome: league.OutcomeHome},
	})
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if got := findRow(t, outcome.Table, "Arsenal"); got.Points != 13 {
		t.Errorf("Wrong points after retry: %d", got.Points)
	}
}

func TestSessionRestore(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	store := kvstore.NewMem()

	first := startSession(t, src, store, StartOptions{})
	if _, err := first.PresentMatchday(ctx); err != nil {
		t.Fatalf("PresentMatchday failed: %v", err)
	}
	if _, err := first.SubmitPredictions(ctx, 6, []league.Prediction{
		{MatchID: "601", Outcome: league.OutcomeHome},
	}); err != nil {
		t.Fatalf("SubmitPredictions failed: %v", err)
	}

	// A fresh engine over the same store resumes the forecast.
	second := startSession(t, src, store, StartOptions{})
	status, err := second.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Matchday != 7 {
		t.Errorf("Restored session at wrong matchday: got %d, want 7", status.Matchday)
	}
	if len(status.Completed) != 1 || status.Completed[0] != 6 {
		t.Errorf("Wrong restored completions: %v", status.Completed)
	}
	table, err := second.ViewStandings(ctx, 0)
	if err != nil {
		t.Fatalf("ViewStandings failed: %v", err)
	}
	if got := findRow(t, table, "Arsenal"); got.Points != 13 {
		t.Errorf("Restored table lost the forecast: %d pts", got.Points)
	}
}

func TestStaleSessionWrite(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	sess := NewSession(testConfig(10), src, kvstore.NewMem())

	entered := make(chan struct{})
	release := make(chan struct{})
	var first atomic.Bool
	src.onLeagueData = func() {
		// Only the first fetch blocks; once.Do would also park the second
		// caller until the first returned, deadlocking the test.
		if first.CompareAndSwap(false, true) {
			close(entered)
			<-release
		}
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := sess.StartSession(ctx, league.LeaguePremierLeague, StartOptions{})
		errCh <- err
	}()

	// While the first seed fetch is in flight, a second start claims the
	// session. The first fetch must be discarded when it lands.
	<-entered
	if _, err := sess.StartSession(ctx, league.LeaguePremierLeague, StartOptions{}); err != nil {
		t.Fatalf("Second StartSession failed: %v", err)
	}
	close(release)

	if err := <-errCh; !errors.Is(err, ErrStaleSessionWrite) {
		t.Errorf("Wrong error: got %v, want ErrStaleSessionWrite", err)
	}

	// The winning session is intact.
	status, err := sess.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Matchday != 6 {
		t.Errorf("Surviving session at wrong matchday: %d", status.Matchday)
	}
}

func TestFixtureCacheTTL(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	clock := newFakeClock()
	sess := NewSession(testConfig(10), src, kvstore.NewMem(), WithClock(clock))
	if _, err := sess.StartSession(ctx, league.LeaguePremierLeague, StartOptions{}); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	if _, err := sess.PresentMatchday(ctx); err != nil {
		t.Fatalf("PresentMatchday failed: %v", err)
	}
	if src.matchCalls != 1 {
		t.Fatalf("Wrong fetch count after first present: %d", src.matchCalls)
	}

	// Within the TTL the cached list is served.
	if _, err := sess.PresentMatchday(ctx); err != nil {
		t.Fatalf("PresentMatchday failed: %v", err)
	}
	if src.matchCalls != 1 {
		t.Errorf("Cache miss within TTL: %d fetches", src.matchCalls)
	}

	// Past the TTL the list is refetched.
	clock.Advance(2 * time.Hour)
	if _, err := sess.PresentMatchday(ctx); err != nil {
		t.Fatalf("PresentMatchday failed: %v", err)
	}
	if src.matchCalls != 2 {
		t.Errorf("Stale cache not refetched: %d fetches", src.matchCalls)
	}
}

func TestTransientFetchFailureKeepsProgress(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	sess := startSession(t, src, kvstore.NewMem(), StartOptions{})

	if _, err := sess.PresentMatchday(ctx); err != nil {
		t.Fatalf("PresentMatchday failed: %v", err)
	}
	if _, err := sess.SubmitPredictions(ctx, 6, []league.Prediction{
		{MatchID: "601", Outcome: league.OutcomeHome},
	}); err != nil {
		t.Fatalf("SubmitPredictions failed: %v", err)
	}

	src.setMatchErr(errors.New("upstream down"))
	if _, err := sess.PresentMatchday(ctx); err == nil {
		t.Fatal("PresentMatchday succeeded despite fetch failure")
	}

	status, err := sess.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if len(status.Completed) != 1 || status.Completed[0] != 6 {
		t.Errorf("Fetch failure lost progress: %v", status.Completed)
	}

	src.setMatchErr(nil)
	view, err := sess.PresentMatchday(ctx)
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if view.Matchday != 7 {
		t.Errorf("Wrong matchday after retry: %d", view.Matchday)
	}
}

func TestEmptyMatchdayLookahead(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	src.matches = map[int][]league.Match{} // every matchday empty
	sess := startSession(t, src, kvstore.NewMem(), StartOptions{})

	_, err := sess.PresentMatchday(ctx)
	if !errors.Is(err, schedule.ErrLookaheadExhausted) {
		t.Fatalf("Wrong error: got %v, want ErrLookaheadExhausted", err)
	}

	// A retry resumes the scan from where the window stopped and runs the
	// season out.
	view, err := sess.PresentMatchday(ctx)
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if view.Phase != "final" || len(view.Fixtures) != 0 {
		t.Errorf("Season not final after exhausting fixtures: phase %s", view.Phase)
	}
}

func TestViewStandingsHistorical(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	teams := testTeams()
	src.finished = []league.FinishedMatch{
		finishedFixture("101", 1, teams[0], teams[2], 2, 0),
		finishedFixture("201", 2, teams[1], teams[3], 1, 1),
		finishedFixture("301", 3, teams[0], teams[1], 1, 0),
	}
	sess := startSession(t, src, kvstore.NewMem(), StartOptions{})

	table, err := sess.ViewStandings(ctx, 2)
	if err != nil {
		t.Fatalf("ViewStandings failed: %v", err)
	}
	if src.lastUpto != 2 {
		t.Errorf("Wrong cutoff passed to source: %d", src.lastUpto)
	}

	arsenal := findRow(t, table, "Arsenal")
	if arsenal.Points != 3 || arsenal.PlayedGames != 1 || arsenal.Position != 1 {
		t.Errorf("Wrong reconstructed leader: %d pts %d played pos %d", arsenal.Points, arsenal.PlayedGames, arsenal.Position)
	}
	chelsea := findRow(t, table, "Chelsea")
	if chelsea.Position != 6 || chelsea.GoalDifference != -2 {
		t.Errorf("Wrong reconstructed tail: pos %d gd %d", chelsea.Position, chelsea.GoalDifference)
	}

	// The reconstruction is memoized per matchday.
	if _, err := sess.ViewStandings(ctx, 2); err != nil {
		t.Fatalf("Second ViewStandings failed: %v", err)
	}
	if src.finishedCalls != 1 {
		t.Errorf("Reconstruction not memoized: %d fetches", src.finishedCalls)
	}
}

func TestViewStandingsSnapshot(t *testing.T) {
	ctx := context.Background()
	sess := startSession(t, newFakeSource(), kvstore.NewMem(), StartOptions{})

	if _, err := sess.PresentMatchday(ctx); err != nil {
		t.Fatalf("PresentMatchday failed: %v", err)
	}
	if _, err := sess.SubmitPredictions(ctx, 6, []league.Prediction{
		{MatchID: "601", Outcome: league.OutcomeHome},
	}); err != nil {
		t.Fatalf("SubmitPredictions failed: %v", err)
	}

	snap, err := sess.ViewStandings(ctx, 6)
	if err != nil {
		t.Fatalf("ViewStandings failed: %v", err)
	}
	if got := findRow(t, snap, "Arsenal"); got.Points != 13 {
		t.Errorf("Wrong snapshot points: %d", got.Points)
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMem()
	sess := startSession(t, newFakeSource(), store, StartOptions{})

	if _, err := sess.PresentMatchday(ctx); err != nil {
		t.Fatalf("PresentMatchday failed: %v", err)
	}
	if _, err := sess.SubmitPredictions(ctx, 6, []league.Prediction{
		{MatchID: "601", Outcome: league.OutcomeHome},
	}); err != nil {
		t.Fatalf("SubmitPredictions failed: %v", err)
	}
	if store.Len() == 0 {
		t.Fatal("Submission persisted nothing")
	}

	if err := sess.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("Reset left %d keys behind", store.Len())
	}
	if _, err := sess.Status(); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("Wrong error after reset: got %v, want ErrNoActiveSession", err)
	}
}

func TestOperationsWithoutSession(t *testing.T) {
	ctx := context.Background()
	sess := NewSession(testConfig(10), newFakeSource(), kvstore.NewMem())

	if _, err := sess.PresentMatchday(ctx); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("PresentMatchday: got %v, want ErrNoActiveSession", err)
	}
	if _, err := sess.SubmitPredictions(ctx, 1, nil); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("SubmitPredictions: got %v, want ErrNoActiveSession", err)
	}
	if _, err := sess.ViewStandings(ctx, 0); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("ViewStandings: got %v, want ErrNoActiveSession", err)
	}
	if err := sess.Reset(ctx); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("Reset: got %v, want ErrNoActiveSession", err)
	}
}
