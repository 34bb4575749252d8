// Package engine drives a season forecasting session: it presents matchdays,
// folds submitted predictions into a running table, and persists the session
// so it survives restarts.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phenomenon0/tablecast/pkg/kvstore"
	"github.com/phenomenon0/tablecast/pkg/league"
	"github.com/phenomenon0/tablecast/pkg/sim/history"
	"github.com/phenomenon0/tablecast/pkg/sim/metrics"
	"github.com/phenomenon0/tablecast/pkg/sim/policy"
	"github.com/phenomenon0/tablecast/pkg/sim/race"
	"github.com/phenomenon0/tablecast/pkg/sim/schedule"
)

var (
	// ErrNoActiveSession means no session has been started.
	ErrNoActiveSession = errors.New("engine: no active session")
	// ErrSeasonFinal means every playable matchday has been submitted.
	ErrSeasonFinal = errors.New("engine: season is final")
	// ErrMatchdayMismatch means a submission targets a matchday other than
	// the one presented.
	ErrMatchdayMismatch = errors.New("engine: submission targets a different matchday")
	// ErrStaleSessionWrite means a fetch finished after the session moved
	// on; its result was discarded.
	ErrStaleSessionWrite = errors.New("engine: stale session write discarded")
	// ErrLeagueDisabled means the competition is not configured for
	// forecasting.
	ErrLeagueDisabled = errors.New("engine: league not enabled")
)

// Session is the forecasting engine for one league season. All operations
// are serialized on an internal mutex; the store only sees writes from this
// path.
type Session struct {
	config *Config
	source DataSource
	store  kvstore.Store
	clock  Clock
	sim    *metrics.SimMetrics
	limits *policy.Engine

	mu sync.RWMutex

	// Session state, valid while id is non-empty
	id           string
	league       league.League
	cfg          league.Config
	seq          *schedule.Sequencer
	official     []league.Standing
	table        []league.Standing
	snapshots    map[int][]league.Standing
	histCache    map[int][]league.Standing
	completedIDs map[league.MatchID]bool
	predictions  []storedPrediction
	startedAt    time.Time

	raceMode   bool
	tracked    race.TeamSet
	resolution race.Policy

	pending *pendingMatchday

	// Callbacks
	onSubmit    func(SubmitOutcome)
	onSeasonEnd func(league.League, []league.Standing)
}

// pendingMatchday is the presented fixture split awaiting submission.
type pendingMatchday struct {
	matchday  int
	tracked   []league.Match
	untracked []league.Match
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithClock overrides the time source.
func WithClock(c Clock) SessionOption {
	return func(s *Session) { s.clock = c }
}

// WithMetrics overrides the metrics collector.
func WithMetrics(m *metrics.SimMetrics) SessionOption {
	return func(s *Session) { s.sim = m }
}

// WithLimits overrides the submission validation policy.
func WithLimits(p *policy.Engine) SessionOption {
	return func(s *Session) { s.limits = p }
}

// NewSession creates an engine bound to a data source and store.
func NewSession(config *Config, source DataSource, store kvstore.Store, opts ...SessionOption) *Session {
	if config == nil {
		config = DefaultConfig()
	}
	s := &Session{
		config: config,
		source: source,
		store:  store,
		clock:  realClock{},
		sim:    metrics.Default(),
		limits: policy.NewEngine(nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnSubmit sets a callback invoked after each committed submission.
func (s *Session) OnSubmit(fn func(SubmitOutcome)) {
	s.onSubmit = fn
}

// OnSeasonEnd sets a callback invoked when the season turns final.
func (s *Session) OnSeasonEnd(fn func(league.League, []league.Standing)) {
	s.onSeasonEnd = fn
}

// StartSession initializes (or re-initializes) forecasting for a league,
// seeded from the official current table. Persisted progress for the league
// is restored, so a restart resumes where the user left off.
func (s *Session) StartSession(ctx context.Context, lg league.League, opts StartOptions) (Status, error) {
	cfg, ok := s.config.Leagues[lg]
	if !ok || !cfg.Enabled {
		return Status{}, fmt.Errorf("%w: %s", ErrLeagueDisabled, lg)
	}

	resolution := race.PolicyByPosition
	if opts.Resolution != "" {
		p, err := race.ParsePolicy(opts.Resolution)
		if err != nil {
			return Status{}, err
		}
		resolution = p
	}

	// Claim the session identity before fetching, so a fetch that outlives
	// a league switch or reset can be detected and discarded.
	id := uuid.New().String()
	s.mu.Lock()
	if s.id != "" && s.league != lg {
		log.Printf("[engine] switching session %s -> %s", s.league, lg)
	}
	s.id = id
	s.league = lg
	s.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, s.config.FetchTimeout)
	defer cancel()
	began := s.clock.Now()
	data, err := s.source.GetLeagueData(fetchCtx, lg)
	s.recordFetch("league_data", began, err)
	if err != nil {
		s.mu.Lock()
		if s.id == id {
			s.id = ""
		}
		s.mu.Unlock()
		return Status{}, fmt.Errorf("seeding session for %s: %w", lg, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id != id {
		s.sim.RecordStaleWrite(string(lg))
		return Status{}, ErrStaleSessionWrite
	}

	s.cfg = cfg
	s.official = data.Standings
	s.snapshots = make(map[int][]league.Standing)
	s.histCache = make(map[int][]league.Standing)
	s.pending = nil
	s.raceMode = opts.RaceMode
	s.tracked = race.NewTeamSet(opts.Tracked...)
	s.resolution = resolution
	s.startedAt = s.clock.Now()

	// Restore persisted progress, falling back to a fresh session seeded
	// from the official table.
	s.table = s.loadTable(ctx, data.Standings)
	completed := s.loadCompleted(ctx)
	s.completedIDs = s.loadCompletedIDs(ctx)
	s.predictions = s.loadPredictions(ctx)

	start := opts.StartMatchday
	if start <= 0 {
		start = data.CurrentMatchday
	}
	s.seq = schedule.New(cfg, schedule.WithLookahead(s.config.Lookahead))
	s.seq.Reset(start, completed)

	md, _ := s.seq.Candidate()
	s.sim.UpdateSession(string(lg), md, s.seq.Phase() == schedule.PhaseFinal)
	s.sim.UpdateActiveSessions(1)
	log.Printf("[engine] session %s started: league=%s matchday=%d completed=%d race=%v",
		shortID(id), lg, md, len(completed), s.raceMode)

	return s.statusLocked(), nil
}

// PresentMatchday resolves the current matchday's fixtures (from cache or
// the data source) and returns them with the predicted table. Empty
// matchdays are advanced past within the lookahead window. Once the season
// is final the view carries no fixtures.
func (s *Session) PresentMatchday(ctx context.Context) (MatchdayView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id == "" {
		return MatchdayView{}, ErrNoActiveSession
	}

	for {
		md, ok := s.seq.Candidate()
		if !ok {
			return s.finalView(), nil
		}

		fixtures, err := s.fixturesFor(ctx, md)
		if err != nil {
			// Submitted progress is untouched; the caller may retry.
			return MatchdayView{}, err
		}

		fixtures = s.dropResolved(fixtures)
		if len(fixtures) == 0 {
			if _, aerr := s.seq.AdvanceEmpty(); aerr != nil {
				if errors.Is(aerr, schedule.ErrSeasonComplete) {
					return s.finalView(), nil
				}
				return MatchdayView{}, aerr
			}
			continue
		}

		s.seq.MarkPresented(md)

		shown := fixtures
		var rest []league.Match
		if s.raceMode {
			shown, rest = race.Partition(fixtures, s.tracked)
			if len(shown) == 0 {
				// Nothing followed this matchday; everything resolves
				// automatically on submission.
				shown = nil
			}
		}
		s.pending = &pendingMatchday{matchday: md, tracked: shown, untracked: rest}

		s.sim.UpdateSession(string(s.league), md, false)
		return MatchdayView{
			League:    s.league,
			Matchday:  md,
			Fixtures:  shown,
			Untracked: len(rest),
			Table:     copyTable(s.table),
			Phase:     s.seq.Phase().String(),
		}, nil
	}
}

// SubmitPredictions resolves the submitted predictions (and, in race mode,
// auto-resolves the untracked remainder), folds every result into the
// predicted table, persists the new state, and advances the sequencer.
// Submission is all-or-nothing: on any error nothing is committed.
func (s *Session) SubmitPredictions(ctx context.Context, matchday int, preds []league.Prediction) (SubmitOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id == "" {
		return SubmitOutcome{}, ErrNoActiveSession
	}
	if s.seq.Phase() == schedule.PhaseFinal {
		return SubmitOutcome{}, ErrSeasonFinal
	}
	if s.pending == nil {
		return SubmitOutcome{}, fmt.Errorf("%w: no matchday presented", ErrMatchdayMismatch)
	}
	if matchday != s.pending.matchday {
		return SubmitOutcome{}, fmt.Errorf("%w: got %d, presented %d", ErrMatchdayMismatch, matchday, s.pending.matchday)
	}

	// A matchday with no followed fixtures resolves entirely automatically;
	// there is nothing for the policy to validate.
	if len(s.pending.tracked) > 0 || len(preds) > 0 {
		if err := s.limits.CheckSubmission(preds, s.pending.tracked); err != nil {
			s.sim.RecordPolicyRejection("limits")
			s.sim.RecordSubmission(string(s.league), "rejected")
			return SubmitOutcome{}, err
		}
	}

	results, autoResolved, err := s.resolveAll(preds)
	if err != nil {
		s.sim.RecordSubmission(string(s.league), "rejected")
		return SubmitOutcome{}, err
	}

	next, skipped := league.FoldResults(s.table, results)

	// Persist everything before touching in-memory state. A failed write
	// leaves the session exactly where it was.
	completed := append(s.seq.Completed(), matchday)
	ids := make(map[league.MatchID]bool, len(s.completedIDs)+len(results))
	for id := range s.completedIDs {
		ids[id] = true
	}
	skippedIDs := make(map[league.MatchID]bool, len(skipped))
	for _, r := range skipped {
		skippedIDs[r.MatchID] = true
	}
	for _, r := range results {
		if !skippedIDs[r.MatchID] {
			ids[r.MatchID] = true
		}
	}
	stored := append(append([]storedPrediction(nil), s.predictions...), wrapPredictions(matchday, preds)...)

	if err := s.persist(ctx, matchday, next, completed, ids, stored); err != nil {
		s.sim.RecordSubmission(string(s.league), "rejected")
		return SubmitOutcome{}, fmt.Errorf("persisting matchday %d: %w", matchday, err)
	}

	// Commit.
	s.table = next
	s.snapshots[matchday] = next
	s.completedIDs = ids
	s.predictions = stored
	if err := s.seq.Submit(matchday); err != nil {
		// The sequencer verified the matchday above; this is unreachable
		// short of a programming error.
		return SubmitOutcome{}, err
	}
	s.pending = nil
	s.limits.RecordSubmission()

	nextMD, _ := s.seq.Candidate()
	final := s.seq.Phase() == schedule.PhaseFinal

	s.sim.RecordSubmission(string(s.league), "committed")
	s.sim.RecordResolved(string(s.league), "predicted", len(results)-autoResolved)
	s.sim.RecordResolved(string(s.league), "auto", autoResolved)
	s.sim.RecordSkipped(string(s.league), "team_not_found", len(skipped))
	s.sim.UpdateSession(string(s.league), nextMD, final)

	outcome := SubmitOutcome{
		League:       s.league,
		Matchday:     matchday,
		Applied:      len(results) - len(skipped),
		AutoResolved: autoResolved,
		Skipped:      skipped,
		Table:        copyTable(next),
		NextMatchday: nextMD,
		Phase:        s.seq.Phase().String(),
	}

	log.Printf("[engine] matchday %d committed: league=%s applied=%d auto=%d skipped=%d next=%d",
		matchday, s.league, outcome.Applied, autoResolved, len(skipped), nextMD)
	if final {
		log.Printf("[engine] season final: league=%s", s.league)
	}

	// Notify
	if s.onSubmit != nil {
		s.onSubmit(outcome)
	}
	if final && s.onSeasonEnd != nil {
		s.onSeasonEnd(s.league, copyTable(next))
	}

	return outcome, nil
}

// ViewStandings returns a table snapshot. With at <= 0 it returns the live
// predicted table. A matchday the session already simulated returns the
// saved snapshot; an earlier one is rebuilt from real results.
func (s *Session) ViewStandings(ctx context.Context, at int) ([]league.Standing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id == "" {
		return nil, ErrNoActiveSession
	}
	if at <= 0 {
		return copyTable(s.table), nil
	}

	if snap, ok := s.snapshots[at]; ok {
		return copyTable(snap), nil
	}
	if s.seq.IsCompleted(at) {
		if snap, ok := s.loadSnapshot(ctx, at); ok {
			s.snapshots[at] = snap
			return copyTable(snap), nil
		}
	}

	// Pre-simulation matchday: replay real results over a zeroed table.
	if snap, ok := s.histCache[at]; ok {
		return copyTable(snap), nil
	}
	fetchCtx, cancel := context.WithTimeout(ctx, s.config.FetchTimeout)
	defer cancel()
	began := s.clock.Now()
	finished, err := s.source.GetFinishedMatches(fetchCtx, s.league, at)
	s.recordFetch("finished_matches", began, err)
	if err != nil {
		return nil, fmt.Errorf("reconstructing matchday %d: %w", at, err)
	}

	rec := history.Reconstruct(league.ZeroTable(league.Teams(s.official)), finished, at)
	s.sim.RecordSkipped(string(s.league), "team_not_found", len(rec.Skipped))
	s.histCache[at] = rec.Table
	return copyTable(rec.Table), nil
}

// Status reports the current session state.
func (s *Session) Status() (Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.id == "" {
		return Status{}, ErrNoActiveSession
	}
	return s.statusLocked(), nil
}

// Reset clears all session state, including persisted progress for the
// league. The next StartSession begins from a clean slate.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id == "" {
		return ErrNoActiveSession
	}

	lg := string(s.league)
	keys := []string{
		kvstore.TableKey(lg),
		kvstore.CompletedKey(lg),
		kvstore.MatchesKey(lg),
		kvstore.PredictionsKey(lg),
	}
	for md := range s.snapshots {
		keys = append(keys, kvstore.SnapshotKey(lg, md))
	}
	for _, md := range s.seq.Completed() {
		keys = append(keys, kvstore.SnapshotKey(lg, md))
	}
	// Fixture caches may predate this process, so sweep the whole range.
	for md := 1; md <= s.cfg.MaxMatchday; md++ {
		keys = append(keys, kvstore.FixturesKey(lg, md))
	}
	for _, key := range keys {
		if err := s.store.Delete(ctx, key); err != nil && !errors.Is(err, kvstore.ErrNotFound) {
			return fmt.Errorf("clearing %s: %w", key, err)
		}
	}

	log.Printf("[engine] session %s reset: league=%s", shortID(s.id), s.league)
	s.id = ""
	s.league = ""
	s.seq = nil
	s.official = nil
	s.table = nil
	s.snapshots = nil
	s.histCache = nil
	s.completedIDs = nil
	s.predictions = nil
	s.pending = nil
	s.tracked = nil
	s.sim.UpdateActiveSessions(0)
	return nil
}

// League returns the active league, or "" when no session is live.
func (s *Session) League() league.League {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.league
}

// RefreshFixtures re-warms the fixture cache for the upcoming matchday.
// No sequencer state changes; the background refresher calls this so an
// interactive PresentMatchday hits a warm cache.
func (s *Session) RefreshFixtures(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id == "" {
		return 0, ErrNoActiveSession
	}
	md, ok := s.seq.Candidate()
	if !ok {
		return 0, nil
	}
	fixtures, err := s.fixturesFor(ctx, md)
	if err != nil {
		return 0, err
	}
	return len(fixtures), nil
}

// FilterResolved drops fixtures whose results the session already folded
// into the predicted table.
func (s *Session) FilterResolved(matches []league.Match) []league.Match {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dropResolved(matches)
}

// --- Resolution ---

// resolveAll turns the submission into match results: the score model for
// predicted fixtures, the auto resolver for the untracked remainder.
func (s *Session) resolveAll(preds []league.Prediction) ([]league.MatchResult, int, error) {
	byMatch := make(map[league.MatchID]league.Prediction, len(preds))
	for _, p := range preds {
		byMatch[p.MatchID] = p
	}

	positions := race.Positions(s.table)
	results := make([]league.MatchResult, 0, len(s.pending.tracked)+len(s.pending.untracked))
	autoResolved := 0

	for _, m := range s.pending.tracked {
		p, ok := byMatch[m.ID]
		if !ok {
			if !s.raceMode {
				return nil, 0, fmt.Errorf("%w: no prediction for match %s", league.ErrInvalidPrediction, m.ID)
			}
			p = race.AutoPredict(s.resolution, m, positions)
			autoResolved++
		}
		res, err := league.ResolveResult(p, m.HomeTeam.ID, m.AwayTeam.ID)
		if err != nil {
			return nil, 0, err
		}
		results = append(results, res)
	}

	for _, m := range s.pending.untracked {
		p := race.AutoPredict(s.resolution, m, positions)
		res, err := league.ResolveResult(p, m.HomeTeam.ID, m.AwayTeam.ID)
		if err != nil {
			return nil, 0, err
		}
		results = append(results, res)
		autoResolved++
	}

	return results, autoResolved, nil
}

// --- Fixture cache ---

// fixturesFor returns the fixture list for a matchday, refetching when the
// cached copy is older than the configured TTL.
func (s *Session) fixturesFor(ctx context.Context, md int) ([]league.Match, error) {
	key := kvstore.FixturesKey(string(s.league), md)

	if b, err := s.store.Get(ctx, key); err == nil {
		var cached cachedFixtures
		if jerr := json.Unmarshal(b, &cached); jerr == nil {
			age := s.clock.Now().Sub(cached.FetchedAt)
			if age <= s.config.FixtureTTL {
				s.sim.RecordCacheLookup(string(s.league), "hit")
				return cached.Matches, nil
			}
			s.sim.RecordCacheLookup(string(s.league), "stale")
		}
	} else if errors.Is(err, kvstore.ErrNotFound) {
		s.sim.RecordCacheLookup(string(s.league), "miss")
	} else {
		log.Printf("[engine] fixture cache read failed for %s: %v", key, err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.config.FetchTimeout)
	defer cancel()
	began := s.clock.Now()
	matches, err := s.source.GetMatches(fetchCtx, s.league, md)
	s.recordFetch("matches", began, err)
	if err != nil {
		return nil, fmt.Errorf("fetching matchday %d: %w", md, err)
	}

	cached := cachedFixtures{Matches: matches, FetchedAt: s.clock.Now()}
	if b, jerr := json.Marshal(cached); jerr == nil {
		if serr := s.store.Set(ctx, key, b); serr != nil {
			log.Printf("[engine] fixture cache write failed for %s: %v", key, serr)
		}
	}
	return matches, nil
}

// dropResolved filters out fixtures whose results are already folded in.
func (s *Session) dropResolved(fixtures []league.Match) []league.Match {
	if len(s.completedIDs) == 0 {
		return fixtures
	}
	out := fixtures[:0:0]
	for _, m := range fixtures {
		if !s.completedIDs[m.ID] {
			out = append(out, m)
		}
	}
	return out
}

// --- Persistence ---

func (s *Session) persist(ctx context.Context, matchday int, table []league.Standing,
	completed []int, ids map[league.MatchID]bool, preds []storedPrediction) error {

	lg := string(s.league)
	idList := make([]league.MatchID, 0, len(ids))
	for id := range ids {
		idList = append(idList, id)
	}

	writes := []struct {
		key   string
		value interface{}
	}{
		{kvstore.TableKey(lg), table},
		{kvstore.SnapshotKey(lg, matchday), table},
		{kvstore.CompletedKey(lg), completed},
		{kvstore.MatchesKey(lg), idList},
		{kvstore.PredictionsKey(lg), preds},
	}
	for _, w := range writes {
		b, err := json.Marshal(w.value)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", w.key, err)
		}
		if err := s.store.Set(ctx, w.key, b); err != nil {
			return fmt.Errorf("writing %s: %w", w.key, err)
		}
	}
	return nil
}

func (s *Session) loadTable(ctx context.Context, official []league.Standing) []league.Standing {
	var table []league.Standing
	if s.getJSON(ctx, kvstore.TableKey(string(s.league)), &table) && len(table) > 0 {
		return table
	}
	return copyTable(official)
}

func (s *Session) loadCompleted(ctx context.Context) []int {
	var completed []int
	s.getJSON(ctx, kvstore.CompletedKey(string(s.league)), &completed)
	return completed
}

func (s *Session) loadCompletedIDs(ctx context.Context) map[league.MatchID]bool {
	var ids []league.MatchID
	s.getJSON(ctx, kvstore.MatchesKey(string(s.league)), &ids)
	set := make(map[league.MatchID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func (s *Session) loadPredictions(ctx context.Context) []storedPrediction {
	var preds []storedPrediction
	s.getJSON(ctx, kvstore.PredictionsKey(string(s.league)), &preds)
	return preds
}

func (s *Session) loadSnapshot(ctx context.Context, md int) ([]league.Standing, bool) {
	var snap []league.Standing
	if s.getJSON(ctx, kvstore.SnapshotKey(string(s.league), md), &snap) && len(snap) > 0 {
		return snap, true
	}
	return nil, false
}

// getJSON reads and decodes one key. Missing keys and decode failures just
// report false; persistence is best-effort on the read side.
func (s *Session) getJSON(ctx context.Context, key string, v interface{}) bool {
	b, err := s.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			log.Printf("[engine] store read failed for %s: %v", key, err)
		}
		return false
	}
	if err := json.Unmarshal(b, v); err != nil {
		log.Printf("[engine] store decode failed for %s: %v", key, err)
		return false
	}
	return true
}

// --- Helpers ---

func (s *Session) statusLocked() Status {
	st := Status{
		SessionID:  s.id,
		League:     s.league,
		Phase:      s.seq.Phase().String(),
		Completed:  s.seq.Completed(),
		RaceMode:   s.raceMode,
		Resolution: string(s.resolution),
		StartedAt:  s.startedAt,
	}
	if md, ok := s.seq.Candidate(); ok {
		st.Matchday = md
	}
	if s.pending != nil {
		st.PendingMatchday = s.pending.matchday
	}
	if s.raceMode {
		st.Tracked = s.tracked.IDs()
	}
	return st
}

func (s *Session) finalView() MatchdayView {
	return MatchdayView{
		League: s.league,
		Table:  copyTable(s.table),
		Phase:  schedule.PhaseFinal.String(),
	}
}

func (s *Session) recordFetch(endpoint string, began time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.sim.RecordFetch(endpoint, outcome, s.clock.Now().Sub(began).Seconds())
}

func wrapPredictions(matchday int, preds []league.Prediction) []storedPrediction {
	out := make([]storedPrediction, 0, len(preds))
	for _, p := range preds {
		out = append(out, storedPrediction{Matchday: matchday, Prediction: p})
	}
	return out
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
