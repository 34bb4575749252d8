package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/phenomenon0/tablecast/pkg/league"
	"github.com/phenomenon0/tablecast/pkg/sim/metrics"
	"github.com/phenomenon0/tablecast/pkg/sim/outright"
)

// ScheduleSource lists the season's unplayed fixtures.
// *footdata.Client satisfies it.
type ScheduleSource interface {
	GetScheduledMatches(ctx context.Context, lg league.League) ([]league.Match, error)
}

// RefresherConfig sets the background intervals.
type RefresherConfig struct {
	// FixtureInterval is how often the upcoming matchday's fixture
	// cache is re-warmed.
	FixtureInterval time.Duration
	// OddsInterval is how often outright odds are recomputed.
	OddsInterval time.Duration
}

// DefaultRefresherConfig returns the default intervals.
func DefaultRefresherConfig() *RefresherConfig {
	return &RefresherConfig{
		FixtureInterval: 15 * time.Minute,
		OddsInterval:    1 * time.Hour,
	}
}

// Refresher keeps a session warm in the background: the upcoming
// matchday's fixture cache, and Monte Carlo outright odds computed from
// the predicted table plus the season's unplayed fixtures.
type Refresher struct {
	config    *RefresherConfig
	session   *Session
	schedules ScheduleSource
	simulator *outright.Simulator
	sim       *metrics.SimMetrics

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}

	// State
	odds        []outright.Odds
	oddsLeague  league.League
	oddsAt      time.Time
	refreshes   int
	failures    int
	lastRefresh time.Time

	// Callbacks
	onOdds  func(league.League, []outright.Odds)
	onError func(error)
}

// NewRefresher creates a refresher for one session.
func NewRefresher(config *RefresherConfig, session *Session, schedules ScheduleSource, simulator *outright.Simulator) *Refresher {
	if config == nil {
		config = DefaultRefresherConfig()
	}
	if simulator == nil {
		simulator = outright.New()
	}
	return &Refresher{
		config:    config,
		session:   session,
		schedules: schedules,
		simulator: simulator,
		sim:       metrics.Default(),
		stopCh:    make(chan struct{}),
	}
}

// OnOdds sets a callback for recomputed outright odds.
func (r *Refresher) OnOdds(fn func(league.League, []outright.Odds)) {
	r.onOdds = fn
}

// OnError sets a callback for background failures.
func (r *Refresher) OnError(fn func(error)) {
	r.onError = fn
}

// Start launches the background loops.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("refresher already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.mu.Unlock()

	go r.fixtureLoop(ctx)
	go r.oddsLoop(ctx)

	return nil
}

// Stop halts the background loops.
func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		close(r.stopCh)
		r.running = false
	}
}

// IsRunning reports whether the loops are live.
func (r *Refresher) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// RunOnce performs one fixture refresh and one odds computation.
func (r *Refresher) RunOnce(ctx context.Context) error {
	if err := r.refreshFixtures(ctx); err != nil {
		return err
	}
	return r.refreshOdds(ctx)
}

// Odds returns the most recent outright odds with their computation time.
func (r *Refresher) Odds() ([]outright.Odds, league.League, time.Time) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	odds := make([]outright.Odds, len(r.odds))
	copy(odds, r.odds)
	return odds, r.oddsLeague, r.oddsAt
}

// --- Background Loops ---

func (r *Refresher) fixtureLoop(ctx context.Context) {
	ticker := time.NewTicker(r.config.FixtureInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			if err := r.refreshFixtures(ctx); err != nil {
				r.handleError(fmt.Errorf("fixture refresh failed: %w", err))
			}
		}
	}
}

func (r *Refresher) oddsLoop(ctx context.Context) {
	ticker := time.NewTicker(r.config.OddsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			if err := r.refreshOdds(ctx); err != nil {
				r.handleError(fmt.Errorf("odds refresh failed: %w", err))
			}
		}
	}
}

// --- Refresh Steps ---

func (r *Refresher) refreshFixtures(ctx context.Context) error {
	// No session yet is not a failure; the loop just idles.
	if r.session.League() == "" {
		return nil
	}

	_, err := r.session.RefreshFixtures(ctx)

	r.mu.Lock()
	if err != nil {
		r.failures++
	} else {
		r.refreshes++
		r.lastRefresh = time.Now()
	}
	r.mu.Unlock()

	return err
}

func (r *Refresher) refreshOdds(ctx context.Context) error {
	lg := r.session.League()
	if lg == "" {
		return nil
	}

	table, err := r.session.ViewStandings(ctx, 0)
	if err != nil {
		return err
	}

	scheduled, err := r.schedules.GetScheduledMatches(ctx, lg)
	if err != nil {
		r.mu.Lock()
		r.failures++
		r.mu.Unlock()
		return err
	}

	// Fixtures the session already simulated are settled in the table.
	remaining := r.session.FilterResolved(scheduled)
	odds := r.simulator.Run(table, remaining)

	r.mu.Lock()
	r.odds = odds
	r.oddsLeague = lg
	r.oddsAt = time.Now()
	r.mu.Unlock()

	r.sim.RecordOutrightRun(string(lg))
	for _, o := range odds {
		r.sim.UpdateTitleProbability(string(lg), o.Team.Name, o.Title)
	}

	// Notify
	if r.onOdds != nil {
		r.onOdds(lg, odds)
	}
	return nil
}

func (r *Refresher) handleError(err error) {
	if r.onError != nil {
		r.onError(err)
	}
}

// RefresherStatus reports the refresher state.
type RefresherStatus struct {
	Running     bool      `json:"running"`
	Refreshes   int       `json:"refreshes"`
	Failures    int       `json:"failures"`
	LastRefresh time.Time `json:"last_refresh,omitempty"`
	OddsTeams   int       `json:"odds_teams"`
	OddsAt      time.Time `json:"odds_at,omitempty"`
}

// Status returns the current refresher status.
func (r *Refresher) Status() RefresherStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RefresherStatus{
		Running:     r.running,
		Refreshes:   r.refreshes,
		Failures:    r.failures,
		LastRefresh: r.lastRefresh,
		OddsTeams:   len(r.odds),
		OddsAt:      r.oddsAt,
	}
}
