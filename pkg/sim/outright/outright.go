// Package outright estimates end-of-season outcomes by Monte Carlo
// completion of the remaining fixtures from the current table.
package outright

import (
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/phenomenon0/tablecast/pkg/league"
)

// Odds holds a team's simulated end-of-season probabilities.
type Odds struct {
	Team       league.Team     `json:"team"`
	Title      decimal.Decimal `json:"title"`
	TopFour    decimal.Decimal `json:"top_four"`
	Relegation decimal.Decimal `json:"relegation"`
}

// DefaultRuns is the number of simulated season completions per call.
const DefaultRuns = 1000

// Goal-rate bounds for the Poisson sampler. A side with no games yet
// simulates at a neutral scoring rate.
const (
	minLambda     = 0.2
	maxLambda     = 6.0
	neutralLambda = 1.25
	homeBoost     = 1.1
)

// Simulator runs seeded Monte Carlo season completions.
type Simulator struct {
	runs            int
	rng             *rand.Rand
	topN            int
	relegationSpots int
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithRuns sets the number of simulated completions.
func WithRuns(n int) Option {
	return func(s *Simulator) {
		if n > 0 {
			s.runs = n
		}
	}
}

// WithSeed fixes the random source for reproducible odds.
func WithSeed(seed int64) Option {
	return func(s *Simulator) {
		s.rng = rand.New(rand.NewSource(seed))
	}
}

// WithTopN sets the size of the qualification zone counted by TopFour.
func WithTopN(n int) Option {
	return func(s *Simulator) {
		if n > 0 {
			s.topN = n
		}
	}
}

// WithRelegationSpots sets how many bottom places count as relegation.
func WithRelegationSpots(n int) Option {
	return func(s *Simulator) {
		if n >= 0 {
			s.relegationSpots = n
		}
	}
}

// New creates a simulator.
func New(opts ...Option) *Simulator {
	s := &Simulator{
		runs:            DefaultRuns,
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
		topN:            4,
		relegationSpots: 3,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type teamTally struct {
	idx    int
	points int
	gd     int
	gf     int
}

// Run completes the remaining fixtures from the given table s.runs times and
// tallies where each team finishes. The returned odds are sorted by title
// probability descending.
func (s *Simulator) Run(table []league.Standing, remaining []league.Match) []Odds {
	n := len(table)
	if n == 0 {
		return nil
	}

	idx := make(map[league.TeamID]int, n)
	attack := make([]float64, n)
	concede := make([]float64, n)
	for i, row := range table {
		idx[row.Team.ID] = i
		attack[i], concede[i] = rates(row)
	}

	titles := make([]int, n)
	topN := make([]int, n)
	relegated := make([]int, n)

	tallies := make([]teamTally, n)
	for run := 0; run < s.runs; run++ {
		for i, row := range table {
			tallies[i] = teamTally{idx: i, points: row.Points, gd: row.GoalDifference, gf: row.GoalsFor}
		}

		for _, m := range remaining {
			hi, okH := idx[m.HomeTeam.ID]
			ai, okA := idx[m.AwayTeam.ID]
			if !okH || !okA {
				continue
			}

			lambdaHome := clampLambda((attack[hi] + concede[ai]) / 2 * homeBoost)
			lambdaAway := clampLambda((attack[ai] + concede[hi]) / 2)
			hg := s.poissonSample(lambdaHome)
			ag := s.poissonSample(lambdaAway)

			tallies[hi].gf += hg
			tallies[hi].gd += hg - ag
			tallies[ai].gf += ag
			tallies[ai].gd += ag - hg
			switch {
			case hg > ag:
				tallies[hi].points += 3
			case ag > hg:
				tallies[ai].points += 3
			default:
				tallies[hi].points++
				tallies[ai].points++
			}
		}

		ranked := make([]teamTally, n)
		copy(ranked, tallies)
		sort.Slice(ranked, func(i, j int) bool {
			a, b := ranked[i], ranked[j]
			if a.points != b.points {
				return a.points > b.points
			}
			if a.gd != b.gd {
				return a.gd > b.gd
			}
			if a.gf != b.gf {
				return a.gf > b.gf
			}
			return strings.ToLower(table[a.idx].Team.Name) < strings.ToLower(table[b.idx].Team.Name)
		})

		titles[ranked[0].idx]++
		for pos, t := range ranked {
			if pos < s.topN {
				topN[t.idx]++
			}
			if pos >= n-s.relegationSpots {
				relegated[t.idx]++
			}
		}
	}

	runs := decimal.NewFromInt(int64(s.runs))
	odds := make([]Odds, n)
	for i, row := range table {
		odds[i] = Odds{
			Team:       row.Team,
			Title:      probability(titles[i], runs),
			TopFour:    probability(topN[i], runs),
			Relegation: probability(relegated[i], runs),
		}
	}
	sort.Slice(odds, func(i, j int) bool {
		if !odds[i].Title.Equal(odds[j].Title) {
			return odds[i].Title.GreaterThan(odds[j].Title)
		}
		return strings.ToLower(odds[i].Team.Name) < strings.ToLower(odds[j].Team.Name)
	})
	return odds
}

func probability(count int, runs decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(int64(count)).Div(runs).Round(4)
}

// rates derives per-game scoring and conceding rates from a team's row.
func rates(row league.Standing) (attack, concede float64) {
	if row.PlayedGames == 0 {
		return neutralLambda, neutralLambda
	}
	played := float64(row.PlayedGames)
	return float64(row.GoalsFor) / played, float64(row.GoalsAgainst) / played
}

func clampLambda(lambda float64) float64 {
	if lambda < minLambda {
		return minLambda
	}
	if lambda > maxLambda {
		return maxLambda
	}
	return lambda
}

// poissonSample draws from a Poisson distribution by inverse transform.
// Goal-rate lambdas stay small, so the loop terminates quickly.
func (s *Simulator) poissonSample(lambda float64) int {
	L := math.Exp(-lambda)
	k := 0
	p := 1.0
	for p > L {
		k++
		p *= s.rng.Float64()
	}
	return k - 1
}
