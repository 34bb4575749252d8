// tablecast-replay is a CLI tool for rebuilding a league table as it
// stood after a past matchday, from a dump of finished matches.
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/phenomenon0/tablecast/pkg/league"
	"github.com/phenomenon0/tablecast/pkg/sim/history"
)

var (
	// Input flags
	dataFile   = flag.String("data", "", "Path to results dump (JSON, see convert_results.go)")
	atMatchday = flag.Int("at", 0, "Rebuild the table as of this matchday (0 = latest)")
	outputFile = flag.String("output", "", "Output file for the table (JSON or CSV)")
	verbose    = flag.Bool("verbose", false, "Verbose output")
)

// replayInput is the dump format produced by convert_results.go.
type replayInput struct {
	League  string                 `json:"league"`
	Season  string                 `json:"season,omitempty"`
	Teams   []league.Team          `json:"teams,omitempty"`
	Matches []league.FinishedMatch `json:"matches"`
}

func main() {
	flag.Parse()

	if *dataFile == "" {
		// If no data file, replay a synthetic season for demo
		log.Println("No data file provided, running demo with a synthetic season")
		runDemo()
		return
	}

	input, err := loadInput(*dataFile)
	if err != nil {
		log.Fatalf("Failed to load results dump: %v", err)
	}

	teams := input.Teams
	if len(teams) == 0 {
		teams = teamsFromMatches(input.Matches)
	}
	if len(teams) == 0 {
		log.Fatal("Results dump contains no teams")
	}

	upto := *atMatchday
	if upto <= 0 {
		upto = history.MaxMatchday(input.Matches)
	}

	log.Printf("Replaying %d matches for %d teams up to matchday %d",
		len(input.Matches), len(teams), upto)

	rec := history.Reconstruct(league.ZeroTable(teams), input.Matches, upto)

	printTable(input.League, rec)

	if *verbose && len(rec.Skipped) > 0 {
		fmt.Println()
		fmt.Println("Skipped results (unknown teams):")
		for _, r := range rec.Skipped {
			fmt.Printf("  match %s: %d-%d\n", r.MatchID, r.HomeGoals, r.AwayGoals)
		}
	}

	if *outputFile != "" {
		if err := exportTable(rec, *outputFile); err != nil {
			log.Printf("Failed to export table: %v", err)
		} else {
			log.Printf("Table exported to: %s", *outputFile)
		}
	}
}

func loadInput(filename string) (*replayInput, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var input replayInput
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("failed to parse dump: %w", err)
	}
	if len(input.Matches) == 0 {
		return nil, fmt.Errorf("dump contains no matches")
	}
	return &input, nil
}

// teamsFromMatches derives the participant list when the dump has no
// explicit team section.
func teamsFromMatches(matches []league.FinishedMatch) []league.Team {
	seen := make(map[league.TeamID]league.Team)
	for _, m := range matches {
		if _, ok := seen[m.HomeTeam.ID]; !ok {
			seen[m.HomeTeam.ID] = m.HomeTeam
		}
		if _, ok := seen[m.AwayTeam.ID]; !ok {
			seen[m.AwayTeam.ID] = m.AwayTeam
		}
	}

	teams := make([]league.Team, 0, len(seen))
	for _, t := range seen {
		teams = append(teams, t)
	}
	return teams
}

func printTable(lgName string, rec history.Reconstruction) {
	title := "TABLE"
	if lgName != "" {
		title = strings.ToUpper(lgName)
	}

	fmt.Println()
	fmt.Printf("========== %s AFTER MATCHDAY %d ==========\n", title, rec.Matchday)
	fmt.Println()
	fmt.Printf("  %3s  %-24s %3s  %3s %3s %3s  %4s %4s %5s  %4s\n",
		"Pos", "Team", "P", "W", "D", "L", "GF", "GA", "GD", "Pts")

	for _, row := range rec.Table {
		fmt.Printf("  %3d  %-24s %3d  %3d %3d %3d  %4d %4d %+5d  %4d\n",
			row.Position, row.Team.Name, row.PlayedGames,
			row.Won, row.Draw, row.Lost,
			row.GoalsFor, row.GoalsAgainst, row.GoalDifference, row.Points)
	}

	fmt.Println()
	fmt.Printf("  Results applied: %d", rec.Applied)
	if len(rec.Skipped) > 0 {
		fmt.Printf(" (skipped: %d)", len(rec.Skipped))
	}
	fmt.Println()
	fmt.Println()
}

func exportTable(rec history.Reconstruction, filename string) error {
	if strings.HasSuffix(filename, ".json") {
		return exportJSON(rec, filename)
	} else if strings.HasSuffix(filename, ".csv") {
		return exportCSV(rec, filename)
	}
	// Default to JSON
	return exportJSON(rec, filename+".json")
}

func exportJSON(rec history.Reconstruction, filename string) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal table: %w", err)
	}
	return os.WriteFile(filename, data, 0644)
}

func exportCSV(rec history.Reconstruction, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	w.Write([]string{"position", "team", "played", "won", "draw", "lost", "goals_for", "goals_against", "goal_difference", "points"})
	for _, row := range rec.Table {
		w.Write([]string{
			fmt.Sprintf("%d", row.Position),
			row.Team.Name,
			fmt.Sprintf("%d", row.PlayedGames),
			fmt.Sprintf("%d", row.Won),
			fmt.Sprintf("%d", row.Draw),
			fmt.Sprintf("%d", row.Lost),
			fmt.Sprintf("%d", row.GoalsFor),
			fmt.Sprintf("%d", row.GoalsAgainst),
			fmt.Sprintf("%d", row.GoalDifference),
			fmt.Sprintf("%d", row.Points),
		})
	}

	return nil
}

// runDemo replays a synthetic double round-robin season.
func runDemo() {
	fmt.Println()
	fmt.Println("TABLECAST REPLAY DEMO")
	fmt.Println("=====================")
	fmt.Println()

	names := []string{"Ashford Rovers", "Brightwell FC", "Calder United", "Dunmore Town", "Eastbrook City", "Farleigh Athletic"}
	teams := make([]league.Team, len(names))
	for i, name := range names {
		teams[i] = league.Team{
			ID:        league.TeamID(fmt.Sprintf("%d", i+1)),
			Name:      name,
			ShortName: name[:3],
		}
	}

	matches := syntheticSeason(teams)
	maxDay := history.MaxMatchday(matches)

	fmt.Printf("Replaying a synthetic season (%d teams, %d matches, %d matchdays)\n",
		len(teams), len(matches), maxDay)
	fmt.Println()

	for _, at := range []int{3, maxDay / 2, maxDay} {
		rec := history.Reconstruct(league.ZeroTable(teams), matches, at)
		leader := rec.Table[0]
		fmt.Printf("Matchday %2d | Leader: %-18s %2d pts (GD %+d) | Applied: %2d\n",
			at, leader.Team.Name, leader.Points, leader.GoalDifference, rec.Applied)
	}

	rec := history.Reconstruct(league.ZeroTable(teams), matches, maxDay)
	printTable("Demo League", rec)

	fmt.Println("To replay real results, use:")
	fmt.Println("  tablecast-replay -data results.json -at 19")
	fmt.Println()
}

// syntheticSeason builds a double round-robin schedule with deterministic
// scorelines, using the circle method for pairings.
func syntheticSeason(teams []league.Team) []league.FinishedMatch {
	n := len(teams)
	rounds := n - 1
	half := n / 2

	// Rotation slots; slot 0 stays fixed.
	slots := make([]int, n)
	for i := range slots {
		slots[i] = i
	}

	var matches []league.FinishedMatch
	id := 1

	for leg := 0; leg < 2; leg++ {
		for r := 0; r < rounds; r++ {
			day := leg*rounds + r + 1
			for p := 0; p < half; p++ {
				home, away := slots[p], slots[n-1-p]
				if leg == 1 {
					home, away = away, home
				}

				hg := (home*7 + day*3) % 4
				ag := (away*5 + day) % 3

				matches = append(matches, league.FinishedMatch{
					Match: league.Match{
						ID:       league.MatchID(fmt.Sprintf("%d", id)),
						Matchday: day,
						HomeTeam: teams[home],
						AwayTeam: teams[away],
					},
					HomeGoals: hg,
					AwayGoals: ag,
				})
				id++
			}

			// Rotate all slots except the first.
			last := slots[n-1]
			copy(slots[2:], slots[1:n-1])
			slots[1] = last
		}
	}

	return matches
}
