//go:build ignore
// +build ignore

// This script converts a raw football-data.org matches payload into the
// replay dump format read by tablecast-replay.
// Usage: go run convert_results.go -input matches.json -output results.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"
)

// Provider payload (camelCase, as returned by /competitions/{code}/matches).

type teamPayload struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"shortName"`
	TLA       string `json:"tla"`
	Crest     string `json:"crest"`
}

type matchPayload struct {
	ID       int64       `json:"id"`
	Matchday int         `json:"matchday"`
	UTCDate  time.Time   `json:"utcDate"`
	Status   string      `json:"status"`
	HomeTeam teamPayload `json:"homeTeam"`
	AwayTeam teamPayload `json:"awayTeam"`
	Score    struct {
		FullTime struct {
			Home *int `json:"home"`
			Away *int `json:"away"`
		} `json:"fullTime"`
	} `json:"score"`
}

type matchesPayload struct {
	Competition struct {
		Code string `json:"code"`
		Name string `json:"name"`
	} `json:"competition"`
	Matches []matchPayload `json:"matches"`
}

// Replay dump format (snake_case, matching the league package).

type outTeam struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
	Crest     string `json:"crest,omitempty"`
}

type outMatch struct {
	ID        string  `json:"id"`
	Matchday  int     `json:"matchday"`
	HomeTeam  outTeam `json:"home_team"`
	AwayTeam  outTeam `json:"away_team"`
	Kickoff   string  `json:"kickoff"`
	HomeGoals int     `json:"home_goals"`
	AwayGoals int     `json:"away_goals"`
}

type outDump struct {
	League  string     `json:"league"`
	Season  string     `json:"season,omitempty"`
	Teams   []outTeam  `json:"teams"`
	Matches []outMatch `json:"matches"`
}

var (
	inputFile  = flag.String("input", "", "Input JSON file with the raw matches payload")
	outputFile = flag.String("output", "results.json", "Output JSON file")
	leagueName = flag.String("league", "", "League name for the dump (default: competition name from payload)")
	seasonName = flag.String("season", "", "Season label for the dump")
)

func main() {
	flag.Parse()

	if *inputFile == "" {
		log.Fatal("Please provide -input file")
	}

	data, err := os.ReadFile(*inputFile)
	if err != nil {
		log.Fatalf("Failed to read file: %v", err)
	}

	var payload matchesPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Fatalf("Failed to parse payload: %v", err)
	}

	name := *leagueName
	if name == "" {
		name = payload.Competition.Name
	}

	dump := outDump{
		League: name,
		Season: *seasonName,
	}

	teams := make(map[string]outTeam)
	skipped := 0

	for _, m := range payload.Matches {
		if m.Status != "FINISHED" || m.Matchday < 1 {
			skipped++
			continue
		}
		if m.Score.FullTime.Home == nil || m.Score.FullTime.Away == nil {
			skipped++
			continue
		}

		home := convertTeam(m.HomeTeam)
		away := convertTeam(m.AwayTeam)
		teams[home.ID] = home
		teams[away.ID] = away

		dump.Matches = append(dump.Matches, outMatch{
			ID:        fmt.Sprintf("%d", m.ID),
			Matchday:  m.Matchday,
			HomeTeam:  home,
			AwayTeam:  away,
			Kickoff:   m.UTCDate.Format(time.RFC3339),
			HomeGoals: *m.Score.FullTime.Home,
			AwayGoals: *m.Score.FullTime.Away,
		})
	}

	if len(dump.Matches) == 0 {
		log.Fatal("No finished matches to write")
	}

	for _, t := range teams {
		dump.Teams = append(dump.Teams, t)
	}
	sort.Slice(dump.Teams, func(i, j int) bool {
		return dump.Teams[i].Name < dump.Teams[j].Name
	})
	sort.Slice(dump.Matches, func(i, j int) bool {
		if dump.Matches[i].Matchday != dump.Matches[j].Matchday {
			return dump.Matches[i].Matchday < dump.Matches[j].Matchday
		}
		return dump.Matches[i].ID < dump.Matches[j].ID
	})

	log.Printf("Read %d matches, kept %d finished (%d skipped) for %d teams",
		len(payload.Matches), len(dump.Matches), skipped, len(dump.Teams))

	outFile, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer outFile.Close()

	encoder := json.NewEncoder(outFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(dump); err != nil {
		log.Fatalf("Failed to write JSON: %v", err)
	}

	log.Printf("Wrote %d matches to %s", len(dump.Matches), *outputFile)
}

func convertTeam(t teamPayload) outTeam {
	short := t.ShortName
	if short == "" {
		short = t.TLA
	}
	return outTeam{
		ID:        fmt.Sprintf("%d", t.ID),
		Name:      t.Name,
		ShortName: short,
		Crest:     t.Crest,
	}
}
