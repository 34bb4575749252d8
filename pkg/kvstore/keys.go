package kvstore

import "fmt"

// Key scheme. One league per session; matchday-scoped keys carry the
// matchday number as the last segment.

// FixturesKey addresses the cached fixture list for one matchday,
// stored together with its fetch timestamp.
func FixturesKey(league string, matchday int) string {
	return fmt.Sprintf("fixtures:%s:%d", league, matchday)
}

// CompletedKey addresses the set of submitted matchdays for a league.
func CompletedKey(league string) string {
	return fmt.Sprintf("completed:%s", league)
}

// MatchesKey addresses the set of resolved match IDs for a league.
func MatchesKey(league string) string {
	return fmt.Sprintf("matches:%s", league)
}

// PredictionsKey addresses the serialized predictions for a league.
func PredictionsKey(league string) string {
	return fmt.Sprintf("predictions:%s", league)
}

// TableKey addresses the live predicted table for a league.
func TableKey(league string) string {
	return fmt.Sprintf("table:%s", league)
}

// SnapshotKey addresses the predicted table as of one submitted matchday.
func SnapshotKey(league string, matchday int) string {
	return fmt.Sprintf("table:%s:%d", league, matchday)
}
