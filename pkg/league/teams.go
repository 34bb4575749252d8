package league

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Index resolves team references by ID, name, or short name. Name lookup
// is accent- and suffix-insensitive so provider spellings ("1. FC Köln",
// "FC Koln") land on the same team.
type Index struct {
	mu      sync.RWMutex
	teams   map[TeamID]Team
	byName  map[string]Team
	byShort map[string]Team
}

// NewIndex builds an index over the given teams.
func NewIndex(teams []Team) *Index {
	idx := &Index{
		teams:   make(map[TeamID]Team),
		byName:  make(map[string]Team),
		byShort: make(map[string]Team),
	}
	idx.Load(teams)
	return idx
}

// Load replaces the indexed team set.
func (idx *Index) Load(teams []Team) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.teams = make(map[TeamID]Team)
	idx.byName = make(map[string]Team)
	idx.byShort = make(map[string]Team)

	for _, t := range teams {
		idx.teams[t.ID] = t
		idx.byName[normalizeName(t.Name)] = t
		if t.ShortName != "" {
			idx.byShort[strings.ToLower(t.ShortName)] = t
			idx.byName[normalizeName(t.ShortName)] = t
		}
	}
}

// Len returns the number of indexed teams.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.teams)
}

// Get returns a team by ID.
func (idx *Index) Get(id TeamID) (Team, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	t, ok := idx.teams[id]
	return t, ok
}

// FindByName finds a team by full or short name.
func (idx *Index) FindByName(name string) (Team, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if t, ok := idx.byName[normalizeName(name)]; ok {
		return t, true
	}
	t, ok := idx.byShort[strings.ToLower(strings.TrimSpace(name))]
	return t, ok
}

// FindBestMatch finds the closest team for a free-form name, falling back
// to suffix stripping and substring matching.
func (idx *Index) FindBestMatch(name string) (Team, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	normName := normalizeName(name)

	// Exact match
	if t, ok := idx.byName[normName]; ok {
		return t, true
	}

	// Try without common suffixes
	suffixes := []string{" fc", " cf", " united", " city"}
	for _, suffix := range suffixes {
		stripped := strings.TrimSuffix(normName, suffix)
		if t, ok := idx.byName[stripped]; ok {
			return t, true
		}
	}

	// Try partial match
	for key, t := range idx.byName {
		if strings.Contains(key, normName) || strings.Contains(normName, key) {
			return t, true
		}
	}

	return Team{}, false
}

// normalizeName normalizes a team name for matching.
func normalizeName(name string) string {
	// Lowercase
	name = strings.ToLower(name)

	// Remove accents
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	name, _, _ = transform.String(t, name)

	// Remove common suffixes
	name = strings.ReplaceAll(name, " fc", "")
	name = strings.ReplaceAll(name, " afc", "")

	// Normalize spaces
	name = strings.Join(strings.Fields(name), " ")

	return strings.TrimSpace(name)
}
