package league

import "testing"

func indexFixture() *Index {
	return NewIndex([]Team{
		{ID: "57", Name: "Arsenal FC", ShortName: "Arsenal"},
		{ID: "5", Name: "FC Bayern München", ShortName: "Bayern"},
		{ID: "66", Name: "Manchester United FC", ShortName: "Man United"},
		{ID: "81", Name: "FC Barcelona", ShortName: "Barça"},
	})
}

func TestIndexGet(t *testing.T) {
	idx := indexFixture()

	team, ok := idx.Get("57")
	if !ok {
		t.Fatal("Arsenal should be indexed")
	}
	if team.Name != "Arsenal FC" {
		t.Errorf("Wrong team: %s", team.Name)
	}

	if _, ok := idx.Get("9999"); ok {
		t.Error("Unknown ID should not resolve")
	}

	if idx.Len() != 4 {
		t.Errorf("Wrong team count: %d", idx.Len())
	}
}

func TestIndexFindByName(t *testing.T) {
	idx := indexFixture()

	// Accents are stripped on both sides.
	team, ok := idx.FindByName("FC Bayern Munchen")
	if !ok || team.ID != "5" {
		t.Errorf("Accent-insensitive lookup failed: %v %v", team, ok)
	}

	// Short names resolve too.
	team, ok = idx.FindByName("Man United")
	if !ok || team.ID != "66" {
		t.Errorf("Short name lookup failed: %v %v", team, ok)
	}

	if _, ok := idx.FindByName("Real Madrid"); ok {
		t.Error("Unknown name should not resolve")
	}
}

func TestIndexFindBestMatch(t *testing.T) {
	idx := indexFixture()

	// Suffix variants collapse onto the indexed name.
	team, ok := idx.FindBestMatch("Arsenal")
	if !ok || team.ID != "57" {
		t.Errorf("Suffix-stripped match failed: %v %v", team, ok)
	}

	team, ok = idx.FindBestMatch("Barcelona")
	if !ok || team.ID != "81" {
		t.Errorf("Partial match failed: %v %v", team, ok)
	}

	if _, ok := idx.FindBestMatch("Sporting CP"); ok {
		t.Error("Unrelated name should not match")
	}
}

func TestIndexLoadReplaces(t *testing.T) {
	idx := indexFixture()

	idx.Load([]Team{{ID: "64", Name: "Liverpool FC", ShortName: "Liverpool"}})

	if idx.Len() != 1 {
		t.Errorf("Load should replace the set, count %d", idx.Len())
	}
	if _, ok := idx.Get("57"); ok {
		t.Error("Old entries should be gone after Load")
	}
	if _, ok := idx.FindByName("Liverpool"); !ok {
		t.Error("New entry should resolve")
	}
}
