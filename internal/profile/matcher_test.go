package profile

import (
	"testing"
)

func mustParse(t *testing.T, id, doc string) *Profile {
	t.Helper()
	p, err := Parse([]byte(doc), id)
	if err != nil {
		t.Fatalf("Parse(%s) error: %v", id, err)
	}
	return p
}

func newMatcherCatalog(t *testing.T) *Catalog {
	t.Helper()
	c := NewCatalog()
	for _, p := range []*Profile{
		mustParse(t, "profile_x", `name: X
primary: {entity: switch}
datapoints:
  - {id: "1", type: boolean, property: power}
  - {id: "2", type: integer, property: level}`),
		mustParse(t, "profile_y", `name: Y
primary: {entity: climate}
datapoints:
  - {id: "1", type: boolean, property: power}
  - {id: "2", type: integer, property: setpoint}
  - {id: "3", type: string, property: mode}`),
		mustParse(t, "empty", `name: Empty
primary: {entity: sensor}`),
	} {
		if err := c.Add(p); err != nil {
			t.Fatalf("Add() error: %v", err)
		}
	}
	return c
}

func TestFindCandidatesRanksExactMatchFirst(t *testing.T) {
	c := newMatcherCatalog(t)

	candidates := c.FindCandidates(map[string]any{"1": false, "2": int64(25)})

	if len(candidates) != 2 {
		t.Fatalf("len(candidates) = %d, want 2 (zero-datapoint profile excluded)", len(candidates))
	}
	if candidates[0].Profile.ID != "profile_x" || candidates[0].Score != 100 {
		t.Errorf("first = %s (%.1f), want profile_x (100)", candidates[0].Profile.ID, candidates[0].Score)
	}
	if candidates[1].Profile.ID != "profile_y" || candidates[1].Score >= 100 {
		t.Errorf("second = %s (%.1f), want profile_y (<100)", candidates[1].Profile.ID, candidates[1].Score)
	}

	best, ok := c.BestMatch(map[string]any{"1": false, "2": int64(25)})
	if !ok || best.ID != "profile_x" {
		t.Errorf("BestMatch() = %v, %v; want profile_x", best, ok)
	}
}

func TestFindCandidatesTieBreak(t *testing.T) {
	c := newMatcherCatalog(t)

	// Both X and Y match fully; Y declares more datapoints.
	candidates := c.FindCandidates(map[string]any{"1": true, "2": int64(20), "3": "auto", "99": "extra"})

	if candidates[0].Profile.ID != "profile_y" {
		t.Errorf("first = %s, want profile_y (larger declared set)", candidates[0].Profile.ID)
	}
	if candidates[0].Score != 100 || candidates[1].Score != 100 {
		t.Errorf("scores = %.1f, %.1f; want both 100", candidates[0].Score, candidates[1].Score)
	}
}

func TestScoreTypeCompatibility(t *testing.T) {
	c := newMatcherCatalog(t)
	x, _ := c.Get("profile_x")

	tests := []struct {
		name        string
		dps         map[string]any
		wantScore   float64
		wantMatched int
	}{
		{"exact", map[string]any{"1": false, "2": int64(25)}, 100, 2},
		{"json float integer", map[string]any{"1": true, "2": float64(25)}, 100, 2},
		{"string integer", map[string]any{"1": true, "2": "25"}, 100, 2},
		{"fractional integer", map[string]any{"1": true, "2": "25.5"}, 50, 1},
		{"wrong type", map[string]any{"1": "on", "2": int64(25)}, 50, 1},
		{"missing", map[string]any{"1": true}, 50, 1},
		{"empty", map[string]any{}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, matched, ok := Score(x, tt.dps)
			if !ok {
				t.Fatal("Score() ok = false")
			}
			if score != tt.wantScore || matched != tt.wantMatched {
				t.Errorf("Score() = %.1f (%d), want %.1f (%d)", score, matched, tt.wantScore, tt.wantMatched)
			}
		})
	}
}

func TestBestMatchRequiresFullScore(t *testing.T) {
	c := newMatcherCatalog(t)

	if p, ok := c.BestMatch(map[string]any{"1": true}); ok {
		t.Errorf("BestMatch(partial) = %s, want no match", p.ID)
	}
	if _, ok := NewCatalog().BestMatch(map[string]any{"1": true}); ok {
		t.Error("BestMatch() on empty catalog reported a match")
	}
}
