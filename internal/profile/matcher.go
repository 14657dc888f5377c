package profile

import "sort"

// FullMatch is the score of a profile whose every declared datapoint was
// observed with a compatible type.
const FullMatch = 100.0

// Candidate is one ranked profile for an observed datapoint map.
type Candidate struct {
	Profile  *Profile
	Score    float64 // percentage, 0-100
	Matched  int     // declared datapoints present with a compatible type
	Declared int     // datapoints the profile declares
}

// Score computes how well an observed raw datapoint map fits a profile.
//
// score = matched / declared * 100, where matched counts declared
// datapoints present in dps with a type-compatible value. Extra datapoints
// in dps are ignored. A profile declaring no datapoints scores 0 with ok=false.
func Score(p *Profile, dps map[string]any) (score float64, matched int, ok bool) {
	declared := p.DeclaredCount()
	if declared == 0 {
		return 0, 0, false
	}
	for id, t := range p.declared {
		if raw, present := dps[id]; present && t.Compatible(raw) {
			matched++
		}
	}
	return float64(matched) / float64(declared) * FullMatch, matched, true
}

// FindCandidates ranks every profile against an observed datapoint map.
//
// Profiles declaring no datapoints are excluded. Order: score descending,
// then declared datapoint count descending (the more specific profile
// wins a tie), then ID for determinism.
func (c *Catalog) FindCandidates(dps map[string]any) []Candidate {
	profiles := c.All()
	out := make([]Candidate, 0, len(profiles))

	for _, p := range profiles {
		score, matched, ok := Score(p, dps)
		if !ok {
			continue
		}
		out = append(out, Candidate{
			Profile:  p,
			Score:    score,
			Matched:  matched,
			Declared: p.DeclaredCount(),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Declared != b.Declared {
			return a.Declared > b.Declared
		}
		return a.Profile.ID < b.Profile.ID
	})
	return out
}

// BestMatch returns the top candidate if it is a full match.
func (c *Catalog) BestMatch(dps map[string]any) (*Profile, bool) {
	candidates := c.FindCandidates(dps)
	if len(candidates) == 0 || candidates[0].Score < FullMatch {
		return nil, false
	}
	return candidates[0].Profile, true
}
