package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/localtuya-core/internal/profile"
)

// candidateView is one ranked profile in a match response.
type candidateView struct {
	ProfileID string  `json:"profile_id"`
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
	Matched   int     `json:"matched"`
	Declared  int     `json:"declared"`
}

func (s *Server) handleListProfiles(w http.ResponseWriter, _ *http.Request) {
	profiles := s.catalog.All()
	writeJSON(w, http.StatusOK, map[string]any{
		"profiles": profiles,
		"count":    len(profiles),
	})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := s.catalog.Get(id)
	if err != nil {
		writeNotFound(w, "profile not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleMatchProfiles ranks the catalogue against a raw datapoint map,
// as returned by a STATUS query. Body: {"dps": {"1": true, ...}}.
func (s *Server) handleMatchProfiles(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DPS map[string]any `json:"dps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.DPS) == 0 {
		writeBadRequest(w, "dps must not be empty")
		return
	}

	candidates := s.catalog.FindCandidates(req.DPS)
	views := make([]candidateView, 0, len(candidates))
	for _, c := range candidates {
		views = append(views, candidateView{
			ProfileID: c.Profile.ID,
			Name:      c.Profile.Name,
			Score:     c.Score,
			Matched:   c.Matched,
			Declared:  c.Declared,
		})
	}

	resp := map[string]any{"candidates": views}
	if len(candidates) > 0 && candidates[0].Score >= profile.FullMatch {
		resp["best"] = candidates[0].Profile.ID
	}
	writeJSON(w, http.StatusOK, resp)
}
