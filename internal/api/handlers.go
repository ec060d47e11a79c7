package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/grantscout/discovery/internal/grants"
	"github.com/grantscout/discovery/internal/orchestrator"
)

type triggerRunRequest struct {
	Sources      []string `json:"sources"`
	ForceRefresh bool     `json:"force_refresh"`
}

type matchRequest struct {
	Profile  grants.ConsumerProfile `json:"profile"`
	MinScore *float64               `json:"min_score"`
	Limit    *int                   `json:"limit"`
}

const defaultMatchLimit = 20

func (s *Server) triggerRun(w http.ResponseWriter, r *http.Request) {
	var req triggerRunRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	runID, err := s.orch.TriggerRun(r.Context(), req.Sources, req.ForceRefresh)
	switch {
	case errors.Is(err, orchestrator.ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, orchestrator.ErrUnknownSource):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (s *Server) getRunStatus(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	run, err := s.orch.RunStatus(r.Context(), runID)
	if err != nil {
		if errors.Is(err, grants.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.orch.ListSources(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

func (s *Server) matchProfile(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	stored, err := s.store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	limit := defaultMatchLimit
	if req.Limit != nil && *req.Limit > 0 {
		limit = *req.Limit
	}
	results := s.engine.TopMatches(stored, req.Profile, s.clock.Now(), limit)
	if req.MinScore != nil {
		filtered := results[:0]
		for _, res := range results {
			if res.Score >= *req.MinScore {
				filtered = append(filtered, res)
			}
		}
		results = filtered
	}
	if results == nil {
		results = []grants.MatchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": results})
}

func (s *Server) matchGrant(w http.ResponseWriter, r *http.Request) {
	grantID := chi.URLParam(r, "grant_id")
	grant, err := s.store.GetByID(r.Context(), grantID)
	if err != nil {
		if errors.Is(err, grants.ErrNotFound) {
			writeError(w, http.StatusNotFound, "grant not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	profile, err := profileFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result := s.engine.Score(grant, profile, s.clock.Now())
	writeJSON(w, http.StatusOK, result)
}

// profileFromQuery builds a ConsumerProfile from query parameters.
// List-valued fields use comma separation.
func profileFromQuery(r *http.Request) (grants.ConsumerProfile, error) {
	q := r.URL.Query()
	profile := grants.ConsumerProfile{
		Industry: grants.Industry(strings.ToLower(q.Get("industry"))),
		Location: grants.Location(strings.ToLower(q.Get("location"))),
		OrgType:  grants.OrgType(strings.ToLower(q.Get("org_type"))),
	}
	for _, p := range splitList(q.Get("purpose")) {
		profile.FundingPurposes = append(profile.FundingPurposes, grants.Purpose(p))
	}
	profile.Audience = splitList(q.Get("audience"))

	for _, pair := range []struct {
		param string
		dst   **time.Time
	}{
		{"project_start", &profile.ProjectStart},
		{"project_end", &profile.ProjectEnd},
	} {
		raw := q.Get(pair.param)
		if raw == "" {
			continue
		}
		ts, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return grants.ConsumerProfile{}, errInvalidParam(pair.param, raw)
		}
		*pair.dst = &ts
	}
	return profile, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

type invalidParamError struct {
	param, value string
}

func errInvalidParam(param, value string) error {
	return &invalidParamError{param: param, value: value}
}

func (e *invalidParamError) Error() string {
	return "invalid " + e.param + " value " + strconv.Quote(e.value)
}
