package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/grantscout/discovery/internal/adapters"
	"github.com/grantscout/discovery/internal/config"
	"github.com/grantscout/discovery/internal/dedup"
	"github.com/grantscout/discovery/internal/grants"
	"github.com/grantscout/discovery/internal/match"
	"github.com/grantscout/discovery/internal/orchestrator"
	memorystore "github.com/grantscout/discovery/internal/store/memory"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("id-%04d", s.n), nil
}

type scriptedAdapter struct {
	name    string
	produce func(ctx context.Context) ([]grants.RawCandidate, error)
}

func (a scriptedAdapter) Name() string { return a.name }

func (a scriptedAdapter) Produce(ctx context.Context) ([]grants.RawCandidate, error) {
	if a.produce == nil {
		return []grants.RawCandidate{{Source: a.name, Title: "Default Grant"}}, nil
	}
	return a.produce(ctx)
}

type serverFixture struct {
	server *Server
	store  *memorystore.GrantStore
	clock  fixedClock
}

func newServerFixture(t *testing.T, cfg config.Config, sources ...grants.SourceAdapter) *serverFixture {
	t.Helper()

	if len(sources) == 0 {
		sources = []grants.SourceAdapter{scriptedAdapter{name: "alpha"}}
	}
	registry := adapters.NewRegistry()
	for _, src := range sources {
		require.NoError(t, registry.Register(src))
	}

	clock := fixedClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	ids := &seqIDs{}
	store := memorystore.NewGrantStore()
	runs := memorystore.NewRunStore()
	resolver := dedup.NewResolver(store, ids, clock, zap.NewNop())
	orch := orchestrator.New(registry, resolver, runs, nil, clock, ids, orchestrator.Config{}, zap.NewNop())
	engine := match.NewEngine(match.DefaultConfig())

	return &serverFixture{
		server: NewServer(orch, store, engine, clock, cfg, zap.NewNop()),
		store:  store,
		clock:  clock,
	}
}

func (f *serverFixture) seedGrant(t *testing.T, id string) grants.Grant {
	t.Helper()
	deadline := f.clock.now.AddDate(0, 2, 0)
	g := grants.Grant{
		ID:                  id,
		Source:              "alpha",
		Title:               "Digital Capability Uplift Grant",
		SourceURL:           "https://grants.example.org/" + id,
		IndustryFocus:       grants.IndustryTechnology,
		LocationEligibility: grants.LocationNational,
		EligibleOrgTypes:    []grants.OrgType{grants.OrgTypeSME},
		FundingPurposes:     []grants.Purpose{grants.PurposeEquipment},
		Status:              grants.GrantStatusOpen,
		Deadline:            &deadline,
		Fingerprint:         "fp-" + id,
		CreatedAt:           f.clock.now,
		UpdatedAt:           f.clock.now,
	}
	require.NoError(t, f.store.Insert(context.Background(), g))
	return g
}

func doJSON(t *testing.T, handler http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	f := newServerFixture(t, config.Config{})
	h := f.server.Handler()

	rec := doJSON(t, h, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decodeBody(t, rec)["status"])
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = doJSON(t, h, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ready", decodeBody(t, rec)["status"])
}

func TestTriggerRunEndpoint(t *testing.T) {
	t.Parallel()

	f := newServerFixture(t, config.Config{})
	h := f.server.Handler()

	rec := doJSON(t, h, http.MethodPost, "/v1/runs", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, "an empty body triggers all sources")
	runID := decodeBody(t, rec)["run_id"].(string)
	require.NotEmpty(t, runID)

	require.Eventually(t, func() bool {
		rec := doJSON(t, h, http.MethodGet, "/v1/runs/"+runID, nil)
		return rec.Code == http.StatusOK &&
			decodeBody(t, rec)["status"] == string(grants.RunStatusCompleted)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestTriggerRunUnknownSourceReturns400(t *testing.T) {
	t.Parallel()

	f := newServerFixture(t, config.Config{})
	rec := doJSON(t, f.server.Handler(), http.MethodPost, "/v1/runs",
		map[string]any{"sources": []string{"ghost"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerRunConflictWhileRunning(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	blocking := scriptedAdapter{
		name: "slow",
		produce: func(ctx context.Context) ([]grants.RawCandidate, error) {
			select {
			case <-release:
				return nil, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	f := newServerFixture(t, config.Config{}, blocking)
	h := f.server.Handler()

	rec := doJSON(t, h, http.MethodPost, "/v1/runs", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/v1/runs", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	close(release)
}

func TestGetRunStatusNotFound(t *testing.T) {
	t.Parallel()

	f := newServerFixture(t, config.Config{})
	rec := doJSON(t, f.server.Handler(), http.MethodGet, "/v1/runs/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSourcesEndpoint(t *testing.T) {
	t.Parallel()

	f := newServerFixture(t, config.Config{})
	rec := doJSON(t, f.server.Handler(), http.MethodGet, "/v1/sources", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	sources := decodeBody(t, rec)["sources"].([]any)
	require.Len(t, sources, 1)
	require.Equal(t, "alpha", sources[0].(map[string]any)["name"])
}

func TestMatchProfileEndpoint(t *testing.T) {
	t.Parallel()

	f := newServerFixture(t, config.Config{})
	f.seedGrant(t, "g-1")
	h := f.server.Handler()

	rec := doJSON(t, h, http.MethodPost, "/v1/matches", map[string]any{
		"profile": map[string]any{
			"industry":         "technology",
			"location":         "national",
			"org_type":         "sme",
			"funding_purposes": []string{"equipment"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	matches := decodeBody(t, rec)["matches"].([]any)
	require.Len(t, matches, 1)
	first := matches[0].(map[string]any)
	require.Equal(t, "g-1", first["grant_id"])
	require.InDelta(t, 100.0, first["score"].(float64), 0.01)
	require.Equal(t, string(grants.PriorityHigh), first["priority"])
}

func TestMatchProfileMinScoreFilter(t *testing.T) {
	t.Parallel()

	f := newServerFixture(t, config.Config{})
	f.seedGrant(t, "g-1")
	weak := f.seedGrant(t, "g-2")
	weak.IndustryFocus = grants.IndustryAgriculture
	weak.FundingPurposes = []grants.Purpose{grants.PurposeResearch}
	weak.EligibleOrgTypes = []grants.OrgType{grants.OrgTypeNonprofit}
	require.NoError(t, f.store.Update(context.Background(), weak))

	rec := doJSON(t, f.server.Handler(), http.MethodPost, "/v1/matches", map[string]any{
		"profile": map[string]any{
			"industry":         "technology",
			"location":         "national",
			"org_type":         "sme",
			"funding_purposes": []string{"equipment"},
		},
		"min_score": 90,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	matches := decodeBody(t, rec)["matches"].([]any)
	require.Len(t, matches, 1)
	require.Equal(t, "g-1", matches[0].(map[string]any)["grant_id"])
}

func TestMatchProfileRejectsInvalidJSON(t *testing.T) {
	t.Parallel()

	f := newServerFixture(t, config.Config{})
	req := httptest.NewRequest(http.MethodPost, "/v1/matches", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMatchGrantEndpoint(t *testing.T) {
	t.Parallel()

	f := newServerFixture(t, config.Config{})
	f.seedGrant(t, "g-1")
	h := f.server.Handler()

	rec := doJSON(t, h, http.MethodGet,
		"/v1/grants/g-1/match?industry=technology&location=national&org_type=sme&purpose=equipment", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "g-1", body["grant_id"])
	require.InDelta(t, 100.0, body["score"].(float64), 0.01)

	rec = doJSON(t, h, http.MethodGet, "/v1/grants/missing/match", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/v1/grants/g-1/match?project_start=soonish", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = "sekrit"
	f := newServerFixture(t, cfg)
	h := f.server.Handler()

	rec := doJSON(t, h, http.MethodGet, "/v1/sources", nil)
	require.Equal(t, http.StatusForbidden, rec.Code, "missing key is rejected")

	req := httptest.NewRequest(http.MethodGet, "/v1/sources", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/sources", nil)
	req.Header.Set("X-API-Key", "sekrit")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/v1/sources?api_key=sekrit", nil)
	require.Equal(t, http.StatusOK, rec.Code, "query parameter fallback")

	rec = doJSON(t, h, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code, "health endpoints stay open")
}
